// Package memory provides interchangeable conversation-memory strategies for
// LLM agents. Every strategy implements the Strategy interface, so callers
// can swap between keeping everything (SequentialMemory), bounded recency
// (SlidingWindowMemory), LLM consolidation (SummarizationMemory,
// CompressionMemory), semantic retrieval (RetrievalMemory), structured
// knowledge (GraphMemory), tiered paging (OSMemory), and the composite
// HierarchicalMemory and AugmentedMemory strategies.
//
// Strategies are constructed directly or through New, which maps stable
// string identifiers to constructors:
//
//	mem, err := memory.New("sliding_window", &memory.Config{WindowSize: 4})
//
// Each instance owns its state exclusively and keeps an append-only
// operation log describing evictions, page faults, consolidations and other
// internal transitions. Nothing is persisted; all state lives in process.
package memory
