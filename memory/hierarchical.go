package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallnest/agentmem/llm"
	"github.com/smallnest/agentmem/log"
)

// StrategyHierarchical identifies the two-tier composite strategy.
const StrategyHierarchical = "hierarchical"

// DefaultHierarchicalWindowSize is the working-memory capacity in turns.
const DefaultHierarchicalWindowSize = 2

// promotionKeywords mark a user message worth keeping in long-term memory.
// Matched by case-insensitive substring.
var promotionKeywords = []string{
	"remember", "rule", "preference", "always", "never", "allergic", "important",
}

// HierarchicalMemory layers a sliding window (working memory) over a
// retrieval index (long-term memory). Every turn enters the window; turns
// whose user message carries a promotion keyword are also indexed long-term.
type HierarchicalMemory struct {
	workingMemory  *SlidingWindowMemory
	longTermMemory *RetrievalMemory

	promotions       int
	workingAccesses  int
	longTermAccesses int
	ops              operationLog
}

// HierarchicalConfig holds configuration for hierarchical memory.
type HierarchicalConfig struct {
	// WindowSize is the working-memory capacity in turns. Defaults to
	// DefaultHierarchicalWindowSize when zero or negative.
	WindowSize int

	// K is the long-term retrieval fan-out. Defaults to DefaultRetrievalK
	// when zero or negative.
	K int

	// EmbeddingDim is the long-term vector dimension. Defaults to
	// DefaultEmbeddingDim when zero or negative.
	EmbeddingDim int

	// Client provides the embedding primitive for the long-term tier.
	// Required.
	Client llm.Client

	// CountTokens tracks working-memory token usage. Defaults to the
	// gpt-4o-mini tokenizer when nil.
	CountTokens llm.TokenCounter
}

// NewHierarchicalMemory creates a hierarchical memory backed by the given
// client.
func NewHierarchicalMemory(config *HierarchicalConfig) (*HierarchicalMemory, error) {
	if config == nil || config.Client == nil {
		return nil, errors.New("memory: hierarchical requires an llm client")
	}
	windowSize := config.WindowSize
	if windowSize <= 0 {
		windowSize = DefaultHierarchicalWindowSize
	}
	longTerm, err := NewRetrievalMemory(&RetrievalConfig{
		K:            config.K,
		EmbeddingDim: config.EmbeddingDim,
		Client:       config.Client,
	})
	if err != nil {
		return nil, err
	}
	return &HierarchicalMemory{
		workingMemory: NewSlidingWindowMemoryWithConfig(&SlidingWindowConfig{
			WindowSize:  windowSize,
			CountTokens: config.CountTokens,
		}),
		longTermMemory: longTerm,
		ops:            newOperationLog("HIERARCHICAL"),
	}, nil
}

var _ Strategy = (*HierarchicalMemory)(nil)

func shouldPromote(userInput string) bool {
	lower := strings.ToLower(userInput)
	for _, keyword := range promotionKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// AddMessage stores the turn in working memory and promotes it to long-term
// memory when the user message carries a promotion keyword.
func (m *HierarchicalMemory) AddMessage(ctx context.Context, userInput, aiResponse string) error {
	if err := m.workingMemory.AddMessage(ctx, userInput, aiResponse); err != nil {
		return err
	}
	promoted := shouldPromote(userInput)
	if promoted {
		m.promotions++
		if err := m.longTermMemory.AddMessage(ctx, userInput, aiResponse); err != nil {
			return err
		}
		m.ops.record("PROMOTION", map[string]any{"preview": preview(userInput, 50)})
		log.Debug("[HIERARCHICAL] Promoting message to long-term storage.")
	}
	m.ops.record("ADD_TURN", map[string]any{"promoted": promoted})
	return nil
}

// GetContext queries both tiers. When the long-term tier has nothing useful
// to say, only the recent context is rendered.
func (m *HierarchicalMemory) GetContext(ctx context.Context, query string) string {
	m.workingAccesses++
	workingContext := m.workingMemory.GetContext(ctx, query)
	m.longTermAccesses++
	longTermContext := m.longTermMemory.GetContext(ctx, query)

	switch longTermContext {
	case noMemorySentinel, noRelevantSentinel, queryFailedSentinel:
		return "### Recent Context:\n" + workingContext
	}
	return fmt.Sprintf("### Long-Term Context:\n%s\n\n### Recent Context:\n%s",
		longTermContext, workingContext)
}

// Clear resets both tiers.
func (m *HierarchicalMemory) Clear() {
	m.workingMemory.Clear()
	m.longTermMemory.Clear()
	m.promotions = 0
	m.workingAccesses = 0
	m.longTermAccesses = 0
	m.ops.reset()
	log.Info("[HIERARCHICAL] Hierarchical memory cleared.")
}

// OperationLog returns a snapshot of the audit trail.
func (m *HierarchicalMemory) OperationLog() []Operation {
	return m.ops.snapshot()
}

// Stats merges both tiers' stats with promotion and access metrics.
func (m *HierarchicalMemory) Stats() Stats {
	workingStats := m.workingMemory.Stats()
	longTermStats := m.longTermMemory.Stats()

	totalAccesses := m.workingAccesses + m.longTermAccesses
	accessRatio := 0.0
	if totalAccesses > 0 {
		accessRatio = float64(m.longTermAccesses) / float64(totalAccesses)
	}

	return Stats{
		StrategyID:   StrategyHierarchical,
		StrategyType: "HierarchicalMemory",
		MemorySize: fmt.Sprintf("Working: %s, Long-term: %s",
			workingStats.MemorySize, longTermStats.MemorySize),
		Metrics: map[string]any{
			"tier_metrics": map[string]any{
				"working_memory":    workingStats,
				"long_term_memory":  longTermStats,
				"promotions":        m.promotions,
				"tier_access_ratio": roundTo(accessRatio, 4),
			},
			"promotion_keywords": promotionKeywords,
		},
	}
}
