package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/agentmem/llm"
	"github.com/smallnest/agentmem/log"
)

// StrategySlidingWindow identifies the bounded-recency strategy.
const StrategySlidingWindow = "sliding_window"

// DefaultWindowSize is the number of turns retained when no size is given.
const DefaultWindowSize = 4

// SlidingWindowMemory keeps only the most recent N conversation turns.
// When the window is full the oldest turn is evicted before the new one is
// appended, strictly FIFO.
type SlidingWindowMemory struct {
	windowSize  int
	buffer      []Turn
	countTokens llm.TokenCounter

	nextSequence       int
	totalContentTokens int
	totalPromptTokens  int
	evictionCount      int
	ops                operationLog
}

// SlidingWindowConfig holds configuration for sliding window memory.
type SlidingWindowConfig struct {
	// WindowSize is the number of turns to retain. Defaults to
	// DefaultWindowSize when zero or negative.
	WindowSize int

	// CountTokens tracks content token usage. Defaults to the gpt-4o-mini
	// tokenizer when nil.
	CountTokens llm.TokenCounter
}

// NewSlidingWindowMemory creates a sliding window over windowSize turns.
func NewSlidingWindowMemory(windowSize int) *SlidingWindowMemory {
	return NewSlidingWindowMemoryWithConfig(&SlidingWindowConfig{WindowSize: windowSize})
}

// NewSlidingWindowMemoryWithConfig creates a sliding window memory with
// explicit configuration.
func NewSlidingWindowMemoryWithConfig(config *SlidingWindowConfig) *SlidingWindowMemory {
	if config == nil {
		config = &SlidingWindowConfig{}
	}
	size := config.WindowSize
	if size <= 0 {
		size = DefaultWindowSize
	}
	counter := config.CountTokens
	if counter == nil {
		counter = llm.NewTokenCounter(llm.DefaultGenerationModel)
	}
	return &SlidingWindowMemory{
		windowSize:  size,
		buffer:      make([]Turn, 0, size),
		countTokens: counter,
		ops:         newOperationLog("WINDOW"),
	}
}

var _ Strategy = (*SlidingWindowMemory)(nil)

// PeekOldest returns the next eviction candidate, or false when the window
// is empty.
func (m *SlidingWindowMemory) PeekOldest() (Turn, bool) {
	if len(m.buffer) == 0 {
		return Turn{}, false
	}
	return m.buffer[0], true
}

// AddMessage appends a turn, evicting the oldest one first when the window
// is full.
func (m *SlidingWindowMemory) AddMessage(ctx context.Context, userInput, aiResponse string) error {
	if len(m.buffer) >= m.windowSize {
		evicted := m.buffer[0]
		m.buffer = m.buffer[1:]
		m.evictionCount++
		previewText := preview(evicted.UserInput, 50) + "... " + preview(evicted.AIResponse, 50) + "..."
		m.ops.record("EVICTION", map[string]any{
			"eviction_id": m.evictionCount,
			"preview":     preview(previewText, 80),
		})
		log.Debug("[WINDOW] Evicted turn %d: %s", evicted.Sequence, preview(evicted.UserInput, 50))
	}

	m.buffer = append(m.buffer, NewTurn(userInput, aiResponse, m.nextSequence))
	m.nextSequence++
	m.totalContentTokens += m.countTokens(userInput + aiResponse)
	m.ops.record("ADD_TURN", map[string]any{
		"utilization": m.utilization(),
		"turns":       len(m.buffer),
	})
	return nil
}

// GetContext renders the window oldest-first. The query is ignored.
func (m *SlidingWindowMemory) GetContext(ctx context.Context, query string) string {
	if len(m.buffer) == 0 {
		return noHistorySentinel
	}
	lines := make([]string, 0, len(m.buffer)*2)
	for _, turn := range m.buffer {
		lines = append(lines, "User: "+turn.UserInput, "Assistant: "+turn.AIResponse)
	}
	return strings.Join(lines, "\n")
}

// Clear empties the window and resets all counters.
func (m *SlidingWindowMemory) Clear() {
	m.buffer = m.buffer[:0]
	m.nextSequence = 0
	m.totalContentTokens = 0
	m.totalPromptTokens = 0
	m.evictionCount = 0
	m.ops.reset()
	log.Info("[WINDOW] Sliding window memory cleared.")
}

// OperationLog returns a snapshot of the audit trail.
func (m *SlidingWindowMemory) OperationLog() []Operation {
	return m.ops.snapshot()
}

// AddPromptTokens accumulates prompt-side token usage reported by the agent
// loop.
func (m *SlidingWindowMemory) AddPromptTokens(n int) {
	m.totalPromptTokens += n
}

func (m *SlidingWindowMemory) utilization() float64 {
	if m.windowSize <= 0 {
		return 0
	}
	return float64(len(m.buffer)) / float64(m.windowSize)
}

// Stats reports window occupancy and eviction metrics.
func (m *SlidingWindowMemory) Stats() Stats {
	currentTurns := len(m.buffer)
	return Stats{
		StrategyID:   StrategySlidingWindow,
		StrategyType: "SlidingWindowMemory",
		MemorySize:   fmt.Sprintf("%d/%d turns", currentTurns, m.windowSize),
		Metrics: map[string]any{
			"window_metrics": map[string]any{
				"capacity":    m.windowSize,
				"utilization": currentTurns,
				"evictions":   m.evictionCount,
				"efficiency":  roundTo(m.utilization(), 4),
				"is_full":     currentTurns == m.windowSize,
			},
			"total_messages":       currentTurns * 2,
			"total_content_tokens": m.totalContentTokens,
			"total_prompt_tokens":  m.totalPromptTokens,
		},
	}
}
