package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/agentmem/llm"
	"github.com/smallnest/agentmem/log"
)

// StrategySequential identifies the keep-everything strategy.
const StrategySequential = "sequential"

// SequentialMemory stores the entire conversation in chronological order.
// Perfect recall, linear token growth.
type SequentialMemory struct {
	history     []chatMessage
	countTokens llm.TokenCounter

	totalContentTokens int
	totalPromptTokens  int
	growthTracker      []growthSample
	ops                operationLog
}

type chatMessage struct {
	Role    string
	Content string
}

type growthSample struct {
	Turn             int
	TokensThisTurn   int
	CumulativeTokens int
}

// SequentialConfig holds configuration for sequential memory.
type SequentialConfig struct {
	// CountTokens tracks content token growth. Defaults to the gpt-4o-mini
	// tokenizer when nil.
	CountTokens llm.TokenCounter
}

// NewSequentialMemory creates a sequential memory strategy.
func NewSequentialMemory(config *SequentialConfig) *SequentialMemory {
	if config == nil {
		config = &SequentialConfig{}
	}
	counter := config.CountTokens
	if counter == nil {
		counter = llm.NewTokenCounter(llm.DefaultGenerationModel)
	}
	return &SequentialMemory{
		countTokens: counter,
		ops:         newOperationLog("SEQUENTIAL"),
	}
}

var _ Strategy = (*SequentialMemory)(nil)

// AddMessage appends one turn (two messages) to the history.
func (m *SequentialMemory) AddMessage(ctx context.Context, userInput, aiResponse string) error {
	turnTokens := m.countTokens(userInput + aiResponse)
	m.history = append(m.history,
		chatMessage{Role: "user", Content: userInput},
		chatMessage{Role: "assistant", Content: aiResponse},
	)
	m.totalContentTokens += turnTokens
	m.growthTracker = append(m.growthTracker, growthSample{
		Turn:             len(m.history) / 2,
		TokensThisTurn:   turnTokens,
		CumulativeTokens: m.totalContentTokens,
	})
	m.ops.record("ADD_TURN", map[string]any{
		"messages_added": 2,
		"turn_tokens":    turnTokens,
		"total_turns":    len(m.history) / 2,
	})
	return nil
}

// GetContext renders the full history. The query is ignored.
func (m *SequentialMemory) GetContext(ctx context.Context, query string) string {
	if len(m.history) == 0 {
		return noHistorySentinel
	}
	lines := make([]string, 0, len(m.history))
	for _, msg := range m.history {
		lines = append(lines, fmt.Sprintf("%s: %s", capitalize(msg.Role), msg.Content))
	}
	return strings.Join(lines, "\n")
}

// Clear resets the history and all counters.
func (m *SequentialMemory) Clear() {
	m.history = nil
	m.totalContentTokens = 0
	m.totalPromptTokens = 0
	m.growthTracker = nil
	m.ops.reset()
	log.Info("[SEQUENTIAL] Sequential memory cleared.")
}

// OperationLog returns a snapshot of the audit trail.
func (m *SequentialMemory) OperationLog() []Operation {
	return m.ops.snapshot()
}

// AddPromptTokens accumulates prompt-side token usage reported by the agent
// loop.
func (m *SequentialMemory) AddPromptTokens(n int) {
	m.totalPromptTokens += n
}

// Stats reports linear-growth metrics.
func (m *SequentialMemory) Stats() Stats {
	totalMessages := len(m.history)
	totalTurns := totalMessages / 2

	growthRate := 0.0
	if len(m.growthTracker) >= 2 {
		recent := m.growthTracker
		if len(recent) > 5 {
			recent = recent[len(recent)-5:]
		}
		tokensAdded := 0
		for _, s := range recent {
			tokensAdded += s.TokensThisTurn
		}
		growthRate = float64(tokensAdded) / float64(len(recent))
	}

	return Stats{
		StrategyID:   StrategySequential,
		StrategyType: "SequentialMemory",
		MemorySize:   fmt.Sprintf("%d messages", totalMessages),
		Metrics: map[string]any{
			"linear_metrics": map[string]any{
				"total_turns":    totalTurns,
				"total_messages": totalMessages,
				"growth_rate":    roundTo(growthRate, 2),
			},
			"total_content_tokens": m.totalContentTokens,
			"total_prompt_tokens":  m.totalPromptTokens,
		},
	}
}
