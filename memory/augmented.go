package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallnest/agentmem/llm"
	"github.com/smallnest/agentmem/log"
)

// StrategyAugmented identifies the memory-token composite strategy.
const StrategyAugmented = "memory_augmented"

// DefaultAugmentedWindowSize is the recent-memory capacity in turns.
const DefaultAugmentedWindowSize = 2

// noFactMarker is the model's way of declining to extract a fact.
const noFactMarker = "no important fact"

// AugmentedMemory pairs a sliding window of recent turns with an append-only
// list of memory tokens, durable facts the model extracts from each turn.
type AugmentedMemory struct {
	recentMemory *SlidingWindowMemory
	client       llm.Client

	memoryTokens  []string
	qualityScores []float64
	ops           operationLog
}

// AugmentedConfig holds configuration for memory-augmented memory.
type AugmentedConfig struct {
	// WindowSize is the recent-memory capacity in turns. Defaults to
	// DefaultAugmentedWindowSize when zero or negative.
	WindowSize int

	// Client provides the fact-extraction primitive. Required.
	Client llm.Client

	// CountTokens tracks recent-memory token usage. Defaults to the
	// gpt-4o-mini tokenizer when nil.
	CountTokens llm.TokenCounter
}

// NewAugmentedMemory creates a memory-augmented strategy backed by the given
// client.
func NewAugmentedMemory(config *AugmentedConfig) (*AugmentedMemory, error) {
	if config == nil || config.Client == nil {
		return nil, errors.New("memory: memory_augmented requires an llm client")
	}
	windowSize := config.WindowSize
	if windowSize <= 0 {
		windowSize = DefaultAugmentedWindowSize
	}
	return &AugmentedMemory{
		recentMemory: NewSlidingWindowMemoryWithConfig(&SlidingWindowConfig{
			WindowSize:  windowSize,
			CountTokens: config.CountTokens,
		}),
		client: config.Client,
		ops:    newOperationLog("MEM_AUG"),
	}, nil
}

var _ Strategy = (*AugmentedMemory)(nil)

// AddMessage stores the turn in recent memory, then asks the model whether
// the turn carries a fact worth keeping long-term. Failed extraction calls
// add nothing.
func (m *AugmentedMemory) AddMessage(ctx context.Context, userInput, aiResponse string) error {
	if err := m.recentMemory.AddMessage(ctx, userInput, aiResponse); err != nil {
		return err
	}

	prompt := fmt.Sprintf(
		"Analyze the following conversation turn. Does it contain a core fact, preference, or decision that should be remembered long-term? "+
			"Examples include user preferences ('I hate flying'), key decisions ('The budget is $1000'), or important facts ('My user ID is 12345').\n\n"+
			"Conversation Turn:\nUser: %s\nAI: %s\n\n"+
			"If it contains such a fact, state the fact concisely in one sentence. Otherwise, respond with 'No important fact.'",
		userInput, aiResponse)
	extracted := m.client.GenerateText(ctx, "You are a fact-extraction expert.", prompt)

	if !llm.IsGenerationError(extracted) && !strings.Contains(strings.ToLower(extracted), noFactMarker) {
		fact := strings.TrimSpace(extracted)
		if fact != "" {
			quality := float64(len(fact)) / 100.0
			if quality > 1 {
				quality = 1
			}
			m.memoryTokens = append(m.memoryTokens, fact)
			m.qualityScores = append(m.qualityScores, quality)
			m.ops.record("FACT_EXTRACTED", map[string]any{
				"preview": preview(fact, 50),
				"quality": quality,
			})
			log.Debug("[MEM_AUG] New memory token created.")
		}
	}

	m.ops.record("ADD_TURN", map[string]any{"tokens_count": len(m.memoryTokens)})
	return nil
}

// GetContext renders the memory tokens above the recent conversation, or
// just the recent conversation when no tokens exist yet.
func (m *AugmentedMemory) GetContext(ctx context.Context, query string) string {
	recentContext := m.recentMemory.GetContext(ctx, query)
	if len(m.memoryTokens) == 0 {
		return "### Recent Conversation:\n" + recentContext
	}
	lines := make([]string, 0, len(m.memoryTokens))
	for _, token := range m.memoryTokens {
		lines = append(lines, "- "+token)
	}
	return fmt.Sprintf("### Key Memory Tokens (Long-Term Facts):\n%s\n\n### Recent Conversation:\n%s",
		strings.Join(lines, "\n"), recentContext)
}

// Clear resets the window and drops all memory tokens.
func (m *AugmentedMemory) Clear() {
	m.recentMemory.Clear()
	m.memoryTokens = nil
	m.qualityScores = nil
	m.ops.reset()
	log.Info("[MEM_AUG] Memory-augmented memory cleared.")
}

// OperationLog returns a snapshot of the audit trail.
func (m *AugmentedMemory) OperationLog() []Operation {
	return m.ops.snapshot()
}

// MemoryTokens returns a copy of the extracted facts.
func (m *AugmentedMemory) MemoryTokens() []string {
	out := make([]string, len(m.memoryTokens))
	copy(out, m.memoryTokens)
	return out
}

// Stats reports token counts and extraction quality.
func (m *AugmentedMemory) Stats() Stats {
	recentStats := m.recentMemory.Stats()
	avgQuality := 0.0
	if len(m.qualityScores) > 0 {
		sum := 0.0
		for _, q := range m.qualityScores {
			sum += q
		}
		avgQuality = sum / float64(len(m.qualityScores))
	}
	return Stats{
		StrategyID:   StrategyAugmented,
		StrategyType: "MemoryAugmentedMemory",
		MemorySize:   fmt.Sprintf("%d memory tokens + recent window", len(m.memoryTokens)),
		Metrics: map[string]any{
			"augmentation_metrics": map[string]any{
				"memory_tokens_count": len(m.memoryTokens),
				"facts_extracted":     len(m.memoryTokens),
				"recent_window_size":  len(m.recentMemory.buffer),
				"token_quality_avg":   roundTo(avgQuality, 4),
			},
			"recent_memory_stats": recentStats,
		},
	}
}
