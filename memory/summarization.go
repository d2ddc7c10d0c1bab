package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallnest/agentmem/llm"
	"github.com/smallnest/agentmem/log"
)

// StrategySummarization identifies the rolling summary strategy.
const StrategySummarization = "summarization"

// DefaultSummaryThreshold is the buffered message count that triggers
// consolidation.
const DefaultSummaryThreshold = 4

// SummarizationMemory keeps a rolling LLM-written summary plus a short
// buffer of messages not yet summarized. When the buffer reaches the
// threshold the summary and buffer are merged into a new summary.
type SummarizationMemory struct {
	summaryThreshold int
	client           llm.Client

	cumulativeSummary string
	pendingBuffer     []chatMessage
	consolidations    int
	ops               operationLog
}

// SummarizationConfig holds configuration for summarization memory.
type SummarizationConfig struct {
	// SummaryThreshold is the buffered message count that triggers
	// consolidation. Defaults to DefaultSummaryThreshold when zero or
	// negative.
	SummaryThreshold int

	// Client provides the summarization primitive. Required.
	Client llm.Client
}

// NewSummarizationMemory creates a summarization memory backed by the given
// client.
func NewSummarizationMemory(config *SummarizationConfig) (*SummarizationMemory, error) {
	if config == nil || config.Client == nil {
		return nil, errors.New("memory: summarization requires an llm client")
	}
	threshold := config.SummaryThreshold
	if threshold <= 0 {
		threshold = DefaultSummaryThreshold
	}
	return &SummarizationMemory{
		summaryThreshold: threshold,
		client:           config.Client,
		ops:              newOperationLog("SUMMARIZE"),
	}, nil
}

var _ Strategy = (*SummarizationMemory)(nil)

// AddMessage buffers the turn and consolidates once the buffer reaches the
// threshold.
func (m *SummarizationMemory) AddMessage(ctx context.Context, userInput, aiResponse string) error {
	m.pendingBuffer = append(m.pendingBuffer,
		chatMessage{Role: "user", Content: userInput},
		chatMessage{Role: "assistant", Content: aiResponse},
	)
	m.ops.record("ADD_TURN", map[string]any{"buffer_size": len(m.pendingBuffer)})

	if len(m.pendingBuffer) >= m.summaryThreshold {
		m.consolidate(ctx)
	}
	return nil
}

// consolidate merges the running summary with the buffer. On a failed
// generation nothing changes: the buffer is kept and retried on the next
// threshold crossing.
func (m *SummarizationMemory) consolidate(ctx context.Context) {
	bufferLines := make([]string, 0, len(m.pendingBuffer))
	for _, msg := range m.pendingBuffer {
		bufferLines = append(bufferLines, fmt.Sprintf("%s: %s", capitalize(msg.Role), msg.Content))
	}
	prompt := fmt.Sprintf(
		"You are a summarization expert. Your task is to create a concise summary of a conversation. "+
			"Combine the 'Previous Summary' with the 'New Conversation' into a single, updated summary. "+
			"Capture all key facts, names, decisions, and important details.\n\n"+
			"### Previous Summary:\n%s\n\n"+
			"### New Conversation:\n%s\n\n"+
			"### Updated Summary:",
		m.cumulativeSummary, strings.Join(bufferLines, "\n"))

	newSummary := m.client.GenerateText(ctx, "You are an expert summarization engine.", prompt)
	if llm.IsGenerationError(newSummary) {
		log.Warn("[SUMMARIZE] Consolidation aborted; buffer retained.")
		m.ops.record("CONSOLIDATE_ABORTED", map[string]any{"buffer_size": len(m.pendingBuffer)})
		return
	}

	consumed := len(m.pendingBuffer)
	m.cumulativeSummary = newSummary
	m.pendingBuffer = nil
	m.consolidations++
	m.ops.record("CONSOLIDATE", map[string]any{
		"buffer_consumed": consumed,
		"summary_length":  len(newSummary),
	})
	log.Info("[SUMMARIZE] Memory consolidation triggered; new summary generated.")
}

// GetContext renders the summary section and the pending buffer. The query
// is ignored.
func (m *SummarizationMemory) GetContext(ctx context.Context, query string) string {
	bufferLines := make([]string, 0, len(m.pendingBuffer))
	for _, msg := range m.pendingBuffer {
		bufferLines = append(bufferLines, fmt.Sprintf("%s: %s", capitalize(msg.Role), msg.Content))
	}
	bufferText := strings.Join(bufferLines, "\n")

	if m.cumulativeSummary != "" {
		return fmt.Sprintf("### Summary of Past Conversation:\n%s\n\n### Recent Messages:\n%s",
			m.cumulativeSummary, bufferText)
	}
	if bufferText == "" {
		return noHistorySentinel
	}
	return "### Recent Messages:\n" + bufferText
}

// Clear drops the summary and the buffer.
func (m *SummarizationMemory) Clear() {
	m.cumulativeSummary = ""
	m.pendingBuffer = nil
	m.consolidations = 0
	m.ops.reset()
	log.Info("[SUMMARIZE] Summarization memory cleared.")
}

// OperationLog returns a snapshot of the audit trail.
func (m *SummarizationMemory) OperationLog() []Operation {
	return m.ops.snapshot()
}

// Stats reports summary length and consolidation counts.
func (m *SummarizationMemory) Stats() Stats {
	pending := len(m.pendingBuffer)
	return Stats{
		StrategyID:   StrategySummarization,
		StrategyType: "SummarizationMemory",
		MemorySize:   fmt.Sprintf("Summary + %d buffered messages", pending),
		Metrics: map[string]any{
			"summary_metrics": map[string]any{
				"summary_length":       len(m.cumulativeSummary),
				"pending_buffer_size":  pending,
				"consolidations_count": m.consolidations,
			},
			"summary_threshold": m.summaryThreshold,
		},
	}
}
