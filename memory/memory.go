package memory

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Strategy is the contract every memory strategy implements. A strategy owns
// all of its state exclusively; instances are never shared across sessions.
//
// AddMessage must not fail on well-formed string input: failures of the
// underlying generation or embedding primitives degrade to neutral defaults
// inside the strategy. GetContext is a pure function of current state and
// query and always returns a non-empty string (a sentinel such as
// "No conversation history yet." when there is nothing to render).
type Strategy interface {
	// AddMessage records one conversation turn (user message plus AI reply).
	AddMessage(ctx context.Context, userInput, aiResponse string) error

	// GetContext renders the memory relevant to the query as a single
	// formatted string for the language model.
	GetContext(ctx context.Context, query string) string

	// Clear resets all owned state to initial values. Idempotent.
	Clear()

	// OperationLog returns a snapshot of the audit trail. Later mutations
	// do not affect previously returned snapshots.
	OperationLog() []Operation

	// Stats returns the common summary plus strategy-specific metrics.
	Stats() Stats
}

// Operation is one entry in a strategy's append-only audit trail. The trail
// is cleared only by Clear.
type Operation struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details"`
	Prefix    string         `json:"prefix"`
}

// Stats carries the common identification fields every strategy reports,
// with strategy-specific metrics nested under Metrics.
type Stats struct {
	StrategyID   string         `json:"strategy_id"`
	StrategyType string         `json:"strategy_type"`
	MemorySize   string         `json:"memory_size"`
	Metrics      map[string]any `json:"metrics"`
}

// Turn is one user/AI exchange. Immutable once created; Sequence is a
// monotonically increasing counter scoped to the owning strategy instance.
type Turn struct {
	ID         string
	UserInput  string
	AIResponse string
	Sequence   int
}

// NewTurn creates a turn with a fresh identifier.
func NewTurn(userInput, aiResponse string, sequence int) Turn {
	return Turn{
		ID:         uuid.NewString(),
		UserInput:  userInput,
		AIResponse: aiResponse,
		Sequence:   sequence,
	}
}

// Sentinel context values. These are fixed, recognizable strings so callers
// (and the composite strategies) can distinguish empty state from failure.
const (
	noHistorySentinel   = "No conversation history yet."
	noMemorySentinel    = "No information in memory yet."
	noRelevantSentinel  = "Could not find any relevant information in memory."
	queryFailedSentinel = "Could not process query for retrieval."
)

// operationLog is the shared audit-trail implementation embedded by every
// strategy.
type operationLog struct {
	prefix  string
	entries []Operation
}

func newOperationLog(prefix string) operationLog {
	return operationLog{prefix: prefix}
}

func (l *operationLog) record(opType string, details map[string]any) {
	l.entries = append(l.entries, Operation{
		Type:      opType,
		Timestamp: time.Now(),
		Details:   details,
		Prefix:    l.prefix,
	})
}

// snapshot copies the entries so later appends cannot mutate a log a caller
// already holds.
func (l *operationLog) snapshot() []Operation {
	out := make([]Operation, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *operationLog) reset() {
	l.entries = nil
}

// preview truncates s to at most n characters for log entries, never
// splitting a multibyte rune.
func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// capitalize upper-cases the first letter of a role name for rendering.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// roundTo rounds v to the given number of decimal places for stats output.
func roundTo(v float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Round(v*shift) / shift
}
