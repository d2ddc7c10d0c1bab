package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/smallnest/agentmem/llm"
	"github.com/smallnest/agentmem/log"
)

// StrategyCompression identifies the compression strategy.
const StrategyCompression = "compression"

// Defaults for the compression strategy.
const (
	DefaultCompressionRatio    = 0.5
	DefaultImportanceThreshold = 0.7

	// compressionTriggerSize is the pool size that starts a compression
	// cycle.
	compressionTriggerSize = 6

	// relevanceWordOverlap is the minimum number of shared words between a
	// query and an archived entry for the entry to be surfaced.
	relevanceWordOverlap = 2
)

// CompressionMemory scores each turn for importance, pools recent turns, and
// periodically compresses the pool: important turns are archived verbatim
// while the rest are merged into one LLM-written summary.
type CompressionMemory struct {
	compressionRatio    float64
	importanceThreshold float64
	client              llm.Client
	countTokens         llm.TokenCounter

	segmentPool []segment
	archive     []archiveEntry

	importanceScores []float64
	originalTokens   int
	compressedTokens int
	compressionCount int
	ops              operationLog
}

type segment struct {
	UserInput  string
	AIResponse string
	Importance float64
	Timestamp  int
	TokenCount int
}

type archiveEntry struct {
	Kind       string // "high_importance" or "compressed"
	Content    string
	Importance float64
	Segments   int
	Timestamp  int
}

// CompressionConfig holds configuration for compression memory.
type CompressionConfig struct {
	// CompressionRatio is the target reduction for merged summaries.
	// Defaults to DefaultCompressionRatio when zero or negative.
	CompressionRatio float64

	// ImportanceThreshold splits verbatim archival from merging. Defaults
	// to DefaultImportanceThreshold when zero or negative.
	ImportanceThreshold float64

	// Client provides scoring and summarization. Required.
	Client llm.Client

	// CountTokens measures compression savings. Defaults to the
	// gpt-4o-mini tokenizer when nil.
	CountTokens llm.TokenCounter
}

// NewCompressionMemory creates a compression memory backed by the given
// client.
func NewCompressionMemory(config *CompressionConfig) (*CompressionMemory, error) {
	if config == nil || config.Client == nil {
		return nil, errors.New("memory: compression requires an llm client")
	}
	ratio := config.CompressionRatio
	if ratio <= 0 {
		ratio = DefaultCompressionRatio
	}
	threshold := config.ImportanceThreshold
	if threshold <= 0 {
		threshold = DefaultImportanceThreshold
	}
	counter := config.CountTokens
	if counter == nil {
		counter = llm.NewTokenCounter(llm.DefaultGenerationModel)
	}
	return &CompressionMemory{
		compressionRatio:    ratio,
		importanceThreshold: threshold,
		client:              config.Client,
		countTokens:         counter,
		ops:                 newOperationLog("COMPRESS"),
	}, nil
}

var _ Strategy = (*CompressionMemory)(nil)

// AddMessage scores the turn and pools it, compressing the pool once it
// reaches the trigger size.
func (m *CompressionMemory) AddMessage(ctx context.Context, userInput, aiResponse string) error {
	importance := m.scoreImportance(ctx, userInput, aiResponse)
	m.importanceScores = append(m.importanceScores, importance)
	seg := segment{
		UserInput:  userInput,
		AIResponse: aiResponse,
		Importance: importance,
		Timestamp:  len(m.segmentPool),
		TokenCount: m.countTokens(userInput + aiResponse),
	}
	m.segmentPool = append(m.segmentPool, seg)
	m.originalTokens += seg.TokenCount
	m.ops.record("ADD_SEGMENT", map[string]any{
		"importance": importance,
		"pool_size":  len(m.segmentPool),
	})

	if len(m.segmentPool) >= compressionTriggerSize {
		m.compress(ctx)
	}
	return nil
}

// scoreImportance asks the model for a 0..1 score. Anything unparseable,
// including a failed generation, scores the neutral 0.5.
func (m *CompressionMemory) scoreImportance(ctx context.Context, userInput, aiResponse string) float64 {
	prompt := fmt.Sprintf(
		"Rate the importance of this conversation turn on a scale of 0.0 to 1.0. "+
			"Consider factors like: factual information, user preferences, decisions, "+
			"emotional significance, and future relevance. "+
			"Respond with only a number between 0.0 and 1.0.\n\n"+
			"User: %s\nAI: %s",
		userInput, aiResponse)
	response := m.client.GenerateText(ctx, "You are an importance scoring expert.", prompt)
	score, err := strconv.ParseFloat(strings.TrimSpace(response), 64)
	if err != nil {
		return 0.5
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// compress runs one compression cycle. Low-importance segments are merged
// into one summary; high-importance segments are archived verbatim. If the
// merge generation fails the whole cycle aborts and the pool is kept intact
// for the next attempt.
func (m *CompressionMemory) compress(ctx context.Context) {
	var high, low []segment
	for _, seg := range m.segmentPool {
		if seg.Importance >= m.importanceThreshold {
			high = append(high, seg)
		} else {
			low = append(low, seg)
		}
	}

	cycleTokens := 0
	var newEntries []archiveEntry

	if len(low) > 0 {
		merged, err := m.mergeSegments(ctx, low)
		if err != nil {
			log.Warn("[COMPRESS] Compression cycle aborted: %v", err)
			m.ops.record("COMPRESSION_ABORTED", map[string]any{"pool_size": len(m.segmentPool)})
			return
		}
		newEntries = append(newEntries, merged)
		cycleTokens += m.countTokens(merged.Content)
	}

	for _, seg := range high {
		content := fmt.Sprintf("User: %s\nAI: %s", seg.UserInput, seg.AIResponse)
		cycleTokens += m.countTokens(content)
		newEntries = append(newEntries, archiveEntry{
			Kind:       "high_importance",
			Content:    content,
			Importance: seg.Importance,
			Timestamp:  seg.Timestamp,
		})
	}

	m.archive = append(m.archive, newEntries...)
	m.compressedTokens += cycleTokens
	m.compressionCount++
	m.segmentPool = nil
	m.ops.record("COMPRESSION_CYCLE", map[string]any{
		"segments_processed": len(high) + len(low),
	})
	log.Info("[COMPRESS] Memory compression cycle completed.")
}

// mergeSegments summarizes low-importance segments into one archive entry.
func (m *CompressionMemory) mergeSegments(ctx context.Context, segments []segment) (archiveEntry, error) {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		parts = append(parts, fmt.Sprintf("User: %s\nAI: %s", seg.UserInput, seg.AIResponse))
	}
	prompt := fmt.Sprintf(
		"Compress the following conversations into a concise summary that retains "+
			"the key information while reducing length by approximately %d%%. "+
			"Focus on facts, decisions, and context that might be relevant later.\n\n"+
			"Conversations:\n%s\n\n"+
			"Compressed Summary:",
		int(m.compressionRatio*100), strings.Join(parts, "\n"))
	content := m.client.GenerateText(ctx, "You are a memory compression expert.", prompt)
	if llm.IsGenerationError(content) {
		return archiveEntry{}, errors.New("merge summarization failed")
	}
	return archiveEntry{
		Kind:      "compressed",
		Content:   content,
		Segments:  len(segments),
		Timestamp: segments[0].Timestamp,
	}, nil
}

// GetContext surfaces archived entries sharing enough words with the query,
// followed by the last three pooled segments.
func (m *CompressionMemory) GetContext(ctx context.Context, query string) string {
	var parts []string
	for _, entry := range m.archive {
		if wordOverlap(entry.Content, query) >= relevanceWordOverlap {
			parts = append(parts, "[Compressed Memory]: "+entry.Content)
		}
	}
	start := len(m.segmentPool) - 3
	if start < 0 {
		start = 0
	}
	for _, seg := range m.segmentPool[start:] {
		parts = append(parts, fmt.Sprintf("User: %s\nAI: %s", seg.UserInput, seg.AIResponse))
	}
	if len(parts) == 0 {
		return "No relevant information in memory yet."
	}
	return "### Memory Context:\n" + strings.Join(parts, "\n---\n")
}

// wordOverlap counts distinct lowercase words shared by both texts.
func wordOverlap(a, b string) int {
	aWords := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(a)) {
		aWords[w] = true
	}
	seen := make(map[string]bool)
	overlap := 0
	for _, w := range strings.Fields(strings.ToLower(b)) {
		if aWords[w] && !seen[w] {
			seen[w] = true
			overlap++
		}
	}
	return overlap
}

// Clear drops the pool, the archive and all statistics.
func (m *CompressionMemory) Clear() {
	m.segmentPool = nil
	m.archive = nil
	m.importanceScores = nil
	m.originalTokens = 0
	m.compressedTokens = 0
	m.compressionCount = 0
	m.ops.reset()
	log.Info("[COMPRESS] Compression memory cleared.")
}

// OperationLog returns a snapshot of the audit trail.
func (m *CompressionMemory) OperationLog() []Operation {
	return m.ops.snapshot()
}

// spaceSavingsPercent is 0 until the first successful cycle.
func (m *CompressionMemory) spaceSavingsPercent() float64 {
	if m.originalTokens <= 0 {
		return 0
	}
	return roundTo((1-float64(m.compressedTokens)/float64(m.originalTokens))*100, 2)
}

// Stats reports compression ratios and importance distribution.
func (m *CompressionMemory) Stats() Stats {
	achievedRatio := 0.0
	if m.originalTokens > 0 {
		achievedRatio = float64(m.compressedTokens) / float64(m.originalTokens)
	}

	avgScore := 0.0
	buckets := map[string]int{"high": 0, "medium": 0, "low": 0}
	if len(m.importanceScores) > 0 {
		sum := 0.0
		for _, s := range m.importanceScores {
			sum += s
			switch {
			case s >= m.importanceThreshold:
				buckets["high"]++
			case s >= 0.4:
				buckets["medium"]++
			default:
				buckets["low"]++
			}
		}
		avgScore = sum / float64(len(m.importanceScores))
	}

	return Stats{
		StrategyID:   StrategyCompression,
		StrategyType: "CompressionMemory",
		MemorySize:   fmt.Sprintf("%d active + %d compressed", len(m.segmentPool), len(m.archive)),
		Metrics: map[string]any{
			"compression_metrics": map[string]any{
				"target_ratio":          m.compressionRatio,
				"achieved_ratio":        roundTo(achievedRatio, 4),
				"compression_cycles":    m.compressionCount,
				"segments_active":       len(m.segmentPool),
				"segments_archived":     len(m.archive),
				"space_savings_percent": m.spaceSavingsPercent(),
			},
			"importance_analysis": map[string]any{
				"avg_score":    roundTo(avgScore, 4),
				"distribution": buckets,
			},
		},
	}
}
