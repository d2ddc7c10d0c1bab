package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/agentmem/llm"
)

// scriptedScorer returns queued importance scores for scoring prompts and a
// fixed summary for merge prompts.
func scriptedScorer(scores []float64, summary string) func(string, string) string {
	i := 0
	return func(systemPrompt, userPrompt string) string {
		if strings.Contains(userPrompt, "Rate the importance") {
			score := scores[i%len(scores)]
			i++
			return fmt.Sprintf("%.2f", score)
		}
		return summary
	}
}

func TestCompressionMemory_Cycle(t *testing.T) {
	ctx := context.Background()
	scores := []float64{0.9, 0.2, 0.8, 0.1, 0.95, 0.3}
	client := &stubClient{generateFn: scriptedScorer(scores, "merged low importance summary")}

	mem, err := NewCompressionMemory(&CompressionConfig{Client: client, CountTokens: wordCounter})
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		require.NoError(t, mem.AddMessage(ctx, fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i)))
	}

	// Threshold 0.7 splits the six scores into three high and three low.
	assert.Empty(t, mem.segmentPool, "pool should be cleared after the cycle")
	require.Len(t, mem.archive, 4)

	merged := 0
	verbatim := 0
	for _, entry := range mem.archive {
		switch entry.Kind {
		case "compressed":
			merged++
			assert.Equal(t, "merged low importance summary", entry.Content)
			assert.Equal(t, 3, entry.Segments)
		case "high_importance":
			verbatim++
			assert.Contains(t, entry.Content, "User: question")
		}
	}
	assert.Equal(t, 1, merged)
	assert.Equal(t, 3, verbatim)

	metrics := mem.Stats().Metrics["compression_metrics"].(map[string]any)
	assert.Equal(t, 1, metrics["compression_cycles"])
	assert.Equal(t, 0, metrics["segments_active"])
	assert.Equal(t, 4, metrics["segments_archived"])
}

func TestCompressionMemory_TokenConservation(t *testing.T) {
	ctx := context.Background()
	scores := []float64{0.9, 0.2, 0.8, 0.1, 0.95, 0.3}
	client := &stubClient{generateFn: scriptedScorer(scores, "trip and budget details settled")}

	mem, err := NewCompressionMemory(&CompressionConfig{Client: client, CountTokens: wordCounter})
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		require.NoError(t, mem.AddMessage(ctx,
			fmt.Sprintf("tell me about stop number %d on the itinerary please", i),
			fmt.Sprintf("stop number %d is a two night stay with a guided tour", i)))
	}

	require.Equal(t, 1, mem.compressionCount)
	assert.Positive(t, mem.compressedTokens)

	poolTokens := 0
	for _, seg := range mem.segmentPool {
		poolTokens += seg.TokenCount
	}
	assert.LessOrEqual(t, mem.compressedTokens+poolTokens, mem.originalTokens,
		"archived plus pooled tokens must never exceed cumulative input tokens")

	metrics := mem.Stats().Metrics["compression_metrics"].(map[string]any)
	wantSavings := roundTo((1-float64(mem.compressedTokens)/float64(mem.originalTokens))*100, 2)
	assert.Equal(t, wantSavings, metrics["space_savings_percent"])
	assert.Positive(t, wantSavings)

	// An aborted cycle must not move the compressed-token counter.
	compressedBefore := mem.compressedTokens
	client.generateFn = func(systemPrompt, userPrompt string) string {
		if strings.Contains(userPrompt, "Rate the importance") {
			return "0.1"
		}
		return llm.GenerationError(errors.New("upstream down"))
	}
	for i := 0; i < 6; i++ {
		require.NoError(t, mem.AddMessage(ctx, "filler question about nothing", "filler answer about nothing"))
	}
	assert.Equal(t, compressedBefore, mem.compressedTokens)

	poolTokens = 0
	for _, seg := range mem.segmentPool {
		poolTokens += seg.TokenCount
	}
	assert.LessOrEqual(t, mem.compressedTokens+poolTokens, mem.originalTokens)
}

func TestCompressionMemory_AbortsOnFailedMerge(t *testing.T) {
	ctx := context.Background()
	client := &stubClient{generateFn: func(systemPrompt, userPrompt string) string {
		if strings.Contains(userPrompt, "Rate the importance") {
			return "0.1"
		}
		return llm.GenerationError(errors.New("upstream down"))
	}}

	mem, err := NewCompressionMemory(&CompressionConfig{Client: client, CountTokens: wordCounter})
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		require.NoError(t, mem.AddMessage(ctx, "low importance question", "low importance answer"))
	}

	// The merge failed, so the cycle must leave everything untouched.
	assert.Len(t, mem.segmentPool, 6)
	assert.Empty(t, mem.archive)
	assert.Equal(t, 0, mem.compressionCount)

	aborted := false
	for _, op := range mem.OperationLog() {
		if op.Type == "COMPRESSION_ABORTED" {
			aborted = true
		}
	}
	assert.True(t, aborted)
}

func TestCompressionMemory_UnparseableScoreDefaults(t *testing.T) {
	ctx := context.Background()
	client := &stubClient{generateFn: func(systemPrompt, userPrompt string) string {
		return "somewhere around seven"
	}}

	mem, err := NewCompressionMemory(&CompressionConfig{Client: client, CountTokens: wordCounter})
	require.NoError(t, err)
	require.NoError(t, mem.AddMessage(ctx, "hello", "world"))

	require.Len(t, mem.segmentPool, 1)
	assert.Equal(t, 0.5, mem.segmentPool[0].Importance)
}

func TestCompressionMemory_ScoreClamped(t *testing.T) {
	ctx := context.Background()
	client := &stubClient{generateFn: func(systemPrompt, userPrompt string) string {
		return "7.5"
	}}

	mem, err := NewCompressionMemory(&CompressionConfig{Client: client, CountTokens: wordCounter})
	require.NoError(t, err)
	require.NoError(t, mem.AddMessage(ctx, "hello", "world"))
	assert.Equal(t, 1.0, mem.segmentPool[0].Importance)
}

func TestCompressionMemory_ContextRelevance(t *testing.T) {
	ctx := context.Background()
	scores := []float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1}
	client := &stubClient{generateFn: scriptedScorer(scores, "the project deadline moved to friday")}

	mem, err := NewCompressionMemory(&CompressionConfig{Client: client, CountTokens: wordCounter})
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		require.NoError(t, mem.AddMessage(ctx, "chit chat", "more chit chat"))
	}

	// Two shared words with the archived summary.
	got := mem.GetContext(ctx, "when is the project deadline")
	assert.Contains(t, got, "[Compressed Memory]: the project deadline moved to friday")

	// One shared word is below the overlap threshold.
	got = mem.GetContext(ctx, "deadline?")
	assert.Equal(t, "No relevant information in memory yet.", got)
}
