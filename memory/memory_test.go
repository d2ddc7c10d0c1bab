package memory

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/smallnest/agentmem/llm"
)

// stubClient is a deterministic llm.Client for tests. generateFn and embedFn
// default to a fixed response and a fixed vector when nil.
type stubClient struct {
	generateFn func(systemPrompt, userPrompt string) string
	embedFn    func(text string) []float32
}

func (c *stubClient) GenerateText(ctx context.Context, systemPrompt, userPrompt string) string {
	if c.generateFn != nil {
		return c.generateFn(systemPrompt, userPrompt)
	}
	return "ok"
}

func (c *stubClient) GenerateEmbedding(ctx context.Context, text string) []float32 {
	if c.embedFn != nil {
		return c.embedFn(text)
	}
	return []float32{1, 0, 0}
}

// wordCounter avoids pulling a real tokenizer into tests.
func wordCounter(text string) int {
	return len(strings.Fields(text))
}

func TestSequentialMemory(t *testing.T) {
	ctx := context.Background()
	mem := NewSequentialMemory(&SequentialConfig{CountTokens: wordCounter})

	assert.Equal(t, noHistorySentinel, mem.GetContext(ctx, ""))

	assert.NoError(t, mem.AddMessage(ctx, "hello", "hi there"))
	assert.NoError(t, mem.AddMessage(ctx, "how are you", "fine"))

	got := mem.GetContext(ctx, "anything")
	assert.Equal(t, "User: hello\nAssistant: hi there\nUser: how are you\nAssistant: fine", got)

	stats := mem.Stats()
	assert.Equal(t, StrategySequential, stats.StrategyID)
	assert.Equal(t, "4 messages", stats.MemorySize)

	mem.Clear()
	assert.Equal(t, noHistorySentinel, mem.GetContext(ctx, ""))
	assert.Empty(t, mem.OperationLog())
}

func TestSlidingWindowMemory_FIFO(t *testing.T) {
	ctx := context.Background()
	mem := NewSlidingWindowMemoryWithConfig(&SlidingWindowConfig{WindowSize: 2, CountTokens: wordCounter})

	assert.NoError(t, mem.AddMessage(ctx, "first question", "first answer"))
	assert.NoError(t, mem.AddMessage(ctx, "second question", "second answer"))
	assert.NoError(t, mem.AddMessage(ctx, "third question", "third answer"))

	got := mem.GetContext(ctx, "")
	assert.NotContains(t, got, "first question")
	assert.Contains(t, got, "second question")
	assert.Contains(t, got, "third question")

	oldest, ok := mem.PeekOldest()
	assert.True(t, ok)
	assert.Equal(t, "second question", oldest.UserInput)

	stats := mem.Stats()
	window := stats.Metrics["window_metrics"].(map[string]any)
	assert.Equal(t, 1, window["evictions"])
	assert.Equal(t, true, window["is_full"])
	assert.Equal(t, "2/2 turns", stats.MemorySize)
}

func TestSlidingWindowMemory_EvictionLogged(t *testing.T) {
	ctx := context.Background()
	mem := NewSlidingWindowMemoryWithConfig(&SlidingWindowConfig{WindowSize: 1, CountTokens: wordCounter})

	longInput := strings.Repeat("x", 120)
	assert.NoError(t, mem.AddMessage(ctx, longInput, "reply"))
	assert.NoError(t, mem.AddMessage(ctx, "next", "reply"))

	ops := mem.OperationLog()
	var eviction *Operation
	for i := range ops {
		if ops[i].Type == "EVICTION" {
			eviction = &ops[i]
			break
		}
	}
	if assert.NotNil(t, eviction) {
		assert.Equal(t, "WINDOW", eviction.Prefix)
		previewText := eviction.Details["preview"].(string)
		assert.LessOrEqual(t, len(previewText), 80)
	}
}

func TestOSMemory_Paging(t *testing.T) {
	ctx := context.Background()
	mem := NewOSMemory(&OSMemoryConfig{RAMSize: 2})

	assert.Equal(t, noMemorySentinel, mem.GetContext(ctx, "anything"))

	assert.NoError(t, mem.AddMessage(ctx, "tell me about golang", "golang is a language"))
	assert.NoError(t, mem.AddMessage(ctx, "what about rust", "rust is another one"))
	assert.NoError(t, mem.AddMessage(ctx, "and python", "python too"))

	// Turn 0 was paged out; the query should page it back in.
	got := mem.GetContext(ctx, "remind me about golang")
	assert.Contains(t, got, "### Active Memory (RAM):")
	assert.Contains(t, got, "(Paged in from Turn 0)")

	stats := mem.Stats()
	paging := stats.Metrics["paging_metrics"].(map[string]any)
	assert.Equal(t, 1, paging["disk_pages"])
	assert.Equal(t, 2, paging["ram_utilization"])
	assert.Equal(t, 1, paging["page_faults"])
	// The initial empty-memory query counted as a hit, the page fault as a
	// miss.
	assert.Equal(t, 0.5, paging["lru_efficiency"])
}

func TestOSMemory_TierDisjointness(t *testing.T) {
	ctx := context.Background()
	mem := NewOSMemory(&OSMemoryConfig{RAMSize: 2})

	for i := 0; i < 5; i++ {
		assert.NoError(t, mem.AddMessage(ctx, "question", "answer"))
	}

	ramIDs := make(map[int]bool)
	for _, page := range mem.ramStorage {
		ramIDs[page.TurnID] = true
	}
	for id := range mem.diskStorage {
		assert.False(t, ramIDs[id], "turn %d present in both tiers", id)
	}
	assert.Len(t, mem.ramStorage, 2)
	assert.Len(t, mem.diskStorage, 3)
}

func TestOSMemory_NoFaultCountsHit(t *testing.T) {
	ctx := context.Background()
	mem := NewOSMemory(&OSMemoryConfig{RAMSize: 2})
	assert.NoError(t, mem.AddMessage(ctx, "hello", "world"))

	got := mem.GetContext(ctx, "unrelated query terms")
	assert.Contains(t, got, "### Active Memory (RAM):")
	assert.NotContains(t, got, "Paged in")

	paging := mem.Stats().Metrics["paging_metrics"].(map[string]any)
	assert.Equal(t, 1.0, paging["lru_efficiency"])
}

func TestOperationLog_SnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	mem := NewOSMemory(nil)
	assert.NoError(t, mem.AddMessage(ctx, "one", "two"))

	snapshot := mem.OperationLog()
	assert.Len(t, snapshot, 1)

	assert.NoError(t, mem.AddMessage(ctx, "three", "four"))
	assert.Len(t, snapshot, 1)
	assert.Len(t, mem.OperationLog(), 2)
}

func TestPreviewRuneBoundary(t *testing.T) {
	assert.Equal(t, "short", preview("short", 10))
	assert.Equal(t, "exact", preview("exact", 5))

	// Each rune here is three bytes, so a byte cut would land mid-rune.
	got := preview(strings.Repeat("日本語", 20), 50)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 50, len([]rune(got)))
}

func TestNew_Registry(t *testing.T) {
	client := &stubClient{}

	t.Run("all ids construct with a client", func(t *testing.T) {
		for _, id := range StrategyIDs() {
			mem, err := New(id, &Config{Client: client, CountTokens: wordCounter})
			assert.NoError(t, err, "strategy %s", id)
			assert.NotNil(t, mem, "strategy %s", id)
			assert.Equal(t, id, mem.Stats().StrategyID)
		}
	})

	t.Run("unknown id rejected", func(t *testing.T) {
		_, err := New("holographic", nil)
		assert.Error(t, err)
	})

	t.Run("client required", func(t *testing.T) {
		for _, id := range []string{
			StrategySummarization, StrategyRetrieval, StrategyCompression,
			StrategyHierarchical, StrategyAugmented, StrategyGraph,
		} {
			_, err := New(id, &Config{CountTokens: wordCounter})
			assert.Error(t, err, "strategy %s", id)
		}
	})

	t.Run("client-free strategies accept nil config", func(t *testing.T) {
		for _, id := range []string{StrategySequential, StrategySlidingWindow, StrategyOSPaging} {
			mem, err := New(id, &Config{CountTokens: wordCounter})
			assert.NoError(t, err)
			assert.NotNil(t, mem)
		}
	})
}

var _ llm.Client = (*stubClient)(nil)
