package session

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/agentmem/memory"
)

type fixedClient struct{}

func (fixedClient) GenerateText(ctx context.Context, systemPrompt, userPrompt string) string {
	return "fixed response"
}

func (fixedClient) GenerateEmbedding(ctx context.Context, text string) []float32 {
	return []float32{1, 0, 0}
}

func wordCounter(text string) int {
	return len(strings.Fields(text))
}

func newTestRegistry() *Registry {
	return NewRegistry(fixedClient{}, "gpt-4o-mini")
}

func TestRegistry_CreateGetDelete(t *testing.T) {
	r := newTestRegistry()

	sess, err := r.Create(CreateOptions{
		SessionID:      "s1",
		StrategyID:     memory.StrategySlidingWindow,
		StrategyConfig: &memory.Config{WindowSize: 2, CountTokens: wordCounter},
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", sess.ID)
	assert.Equal(t, memory.StrategySlidingWindow, sess.StrategyID)
	assert.Equal(t, "gpt-4o-mini", sess.Model)

	got, err := r.Get("s1")
	require.NoError(t, err)
	assert.Same(t, sess, got)

	require.NoError(t, r.Delete("s1"))
	_, err = r.Get("s1")
	assert.Error(t, err)
	assert.Error(t, r.Delete("s1"))
}

func TestRegistry_DuplicateIDRejected(t *testing.T) {
	r := newTestRegistry()
	opts := CreateOptions{
		SessionID:      "dup",
		StrategyID:     memory.StrategySequential,
		StrategyConfig: &memory.Config{CountTokens: wordCounter},
	}
	_, err := r.Create(opts)
	require.NoError(t, err)
	_, err = r.Create(opts)
	assert.Error(t, err)
}

func TestRegistry_UnknownStrategyRejected(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Create(CreateOptions{StrategyID: "telepathic"})
	assert.Error(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_GeneratedIDs(t *testing.T) {
	r := newTestRegistry()
	cfg := &memory.Config{CountTokens: wordCounter}

	a, err := r.Create(CreateOptions{StrategyID: memory.StrategySequential, StrategyConfig: cfg})
	require.NoError(t, err)
	b, err := r.Create(CreateOptions{StrategyID: memory.StrategySequential, StrategyConfig: cfg})
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_SessionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	cfg := &memory.Config{CountTokens: wordCounter}

	a, err := r.Create(CreateOptions{SessionID: "a", StrategyID: memory.StrategySequential, StrategyConfig: cfg})
	require.NoError(t, err)
	b, err := r.Create(CreateOptions{SessionID: "b", StrategyID: memory.StrategySequential, StrategyConfig: cfg})
	require.NoError(t, err)

	_, err = a.Agent.Chat(ctx, "only in session a")
	require.NoError(t, err)

	assert.NotEmpty(t, a.Agent.OperationLog())
	assert.Empty(t, b.Agent.OperationLog())
}

func TestRegistry_Clear(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	sess, err := r.Create(CreateOptions{
		SessionID:      "c",
		StrategyID:     memory.StrategySequential,
		StrategyConfig: &memory.Config{CountTokens: wordCounter},
	})
	require.NoError(t, err)
	_, err = sess.Agent.Chat(ctx, "hello")
	require.NoError(t, err)

	require.NoError(t, r.Clear("c"))
	assert.Empty(t, sess.Agent.OperationLog())

	_, err = r.Get("c")
	assert.NoError(t, err, "clearing keeps the session alive")
	assert.Error(t, r.Clear("missing"))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := newTestRegistry()
	cfg := &memory.Config{CountTokens: wordCounter}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := r.Create(CreateOptions{StrategyID: memory.StrategySlidingWindow, StrategyConfig: cfg})
			assert.NoError(t, err)
			_, err = r.Get(sess.ID)
			assert.NoError(t, err)
			r.List()
		}()
	}
	wg.Wait()
	assert.Equal(t, 16, r.Len())
}
