package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// orgChartExtractor answers extraction prompts with a fixed org chart and
// query prompts with the named entity.
func orgChartExtractor(queryEntity string) func(string, string) string {
	return func(systemPrompt, userPrompt string) string {
		if strings.Contains(userPrompt, "Query:") {
			return queryEntity
		}
		return "ENTITIES: Alice, Bob RELATIONSHIPS: Bob->reports to->Alice"
	}
}

func TestGraphMemory_ExtractionAndTraversal(t *testing.T) {
	ctx := context.Background()
	client := &stubClient{generateFn: orgChartExtractor("Bob")}

	mem, err := NewGraphMemory(&GraphConfig{Client: client})
	require.NoError(t, err)

	assert.Equal(t, noMemorySentinel, mem.GetContext(ctx, "who is bob"))

	require.NoError(t, mem.AddMessage(ctx, "Bob reports to Alice", "Got it"))

	got := mem.GetContext(ctx, "Who does Bob report to?")
	assert.Contains(t, got, "### Knowledge Graph Context:")
	assert.Contains(t, got, "Entity: Bob")
	assert.Contains(t, got, "  -> reports to -> Alice")

	// Alice's rendering shows the same edge as incoming.
	client.generateFn = orgChartExtractor("Alice")
	got = mem.GetContext(ctx, "Tell me about Alice")
	assert.Contains(t, got, "Entity: Alice")
	assert.Contains(t, got, "  <- Bob <- reports to")
}

func TestGraphMemory_IdempotentReExtraction(t *testing.T) {
	ctx := context.Background()
	client := &stubClient{generateFn: orgChartExtractor("none")}

	mem, err := NewGraphMemory(&GraphConfig{Client: client})
	require.NoError(t, err)

	require.NoError(t, mem.AddMessage(ctx, "Bob reports to Alice", "Got it"))
	require.NoError(t, mem.AddMessage(ctx, "Bob reports to Alice", "Still true"))

	topo := mem.Topology()
	assert.Equal(t, 2, topo["nodes"], "re-extracting the same entities must overwrite, not duplicate")
	assert.Equal(t, 1, topo["edges"])
	assert.Equal(t, 1, topo["connected_components"])
}

func TestGraphMemory_MalformedExtractionIgnored(t *testing.T) {
	ctx := context.Background()
	responses := []string{
		"no markers at all",
		"ENTITIES: none RELATIONSHIPS: none",
		"ENTITIES: Carol RELATIONSHIPS: Carol->likes->tea->too->much",
	}
	i := 0
	client := &stubClient{generateFn: func(systemPrompt, userPrompt string) string {
		r := responses[i%len(responses)]
		i++
		return r
	}}

	mem, err := NewGraphMemory(&GraphConfig{Client: client})
	require.NoError(t, err)
	require.NoError(t, mem.AddMessage(ctx, "one", "two"))
	require.NoError(t, mem.AddMessage(ctx, "three", "four"))

	// Only the well-formed third response contributes, and its five-part
	// relationship is discarded.
	topo := mem.Topology()
	assert.Equal(t, 1, topo["nodes"])
	assert.Equal(t, 0, topo["edges"])
}

func TestGraphMemory_FallbackToRecentTurns(t *testing.T) {
	ctx := context.Background()
	client := &stubClient{generateFn: orgChartExtractor("none")}

	mem, err := NewGraphMemory(&GraphConfig{Client: client})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, mem.AddMessage(ctx, "question", "answer"))
	}

	got := mem.GetContext(ctx, "unmatchable")
	assert.NotContains(t, got, "Turn 0:", "only the last three turns fall back")
	assert.Contains(t, got, "Turn 1: User: question")
	assert.Contains(t, got, "Turn 3: Assistant: answer")
}

func TestGraphMemory_ContainmentMatching(t *testing.T) {
	ctx := context.Background()
	client := &stubClient{generateFn: func(systemPrompt, userPrompt string) string {
		if strings.Contains(userPrompt, "Query:") {
			return "alice"
		}
		return "ENTITIES: Alice Smith RELATIONSHIPS: none"
	}}

	mem, err := NewGraphMemory(&GraphConfig{Client: client})
	require.NoError(t, err)
	require.NoError(t, mem.AddMessage(ctx, "Alice Smith leads the team", "Understood"))

	got := mem.GetContext(ctx, "who is alice")
	assert.Contains(t, got, "Entity: Alice Smith (from user)")
}
