package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerationError(t *testing.T) {
	msg := GenerationError(errors.New("connection refused"))
	assert.Equal(t, "Error generating text: connection refused", msg)
	assert.True(t, IsGenerationError(msg))
}

func TestIsGenerationError_Normal(t *testing.T) {
	assert.False(t, IsGenerationError("The capital of France is Paris."))
	assert.False(t, IsGenerationError(""))
	// The marker must be a prefix, not just a substring.
	assert.False(t, IsGenerationError("note: Error generating text: x"))
}

func TestNewTokenCounter(t *testing.T) {
	counter := NewTokenCounter("gpt-4o-mini")

	assert.Equal(t, 0, counter(""))

	short := counter("hello")
	long := counter("hello world, this is a much longer sentence with more tokens")
	assert.Greater(t, short, 0)
	assert.Greater(t, long, short)

	// Deterministic for identical input.
	assert.Equal(t, counter("same text"), counter("same text"))
}
