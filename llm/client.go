package llm

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Client is the boundary to the text-generation and embedding primitives the
// memory strategies consume. Implementations never return Go errors from
// GenerateText: a failed generation yields an inline error string (see
// GenerationError) so strategies can degrade locally instead of propagating.
type Client interface {
	// GenerateText produces a completion for the given system and user
	// prompts. On failure it returns an inline "Error generating text: ..."
	// string rather than raising.
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) string

	// GenerateEmbedding produces a fixed-length vector for the given text.
	// A nil or empty slice signals failure.
	GenerateEmbedding(ctx context.Context, text string) []float32
}

// generationErrorPrefix marks inline generation failures.
const generationErrorPrefix = "Error generating text: "

// GenerationError formats an upstream failure as an inline response string.
func GenerationError(err error) string {
	return generationErrorPrefix + err.Error()
}

// IsGenerationError reports whether a generated response is an inline
// failure marker. Strategies use this to guard state transitions that must
// not commit on a failed upstream call.
func IsGenerationError(response string) bool {
	return strings.HasPrefix(response, generationErrorPrefix)
}

// TokenCounter counts tokens in a text. It is injected into strategies that
// track token statistics so the tokenizer is an explicit dependency rather
// than ambient package state.
type TokenCounter func(text string) int

// NewTokenCounter returns a TokenCounter backed by the tokenizer for the
// given model identifier.
func NewTokenCounter(model string) TokenCounter {
	return func(text string) int {
		return llms.CountTokens(model, text)
	}
}
