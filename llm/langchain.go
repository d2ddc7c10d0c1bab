package llm

import (
	"context"
	"errors"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/smallnest/agentmem/log"
)

// LangChainClient adapts a langchaingo model and embedder to the Client
// boundary, so any provider langchaingo supports can back the strategies.
type LangChainClient struct {
	model    llms.Model
	embedder embeddings.Embedder
}

var _ Client = (*LangChainClient)(nil)

// NewLangChainClient creates a client from a langchaingo model and an
// optional embedder. A nil embedder makes GenerateEmbedding always fail,
// which strategies treat as "embeddings unavailable".
func NewLangChainClient(model llms.Model, embedder embeddings.Embedder) *LangChainClient {
	return &LangChainClient{model: model, embedder: embedder}
}

// GenerateText produces a completion via the underlying model.
func (c *LangChainClient) GenerateText(ctx context.Context, systemPrompt, userPrompt string) string {
	resp, err := c.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, userPrompt),
	})
	if err != nil {
		log.Warn("text generation failed: %v", err)
		return GenerationError(err)
	}
	if len(resp.Choices) == 0 {
		return GenerationError(errors.New("empty response"))
	}
	return resp.Choices[0].Content
}

// GenerateEmbedding produces an embedding via the underlying embedder.
func (c *LangChainClient) GenerateEmbedding(ctx context.Context, text string) []float32 {
	if c.embedder == nil {
		return nil
	}
	embedding, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		log.Warn("embedding generation failed: %v", err)
		return nil
	}
	result := make([]float32, len(embedding))
	for i, val := range embedding {
		result[i] = float32(val)
	}
	return result
}
