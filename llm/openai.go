package llm

import (
	"context"
	"errors"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/smallnest/agentmem/log"
)

// Default models mirror the playground configuration.
const (
	DefaultGenerationModel = openai.GPT4oMini
	DefaultEmbeddingModel  = openai.SmallEmbedding3
)

// OpenAIClient implements Client on top of the OpenAI API.
type OpenAIClient struct {
	client          *openai.Client
	generationModel string
	embeddingModel  openai.EmbeddingModel
	temperature     float32
	maxTokens       int
}

var _ Client = (*OpenAIClient)(nil)

// OpenAIOption customizes an OpenAIClient.
type OpenAIOption func(*OpenAIClient)

// WithGenerationModel overrides the chat completion model.
func WithGenerationModel(model string) OpenAIOption {
	return func(c *OpenAIClient) { c.generationModel = model }
}

// WithEmbeddingModel overrides the embedding model.
func WithEmbeddingModel(model openai.EmbeddingModel) OpenAIOption {
	return func(c *OpenAIClient) { c.embeddingModel = model }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float32) OpenAIOption {
	return func(c *OpenAIClient) { c.temperature = t }
}

// WithMaxTokens overrides the completion token limit.
func WithMaxTokens(n int) OpenAIOption {
	return func(c *OpenAIClient) { c.maxTokens = n }
}

// NewOpenAIClient creates a client with the given API key.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) *OpenAIClient {
	c := &OpenAIClient{
		client:          openai.NewClient(apiKey),
		generationModel: DefaultGenerationModel,
		embeddingModel:  DefaultEmbeddingModel,
		temperature:     0.7,
		maxTokens:       1000,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewOpenAIClientFromEnv creates a client from the OPENAI_API_KEY
// environment variable.
func NewOpenAIClientFromEnv(opts ...OpenAIOption) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY not found in environment variables")
	}
	return NewOpenAIClient(apiKey, opts...), nil
}

// GenerateText produces a chat completion. Failures are returned inline.
func (c *OpenAIClient) GenerateText(ctx context.Context, systemPrompt, userPrompt string) string {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.generationModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		log.Warn("text generation failed: %v", err)
		return GenerationError(err)
	}
	if len(resp.Choices) == 0 {
		return GenerationError(errors.New("empty response"))
	}
	return resp.Choices[0].Message.Content
}

// GenerateEmbedding produces an embedding vector. Failures yield nil.
func (c *OpenAIClient) GenerateEmbedding(ctx context.Context, text string) []float32 {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: c.embeddingModel,
	})
	if err != nil {
		log.Warn("embedding generation failed: %v", err)
		return nil
	}
	if len(resp.Data) == 0 {
		return nil
	}
	return resp.Data[0].Embedding
}
