// Package llm defines the boundary between the memory strategies and the
// external language-model primitives they consume: text generation,
// embedding generation, and token counting.
//
// The Client interface deliberately never returns a Go error from
// GenerateText. Upstream failures come back as an inline
// "Error generating text: ..." string, and embedding failures come back as a
// nil vector, so every strategy can degrade to a local default instead of
// failing a turn. IsGenerationError recognizes the inline marker for
// strategies that must not commit state on a failed call.
//
// Two implementations are provided: OpenAIClient (sashabaranov/go-openai)
// and LangChainClient, which adapts any langchaingo llms.Model plus an
// optional embeddings.Embedder. Token counting goes through the TokenCounter
// function type so the tokenizer is injected rather than global:
//
//	counter := llm.NewTokenCounter("gpt-4o-mini")
//	n := counter("some text")
package llm
