// Package agent provides the conversation loop that drives a memory
// strategy: retrieve context, prompt the model, store the exchange.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallnest/agentmem/llm"
	"github.com/smallnest/agentmem/log"
	"github.com/smallnest/agentmem/memory"
)

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = "You are a helpful AI assistant."

// promptTokenSink is implemented by strategies that track prompt-side token
// usage in their stats.
type promptTokenSink interface {
	AddPromptTokens(n int)
}

// Agent coordinates one conversation against one memory strategy.
type Agent struct {
	memory       memory.Strategy
	client       llm.Client
	countTokens  llm.TokenCounter
	systemPrompt string
}

// Config holds the agent's collaborators.
type Config struct {
	// Memory is the strategy backing this agent. Required.
	Memory memory.Strategy

	// Client generates responses. Required.
	Client llm.Client

	// SystemPrompt defaults to DefaultSystemPrompt when empty.
	SystemPrompt string

	// CountTokens estimates prompt size. Defaults to the gpt-4o-mini
	// tokenizer when nil.
	CountTokens llm.TokenCounter
}

// ChatResult carries the response for one turn plus performance metrics.
type ChatResult struct {
	UserInput      string        `json:"user_input"`
	AIResponse     string        `json:"ai_response"`
	Context        string        `json:"context"`
	RetrievalTime  time.Duration `json:"retrieval_time"`
	GenerationTime time.Duration `json:"generation_time"`
	PromptTokens   int           `json:"prompt_tokens"`
}

// New creates an agent from the given configuration.
func New(config *Config) (*Agent, error) {
	if config == nil || config.Memory == nil {
		return nil, errors.New("agent: memory strategy is required")
	}
	if config.Client == nil {
		return nil, errors.New("agent: llm client is required")
	}
	systemPrompt := config.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	counter := config.CountTokens
	if counter == nil {
		counter = llm.NewTokenCounter(llm.DefaultGenerationModel)
	}
	return &Agent{
		memory:       config.Memory,
		client:       config.Client,
		countTokens:  counter,
		systemPrompt: systemPrompt,
	}, nil
}

// Chat processes one conversation turn: pull context from memory, prompt the
// model with it, then store the exchange back into memory.
func (a *Agent) Chat(ctx context.Context, userInput string) (*ChatResult, error) {
	retrievalStart := time.Now()
	memoryContext := a.memory.GetContext(ctx, userInput)
	retrievalTime := time.Since(retrievalStart)

	fullPrompt := fmt.Sprintf("### MEMORY CONTEXT\n%s\n\n### CURRENT REQUEST\n%s",
		memoryContext, userInput)
	promptTokens := a.countTokens(a.systemPrompt + fullPrompt)
	log.Debug("agent: retrieval took %s, prompt is %d tokens", retrievalTime, promptTokens)

	generationStart := time.Now()
	aiResponse := a.client.GenerateText(ctx, a.systemPrompt, fullPrompt)
	generationTime := time.Since(generationStart)

	if err := a.memory.AddMessage(ctx, userInput, aiResponse); err != nil {
		return nil, fmt.Errorf("agent: storing turn: %w", err)
	}
	if sink, ok := a.memory.(promptTokenSink); ok {
		sink.AddPromptTokens(promptTokens)
	}

	return &ChatResult{
		UserInput:      userInput,
		AIResponse:     aiResponse,
		Context:        memoryContext,
		RetrievalTime:  retrievalTime,
		GenerationTime: generationTime,
		PromptTokens:   promptTokens,
	}, nil
}

// Stats returns the memory strategy's statistics.
func (a *Agent) Stats() memory.Stats {
	return a.memory.Stats()
}

// OperationLog returns the memory strategy's audit trail.
func (a *Agent) OperationLog() []memory.Operation {
	return a.memory.OperationLog()
}

// ClearMemory resets the agent's memory.
func (a *Agent) ClearMemory() {
	a.memory.Clear()
	log.Info("agent: memory cleared")
}

// SystemPrompt returns the current system prompt.
func (a *Agent) SystemPrompt() string {
	return a.systemPrompt
}

// SetSystemPrompt replaces the system prompt for subsequent turns.
func (a *Agent) SetSystemPrompt(prompt string) {
	a.systemPrompt = prompt
}
