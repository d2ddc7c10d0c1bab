// Package session manages independent per-session agents. Each session owns
// one agent with its own memory strategy; nothing is shared across sessions.
package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smallnest/agentmem/agent"
	"github.com/smallnest/agentmem/llm"
	"github.com/smallnest/agentmem/log"
	"github.com/smallnest/agentmem/memory"
)

// Session pairs an agent with the metadata the registry tracks about it.
type Session struct {
	ID         string
	StrategyID string
	Model      string
	CreatedAt  time.Time
	Agent      *agent.Agent
}

// Registry is a concurrency-safe map of session id to agent. Calls into one
// session's agent are expected to be serialized by the caller; the registry
// lock only protects the map itself.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	client   llm.Client
	model    string
}

// NewRegistry creates a registry whose sessions share the given client.
func NewRegistry(client llm.Client, model string) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		client:   client,
		model:    model,
	}
}

// CreateOptions configures a new session.
type CreateOptions struct {
	// SessionID is generated when empty.
	SessionID string

	// StrategyID names the memory strategy. Required.
	StrategyID string

	// StrategyConfig tunes the strategy. The registry fills in the client.
	StrategyConfig *memory.Config

	// SystemPrompt overrides the agent default when non-empty.
	SystemPrompt string
}

// Create builds a new session with a fresh strategy and agent. An existing
// session id is rejected.
func (r *Registry) Create(opts CreateOptions) (*Session, error) {
	id := opts.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	var cfg memory.Config
	if opts.StrategyConfig != nil {
		cfg = *opts.StrategyConfig
	}
	if cfg.Client == nil {
		cfg.Client = r.client
	}
	strategy, err := memory.New(opts.StrategyID, &cfg)
	if err != nil {
		return nil, err
	}
	a, err := agent.New(&agent.Config{
		Memory:       strategy,
		Client:       r.client,
		SystemPrompt: opts.SystemPrompt,
		CountTokens:  cfg.CountTokens,
	})
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:         id,
		StrategyID: opts.StrategyID,
		Model:      r.model,
		CreatedAt:  time.Now(),
		Agent:      a,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[id]; exists {
		return nil, fmt.Errorf("session: %q already exists", id)
	}
	r.sessions[id] = sess
	log.Info("session: created %s with strategy %s", id, opts.StrategyID)
	return sess, nil
}

// Get returns the session for id, or an error when it does not exist.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session: %q not found", id)
	}
	return sess, nil
}

// Delete removes the session for id. Deleting an unknown id is an error.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("session: %q not found", id)
	}
	delete(r.sessions, id)
	log.Info("session: deleted %s", id)
	return nil
}

// Clear resets the memory of the session for id, keeping the session alive.
func (r *Registry) Clear(id string) error {
	sess, err := r.Get(id)
	if err != nil {
		return err
	}
	sess.Agent.ClearMemory()
	return nil
}

// List returns all sessions ordered by creation time, oldest first.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
