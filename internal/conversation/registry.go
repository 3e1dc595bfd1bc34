package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/banktalk/internal/common"
	"github.com/Veraticus/banktalk/internal/resolver"
	"github.com/Veraticus/banktalk/internal/service"
	"github.com/Veraticus/banktalk/internal/transfer"
)

// Deps are the collaborators shared by every conversation in a registry.
type Deps struct {
	Classifier service.Classifier
	Directory  service.Directory
	Resolver   *resolver.Resolver
	Flow       *transfer.Flow
	Sessions   SessionStore
	Timeout    time.Duration
}

// Registry tracks live conversations by id.
type Registry struct {
	conversations map[string]*Orchestrator
	deps          Deps
	mu            sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		conversations: make(map[string]*Orchestrator),
		deps:          deps,
	}
}

// Create starts a conversation for userID. The customer context is loaded
// from the directory; when it cannot be loaded the conversation starts
// without a greeting and without account ownership checks.
func (r *Registry) Create(ctx context.Context, userID string, smart bool) (*Orchestrator, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", common.ErrInvalidConfig)
	}

	opts := Options{
		UserID:    userID,
		Flow:      r.deps.Flow,
		Sessions:  r.deps.Sessions,
		Timeout:   r.deps.Timeout,
		SmartMode: smart,
	}
	if r.deps.Directory != nil {
		customer, err := r.deps.Directory.GetCustomer(ctx, userID)
		if err != nil {
			slog.Warn("Failed to load customer for conversation", "user_id", userID, "error", err)
		} else {
			opts.Customer = customer
		}
	}

	o := New(r.deps.Classifier, r.deps.Resolver, opts)

	r.mu.Lock()
	r.conversations[o.ID()] = o
	r.mu.Unlock()

	slog.Info("Conversation started", "conversation_id", o.ID(), "user_id", userID, "smart_mode", smart)
	return o, nil
}

// Get returns the conversation with id.
func (r *Registry) Get(id string) (*Orchestrator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", common.ErrNotFound, id)
	}
	return o, nil
}

// Remove closes and forgets the conversation with id.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	o, ok := r.conversations[id]
	delete(r.conversations, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: conversation %s", common.ErrNotFound, id)
	}
	o.Close()
	return nil
}

// Len returns the number of live conversations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conversations)
}

// Close closes every conversation.
func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*Orchestrator, 0, len(r.conversations))
	for id, o := range r.conversations {
		all = append(all, o)
		delete(r.conversations, id)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, o := range all {
		wg.Add(1)
		go func(o *Orchestrator) {
			defer wg.Done()
			o.Close()
		}(o)
	}
	wg.Wait()
}
