package agent

import (
	"context"
	"sync"

	"github.com/tbxark/formcopilot/conversation"
)

// StateStore keeps conversation states for callers that do not carry the
// state themselves, routed by the key stored in the context.
type StateStore interface {
	Load(ctx context.Context) (conversation.State, bool, error)
	Save(ctx context.Context, state conversation.State) error
	Remove(ctx context.Context) error
}

type stateKeyContext struct{}

const defaultStateKey = "default"

// WithStateKey sets a routing key for state storage in the context.
func WithStateKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, stateKeyContext{}, key)
}

// StateKeyFromContext gets the routing key from the context.
func StateKeyFromContext(ctx context.Context) (string, bool) {
	value := ctx.Value(stateKeyContext{})
	if value == nil {
		return "", false
	}
	key, ok := value.(string)
	return key, ok
}

func stateKeyOrDefault(ctx context.Context) string {
	key, ok := StateKeyFromContext(ctx)
	if ok && key != "" {
		return key
	}
	return defaultStateKey
}

// MemoryStateStore is an in-process StateStore.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]conversation.State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]conversation.State)}
}

func (m *MemoryStateStore) Load(ctx context.Context) (conversation.State, bool, error) {
	m.mu.RLock()
	state, ok := m.states[stateKeyOrDefault(ctx)]
	m.mu.RUnlock()
	return state, ok, nil
}

func (m *MemoryStateStore) Save(ctx context.Context, state conversation.State) error {
	m.mu.Lock()
	m.states[stateKeyOrDefault(ctx)] = state
	m.mu.Unlock()
	return nil
}

func (m *MemoryStateStore) Remove(ctx context.Context) error {
	m.mu.Lock()
	delete(m.states, stateKeyOrDefault(ctx))
	m.mu.Unlock()
	return nil
}
