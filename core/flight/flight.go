// Package flight serializes payment-affecting operations per cart. A second
// caller is rejected right away instead of queueing behind the first.
package flight

import (
	"context"
	"sync"

	"github.com/irsalhamdi/storefront-checkout/core/failure"
)

type Locker interface {
	// TryAcquire returns failure.ErrInProgress when key is already held. The
	// returned release func is safe to call more than once.
	TryAcquire(ctx context.Context, key string) (release func(), err error)
}

type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

func (m *Memory) TryAcquire(_ context.Context, key string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[key]; ok {
		return nil, failure.ErrInProgress
	}
	m.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}, nil
}

// Held reports whether key is currently locked.
func (m *Memory) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[key]
	return ok
}
