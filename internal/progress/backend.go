package progress

import (
	"context"
	"sync"
)

// Mutation is applied by a Backend as one atomic write.
type Mutation struct {
	Set    map[string]string
	Delete []string
}

// Backend is the durable key/value storage behind a Store.
type Backend interface {
	// Get returns the values that exist for keys. Missing keys are absent
	// from the result.
	Get(ctx context.Context, keys ...string) (map[string]string, error)
	Apply(ctx context.Context, m Mutation) error
	Close() error
}

// MemoryBackend keeps entries in process memory. Reopening a Store over
// the same MemoryBackend behaves like a page reload.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]string)}
}

func (b *MemoryBackend) Get(_ context.Context, keys ...string) (map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	found := make(map[string]string, len(keys))
	for _, key := range keys {
		if value, ok := b.entries[key]; ok {
			found[key] = value
		}
	}
	return found, nil
}

func (b *MemoryBackend) Apply(_ context.Context, m Mutation) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, key := range m.Delete {
		delete(b.entries, key)
	}
	for key, value := range m.Set {
		b.entries[key] = value
	}
	return nil
}

func (b *MemoryBackend) Close() error {
	return nil
}

// Len reports how many entries are stored.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
