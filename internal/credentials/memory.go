package credentials

import (
	"context"
	"sync"
)

type memoryBackend struct {
	mu      sync.RWMutex
	payload []byte
}

// NewMemoryBackend keeps the record in process memory. Useful for tests and
// for one-shot invocations that must not touch disk.
func NewMemoryBackend() Backend {
	return &memoryBackend{}
}

func (b *memoryBackend) Load(_ context.Context) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.payload == nil {
		return nil, ErrNotFound
	}
	out := make([]byte, len(b.payload))
	copy(out, b.payload)
	return out, nil
}

func (b *memoryBackend) Save(_ context.Context, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payload = append([]byte(nil), payload...)
	return nil
}

func (b *memoryBackend) Delete(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payload = nil
	return nil
}
