package storage

import (
	"context"
	"sync"

	"github.com/ruteri/device-activation-backend/interfaces"
)

// MemoryBackend is a process-local secret store for development and tests.
type MemoryBackend struct {
	mu      sync.RWMutex
	secrets map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{secrets: map[string][]byte{}}
}

func (b *MemoryBackend) Fetch(ctx context.Context, name string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.secrets[name]
	if !ok {
		return nil, interfaces.ErrContentNotFound
	}
	return append([]byte(nil), data...), nil
}

func (b *MemoryBackend) Store(ctx context.Context, name string, data []byte) error {
	if err := validateSecretName(name); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.secrets[name] = append([]byte(nil), data...)
	return nil
}

func (b *MemoryBackend) Available(ctx context.Context) bool { return true }

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) LocationURI() string { return "memory://" }
