package history

import (
	"context"
	"sync"
)

// MemoryBackend keeps runs in process. Used for dry runs and tests.
type MemoryBackend struct {
	mu   sync.Mutex
	runs []RunSummary
}

func (b *MemoryBackend) Append(ctx context.Context, s RunSummary) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runs = append(b.runs, s)
	return nil
}

func (b *MemoryBackend) Load(ctx context.Context, n int) ([]RunSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return tail(append([]RunSummary(nil), b.runs...), n), nil
}
