package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider is a single-process Provider used for tests and for
// deployments without a shared backend. TTL expiry is evaluated lazily.
type MemoryProvider struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryProvider returns an empty provider. A nil now falls back to
// time.Now; tests inject a controllable clock.
func NewMemoryProvider(now func() time.Time) *MemoryProvider {
	if now == nil {
		now = time.Now
	}
	return &MemoryProvider{
		now:     now,
		entries: make(map[string]memoryEntry),
	}
}

// SetIfAbsent stores the value unless a live entry already exists.
func (p *MemoryProvider) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.entries[key]; ok && p.now().Before(entry.expiresAt) {
		return false, nil
	}
	p.entries[key] = memoryEntry{value: value, expiresAt: p.now().Add(ttl)}
	return true, nil
}

// Get returns the live value for the key, or empty when absent or expired.
func (p *MemoryProvider) Get(ctx context.Context, key string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[key]
	if !ok || !p.now().Before(entry.expiresAt) {
		delete(p.entries, key)
		return "", nil
	}
	return entry.value, nil
}

// Delete removes the key.
func (p *MemoryProvider) Delete(ctx context.Context, key string) error {
	p.mu.Lock()
	delete(p.entries, key)
	p.mu.Unlock()
	return nil
}
