package lock

import (
	"context"
	"time"
)

// NoopProvider disables locking entirely: every acquisition succeeds and no
// state is kept. It models the documented degraded-consistency mode where
// concurrent refreshes are tolerated rather than serialized.
type NoopProvider struct{}

// SetIfAbsent always reports success.
func (NoopProvider) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return true, nil
}

// Get always reports the key as absent, which makes Release a no-op.
func (NoopProvider) Get(ctx context.Context, key string) (string, error) {
	return "", nil
}

// Delete is a no-op.
func (NoopProvider) Delete(ctx context.Context, key string) error {
	return nil
}
