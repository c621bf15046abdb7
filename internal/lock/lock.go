// Package lock provides the distributed lock backend used to single-flight
// credential refreshes across process instances.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable signals that the lock backend cannot be reached. Callers may
// degrade to lock-free operation; concurrent work is then possible but each
// execution remains independently valid.
var ErrUnavailable = errors.New("lock: backend unavailable")

// Provider is the minimal backend contract: an atomic set-if-absent with TTL,
// a read used for compare-before-delete release, and a delete.
type Provider interface {
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Release deletes the key only while the caller still owns it. A holder whose
// TTL lapsed must not delete a lock someone else acquired in the meantime.
func Release(ctx context.Context, provider Provider, key, owner string) error {
	if provider == nil || owner == "" {
		return nil
	}
	current, err := provider.Get(ctx, key)
	if err != nil {
		return err
	}
	if current != owner {
		return nil
	}
	return provider.Delete(ctx, key)
}
