package calendar

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/availability-engine/internal/credential"
	"github.com/example/availability-engine/internal/lock"
	"github.com/example/availability-engine/internal/logging"
)

// Connection is one account's link to an external calendar. Tokens are stored
// encrypted and only decrypted in memory for the duration of a vendor call.
type Connection struct {
	ID           string
	AccountID    string
	Provider     string
	Email        string
	AccessToken  credential.EncryptedPayload
	RefreshToken credential.EncryptedPayload
	ExpiresAt    time.Time
	Primary      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the access token needs refreshing at the given
// instant. A small skew margin avoids handing out tokens that die mid-call.
func (c Connection) Expired(now time.Time) bool {
	return !now.Add(30 * time.Second).Before(c.ExpiresAt)
}

// ConnectionSource reads and updates stored connections on behalf of the
// refresh coordinator.
type ConnectionSource interface {
	GetConnection(ctx context.Context, id string) (Connection, error)
	SaveTokens(ctx context.Context, id string, access, refresh credential.EncryptedPayload, expiresAt time.Time) error
}

// Refresher is the slice of the vendor surface the coordinator needs.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (TokenPair, error)
}

// RefreshSettings tunes the lock and wait behavior of the coordinator.
type RefreshSettings struct {
	LockTTL      time.Duration
	WaitDelay    time.Duration
	WaitAttempts int
}

func (s RefreshSettings) withDefaults() RefreshSettings {
	if s.LockTTL <= 0 {
		s.LockTTL = 10 * time.Second
	}
	if s.WaitDelay <= 0 {
		s.WaitDelay = 500 * time.Millisecond
	}
	if s.WaitAttempts <= 0 {
		s.WaitAttempts = 20
	}
	return s
}

// RefreshCoordinator hands out valid plaintext access tokens, refreshing
// expired ones at most once per account across all process instances. The
// single-flight guarantee rests on an atomic set-if-absent lock keyed by
// account; losers of the race wait and re-read instead of refreshing.
type RefreshCoordinator struct {
	connections ConnectionSource
	refresher   Refresher
	cipher      *credential.Cipher
	locks       lock.Provider
	settings    RefreshSettings

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRefreshCoordinator(
	connections ConnectionSource,
	refresher Refresher,
	cipher *credential.Cipher,
	locks lock.Provider,
	settings RefreshSettings,
	now func() time.Time,
) *RefreshCoordinator {
	if now == nil {
		now = time.Now
	}
	return &RefreshCoordinator{
		connections: connections,
		refresher:   refresher,
		cipher:      cipher,
		locks:       locks,
		settings:    settings.withDefaults(),
		now:         now,
		sleep:       sleepContext,
	}
}

// AccessToken returns a usable plaintext access token for the connection,
// refreshing it first when expired.
func (c *RefreshCoordinator) AccessToken(ctx context.Context, conn Connection) (string, error) {
	if !conn.Expired(c.now()) {
		return c.decryptAccess(conn)
	}
	return c.refresh(ctx, conn)
}

func refreshLockKey(accountID string) string {
	return "refresh:" + accountID
}

func (c *RefreshCoordinator) refresh(ctx context.Context, conn Connection) (string, error) {
	logger := logging.FromContext(ctx)
	key := refreshLockKey(conn.AccountID)
	owner := uuid.NewString()

	acquired, err := c.locks.SetIfAbsent(ctx, key, owner, c.settings.LockTTL)
	if err != nil {
		// Lock backend down: refresh without coordination rather than fail
		// the caller. Concurrent refreshes each produce a valid token.
		logger.WarnContext(ctx, "refresh lock backend unavailable, refreshing without lock",
			slog.String("account_id", conn.AccountID),
			slog.String("error", err.Error()),
		)
		return c.performRefresh(ctx, conn)
	}

	if !acquired {
		return c.awaitRefresh(ctx, conn)
	}

	defer func() {
		if releaseErr := lock.Release(ctx, c.locks, key, owner); releaseErr != nil {
			logger.WarnContext(ctx, "failed to release refresh lock",
				slog.String("account_id", conn.AccountID),
				slog.String("error", releaseErr.Error()),
			)
		}
	}()

	// Another instance may have finished a refresh between the expiry check
	// and the lock acquisition. Re-read before spending the refresh grant.
	current, err := c.connections.GetConnection(ctx, conn.ID)
	if err != nil {
		return "", &credential.Error{Op: "refresh", Err: err}
	}
	if !current.Expired(c.now()) {
		return c.decryptAccess(current)
	}
	return c.performRefresh(ctx, current)
}

// awaitRefresh polls the stored connection while another holder refreshes it.
// The wait is bounded; a holder crash leaves the lock to expire by TTL, and
// this caller fails rather than block indefinitely.
func (c *RefreshCoordinator) awaitRefresh(ctx context.Context, conn Connection) (string, error) {
	for attempt := 0; attempt < c.settings.WaitAttempts; attempt++ {
		if err := c.sleep(ctx, c.settings.WaitDelay); err != nil {
			return "", err
		}
		current, err := c.connections.GetConnection(ctx, conn.ID)
		if err != nil {
			return "", &credential.Error{Op: "refresh", Err: err}
		}
		if !current.Expired(c.now()) {
			return c.decryptAccess(current)
		}
	}
	return "", &credential.Error{
		Op:  "refresh",
		Err: errors.New("token still expired after waiting for concurrent refresh"),
	}
}

func (c *RefreshCoordinator) performRefresh(ctx context.Context, conn Connection) (string, error) {
	refreshPlain, err := c.cipher.Decrypt(conn.RefreshToken)
	if err != nil {
		return "", err
	}

	pair, err := c.refresher.RefreshToken(ctx, string(refreshPlain))
	if err != nil {
		return "", &credential.Error{Op: "refresh", Err: err}
	}

	encAccess, err := c.cipher.Encrypt([]byte(pair.AccessToken))
	if err != nil {
		return "", err
	}
	encRefresh := conn.RefreshToken
	if pair.RefreshToken != "" {
		if encRefresh, err = c.cipher.Encrypt([]byte(pair.RefreshToken)); err != nil {
			return "", err
		}
	}

	if err := c.connections.SaveTokens(ctx, conn.ID, encAccess, encRefresh, pair.ExpiresAt); err != nil {
		return "", &credential.Error{Op: "refresh", Err: err}
	}
	return pair.AccessToken, nil
}

func (c *RefreshCoordinator) decryptAccess(conn Connection) (string, error) {
	plaintext, err := c.cipher.Decrypt(conn.AccessToken)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
