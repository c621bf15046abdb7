package calendar

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/availability-engine/internal/credential"
	"github.com/example/availability-engine/internal/lock"
)

func testCipher(t *testing.T) *credential.Cipher {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	cipher, err := credential.NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	return cipher
}

type fakeConnectionSource struct {
	mu          sync.Mutex
	connections map[string]Connection
}

func newFakeConnectionSource(conns ...Connection) *fakeConnectionSource {
	source := &fakeConnectionSource{connections: make(map[string]Connection)}
	for _, conn := range conns {
		source.connections[conn.ID] = conn
	}
	return source
}

func (s *fakeConnectionSource) GetConnection(ctx context.Context, id string) (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[id]
	if !ok {
		return Connection{}, ErrNotConnected
	}
	return conn, nil
}

func (s *fakeConnectionSource) SaveTokens(ctx context.Context, id string, access, refresh credential.EncryptedPayload, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn := s.connections[id]
	conn.AccessToken = access
	conn.RefreshToken = refresh
	conn.ExpiresAt = expiresAt
	s.connections[id] = conn
	return nil
}

type countingRefresher struct {
	mu    sync.Mutex
	calls int
	pair  TokenPair
	err   error
	delay time.Duration
}

func (r *countingRefresher) RefreshToken(ctx context.Context, refreshToken string) (TokenPair, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		return TokenPair{}, r.err
	}
	return r.pair, nil
}

func (r *countingRefresher) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type failingLockProvider struct{}

func (failingLockProvider) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return false, lock.ErrUnavailable
}
func (failingLockProvider) Get(ctx context.Context, key string) (string, error) {
	return "", lock.ErrUnavailable
}
func (failingLockProvider) Delete(ctx context.Context, key string) error {
	return lock.ErrUnavailable
}

type contendedLockProvider struct{}

func (contendedLockProvider) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return false, nil
}
func (contendedLockProvider) Get(ctx context.Context, key string) (string, error) { return "", nil }
func (contendedLockProvider) Delete(ctx context.Context, key string) error        { return nil }

func encrypt(t *testing.T, cipher *credential.Cipher, plaintext string) credential.EncryptedPayload {
	t.Helper()
	payload, err := cipher.Encrypt([]byte(plaintext))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	return payload
}

func testConnection(t *testing.T, cipher *credential.Cipher, expiresAt time.Time) Connection {
	t.Helper()
	return Connection{
		ID:           "conn-1",
		AccountID:    "acct-1",
		Provider:     "google",
		AccessToken:  encrypt(t, cipher, "stale-access"),
		RefreshToken: encrypt(t, cipher, "refresh-secret"),
		ExpiresAt:    expiresAt,
		Primary:      true,
	}
}

func fastSettings() RefreshSettings {
	return RefreshSettings{
		LockTTL:      time.Second,
		WaitDelay:    2 * time.Millisecond,
		WaitAttempts: 100,
	}
}

func TestAccessTokenReturnsStoredTokenWhileValid(t *testing.T) {
	cipher := testCipher(t)
	conn := testConnection(t, cipher, time.Now().Add(time.Hour))
	refresher := &countingRefresher{}

	coordinator := NewRefreshCoordinator(
		newFakeConnectionSource(conn), refresher, cipher,
		lock.NewMemoryProvider(nil), fastSettings(), nil,
	)

	token, err := coordinator.AccessToken(context.Background(), conn)
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if token != "stale-access" {
		t.Fatalf("expected the stored token, got %q", token)
	}
	if refresher.callCount() != 0 {
		t.Fatalf("valid tokens must not trigger a refresh")
	}
}

func TestAccessTokenRefreshesExpiredToken(t *testing.T) {
	cipher := testCipher(t)
	conn := testConnection(t, cipher, time.Now().Add(-time.Minute))
	source := newFakeConnectionSource(conn)
	refresher := &countingRefresher{pair: TokenPair{
		AccessToken: "fresh-access",
		ExpiresAt:   time.Now().Add(time.Hour),
	}}

	coordinator := NewRefreshCoordinator(
		source, refresher, cipher, lock.NewMemoryProvider(nil), fastSettings(), nil,
	)

	token, err := coordinator.AccessToken(context.Background(), conn)
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if token != "fresh-access" {
		t.Fatalf("expected the refreshed token, got %q", token)
	}
	if refresher.callCount() != 1 {
		t.Fatalf("expected exactly one refresh, got %d", refresher.callCount())
	}

	// A vendor response without a refresh token keeps the original one.
	stored, err := source.GetConnection(context.Background(), conn.ID)
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	refreshPlain, err := cipher.Decrypt(stored.RefreshToken)
	if err != nil {
		t.Fatalf("Decrypt refresh token: %v", err)
	}
	if string(refreshPlain) != "refresh-secret" {
		t.Fatalf("original refresh token must survive, got %q", refreshPlain)
	}
}

func TestAccessTokenRotatesRefreshTokenWhenProvided(t *testing.T) {
	cipher := testCipher(t)
	conn := testConnection(t, cipher, time.Now().Add(-time.Minute))
	source := newFakeConnectionSource(conn)
	refresher := &countingRefresher{pair: TokenPair{
		AccessToken:  "fresh-access",
		RefreshToken: "rotated-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}}

	coordinator := NewRefreshCoordinator(
		source, refresher, cipher, lock.NewMemoryProvider(nil), fastSettings(), nil,
	)

	if _, err := coordinator.AccessToken(context.Background(), conn); err != nil {
		t.Fatalf("AccessToken: %v", err)
	}

	stored, _ := source.GetConnection(context.Background(), conn.ID)
	refreshPlain, err := cipher.Decrypt(stored.RefreshToken)
	if err != nil {
		t.Fatalf("Decrypt refresh token: %v", err)
	}
	if string(refreshPlain) != "rotated-refresh" {
		t.Fatalf("expected the rotated refresh token, got %q", refreshPlain)
	}
}

func TestConcurrentCallersRefreshOnce(t *testing.T) {
	cipher := testCipher(t)
	conn := testConnection(t, cipher, time.Now().Add(-time.Minute))
	source := newFakeConnectionSource(conn)
	refresher := &countingRefresher{
		pair: TokenPair{
			AccessToken: "fresh-access",
			ExpiresAt:   time.Now().Add(time.Hour),
		},
		delay: 10 * time.Millisecond,
	}

	coordinator := NewRefreshCoordinator(
		source, refresher, cipher, lock.NewMemoryProvider(nil), fastSettings(), nil,
	)

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = coordinator.AccessToken(context.Background(), conn)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if tokens[i] != "fresh-access" {
			t.Fatalf("caller %d: expected the refreshed token, got %q", i, tokens[i])
		}
	}
	if got := refresher.callCount(); got != 1 {
		t.Fatalf("expected a single refresh across %d callers, got %d", callers, got)
	}
}

func TestLockBackendOutageDegradesToUncoordinatedRefresh(t *testing.T) {
	cipher := testCipher(t)
	conn := testConnection(t, cipher, time.Now().Add(-time.Minute))
	refresher := &countingRefresher{pair: TokenPair{
		AccessToken: "fresh-access",
		ExpiresAt:   time.Now().Add(time.Hour),
	}}

	coordinator := NewRefreshCoordinator(
		newFakeConnectionSource(conn), refresher, cipher,
		failingLockProvider{}, fastSettings(), nil,
	)

	token, err := coordinator.AccessToken(context.Background(), conn)
	if err != nil {
		t.Fatalf("a lock outage must not fail the refresh: %v", err)
	}
	if token != "fresh-access" {
		t.Fatalf("expected the refreshed token, got %q", token)
	}
	if refresher.callCount() != 1 {
		t.Fatalf("expected the refresh to run without the lock")
	}
}

func TestContendedCallerFailsAfterBoundedWait(t *testing.T) {
	cipher := testCipher(t)
	conn := testConnection(t, cipher, time.Now().Add(-time.Minute))
	refresher := &countingRefresher{}

	settings := fastSettings()
	settings.WaitAttempts = 3
	coordinator := NewRefreshCoordinator(
		newFakeConnectionSource(conn), refresher, cipher,
		contendedLockProvider{}, settings, nil,
	)

	_, err := coordinator.AccessToken(context.Background(), conn)
	var credErr *credential.Error
	if !errors.As(err, &credErr) {
		t.Fatalf("expected a credential error after the wait expired, got %v", err)
	}
	if refresher.callCount() != 0 {
		t.Fatalf("a contended caller must never refresh itself")
	}
}

func TestRefreshFailureSurfacesAsCredentialError(t *testing.T) {
	cipher := testCipher(t)
	conn := testConnection(t, cipher, time.Now().Add(-time.Minute))
	refresher := &countingRefresher{err: &FatalError{Op: "refresh_token", StatusCode: 400, Err: errors.New("invalid_grant")}}

	coordinator := NewRefreshCoordinator(
		newFakeConnectionSource(conn), refresher, cipher,
		lock.NewMemoryProvider(nil), fastSettings(), nil,
	)

	_, err := coordinator.AccessToken(context.Background(), conn)
	var credErr *credential.Error
	if !errors.As(err, &credErr) {
		t.Fatalf("expected a credential error, got %v", err)
	}
}
