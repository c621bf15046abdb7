package application

import (
	"context"
	"errors"
	"time"

	"github.com/example/availability-engine/internal/calendar"
	"github.com/example/availability-engine/internal/credential"
	"github.com/example/availability-engine/internal/persistence"
)

// ConnectionService manages calendar connections: the OAuth grant comes in as
// plaintext, is sealed by the credential cipher and only then stored.
type ConnectionService struct {
	connections persistence.ConnectionRepository
	cipher      *credential.Cipher
	cache       *BusyCache
	idGenerator func() string
	now         func() time.Time
}

// NewConnectionService wires dependencies for connection management.
func NewConnectionService(
	connections persistence.ConnectionRepository,
	cipher *credential.Cipher,
	cache *BusyCache,
	idGenerator func() string,
	now func() time.Time,
) *ConnectionService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ConnectionService{
		connections: connections,
		cipher:      cipher,
		cache:       cache,
		idGenerator: idGenerator,
		now:         now,
	}
}

// Connect seals the grant and stores the connection. An account's first
// connection becomes primary regardless of the request.
func (s *ConnectionService) Connect(ctx context.Context, params ConnectParams) (calendar.Connection, error) {
	vErr := &ValidationError{}
	if params.AccountID == "" {
		vErr.add("account_id", "account_id is required")
	}
	if params.Provider == "" {
		vErr.add("provider", "provider is required")
	}
	if params.RefreshToken == "" {
		vErr.add("refresh_token", "refresh_token is required")
	}
	if vErr.HasErrors() {
		return calendar.Connection{}, vErr
	}

	access, err := s.cipher.Encrypt([]byte(params.AccessToken))
	if err != nil {
		return calendar.Connection{}, err
	}
	refresh, err := s.cipher.Encrypt([]byte(params.RefreshToken))
	if err != nil {
		return calendar.Connection{}, err
	}

	primary := params.Primary
	if !primary {
		if _, err := s.connections.GetPrimaryConnection(ctx, params.AccountID); errors.Is(err, calendar.ErrNotConnected) {
			primary = true
		}
	}

	now := s.now().UTC()
	conn := calendar.Connection{
		ID:           s.idGenerator(),
		AccountID:    params.AccountID,
		Provider:     params.Provider,
		Email:        params.Email,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    params.ExpiresAt,
		Primary:      primary,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.connections.CreateConnection(ctx, conn); err != nil {
		return calendar.Connection{}, mapRepoError(err)
	}

	s.cache.InvalidateAccount(params.AccountID)
	return conn, nil
}

// Disconnect removes a connection the account owns and drops its cached busy
// time so availability stops reflecting the departed calendar immediately.
func (s *ConnectionService) Disconnect(ctx context.Context, accountID, connectionID string) error {
	conn, err := s.connections.GetConnection(ctx, connectionID)
	if errors.Is(err, calendar.ErrNotConnected) {
		return ErrNotFound
	}
	if err != nil {
		return mapRepoError(err)
	}
	if conn.AccountID != accountID {
		return ErrNotFound
	}

	if err := s.connections.DeleteConnection(ctx, connectionID); err != nil {
		if errors.Is(err, calendar.ErrNotConnected) {
			return ErrNotFound
		}
		return mapRepoError(err)
	}

	s.cache.InvalidateAccount(accountID)
	return nil
}

// List returns the account's connections.
func (s *ConnectionService) List(ctx context.Context, accountID string) ([]calendar.Connection, error) {
	connections, err := s.connections.ListConnections(ctx, accountID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return connections, nil
}
