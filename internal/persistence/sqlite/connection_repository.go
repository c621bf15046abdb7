package sqlite

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/example/availability-engine/internal/calendar"
	"github.com/example/availability-engine/internal/credential"
	"github.com/example/availability-engine/internal/persistence"
)

// ConnectionRepository implements persistence.ConnectionRepository. Encrypted
// token payloads are stored as three base64 columns each so no column ever
// holds usable material on its own.
type ConnectionRepository struct {
	pool *ConnectionPool
	now  func() time.Time
}

func NewConnectionRepository(pool *ConnectionPool, now func() time.Time) *ConnectionRepository {
	if now == nil {
		now = time.Now
	}
	return &ConnectionRepository{pool: pool, now: now}
}

const connectionColumns = `id, account_id, provider, email,
	access_ciphertext, access_iv, access_tag,
	refresh_ciphertext, refresh_iv, refresh_tag,
	expires_at, is_primary, created_at, updated_at`

// CreateConnection stores the connection. When it is primary, any previous
// primary for the account is demoted in the same transaction so exactly one
// primary exists at a time.
func (r *ConnectionRepository) CreateConnection(ctx context.Context, conn calendar.Connection) error {
	if conn.ID == "" || conn.AccountID == "" {
		return persistence.ErrConstraintViolation
	}

	now := r.now().UTC()
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if conn.Primary {
			_, err := tx.Exec(
				"UPDATE calendar_connections SET is_primary = 0, updated_at = ? WHERE account_id = ? AND is_primary = 1",
				formatTime(now), conn.AccountID)
			if err != nil {
				return mapError(err)
			}
		}

		_, err := tx.Exec(`
			INSERT INTO calendar_connections (`+connectionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			conn.ID,
			conn.AccountID,
			conn.Provider,
			conn.Email,
			encode(conn.AccessToken.Ciphertext),
			encode(conn.AccessToken.IV),
			encode(conn.AccessToken.AuthTag),
			encode(conn.RefreshToken.Ciphertext),
			encode(conn.RefreshToken.IV),
			encode(conn.RefreshToken.AuthTag),
			formatTime(conn.ExpiresAt),
			boolToInt(conn.Primary),
			formatTime(now),
			formatTime(now),
		)
		return mapError(err)
	})
}

func (r *ConnectionRepository) GetConnection(ctx context.Context, id string) (calendar.Connection, error) {
	if id == "" {
		return calendar.Connection{}, calendar.ErrNotConnected
	}
	row := r.pool.QueryRow(ctx,
		"SELECT "+connectionColumns+" FROM calendar_connections WHERE id = ?", id)
	return scanConnection(row)
}

func (r *ConnectionRepository) GetPrimaryConnection(ctx context.Context, accountID string) (calendar.Connection, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+connectionColumns+" FROM calendar_connections WHERE account_id = ? AND is_primary = 1",
		accountID)
	return scanConnection(row)
}

func (r *ConnectionRepository) ListConnections(ctx context.Context, accountID string) ([]calendar.Connection, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+connectionColumns+" FROM calendar_connections WHERE account_id = ? ORDER BY created_at ASC, id ASC",
		accountID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var connections []calendar.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		connections = append(connections, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return connections, nil
}

func (r *ConnectionRepository) SaveTokens(ctx context.Context, id string, access, refresh credential.EncryptedPayload, expiresAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE calendar_connections
		SET access_ciphertext = ?, access_iv = ?, access_tag = ?,
			refresh_ciphertext = ?, refresh_iv = ?, refresh_tag = ?,
			expires_at = ?, updated_at = ?
		WHERE id = ?`,
		encode(access.Ciphertext), encode(access.IV), encode(access.AuthTag),
		encode(refresh.Ciphertext), encode(refresh.IV), encode(refresh.AuthTag),
		formatTime(expiresAt), formatTime(r.now().UTC()), id)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return calendar.ErrNotConnected
	}
	return nil
}

func (r *ConnectionRepository) DeleteConnection(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM calendar_connections WHERE id = ?", id)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return calendar.ErrNotConnected
	}
	return nil
}

func scanConnection(row rowScanner) (calendar.Connection, error) {
	var conn calendar.Connection
	var accessCT, accessIV, accessTag, refreshCT, refreshIV, refreshTag string
	var expiresStr, createdStr, updatedStr string
	var primary int

	err := row.Scan(
		&conn.ID,
		&conn.AccountID,
		&conn.Provider,
		&conn.Email,
		&accessCT, &accessIV, &accessTag,
		&refreshCT, &refreshIV, &refreshTag,
		&expiresStr,
		&primary,
		&createdStr,
		&updatedStr,
	)
	if err == sql.ErrNoRows {
		return calendar.Connection{}, calendar.ErrNotConnected
	}
	if err != nil {
		return calendar.Connection{}, mapError(err)
	}

	if conn.AccessToken, err = decodePayload(accessCT, accessIV, accessTag); err != nil {
		return calendar.Connection{}, err
	}
	if conn.RefreshToken, err = decodePayload(refreshCT, refreshIV, refreshTag); err != nil {
		return calendar.Connection{}, err
	}

	conn.Primary = primary != 0
	for _, field := range []struct {
		raw  string
		into *time.Time
	}{
		{expiresStr, &conn.ExpiresAt},
		{createdStr, &conn.CreatedAt},
		{updatedStr, &conn.UpdatedAt},
	} {
		parsed, err := time.Parse(time.RFC3339, field.raw)
		if err != nil {
			return calendar.Connection{}, fmt.Errorf("parse stored timestamp: %w", err)
		}
		*field.into = parsed
	}
	return conn, nil
}

func encode(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

func decodePayload(ciphertext, iv, tag string) (credential.EncryptedPayload, error) {
	var payload credential.EncryptedPayload
	var err error
	if payload.Ciphertext, err = base64.StdEncoding.DecodeString(ciphertext); err != nil {
		return credential.EncryptedPayload{}, fmt.Errorf("decode stored ciphertext: %w", err)
	}
	if payload.IV, err = base64.StdEncoding.DecodeString(iv); err != nil {
		return credential.EncryptedPayload{}, fmt.Errorf("decode stored iv: %w", err)
	}
	if payload.AuthTag, err = base64.StdEncoding.DecodeString(tag); err != nil {
		return credential.EncryptedPayload{}, fmt.Errorf("decode stored auth tag: %w", err)
	}
	return payload, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
