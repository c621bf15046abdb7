package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order exactly once; applied versions are tracked
// in schema_migrations. Append only, never edit a shipped entry.
var migrations = []string{
	`CREATE TABLE appointment_types (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		name TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
		buffer_before_minutes INTEGER NOT NULL DEFAULT 0 CHECK (buffer_before_minutes >= 0),
		buffer_after_minutes INTEGER NOT NULL DEFAULT 0 CHECK (buffer_after_minutes >= 0),
		conferencing INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX idx_appointment_types_account ON appointment_types(account_id);`,

	`CREATE TABLE appointments (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		type_id TEXT NOT NULL REFERENCES appointment_types(id),
		status TEXT NOT NULL CHECK (status IN ('confirmed', 'cancelled')),
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		buffered_start TEXT NOT NULL,
		buffered_end TEXT NOT NULL,
		invitee_name TEXT NOT NULL,
		invitee_email TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		cancellation_token TEXT NOT NULL UNIQUE,
		external_event_id TEXT NOT NULL DEFAULT '',
		conferencing_uri TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX idx_appointments_account_window
		ON appointments(account_id, status, buffered_start, buffered_end);`,

	`CREATE TABLE calendar_connections (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		access_ciphertext TEXT NOT NULL,
		access_iv TEXT NOT NULL,
		access_tag TEXT NOT NULL,
		refresh_ciphertext TEXT NOT NULL,
		refresh_iv TEXT NOT NULL,
		refresh_tag TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		is_primary INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX idx_calendar_connections_account ON calendar_connections(account_id);`,

	`CREATE TABLE working_hours (
		account_id TEXT NOT NULL,
		weekday INTEGER NOT NULL CHECK (weekday BETWEEN 0 AND 6),
		start_minute INTEGER NOT NULL CHECK (start_minute BETWEEN 0 AND 1440),
		end_minute INTEGER NOT NULL CHECK (end_minute BETWEEN 0 AND 1440),
		enabled INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (account_id, weekday)
	);`,

	`CREATE TABLE date_overrides (
		account_id TEXT NOT NULL,
		date TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('available_all_day', 'unavailable', 'custom')),
		start_minute INTEGER NOT NULL DEFAULT 0,
		end_minute INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (account_id, date)
	);`,

	`CREATE TABLE usage_counters (
		account_id TEXT NOT NULL,
		month TEXT NOT NULL,
		bookings INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (account_id, month)
	);`,
}

// Migrate brings the schema up to the current version.
func Migrate(ctx context.Context, pool *ConnectionPool) error {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := pool.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for version := current + 1; version <= len(migrations); version++ {
		statement := migrations[version-1]
		err := pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.Exec(statement); err != nil {
				return err
			}
			_, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %d: %w", version, err)
		}
	}
	return nil
}
