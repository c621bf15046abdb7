package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/availability-engine/internal/persistence"
)

// UsageRepository implements persistence.UsageRepository.
type UsageRepository struct {
	pool *ConnectionPool
}

func NewUsageRepository(pool *ConnectionPool) *UsageRepository {
	return &UsageRepository{pool: pool}
}

func (r *UsageRepository) IncrementBookings(ctx context.Context, accountID, month string) error {
	if accountID == "" || month == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO usage_counters (account_id, month, bookings)
		VALUES (?, ?, 1)
		ON CONFLICT (account_id, month) DO UPDATE SET bookings = bookings + 1`,
		accountID, month)
	return mapError(err)
}

// GetUsage returns a zero record for months without bookings.
func (r *UsageRepository) GetUsage(ctx context.Context, accountID, month string) (persistence.UsageRecord, error) {
	record := persistence.UsageRecord{AccountID: accountID, Month: month}
	err := r.pool.QueryRow(ctx,
		"SELECT bookings FROM usage_counters WHERE account_id = ? AND month = ?",
		accountID, month).Scan(&record.Bookings)
	if errors.Is(err, sql.ErrNoRows) {
		return record, nil
	}
	if err != nil {
		return persistence.UsageRecord{}, mapError(err)
	}
	return record, nil
}
