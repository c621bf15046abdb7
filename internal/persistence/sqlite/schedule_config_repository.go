package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/availability-engine/internal/persistence"
)

// ScheduleConfigRepository implements persistence.ScheduleConfigRepository.
type ScheduleConfigRepository struct {
	pool *ConnectionPool
}

func NewScheduleConfigRepository(pool *ConnectionPool) *ScheduleConfigRepository {
	return &ScheduleConfigRepository{pool: pool}
}

// ReplaceWorkingHours swaps the account's full weekly rule set atomically.
func (r *ScheduleConfigRepository) ReplaceWorkingHours(ctx context.Context, accountID string, rules []persistence.WorkingHoursRule) error {
	if accountID == "" {
		return persistence.ErrConstraintViolation
	}
	for _, rule := range rules {
		if rule.StartMinute < 0 || rule.EndMinute > 24*60 || rule.StartMinute >= rule.EndMinute {
			return persistence.ErrConstraintViolation
		}
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM working_hours WHERE account_id = ?", accountID); err != nil {
			return mapError(err)
		}
		for _, rule := range rules {
			_, err := tx.Exec(`
				INSERT INTO working_hours (account_id, weekday, start_minute, end_minute, enabled)
				VALUES (?, ?, ?, ?, ?)`,
				accountID, int(rule.Weekday), rule.StartMinute, rule.EndMinute, boolToInt(rule.Enabled))
			if err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

func (r *ScheduleConfigRepository) ListWorkingHours(ctx context.Context, accountID string) ([]persistence.WorkingHoursRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, start_minute, end_minute, enabled
		FROM working_hours WHERE account_id = ? ORDER BY weekday ASC`, accountID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var rules []persistence.WorkingHoursRule
	for rows.Next() {
		var rule persistence.WorkingHoursRule
		var weekday, enabled int
		if err := rows.Scan(&weekday, &rule.StartMinute, &rule.EndMinute, &enabled); err != nil {
			return nil, mapError(err)
		}
		rule.AccountID = accountID
		rule.Weekday = time.Weekday(weekday)
		rule.Enabled = enabled != 0
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return rules, nil
}

func (r *ScheduleConfigRepository) UpsertDateOverride(ctx context.Context, override persistence.DateOverride) error {
	if override.AccountID == "" || override.Date == "" {
		return persistence.ErrConstraintViolation
	}
	if override.Kind == persistence.OverrideCustom && override.StartMinute >= override.EndMinute {
		return persistence.ErrConstraintViolation
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO date_overrides (account_id, date, kind, start_minute, end_minute)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (account_id, date) DO UPDATE
		SET kind = excluded.kind, start_minute = excluded.start_minute, end_minute = excluded.end_minute`,
		override.AccountID, override.Date, override.Kind, override.StartMinute, override.EndMinute)
	return mapError(err)
}

func (r *ScheduleConfigRepository) GetDateOverride(ctx context.Context, accountID, date string) (persistence.DateOverride, error) {
	override := persistence.DateOverride{AccountID: accountID, Date: date}
	err := r.pool.QueryRow(ctx, `
		SELECT kind, start_minute, end_minute
		FROM date_overrides WHERE account_id = ? AND date = ?`, accountID, date).
		Scan(&override.Kind, &override.StartMinute, &override.EndMinute)
	if err != nil {
		return persistence.DateOverride{}, mapError(err)
	}
	return override, nil
}

func (r *ScheduleConfigRepository) DeleteDateOverride(ctx context.Context, accountID, date string) error {
	result, err := r.pool.Exec(ctx,
		"DELETE FROM date_overrides WHERE account_id = ? AND date = ?", accountID, date)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
