package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/availability-engine/internal/persistence"
)

// AppointmentRepository implements persistence.AppointmentRepository.
type AppointmentRepository struct {
	pool *ConnectionPool
	now  func() time.Time
}

func NewAppointmentRepository(pool *ConnectionPool, now func() time.Time) *AppointmentRepository {
	if now == nil {
		now = time.Now
	}
	return &AppointmentRepository{pool: pool, now: now}
}

const appointmentColumns = `id, account_id, type_id, status, start_time, end_time,
	buffered_start, buffered_end, invitee_name, invitee_email, notes,
	cancellation_token, external_event_id, conferencing_uri, created_at, updated_at`

// CreateAppointment inserts the booking after re-checking, inside the same
// transaction, that its buffered interval does not overlap another confirmed
// appointment. The stored slot availability a caller may have seen earlier is
// advisory only; this check is the authority.
func (r *AppointmentRepository) CreateAppointment(ctx context.Context, appointment persistence.Appointment) error {
	if appointment.ID == "" || appointment.AccountID == "" {
		return persistence.ErrConstraintViolation
	}
	if !appointment.Start.Before(appointment.End) {
		return persistence.ErrConstraintViolation
	}

	now := r.now().UTC()
	appointment.CreatedAt = now
	appointment.UpdatedAt = now

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		overlapping, err := r.countOverlapping(tx,
			appointment.AccountID, "", appointment.BufferedStart, appointment.BufferedEnd)
		if err != nil {
			return err
		}
		if overlapping > 0 {
			return persistence.ErrOverlap
		}

		_, err = tx.Exec(`
			INSERT INTO appointments (`+appointmentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			appointment.ID,
			appointment.AccountID,
			appointment.TypeID,
			appointment.Status,
			formatTime(appointment.Start),
			formatTime(appointment.End),
			formatTime(appointment.BufferedStart),
			formatTime(appointment.BufferedEnd),
			appointment.InviteeName,
			appointment.InviteeEmail,
			appointment.Notes,
			appointment.CancellationToken,
			appointment.ExternalEventID,
			appointment.ConferencingURI,
			formatTime(appointment.CreatedAt),
			formatTime(appointment.UpdatedAt),
		)
		return mapError(err)
	})
}

func (r *AppointmentRepository) GetAppointment(ctx context.Context, id string) (persistence.Appointment, error) {
	if id == "" {
		return persistence.Appointment{}, persistence.ErrNotFound
	}
	row := r.pool.QueryRow(ctx,
		"SELECT "+appointmentColumns+" FROM appointments WHERE id = ?", id)
	return scanAppointment(row)
}

func (r *AppointmentRepository) GetAppointmentByToken(ctx context.Context, cancellationToken string) (persistence.Appointment, error) {
	if cancellationToken == "" {
		return persistence.Appointment{}, persistence.ErrNotFound
	}
	row := r.pool.QueryRow(ctx,
		"SELECT "+appointmentColumns+" FROM appointments WHERE cancellation_token = ?", cancellationToken)
	return scanAppointment(row)
}

// ListConfirmedBetween returns confirmed appointments whose buffered interval
// touches the window, ordered by start time.
func (r *AppointmentRepository) ListConfirmedBetween(ctx context.Context, accountID string, from, to time.Time) ([]persistence.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE account_id = ? AND status = ? AND buffered_start < ? AND buffered_end > ?
		ORDER BY start_time ASC, id ASC`,
		accountID, persistence.StatusConfirmed, formatTime(to), formatTime(from))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var appointments []persistence.Appointment
	for rows.Next() {
		appointment, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, appointment)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return appointments, nil
}

// UpdateAppointmentTimes moves a confirmed appointment, re-running the
// overlap check against every other confirmed appointment.
func (r *AppointmentRepository) UpdateAppointmentTimes(ctx context.Context, id string, start, end, bufferedStart, bufferedEnd time.Time) error {
	if id == "" {
		return persistence.ErrNotFound
	}
	if !start.Before(end) {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var accountID, status string
		err := tx.QueryRow("SELECT account_id, status FROM appointments WHERE id = ?", id).
			Scan(&accountID, &status)
		if err != nil {
			return mapError(err)
		}
		if status != persistence.StatusConfirmed {
			return persistence.ErrConstraintViolation
		}

		overlapping, err := r.countOverlapping(tx, accountID, id, bufferedStart, bufferedEnd)
		if err != nil {
			return err
		}
		if overlapping > 0 {
			return persistence.ErrOverlap
		}

		_, err = tx.Exec(`
			UPDATE appointments
			SET start_time = ?, end_time = ?, buffered_start = ?, buffered_end = ?, updated_at = ?
			WHERE id = ?`,
			formatTime(start), formatTime(end),
			formatTime(bufferedStart), formatTime(bufferedEnd),
			formatTime(r.now().UTC()), id)
		return mapError(err)
	})
}

func (r *AppointmentRepository) CancelAppointment(ctx context.Context, id string, at time.Time) error {
	if id == "" {
		return persistence.ErrNotFound
	}
	result, err := r.pool.Exec(ctx, `
		UPDATE appointments SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		persistence.StatusCancelled, formatTime(at.UTC()), id, persistence.StatusConfirmed)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (r *AppointmentRepository) SetExternalEvent(ctx context.Context, id, externalEventID, conferencingURI string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE appointments SET external_event_id = ?, conferencing_uri = ?, updated_at = ?
		WHERE id = ?`,
		externalEventID, conferencingURI, formatTime(r.now().UTC()), id)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// countOverlapping applies the half-open interval test to buffered bounds.
// excludeID skips the appointment being moved.
func (r *AppointmentRepository) countOverlapping(tx *sql.Tx, accountID, excludeID string, bufferedStart, bufferedEnd time.Time) (int, error) {
	query := `
		SELECT COUNT(1) FROM appointments
		WHERE account_id = ? AND status = ? AND buffered_start < ? AND buffered_end > ?`
	args := []any{accountID, persistence.StatusConfirmed, formatTime(bufferedEnd), formatTime(bufferedStart)}
	if excludeID != "" {
		query += " AND id != ?"
		args = append(args, excludeID)
	}

	var count int
	if err := tx.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, mapError(err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (persistence.Appointment, error) {
	var appointment persistence.Appointment
	var startStr, endStr, bufferedStartStr, bufferedEndStr, createdStr, updatedStr string

	err := row.Scan(
		&appointment.ID,
		&appointment.AccountID,
		&appointment.TypeID,
		&appointment.Status,
		&startStr,
		&endStr,
		&bufferedStartStr,
		&bufferedEndStr,
		&appointment.InviteeName,
		&appointment.InviteeEmail,
		&appointment.Notes,
		&appointment.CancellationToken,
		&appointment.ExternalEventID,
		&appointment.ConferencingURI,
		&createdStr,
		&updatedStr,
	)
	if err != nil {
		return persistence.Appointment{}, mapError(err)
	}

	for _, field := range []struct {
		raw  string
		into *time.Time
	}{
		{startStr, &appointment.Start},
		{endStr, &appointment.End},
		{bufferedStartStr, &appointment.BufferedStart},
		{bufferedEndStr, &appointment.BufferedEnd},
		{createdStr, &appointment.CreatedAt},
		{updatedStr, &appointment.UpdatedAt},
	} {
		parsed, err := time.Parse(time.RFC3339, field.raw)
		if err != nil {
			return persistence.Appointment{}, fmt.Errorf("parse stored timestamp: %w", err)
		}
		*field.into = parsed
	}
	return appointment, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
