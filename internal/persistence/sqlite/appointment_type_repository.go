package sqlite

import (
	"context"
	"time"

	"github.com/example/availability-engine/internal/persistence"
)

// AppointmentTypeRepository implements persistence.AppointmentTypeRepository.
type AppointmentTypeRepository struct {
	pool *ConnectionPool
	now  func() time.Time
}

func NewAppointmentTypeRepository(pool *ConnectionPool, now func() time.Time) *AppointmentTypeRepository {
	if now == nil {
		now = time.Now
	}
	return &AppointmentTypeRepository{pool: pool, now: now}
}

const appointmentTypeColumns = `id, account_id, name, duration_minutes,
	buffer_before_minutes, buffer_after_minutes, conferencing, active,
	created_at, updated_at`

func (r *AppointmentTypeRepository) CreateAppointmentType(ctx context.Context, appointmentType persistence.AppointmentType) error {
	if appointmentType.ID == "" || appointmentType.AccountID == "" || appointmentType.Duration <= 0 {
		return persistence.ErrConstraintViolation
	}

	now := r.now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_types (`+appointmentTypeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		appointmentType.ID,
		appointmentType.AccountID,
		appointmentType.Name,
		appointmentType.Duration,
		appointmentType.BufferBefore,
		appointmentType.BufferAfter,
		boolToInt(appointmentType.Conferencing),
		boolToInt(appointmentType.Active),
		formatTime(now),
		formatTime(now),
	)
	return mapError(err)
}

func (r *AppointmentTypeRepository) UpdateAppointmentType(ctx context.Context, appointmentType persistence.AppointmentType) error {
	if appointmentType.ID == "" || appointmentType.Duration <= 0 {
		return persistence.ErrConstraintViolation
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE appointment_types
		SET name = ?, duration_minutes = ?, buffer_before_minutes = ?,
			buffer_after_minutes = ?, conferencing = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		appointmentType.Name,
		appointmentType.Duration,
		appointmentType.BufferBefore,
		appointmentType.BufferAfter,
		boolToInt(appointmentType.Conferencing),
		boolToInt(appointmentType.Active),
		formatTime(r.now().UTC()),
		appointmentType.ID,
	)
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

func (r *AppointmentTypeRepository) GetAppointmentType(ctx context.Context, id string) (persistence.AppointmentType, error) {
	if id == "" {
		return persistence.AppointmentType{}, persistence.ErrNotFound
	}

	var appointmentType persistence.AppointmentType
	var conferencing, active int
	var createdStr, updatedStr string

	err := r.pool.QueryRow(ctx,
		"SELECT "+appointmentTypeColumns+" FROM appointment_types WHERE id = ?", id).Scan(
		&appointmentType.ID,
		&appointmentType.AccountID,
		&appointmentType.Name,
		&appointmentType.Duration,
		&appointmentType.BufferBefore,
		&appointmentType.BufferAfter,
		&conferencing,
		&active,
		&createdStr,
		&updatedStr,
	)
	if err != nil {
		return persistence.AppointmentType{}, mapError(err)
	}

	appointmentType.Conferencing = conferencing != 0
	appointmentType.Active = active != 0
	if appointmentType.CreatedAt, err = time.Parse(time.RFC3339, createdStr); err != nil {
		return persistence.AppointmentType{}, err
	}
	if appointmentType.UpdatedAt, err = time.Parse(time.RFC3339, updatedStr); err != nil {
		return persistence.AppointmentType{}, err
	}
	return appointmentType, nil
}

func (r *AppointmentTypeRepository) ListAppointmentTypes(ctx context.Context, accountID string) ([]persistence.AppointmentType, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT id FROM appointment_types WHERE account_id = ? ORDER BY name ASC, id ASC", accountID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapError(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	var types []persistence.AppointmentType
	for _, id := range ids {
		appointmentType, err := r.GetAppointmentType(ctx, id)
		if err != nil {
			return nil, err
		}
		types = append(types, appointmentType)
	}
	return types, nil
}
