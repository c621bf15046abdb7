package persistence

import (
	"context"
	"time"

	"github.com/example/availability-engine/internal/calendar"
	"github.com/example/availability-engine/internal/credential"
)

// AppointmentTypeRepository stores the bookable meeting shapes.
type AppointmentTypeRepository interface {
	CreateAppointmentType(ctx context.Context, appointmentType AppointmentType) error
	UpdateAppointmentType(ctx context.Context, appointmentType AppointmentType) error
	GetAppointmentType(ctx context.Context, id string) (AppointmentType, error)
	ListAppointmentTypes(ctx context.Context, accountID string) ([]AppointmentType, error)
}

// AppointmentRepository stores bookings. CreateAppointment and
// UpdateAppointmentTimes perform the authoritative overlap check inside their
// transaction and return ErrOverlap when the buffered interval collides with
// another confirmed appointment.
type AppointmentRepository interface {
	CreateAppointment(ctx context.Context, appointment Appointment) error
	GetAppointment(ctx context.Context, id string) (Appointment, error)
	GetAppointmentByToken(ctx context.Context, cancellationToken string) (Appointment, error)
	ListConfirmedBetween(ctx context.Context, accountID string, from, to time.Time) ([]Appointment, error)
	UpdateAppointmentTimes(ctx context.Context, id string, start, end, bufferedStart, bufferedEnd time.Time) error
	CancelAppointment(ctx context.Context, id string, at time.Time) error
	SetExternalEvent(ctx context.Context, id, externalEventID, conferencingURI string) error
}

// ConnectionRepository stores calendar connections. Creating a primary
// connection demotes the account's previous primary in the same transaction.
type ConnectionRepository interface {
	CreateConnection(ctx context.Context, conn calendar.Connection) error
	GetConnection(ctx context.Context, id string) (calendar.Connection, error)
	GetPrimaryConnection(ctx context.Context, accountID string) (calendar.Connection, error)
	ListConnections(ctx context.Context, accountID string) ([]calendar.Connection, error)
	SaveTokens(ctx context.Context, id string, access, refresh credential.EncryptedPayload, expiresAt time.Time) error
	DeleteConnection(ctx context.Context, id string) error
}

// ScheduleConfigRepository stores working hours and per-date overrides.
type ScheduleConfigRepository interface {
	ReplaceWorkingHours(ctx context.Context, accountID string, rules []WorkingHoursRule) error
	ListWorkingHours(ctx context.Context, accountID string) ([]WorkingHoursRule, error)
	UpsertDateOverride(ctx context.Context, override DateOverride) error
	GetDateOverride(ctx context.Context, accountID, date string) (DateOverride, error)
	DeleteDateOverride(ctx context.Context, accountID, date string) error
}

// UsageRepository counts bookings per account and month.
type UsageRepository interface {
	IncrementBookings(ctx context.Context, accountID, month string) error
	GetUsage(ctx context.Context, accountID, month string) (UsageRecord, error)
}
