package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/example/availability-engine/internal/calendar"
	"github.com/example/availability-engine/internal/logging"
	"github.com/example/availability-engine/internal/persistence"
)

// ExternalEventWriter mirrors bookings onto the account's external calendar.
// Implemented by the calendar sync layer.
type ExternalEventWriter interface {
	CreateEvent(ctx context.Context, accountID string, event calendar.Event, wantsConferencing bool) (calendar.InsertResult, error)
	MoveEvent(ctx context.Context, accountID, eventID string, start, end time.Time) error
	RemoveEvent(ctx context.Context, accountID, eventID string) error
}

// BookingService owns the booking lifecycle. Storage is the authority on
// conflicts; the external calendar write is best effort and never rolls a
// booking back.
type BookingService struct {
	appointments persistence.AppointmentRepository
	types        persistence.AppointmentTypeRepository
	usage        persistence.UsageRepository
	external     ExternalEventWriter
	cache        *BusyCache

	idGenerator    func() string
	tokenGenerator func() string
	now            func() time.Time
}

// NewBookingService wires dependencies for booking operations.
func NewBookingService(
	appointments persistence.AppointmentRepository,
	types persistence.AppointmentTypeRepository,
	usage persistence.UsageRepository,
	external ExternalEventWriter,
	cache *BusyCache,
	idGenerator func() string,
	tokenGenerator func() string,
	now func() time.Time,
) *BookingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if tokenGenerator == nil {
		tokenGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &BookingService{
		appointments:   appointments,
		types:          types,
		usage:          usage,
		external:       external,
		cache:          cache,
		idGenerator:    idGenerator,
		tokenGenerator: tokenGenerator,
		now:            now,
	}
}

// Book validates the request and writes the appointment. The repository
// re-checks the buffered interval against confirmed bookings inside its
// transaction, so two racing requests for the same slot cannot both succeed.
func (s *BookingService) Book(ctx context.Context, params BookingParams) (BookingResult, error) {
	logger := logging.FromContext(ctx)

	vErr := &ValidationError{}
	if params.AccountID == "" {
		vErr.add("account_id", "account_id is required")
	}
	if params.TypeID == "" {
		vErr.add("type_id", "type_id is required")
	}
	if strings.TrimSpace(params.InviteeName) == "" {
		vErr.add("invitee_name", "invitee_name is required")
	}
	if !strings.Contains(params.InviteeEmail, "@") {
		vErr.add("invitee_email", "invitee_email must be a valid address")
	}
	if params.Start.IsZero() {
		vErr.add("start", "start is required")
	} else if params.Start.Before(s.now()) {
		vErr.add("start", "start must be in the future")
	}
	if vErr.HasErrors() {
		return BookingResult{}, vErr
	}

	appointmentType, err := s.types.GetAppointmentType(ctx, params.TypeID)
	if err != nil {
		return BookingResult{}, mapRepoError(err)
	}
	if appointmentType.AccountID != params.AccountID || !appointmentType.Active {
		return BookingResult{}, ErrNotFound
	}

	start := params.Start
	end := start.Add(time.Duration(appointmentType.Duration) * time.Minute)
	createdAt := s.now().UTC()
	appointment := persistence.Appointment{
		ID:                s.idGenerator(),
		AccountID:         params.AccountID,
		TypeID:            params.TypeID,
		Status:            persistence.StatusConfirmed,
		Start:             start,
		End:               end,
		BufferedStart:     start.Add(-time.Duration(appointmentType.BufferBefore) * time.Minute),
		BufferedEnd:       end.Add(time.Duration(appointmentType.BufferAfter) * time.Minute),
		InviteeName:       strings.TrimSpace(params.InviteeName),
		InviteeEmail:      params.InviteeEmail,
		Notes:             params.Notes,
		CancellationToken: s.tokenGenerator(),
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
	}

	if err := s.appointments.CreateAppointment(ctx, appointment); err != nil {
		return BookingResult{}, mapRepoError(err)
	}
	s.cache.InvalidateAccount(params.AccountID)

	if err := s.usage.IncrementBookings(ctx, params.AccountID, createdAt.Format(MonthForm)); err != nil {
		logger.WarnContext(ctx, "usage counter update failed",
			slog.String("account_id", params.AccountID),
			slog.String("error", err.Error()),
		)
	}

	result := BookingResult{Appointment: appointment}
	insert, err := s.external.CreateEvent(ctx, params.AccountID, calendar.Event{
		Summary:     appointmentType.Name + " with " + appointment.InviteeName,
		Description: params.Notes,
		Start:       start,
		End:         end,
		Attendees: []calendar.Attendee{
			{Email: appointment.InviteeEmail, DisplayName: appointment.InviteeName},
		},
	}, appointmentType.Conferencing)
	if err != nil {
		logger.WarnContext(ctx, "external calendar event not created",
			slog.String("appointment_id", appointment.ID),
			slog.String("error", err.Error()),
		)
		return result, nil
	}

	if err := s.appointments.SetExternalEvent(ctx, appointment.ID, insert.ID, insert.ConferencingURI); err != nil {
		logger.WarnContext(ctx, "external event id not recorded",
			slog.String("appointment_id", appointment.ID),
			slog.String("error", err.Error()),
		)
	} else {
		result.Appointment.ExternalEventID = insert.ID
		result.Appointment.ConferencingURI = insert.ConferencingURI
	}
	result.CalendarCreated = true
	return result, nil
}

// Cancel marks the booking cancelled and removes its external event when one
// exists. A stale or reused token is indistinguishable from an unknown one.
func (s *BookingService) Cancel(ctx context.Context, cancellationToken string) (persistence.Appointment, error) {
	logger := logging.FromContext(ctx)

	appointment, err := s.appointments.GetAppointmentByToken(ctx, cancellationToken)
	if err != nil {
		return persistence.Appointment{}, mapRepoError(err)
	}
	if appointment.Status != persistence.StatusConfirmed {
		return persistence.Appointment{}, ErrNotFound
	}

	if err := s.appointments.CancelAppointment(ctx, appointment.ID, s.now()); err != nil {
		return persistence.Appointment{}, mapRepoError(err)
	}
	s.cache.InvalidateAccount(appointment.AccountID)

	if appointment.ExternalEventID != "" {
		if err := s.external.RemoveEvent(ctx, appointment.AccountID, appointment.ExternalEventID); err != nil {
			logger.WarnContext(ctx, "external calendar event not removed",
				slog.String("appointment_id", appointment.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	appointment.Status = persistence.StatusCancelled
	return appointment, nil
}

// Reschedule moves the booking to a new start, re-running the conflict check
// with the appointment's own footprint excluded.
func (s *BookingService) Reschedule(ctx context.Context, params RescheduleParams) (persistence.Appointment, error) {
	logger := logging.FromContext(ctx)

	vErr := &ValidationError{}
	if params.NewStart.IsZero() {
		vErr.add("start", "start is required")
	} else if params.NewStart.Before(s.now()) {
		vErr.add("start", "start must be in the future")
	}
	if vErr.HasErrors() {
		return persistence.Appointment{}, vErr
	}

	appointment, err := s.appointments.GetAppointmentByToken(ctx, params.CancellationToken)
	if err != nil {
		return persistence.Appointment{}, mapRepoError(err)
	}
	if appointment.Status != persistence.StatusConfirmed {
		return persistence.Appointment{}, ErrNotFound
	}

	appointmentType, err := s.types.GetAppointmentType(ctx, appointment.TypeID)
	if err != nil {
		return persistence.Appointment{}, mapRepoError(err)
	}

	start := params.NewStart
	end := start.Add(time.Duration(appointmentType.Duration) * time.Minute)
	bufferedStart := start.Add(-time.Duration(appointmentType.BufferBefore) * time.Minute)
	bufferedEnd := end.Add(time.Duration(appointmentType.BufferAfter) * time.Minute)

	if err := s.appointments.UpdateAppointmentTimes(ctx, appointment.ID, start, end, bufferedStart, bufferedEnd); err != nil {
		return persistence.Appointment{}, mapRepoError(err)
	}
	s.cache.InvalidateAccount(appointment.AccountID)

	if appointment.ExternalEventID != "" {
		if err := s.external.MoveEvent(ctx, appointment.AccountID, appointment.ExternalEventID, start, end); err != nil {
			logger.WarnContext(ctx, "external calendar event not moved",
				slog.String("appointment_id", appointment.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	appointment.Start = start
	appointment.End = end
	appointment.BufferedStart = bufferedStart
	appointment.BufferedEnd = bufferedEnd
	return appointment, nil
}
