package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/availability-engine/internal/calendar"
	"github.com/example/availability-engine/internal/persistence"
	"github.com/example/availability-engine/internal/testfixtures"
)

type fakeEventWriter struct {
	mu        sync.Mutex
	inserts   []calendar.Event
	moves     []string
	removes   []string
	insertErr error
	moveErr   error
	removeErr error
}

func (f *fakeEventWriter) CreateEvent(ctx context.Context, accountID string, event calendar.Event, wantsConferencing bool) (calendar.InsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return calendar.InsertResult{}, f.insertErr
	}
	f.inserts = append(f.inserts, event)
	result := calendar.InsertResult{ID: "evt-1"}
	if wantsConferencing {
		result.ConferencingURI = "https://meet.example.com/abc"
	}
	return result, nil
}

func (f *fakeEventWriter) MoveEvent(ctx context.Context, accountID, eventID string, start, end time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.moveErr != nil {
		return f.moveErr
	}
	f.moves = append(f.moves, eventID)
	return nil
}

func (f *fakeEventWriter) RemoveEvent(ctx context.Context, accountID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removes = append(f.removes, eventID)
	return nil
}

func newBookingService(storage *testfixtures.Storage, writer ExternalEventWriter, cache *BusyCache) *BookingService {
	clock := testfixtures.NewClock(dayAt(0, 0))
	ids := testfixtures.NewIDGenerator("appt")
	tokens := testfixtures.NewIDGenerator("tok")
	return NewBookingService(storage, storage, storage, writer, cache,
		ids.NextFunc(), tokens.NextFunc(), clock.NowFunc())
}

func validBooking(start time.Time) BookingParams {
	return BookingParams{
		AccountID:    "acct-1",
		TypeID:       "type-1",
		Start:        start,
		InviteeName:  "Avery",
		InviteeEmail: "avery@example.com",
		Notes:        "Looking forward to it",
	}
}

func TestBookCreatesAppointmentAndExternalEvent(t *testing.T) {
	storage := testfixtures.NewStorage()
	seedSchedule(t, storage)
	writer := &fakeEventWriter{}
	service := newBookingService(storage, writer, NewBusyCache(16, time.Minute))

	result, err := service.Book(context.Background(), validBooking(dayAt(10, 0)))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if !result.CalendarCreated {
		t.Fatalf("expected the external event to be created")
	}
	if result.Appointment.ExternalEventID != "evt-1" {
		t.Fatalf("expected the external event id on the result, got %q", result.Appointment.ExternalEventID)
	}
	if result.Appointment.CancellationToken == "" {
		t.Fatalf("expected a cancellation token")
	}
	if !result.Appointment.End.Equal(dayAt(10, 30)) {
		t.Fatalf("expected a 30 minute appointment, got end %v", result.Appointment.End)
	}
	if !result.Appointment.BufferedStart.Equal(dayAt(9, 55)) || !result.Appointment.BufferedEnd.Equal(dayAt(10, 35)) {
		t.Fatalf("unexpected buffered bounds: %v-%v",
			result.Appointment.BufferedStart, result.Appointment.BufferedEnd)
	}

	stored, err := storage.GetAppointment(context.Background(), result.Appointment.ID)
	if err != nil {
		t.Fatalf("GetAppointment: %v", err)
	}
	if stored.ExternalEventID != "evt-1" {
		t.Fatalf("external event id must be persisted")
	}

	usage, err := storage.GetUsage(context.Background(), "acct-1", "2025-04")
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if usage.Bookings != 1 {
		t.Fatalf("expected the usage counter at 1, got %d", usage.Bookings)
	}
}

func TestBookRejectsTakenSlot(t *testing.T) {
	storage := testfixtures.NewStorage()
	seedSchedule(t, storage)
	service := newBookingService(storage, &fakeEventWriter{}, NewBusyCache(16, time.Minute))
	ctx := context.Background()

	if _, err := service.Book(ctx, validBooking(dayAt(10, 0))); err != nil {
		t.Fatalf("first Book: %v", err)
	}

	// The adjacent 10:30 slot collides through the 5 minute buffers.
	_, err := service.Book(ctx, validBooking(dayAt(10, 30)))
	if !errors.Is(err, ErrBookingConflict) {
		t.Fatalf("expected ErrBookingConflict, got %v", err)
	}

	// 11:00 clears the buffers.
	if _, err := service.Book(ctx, validBooking(dayAt(11, 0))); err != nil {
		t.Fatalf("Book clear of buffers: %v", err)
	}
}

func TestBookSurvivesExternalCalendarFailure(t *testing.T) {
	storage := testfixtures.NewStorage()
	seedSchedule(t, storage)
	writer := &fakeEventWriter{insertErr: errors.New("calendar down")}
	service := newBookingService(storage, writer, NewBusyCache(16, time.Minute))

	result, err := service.Book(context.Background(), validBooking(dayAt(10, 0)))
	if err != nil {
		t.Fatalf("a calendar outage must not fail the booking: %v", err)
	}
	if result.CalendarCreated {
		t.Fatalf("CalendarCreated must report the failed event write")
	}
	if result.Appointment.ExternalEventID != "" {
		t.Fatalf("no external event id must be recorded")
	}

	if _, err := storage.GetAppointment(context.Background(), result.Appointment.ID); err != nil {
		t.Fatalf("the booking must be persisted regardless: %v", err)
	}
}

func TestBookValidatesInput(t *testing.T) {
	storage := testfixtures.NewStorage()
	seedSchedule(t, storage)
	service := newBookingService(storage, &fakeEventWriter{}, NewBusyCache(16, time.Minute))

	params := BookingParams{AccountID: "acct-1", TypeID: "type-1"}
	_, err := service.Book(context.Background(), params)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	for _, field := range []string{"invitee_name", "invitee_email", "start"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Fatalf("expected a field error for %s: %+v", field, vErr.FieldErrors)
		}
	}

	// Past starts are rejected outright.
	past := validBooking(dayAt(0, 0).Add(-time.Hour))
	if _, err := service.Book(context.Background(), past); err == nil {
		t.Fatalf("expected a validation error for a past start")
	}
}

func TestBookInvalidatesBusyCache(t *testing.T) {
	storage := testfixtures.NewStorage()
	seedSchedule(t, storage)
	cache := NewBusyCache(16, time.Minute)
	cache.Set("acct-1", testDate, nil)
	service := newBookingService(storage, &fakeEventWriter{}, cache)

	if _, err := service.Book(context.Background(), validBooking(dayAt(10, 0))); err != nil {
		t.Fatalf("Book: %v", err)
	}
	if _, ok := cache.Get("acct-1", testDate); ok {
		t.Fatalf("a booking must invalidate the account's cached busy time")
	}
}

func TestCancelRemovesExternalEvent(t *testing.T) {
	storage := testfixtures.NewStorage()
	seedSchedule(t, storage)
	writer := &fakeEventWriter{}
	service := newBookingService(storage, writer, NewBusyCache(16, time.Minute))
	ctx := context.Background()

	result, err := service.Book(ctx, validBooking(dayAt(10, 0)))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	cancelled, err := service.Cancel(ctx, result.Appointment.CancellationToken)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != persistence.StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}
	if len(writer.removes) != 1 || writer.removes[0] != "evt-1" {
		t.Fatalf("expected the external event to be removed, got %v", writer.removes)
	}

	// The token is spent.
	if _, err := service.Cancel(ctx, result.Appointment.CancellationToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on reuse, got %v", err)
	}

	// The slot opens up again.
	if _, err := service.Book(ctx, validBooking(dayAt(10, 0))); err != nil {
		t.Fatalf("cancelled slots must be rebookable: %v", err)
	}
}

func TestCancelUnknownTokenIsNotFound(t *testing.T) {
	storage := testfixtures.NewStorage()
	seedSchedule(t, storage)
	service := newBookingService(storage, &fakeEventWriter{}, NewBusyCache(16, time.Minute))

	if _, err := service.Cancel(context.Background(), "bogus"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRescheduleMovesBookingAndExternalEvent(t *testing.T) {
	storage := testfixtures.NewStorage()
	seedSchedule(t, storage)
	writer := &fakeEventWriter{}
	service := newBookingService(storage, writer, NewBusyCache(16, time.Minute))
	ctx := context.Background()

	result, err := service.Book(ctx, validBooking(dayAt(10, 0)))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	moved, err := service.Reschedule(ctx, RescheduleParams{
		CancellationToken: result.Appointment.CancellationToken,
		NewStart:          dayAt(15, 0),
	})
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if !moved.Start.Equal(dayAt(15, 0)) || !moved.End.Equal(dayAt(15, 30)) {
		t.Fatalf("unexpected moved bounds: %v-%v", moved.Start, moved.End)
	}
	if len(writer.moves) != 1 {
		t.Fatalf("expected the external event to be moved, got %v", writer.moves)
	}

	stored, err := storage.GetAppointment(ctx, result.Appointment.ID)
	if err != nil {
		t.Fatalf("GetAppointment: %v", err)
	}
	if !stored.BufferedStart.Equal(dayAt(14, 55)) {
		t.Fatalf("buffered bounds must follow the move, got %v", stored.BufferedStart)
	}
}

func TestRescheduleRejectsConflictingTarget(t *testing.T) {
	storage := testfixtures.NewStorage()
	seedSchedule(t, storage)
	service := newBookingService(storage, &fakeEventWriter{}, NewBusyCache(16, time.Minute))
	ctx := context.Background()

	first, err := service.Book(ctx, validBooking(dayAt(10, 0)))
	if err != nil {
		t.Fatalf("Book first: %v", err)
	}
	if _, err := service.Book(ctx, validBooking(dayAt(15, 0))); err != nil {
		t.Fatalf("Book second: %v", err)
	}

	_, err = service.Reschedule(ctx, RescheduleParams{
		CancellationToken: first.Appointment.CancellationToken,
		NewStart:          dayAt(15, 0),
	})
	if !errors.Is(err, ErrBookingConflict) {
		t.Fatalf("expected ErrBookingConflict, got %v", err)
	}
}
