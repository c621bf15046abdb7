package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/availability-engine/internal/calendar"
	"github.com/example/availability-engine/internal/credential"
	"github.com/example/availability-engine/internal/persistence"
)

func newTestPool(t *testing.T) *ConnectionPool {
	t.Helper()
	pool, err := NewConnectionPool(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("NewConnectionPool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	if err := Migrate(context.Background(), pool); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return pool
}

func fixedNow() time.Time {
	return time.Date(2025, 4, 7, 12, 0, 0, 0, time.UTC)
}

func seedAppointmentType(t *testing.T, pool *ConnectionPool) persistence.AppointmentType {
	t.Helper()
	repo := NewAppointmentTypeRepository(pool, fixedNow)
	appointmentType := persistence.AppointmentType{
		ID:           "type-1",
		AccountID:    "acct-1",
		Name:         "Intro call",
		Duration:     30,
		BufferBefore: 5,
		BufferAfter:  5,
		Active:       true,
	}
	if err := repo.CreateAppointmentType(context.Background(), appointmentType); err != nil {
		t.Fatalf("CreateAppointmentType: %v", err)
	}
	return appointmentType
}

func testAppointment(id, token string, start time.Time) persistence.Appointment {
	end := start.Add(30 * time.Minute)
	return persistence.Appointment{
		ID:                id,
		AccountID:         "acct-1",
		TypeID:            "type-1",
		Status:            persistence.StatusConfirmed,
		Start:             start,
		End:               end,
		BufferedStart:     start.Add(-5 * time.Minute),
		BufferedEnd:       end.Add(5 * time.Minute),
		InviteeName:       "Avery",
		InviteeEmail:      "avery@example.com",
		CancellationToken: token,
	}
}

func TestCreateAppointmentRejectsBufferedOverlap(t *testing.T) {
	pool := newTestPool(t)
	seedAppointmentType(t, pool)
	repo := NewAppointmentRepository(pool, fixedNow)
	ctx := context.Background()

	first := testAppointment("appt-1", "tok-1", fixedNow())
	if err := repo.CreateAppointment(ctx, first); err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}

	// 12:30-13:00 buffered to 12:25-13:05 collides with the first booking's
	// buffered end of 12:35.
	second := testAppointment("appt-2", "tok-2", fixedNow().Add(30*time.Minute))
	if err := repo.CreateAppointment(ctx, second); !errors.Is(err, persistence.ErrOverlap) {
		t.Fatalf("expected ErrOverlap, got %v", err)
	}

	// 13:00-13:30 buffered to 12:55-13:35 clears 12:35 and must be accepted.
	third := testAppointment("appt-3", "tok-3", fixedNow().Add(time.Hour))
	if err := repo.CreateAppointment(ctx, third); err != nil {
		t.Fatalf("CreateAppointment clear of buffers: %v", err)
	}
}

func TestCancelledAppointmentsDoNotBlockRebooking(t *testing.T) {
	pool := newTestPool(t)
	seedAppointmentType(t, pool)
	repo := NewAppointmentRepository(pool, fixedNow)
	ctx := context.Background()

	first := testAppointment("appt-1", "tok-1", fixedNow())
	if err := repo.CreateAppointment(ctx, first); err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}
	if err := repo.CancelAppointment(ctx, first.ID, fixedNow()); err != nil {
		t.Fatalf("CancelAppointment: %v", err)
	}

	replacement := testAppointment("appt-2", "tok-2", fixedNow())
	if err := repo.CreateAppointment(ctx, replacement); err != nil {
		t.Fatalf("cancelled slots must be rebookable, got %v", err)
	}

	// A second cancellation of the same appointment is a not-found.
	if err := repo.CancelAppointment(ctx, first.ID, fixedNow()); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double cancel, got %v", err)
	}
}

func TestUpdateAppointmentTimesChecksOverlapExcludingSelf(t *testing.T) {
	pool := newTestPool(t)
	seedAppointmentType(t, pool)
	repo := NewAppointmentRepository(pool, fixedNow)
	ctx := context.Background()

	first := testAppointment("appt-1", "tok-1", fixedNow())
	second := testAppointment("appt-2", "tok-2", fixedNow().Add(2*time.Hour))
	for _, appointment := range []persistence.Appointment{first, second} {
		if err := repo.CreateAppointment(ctx, appointment); err != nil {
			t.Fatalf("CreateAppointment %s: %v", appointment.ID, err)
		}
	}

	// Nudging an appointment within its own footprint must succeed.
	start := first.Start.Add(5 * time.Minute)
	end := start.Add(30 * time.Minute)
	err := repo.UpdateAppointmentTimes(ctx, first.ID, start, end,
		start.Add(-5*time.Minute), end.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("UpdateAppointmentTimes within own footprint: %v", err)
	}

	// Moving onto the other appointment must fail.
	err = repo.UpdateAppointmentTimes(ctx, first.ID, second.Start, second.End,
		second.BufferedStart, second.BufferedEnd)
	if !errors.Is(err, persistence.ErrOverlap) {
		t.Fatalf("expected ErrOverlap, got %v", err)
	}
}

func TestAppointmentLookupByToken(t *testing.T) {
	pool := newTestPool(t)
	seedAppointmentType(t, pool)
	repo := NewAppointmentRepository(pool, fixedNow)
	ctx := context.Background()

	created := testAppointment("appt-1", "tok-secret", fixedNow())
	if err := repo.CreateAppointment(ctx, created); err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}

	found, err := repo.GetAppointmentByToken(ctx, "tok-secret")
	if err != nil {
		t.Fatalf("GetAppointmentByToken: %v", err)
	}
	if found.ID != created.ID || !found.Start.Equal(created.Start) {
		t.Fatalf("round trip mismatch: %+v", found)
	}

	if _, err := repo.GetAppointmentByToken(ctx, "unknown"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func encryptedPayload(t *testing.T, value string) credential.EncryptedPayload {
	t.Helper()
	key := make([]byte, 32)
	cipher, err := credential.NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	payload, err := cipher.Encrypt([]byte(value))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	return payload
}

func TestCreateConnectionDemotesPreviousPrimary(t *testing.T) {
	pool := newTestPool(t)
	repo := NewConnectionRepository(pool, fixedNow)
	ctx := context.Background()

	build := func(id string) calendar.Connection {
		return calendar.Connection{
			ID:           id,
			AccountID:    "acct-1",
			Provider:     "google",
			AccessToken:  encryptedPayload(t, "access-"+id),
			RefreshToken: encryptedPayload(t, "refresh-"+id),
			ExpiresAt:    fixedNow().Add(time.Hour),
			Primary:      true,
		}
	}

	if err := repo.CreateConnection(ctx, build("conn-1")); err != nil {
		t.Fatalf("CreateConnection: %v", err)
	}
	if err := repo.CreateConnection(ctx, build("conn-2")); err != nil {
		t.Fatalf("CreateConnection second: %v", err)
	}

	primary, err := repo.GetPrimaryConnection(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetPrimaryConnection: %v", err)
	}
	if primary.ID != "conn-2" {
		t.Fatalf("expected conn-2 as primary, got %s", primary.ID)
	}

	connections, err := repo.ListConnections(ctx, "acct-1")
	if err != nil {
		t.Fatalf("ListConnections: %v", err)
	}
	primaries := 0
	for _, conn := range connections {
		if conn.Primary {
			primaries++
		}
	}
	if primaries != 1 {
		t.Fatalf("expected exactly one primary, got %d", primaries)
	}
}

func TestConnectionTokenRoundTrip(t *testing.T) {
	pool := newTestPool(t)
	repo := NewConnectionRepository(pool, fixedNow)
	ctx := context.Background()

	conn := calendar.Connection{
		ID:           "conn-1",
		AccountID:    "acct-1",
		Provider:     "google",
		AccessToken:  encryptedPayload(t, "access"),
		RefreshToken: encryptedPayload(t, "refresh"),
		ExpiresAt:    fixedNow().Add(time.Hour),
		Primary:      true,
	}
	if err := repo.CreateConnection(ctx, conn); err != nil {
		t.Fatalf("CreateConnection: %v", err)
	}

	stored, err := repo.GetConnection(ctx, conn.ID)
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	if string(stored.AccessToken.Ciphertext) != string(conn.AccessToken.Ciphertext) {
		t.Fatalf("access ciphertext did not round trip")
	}
	if len(stored.RefreshToken.IV) != 16 || len(stored.RefreshToken.AuthTag) != 16 {
		t.Fatalf("payload parts lost their lengths: iv=%d tag=%d",
			len(stored.RefreshToken.IV), len(stored.RefreshToken.AuthTag))
	}

	if _, err := repo.GetPrimaryConnection(ctx, "acct-unknown"); !errors.Is(err, calendar.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestWorkingHoursAndOverrides(t *testing.T) {
	pool := newTestPool(t)
	repo := NewScheduleConfigRepository(pool)
	ctx := context.Background()

	rules := []persistence.WorkingHoursRule{
		{AccountID: "acct-1", Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60, Enabled: true},
		{AccountID: "acct-1", Weekday: time.Tuesday, StartMinute: 10 * 60, EndMinute: 16 * 60, Enabled: true},
	}
	if err := repo.ReplaceWorkingHours(ctx, "acct-1", rules); err != nil {
		t.Fatalf("ReplaceWorkingHours: %v", err)
	}

	listed, err := repo.ListWorkingHours(ctx, "acct-1")
	if err != nil {
		t.Fatalf("ListWorkingHours: %v", err)
	}
	if len(listed) != 2 || listed[0].Weekday != time.Monday {
		t.Fatalf("unexpected rules: %+v", listed)
	}

	override := persistence.DateOverride{
		AccountID:   "acct-1",
		Date:        "2025-04-08",
		Kind:        persistence.OverrideCustom,
		StartMinute: 13 * 60,
		EndMinute:   15 * 60,
	}
	if err := repo.UpsertDateOverride(ctx, override); err != nil {
		t.Fatalf("UpsertDateOverride: %v", err)
	}

	override.Kind = persistence.OverrideUnavailable
	if err := repo.UpsertDateOverride(ctx, override); err != nil {
		t.Fatalf("UpsertDateOverride update: %v", err)
	}

	stored, err := repo.GetDateOverride(ctx, "acct-1", "2025-04-08")
	if err != nil {
		t.Fatalf("GetDateOverride: %v", err)
	}
	if stored.Kind != persistence.OverrideUnavailable {
		t.Fatalf("expected the upsert to replace the kind, got %s", stored.Kind)
	}

	if _, err := repo.GetDateOverride(ctx, "acct-1", "2025-04-09"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUsageCounterIncrements(t *testing.T) {
	pool := newTestPool(t)
	repo := NewUsageRepository(pool)
	ctx := context.Background()

	record, err := repo.GetUsage(ctx, "acct-1", "2025-04")
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if record.Bookings != 0 {
		t.Fatalf("expected zero usage for an empty month, got %d", record.Bookings)
	}

	for i := 0; i < 3; i++ {
		if err := repo.IncrementBookings(ctx, "acct-1", "2025-04"); err != nil {
			t.Fatalf("IncrementBookings: %v", err)
		}
	}

	record, err = repo.GetUsage(ctx, "acct-1", "2025-04")
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if record.Bookings != 3 {
		t.Fatalf("expected 3 bookings, got %d", record.Bookings)
	}
}
