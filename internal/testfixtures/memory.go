package testfixtures

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/availability-engine/internal/calendar"
	"github.com/example/availability-engine/internal/credential"
	"github.com/example/availability-engine/internal/persistence"
)

// Storage is an in-memory implementation of every persistence contract. One
// instance backs all the repositories a test wires together.
type Storage struct {
	mu               sync.Mutex
	appointmentTypes map[string]persistence.AppointmentType
	appointments     map[string]persistence.Appointment
	connections      map[string]calendar.Connection
	workingHours     map[string][]persistence.WorkingHoursRule
	overrides        map[string]persistence.DateOverride
	usage            map[string]int
}

func NewStorage() *Storage {
	return &Storage{
		appointmentTypes: make(map[string]persistence.AppointmentType),
		appointments:     make(map[string]persistence.Appointment),
		connections:      make(map[string]calendar.Connection),
		workingHours:     make(map[string][]persistence.WorkingHoursRule),
		overrides:        make(map[string]persistence.DateOverride),
		usage:            make(map[string]int),
	}
}

func (s *Storage) CreateAppointmentType(ctx context.Context, appointmentType persistence.AppointmentType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.appointmentTypes[appointmentType.ID]; exists {
		return persistence.ErrDuplicate
	}
	s.appointmentTypes[appointmentType.ID] = appointmentType
	return nil
}

func (s *Storage) UpdateAppointmentType(ctx context.Context, appointmentType persistence.AppointmentType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.appointmentTypes[appointmentType.ID]; !exists {
		return persistence.ErrNotFound
	}
	s.appointmentTypes[appointmentType.ID] = appointmentType
	return nil
}

func (s *Storage) GetAppointmentType(ctx context.Context, id string) (persistence.AppointmentType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appointmentType, ok := s.appointmentTypes[id]
	if !ok {
		return persistence.AppointmentType{}, persistence.ErrNotFound
	}
	return appointmentType, nil
}

func (s *Storage) ListAppointmentTypes(ctx context.Context, accountID string) ([]persistence.AppointmentType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var types []persistence.AppointmentType
	for _, appointmentType := range s.appointmentTypes {
		if appointmentType.AccountID == accountID {
			types = append(types, appointmentType)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i].ID < types[j].ID })
	return types, nil
}

func overlapsBuffered(a persistence.Appointment, bufferedStart, bufferedEnd time.Time) bool {
	return a.BufferedStart.Before(bufferedEnd) && a.BufferedEnd.After(bufferedStart)
}

func (s *Storage) CreateAppointment(ctx context.Context, appointment persistence.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.appointments[appointment.ID]; exists {
		return persistence.ErrDuplicate
	}
	for _, existing := range s.appointments {
		if existing.AccountID != appointment.AccountID || existing.Status != persistence.StatusConfirmed {
			continue
		}
		if overlapsBuffered(existing, appointment.BufferedStart, appointment.BufferedEnd) {
			return persistence.ErrOverlap
		}
	}
	s.appointments[appointment.ID] = appointment
	return nil
}

func (s *Storage) GetAppointment(ctx context.Context, id string) (persistence.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appointment, ok := s.appointments[id]
	if !ok {
		return persistence.Appointment{}, persistence.ErrNotFound
	}
	return appointment, nil
}

func (s *Storage) GetAppointmentByToken(ctx context.Context, cancellationToken string) (persistence.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, appointment := range s.appointments {
		if appointment.CancellationToken == cancellationToken {
			return appointment, nil
		}
	}
	return persistence.Appointment{}, persistence.ErrNotFound
}

func (s *Storage) ListConfirmedBetween(ctx context.Context, accountID string, from, to time.Time) ([]persistence.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var appointments []persistence.Appointment
	for _, appointment := range s.appointments {
		if appointment.AccountID != accountID || appointment.Status != persistence.StatusConfirmed {
			continue
		}
		if appointment.BufferedStart.Before(to) && appointment.BufferedEnd.After(from) {
			appointments = append(appointments, appointment)
		}
	}
	sort.Slice(appointments, func(i, j int) bool {
		return appointments[i].Start.Before(appointments[j].Start)
	})
	return appointments, nil
}

func (s *Storage) UpdateAppointmentTimes(ctx context.Context, id string, start, end, bufferedStart, bufferedEnd time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	appointment, ok := s.appointments[id]
	if !ok {
		return persistence.ErrNotFound
	}
	if appointment.Status != persistence.StatusConfirmed {
		return persistence.ErrConstraintViolation
	}
	for _, existing := range s.appointments {
		if existing.ID == id || existing.AccountID != appointment.AccountID ||
			existing.Status != persistence.StatusConfirmed {
			continue
		}
		if overlapsBuffered(existing, bufferedStart, bufferedEnd) {
			return persistence.ErrOverlap
		}
	}
	appointment.Start = start
	appointment.End = end
	appointment.BufferedStart = bufferedStart
	appointment.BufferedEnd = bufferedEnd
	s.appointments[id] = appointment
	return nil
}

func (s *Storage) CancelAppointment(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	appointment, ok := s.appointments[id]
	if !ok || appointment.Status != persistence.StatusConfirmed {
		return persistence.ErrNotFound
	}
	appointment.Status = persistence.StatusCancelled
	appointment.UpdatedAt = at
	s.appointments[id] = appointment
	return nil
}

func (s *Storage) SetExternalEvent(ctx context.Context, id, externalEventID, conferencingURI string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	appointment, ok := s.appointments[id]
	if !ok {
		return persistence.ErrNotFound
	}
	appointment.ExternalEventID = externalEventID
	appointment.ConferencingURI = conferencingURI
	s.appointments[id] = appointment
	return nil
}

func (s *Storage) CreateConnection(ctx context.Context, conn calendar.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.connections[conn.ID]; exists {
		return persistence.ErrDuplicate
	}
	if conn.Primary {
		for id, existing := range s.connections {
			if existing.AccountID == conn.AccountID && existing.Primary {
				existing.Primary = false
				s.connections[id] = existing
			}
		}
	}
	s.connections[conn.ID] = conn
	return nil
}

func (s *Storage) GetConnection(ctx context.Context, id string) (calendar.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[id]
	if !ok {
		return calendar.Connection{}, calendar.ErrNotConnected
	}
	return conn, nil
}

func (s *Storage) GetPrimaryConnection(ctx context.Context, accountID string) (calendar.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.connections {
		if conn.AccountID == accountID && conn.Primary {
			return conn, nil
		}
	}
	return calendar.Connection{}, calendar.ErrNotConnected
}

func (s *Storage) ListConnections(ctx context.Context, accountID string) ([]calendar.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var connections []calendar.Connection
	for _, conn := range s.connections {
		if conn.AccountID == accountID {
			connections = append(connections, conn)
		}
	}
	sort.Slice(connections, func(i, j int) bool { return connections[i].ID < connections[j].ID })
	return connections, nil
}

func (s *Storage) SaveTokens(ctx context.Context, id string, access, refresh credential.EncryptedPayload, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[id]
	if !ok {
		return calendar.ErrNotConnected
	}
	conn.AccessToken = access
	conn.RefreshToken = refresh
	conn.ExpiresAt = expiresAt
	s.connections[id] = conn
	return nil
}

func (s *Storage) DeleteConnection(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connections[id]; !ok {
		return calendar.ErrNotConnected
	}
	delete(s.connections, id)
	return nil
}

func (s *Storage) ReplaceWorkingHours(ctx context.Context, accountID string, rules []persistence.WorkingHoursRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]persistence.WorkingHoursRule, len(rules))
	copy(copied, rules)
	s.workingHours[accountID] = copied
	return nil
}

func (s *Storage) ListWorkingHours(ctx context.Context, accountID string) ([]persistence.WorkingHoursRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rules := make([]persistence.WorkingHoursRule, len(s.workingHours[accountID]))
	copy(rules, s.workingHours[accountID])
	return rules, nil
}

func overrideKey(accountID, date string) string {
	return accountID + "|" + date
}

func (s *Storage) UpsertDateOverride(ctx context.Context, override persistence.DateOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[overrideKey(override.AccountID, override.Date)] = override
	return nil
}

func (s *Storage) GetDateOverride(ctx context.Context, accountID, date string) (persistence.DateOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	override, ok := s.overrides[overrideKey(accountID, date)]
	if !ok {
		return persistence.DateOverride{}, persistence.ErrNotFound
	}
	return override, nil
}

func (s *Storage) DeleteDateOverride(ctx context.Context, accountID, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := overrideKey(accountID, date)
	if _, ok := s.overrides[key]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.overrides, key)
	return nil
}

func (s *Storage) IncrementBookings(ctx context.Context, accountID, month string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[overrideKey(accountID, month)]++
	return nil
}

func (s *Storage) GetUsage(ctx context.Context, accountID, month string) (persistence.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return persistence.UsageRecord{
		AccountID: accountID,
		Month:     month,
		Bookings:  s.usage[overrideKey(accountID, month)],
	}, nil
}
