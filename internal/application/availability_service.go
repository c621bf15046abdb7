package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/availability-engine/internal/logging"
	"github.com/example/availability-engine/internal/persistence"
	"github.com/example/availability-engine/internal/slots"
)

// ExternalBusySource yields an account's busy intervals from its connected
// calendar. Implemented by the calendar sync layer.
type ExternalBusySource interface {
	BusyIntervals(ctx context.Context, accountID string, from, to time.Time) ([]slots.Interval, error)
}

// AvailabilityService computes bookable slots from working hours, existing
// appointments and external calendar busy time.
type AvailabilityService struct {
	types        persistence.AppointmentTypeRepository
	appointments persistence.AppointmentRepository
	config       persistence.ScheduleConfigRepository
	external     ExternalBusySource
	cache        *BusyCache
	now          func() time.Time
}

// NewAvailabilityService wires dependencies for availability computation.
func NewAvailabilityService(
	types persistence.AppointmentTypeRepository,
	appointments persistence.AppointmentRepository,
	config persistence.ScheduleConfigRepository,
	external ExternalBusySource,
	cache *BusyCache,
	now func() time.Time,
) *AvailabilityService {
	if now == nil {
		now = time.Now
	}
	return &AvailabilityService{
		types:        types,
		appointments: appointments,
		config:       config,
		external:     external,
		cache:        cache,
		now:          now,
	}
}

// ListSlots returns every candidate slot for the date with its availability.
// Slots already in the past are omitted.
func (s *AvailabilityService) ListSlots(ctx context.Context, params ListSlotsParams) ([]SlotView, error) {
	vErr := &ValidationError{}
	if params.AccountID == "" {
		vErr.add("account_id", "account_id is required")
	}
	if params.TypeID == "" {
		vErr.add("type_id", "type_id is required")
	}
	if params.Date == "" {
		vErr.add("date", "date is required")
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	dayStart, _, err := dayBounds(params.Date, params.TimeZone)
	if err != nil {
		vErr.add("date", "date or timezone is invalid")
		return nil, vErr
	}

	appointmentType, err := s.lookupType(ctx, params.AccountID, params.TypeID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.candidatesForDay(ctx, params.AccountID, appointmentType, dayStart)
	if err != nil {
		return nil, err
	}

	busy, err := s.busyForDay(ctx, params.AccountID, params.Date, dayStart)
	if err != nil {
		return nil, err
	}
	internal, err := s.internalBusy(ctx, params.AccountID, dayStart)
	if err != nil {
		return nil, err
	}

	annotated := slots.Annotate(candidates, slots.MergeBusy(busy, internal))
	return s.toViews(annotated), nil
}

// ListTeamSlots behaves like ListSlots but merges the external busy time of
// every member on top of the host's own calendar and bookings. A member whose
// calendar cannot be read contributes no busy time rather than failing the
// whole listing.
func (s *AvailabilityService) ListTeamSlots(ctx context.Context, params TeamSlotsParams) ([]SlotView, error) {
	vErr := &ValidationError{}
	if params.HostAccountID == "" {
		vErr.add("account_id", "account_id is required")
	}
	if params.TypeID == "" {
		vErr.add("type_id", "type_id is required")
	}
	if params.Date == "" {
		vErr.add("date", "date is required")
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	dayStart, _, err := dayBounds(params.Date, params.TimeZone)
	if err != nil {
		vErr.add("date", "date or timezone is invalid")
		return nil, vErr
	}

	appointmentType, err := s.lookupType(ctx, params.HostAccountID, params.TypeID)
	if err != nil {
		return nil, err
	}
	candidates, err := s.candidatesForDay(ctx, params.HostAccountID, appointmentType, dayStart)
	if err != nil {
		return nil, err
	}

	hostBusy, err := s.busyForDay(ctx, params.HostAccountID, params.Date, dayStart)
	if err != nil {
		return nil, err
	}
	internal, err := s.internalBusy(ctx, params.HostAccountID, dayStart)
	if err != nil {
		return nil, err
	}
	memberBusy := s.teamBusy(ctx, params.MemberAccountIDs, params.Date, dayStart)

	annotated := slots.Annotate(candidates, slots.MergeBusy(hostBusy, internal, memberBusy))
	return s.toViews(annotated), nil
}

// ListAvailableDates reports, for each date in the inclusive range, whether
// at least one slot is open.
func (s *AvailabilityService) ListAvailableDates(ctx context.Context, params ListDatesParams) ([]DayAvailability, error) {
	vErr := &ValidationError{}
	from, errFrom := time.Parse(DateForm, params.From)
	to, errTo := time.Parse(DateForm, params.To)
	if errFrom != nil {
		vErr.add("from", "from must be a date in 2006-01-02 form")
	}
	if errTo != nil {
		vErr.add("to", "to must be a date in 2006-01-02 form")
	}
	if errFrom == nil && errTo == nil && to.Before(from) {
		vErr.add("to", "to must not precede from")
	}
	if errFrom == nil && errTo == nil && to.Sub(from) > 62*24*time.Hour {
		vErr.add("to", "range must not exceed two months")
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	var days []DayAvailability
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		date := day.Format(DateForm)
		views, err := s.ListSlots(ctx, ListSlotsParams{
			AccountID: params.AccountID,
			TypeID:    params.TypeID,
			Date:      date,
			TimeZone:  params.TimeZone,
		})
		if err != nil {
			return nil, err
		}

		available := false
		for _, view := range views {
			if view.Available {
				available = true
				break
			}
		}
		days = append(days, DayAvailability{Date: date, Available: available})
	}
	return days, nil
}

// Prewarm fills the busy cache for the next days in the background and
// returns immediately. Failures only cost a later cache miss.
func (s *AvailabilityService) Prewarm(ctx context.Context, accountID string, days int) {
	if days <= 0 {
		days = 7
	}
	detached := context.WithoutCancel(ctx)
	go s.prewarm(detached, accountID, days)
}

func (s *AvailabilityService) prewarm(ctx context.Context, accountID string, days int) {
	logger := logging.FromContext(ctx)
	start := s.now().UTC().Truncate(24 * time.Hour)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i)
		if _, err := s.busyForDay(ctx, accountID, day.Format(DateForm), day); err != nil {
			logger.WarnContext(ctx, "prewarm aborted",
				slog.String("account_id", accountID),
				slog.String("error", err.Error()),
			)
			return
		}
	}
}

func (s *AvailabilityService) lookupType(ctx context.Context, accountID, typeID string) (persistence.AppointmentType, error) {
	appointmentType, err := s.types.GetAppointmentType(ctx, typeID)
	if err != nil {
		return persistence.AppointmentType{}, mapRepoError(err)
	}
	if appointmentType.AccountID != accountID || !appointmentType.Active {
		return persistence.AppointmentType{}, ErrNotFound
	}
	return appointmentType, nil
}

func (s *AvailabilityService) candidatesForDay(ctx context.Context, accountID string, appointmentType persistence.AppointmentType, dayStart time.Time) ([]slots.Slot, error) {
	rules, err := s.config.ListWorkingHours(ctx, accountID)
	if err != nil {
		return nil, mapRepoError(err)
	}

	var override *persistence.DateOverride
	stored, err := s.config.GetDateOverride(ctx, accountID, dayStart.Format(DateForm))
	switch {
	case err == nil:
		override = &stored
	case errors.Is(err, persistence.ErrNotFound):
	default:
		return nil, mapRepoError(err)
	}

	window := resolveWindow(rules, override, dayStart)
	if window.IsZero() {
		return nil, nil
	}
	return slots.Generate(window,
		time.Duration(appointmentType.Duration)*time.Minute,
		time.Duration(appointmentType.BufferBefore)*time.Minute,
		time.Duration(appointmentType.BufferAfter)*time.Minute,
	), nil
}

// busyForDay serves external busy time through the cache. When the calendar
// cannot be read the day is treated as free: showing a slot that later fails
// the write-time check is recoverable, hiding a whole day of slots is not.
// Failed fetches are never cached.
func (s *AvailabilityService) busyForDay(ctx context.Context, accountID, date string, dayStart time.Time) ([]slots.Interval, error) {
	if cached, ok := s.cache.Get(accountID, date); ok {
		return cached, nil
	}

	busy, err := s.external.BusyIntervals(ctx, accountID, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "external busy fetch failed, treating day as free",
			slog.String("account_id", accountID),
			slog.String("date", date),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}

	s.cache.Set(accountID, date, busy)
	return busy, nil
}

func (s *AvailabilityService) internalBusy(ctx context.Context, accountID string, dayStart time.Time) ([]slots.Interval, error) {
	appointments, err := s.appointments.ListConfirmedBetween(ctx, accountID, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return nil, mapRepoError(err)
	}

	busy := make([]slots.Interval, 0, len(appointments))
	for _, appointment := range appointments {
		busy = append(busy, slots.Interval{
			Start: appointment.BufferedStart,
			End:   appointment.BufferedEnd,
		})
	}
	return busy, nil
}

// teamBusy fetches members' busy time concurrently, each through the cache.
func (s *AvailabilityService) teamBusy(ctx context.Context, memberIDs []string, date string, dayStart time.Time) []slots.Interval {
	groups := make([][]slots.Interval, len(memberIDs))
	var wg sync.WaitGroup
	for i, memberID := range memberIDs {
		wg.Add(1)
		go func(i int, memberID string) {
			defer wg.Done()
			busy, err := s.busyForDay(ctx, memberID, date, dayStart)
			if err != nil {
				return
			}
			groups[i] = busy
		}(i, memberID)
	}
	wg.Wait()
	return slots.MergeBusy(groups...)
}

func (s *AvailabilityService) toViews(annotated []slots.Slot) []SlotView {
	now := s.now()
	var views []SlotView
	for _, slot := range annotated {
		if slot.Start.Before(now) {
			continue
		}
		views = append(views, SlotView{
			Start:     slot.Start,
			End:       slot.End,
			Available: slot.Available,
		})
	}
	return views
}
