// Package persistence defines the storage contracts and records of the
// engine. Implementations live in subpackages.
package persistence

import "time"

// Appointment status values.
const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Date override kinds.
const (
	OverrideAvailableAllDay = "available_all_day"
	OverrideUnavailable     = "unavailable"
	OverrideCustom          = "custom"
)

// AppointmentType describes one bookable meeting shape. Durations and buffers
// are stored in minutes.
type AppointmentType struct {
	ID            string
	AccountID     string
	Name          string
	Duration      int
	BufferBefore  int
	BufferAfter   int
	Conferencing  bool
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Appointment is one booked (or cancelled) slot. BufferedStart and
// BufferedEnd are precomputed at write time so the overlap check is a pure
// range comparison.
type Appointment struct {
	ID                string
	AccountID         string
	TypeID            string
	Status            string
	Start             time.Time
	End               time.Time
	BufferedStart     time.Time
	BufferedEnd       time.Time
	InviteeName       string
	InviteeEmail      string
	Notes             string
	CancellationToken string
	ExternalEventID   string
	ConferencingURI   string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// WorkingHoursRule opens one weekday for booking. Minutes count from local
// midnight in the account's time zone.
type WorkingHoursRule struct {
	AccountID   string
	Weekday     time.Weekday
	StartMinute int
	EndMinute   int
	Enabled     bool
}

// DateOverride replaces the weekday rule on one calendar date. Date uses the
// 2006-01-02 form. Minutes are only meaningful for the custom kind.
type DateOverride struct {
	AccountID   string
	Date        string
	Kind        string
	StartMinute int
	EndMinute   int
}

// UsageRecord counts confirmed bookings per account and month (2006-01 form).
type UsageRecord struct {
	AccountID string
	Month     string
	Bookings  int
}
