// Package application hosts the service layer: availability computation,
// booking orchestration and calendar connection management.
package application

import (
	"time"

	"github.com/example/availability-engine/internal/persistence"
)

// DateForm is the layout for calendar dates in requests and storage.
const DateForm = "2006-01-02"

// MonthForm is the layout for usage counter months.
const MonthForm = "2006-01"

// SlotView is one candidate slot as presented to callers. The buffered
// interval used for conflict testing is internal and never appears here.
type SlotView struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

// DayAvailability reports whether a calendar date has at least one open slot.
type DayAvailability struct {
	Date      string `json:"date"`
	Available bool   `json:"available"`
}

// ListSlotsParams identifies one account, appointment type and date.
type ListSlotsParams struct {
	AccountID string
	TypeID    string
	Date      string
	TimeZone  string
}

// ListDatesParams asks which dates in an inclusive range have open slots.
type ListDatesParams struct {
	AccountID string
	TypeID    string
	From      string
	To        string
	TimeZone  string
}

// TeamSlotsParams lists slots against the merged busy time of several
// members. The host account supplies working hours and the appointment type.
type TeamSlotsParams struct {
	HostAccountID    string
	MemberAccountIDs []string
	TypeID           string
	Date             string
	TimeZone         string
}

// BookingParams carries one booking request.
type BookingParams struct {
	AccountID    string
	TypeID       string
	Start        time.Time
	InviteeName  string
	InviteeEmail string
	Notes        string
}

// BookingResult is the outcome of a successful booking. CalendarCreated
// reports whether the external calendar event was written; the booking is
// valid either way.
type BookingResult struct {
	Appointment     persistence.Appointment
	CalendarCreated bool
}

// RescheduleParams moves an existing booking, addressed by its cancellation
// token, to a new start time.
type RescheduleParams struct {
	CancellationToken string
	NewStart          time.Time
}

// ConnectParams carries the plaintext OAuth grant obtained during the
// provider handshake. Tokens are encrypted before they reach storage.
type ConnectParams struct {
	AccountID    string
	Provider     string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Primary      bool
}
