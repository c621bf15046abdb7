// Package calendar adapts external calendar vendors behind a small provider
// interface and manages the OAuth credential lifecycle needed to call them.
package calendar

import (
	"context"
	"time"

	"github.com/example/availability-engine/internal/slots"
)

// Event is the vendor-neutral projection of an external calendar event.
type Event struct {
	ID              string
	Status          string
	Summary         string
	Description     string
	Start           time.Time
	End             time.Time
	Attendees       []Attendee
	ConferencingURI string
}

// Attendee identifies one participant on an external event.
type Attendee struct {
	Email          string
	DisplayName    string
	Organizer      bool
	ResponseStatus string
}

// EventPatch carries the partial update applied to an existing event. Nil
// fields are left untouched.
type EventPatch struct {
	Summary     *string
	Description *string
	Start       *time.Time
	End         *time.Time
}

// InsertResult reports the identifiers produced by an event insert.
type InsertResult struct {
	ID              string
	ConferencingURI string
}

// TokenPair is the plaintext outcome of a refresh call. RefreshToken may be
// empty when the vendor keeps the original one valid.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Credentials carries the short-lived access token for a single API call.
type Credentials struct {
	AccessToken string
}

// Provider is the vendor contract: the four event operations plus the token
// refresh endpoint.
type Provider interface {
	ListEvents(ctx context.Context, creds Credentials, timeMin, timeMax time.Time) ([]Event, error)
	InsertEvent(ctx context.Context, creds Credentials, event Event, wantsConferencing bool) (InsertResult, error)
	PatchEvent(ctx context.Context, creds Credentials, eventID string, patch EventPatch) error
	DeleteEvent(ctx context.Context, creds Credentials, eventID string) error
	RefreshToken(ctx context.Context, refreshToken string) (TokenPair, error)
}

const statusCancelled = "cancelled"

// BusyIntervals projects events onto busy time ranges. Cancelled events and
// events missing either bound never count as busy.
func BusyIntervals(events []Event) []slots.Interval {
	var out []slots.Interval
	for _, event := range events {
		if event.Status == statusCancelled {
			continue
		}
		if event.Start.IsZero() || event.End.IsZero() {
			continue
		}
		out = append(out, slots.Interval{Start: event.Start, End: event.End})
	}
	return out
}
