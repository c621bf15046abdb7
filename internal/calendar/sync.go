package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/example/availability-engine/internal/slots"
)

// PrimaryConnectionSource adds the account-level lookup the sync layer needs
// on top of the coordinator's per-connection access.
type PrimaryConnectionSource interface {
	ConnectionSource
	GetPrimaryConnection(ctx context.Context, accountID string) (Connection, error)
}

// AccountCalendar is the account-facing surface: it resolves the account's
// primary connection, obtains a valid token through the coordinator and runs
// the vendor call through the retrying client.
type AccountCalendar struct {
	connections PrimaryConnectionSource
	coordinator *RefreshCoordinator
	client      *Client
}

func NewAccountCalendar(connections PrimaryConnectionSource, coordinator *RefreshCoordinator, client *Client) *AccountCalendar {
	return &AccountCalendar{
		connections: connections,
		coordinator: coordinator,
		client:      client,
	}
}

func (a *AccountCalendar) credentials(ctx context.Context, accountID string) (Credentials, error) {
	conn, err := a.connections.GetPrimaryConnection(ctx, accountID)
	if err != nil {
		return Credentials{}, err
	}
	token, err := a.coordinator.AccessToken(ctx, conn)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{AccessToken: token}, nil
}

// BusyIntervals fetches the account's external busy time for the window. An
// account without a connected calendar simply has no external busy time.
func (a *AccountCalendar) BusyIntervals(ctx context.Context, accountID string, from, to time.Time) ([]slots.Interval, error) {
	creds, err := a.credentials(ctx, accountID)
	if errors.Is(err, ErrNotConnected) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	events, err := a.client.ListEvents(ctx, creds, from, to)
	if err != nil {
		return nil, err
	}
	return BusyIntervals(events), nil
}

// CreateEvent inserts an event on the account's primary calendar.
func (a *AccountCalendar) CreateEvent(ctx context.Context, accountID string, event Event, wantsConferencing bool) (InsertResult, error) {
	creds, err := a.credentials(ctx, accountID)
	if err != nil {
		return InsertResult{}, err
	}
	return a.client.InsertEvent(ctx, creds, event, wantsConferencing)
}

// MoveEvent rewrites only the bounds of an existing event.
func (a *AccountCalendar) MoveEvent(ctx context.Context, accountID, eventID string, start, end time.Time) error {
	creds, err := a.credentials(ctx, accountID)
	if err != nil {
		return err
	}
	return a.client.PatchEvent(ctx, creds, eventID, EventPatch{Start: &start, End: &end})
}

// RemoveEvent deletes an event from the account's primary calendar.
func (a *AccountCalendar) RemoveEvent(ctx context.Context, accountID, eventID string) error {
	creds, err := a.credentials(ctx, accountID)
	if err != nil {
		return err
	}
	return a.client.DeleteEvent(ctx, creds, eventID)
}
