package calendar

import (
	"context"
	"time"
)

// Client wraps a Provider with the retry policy. Every vendor call goes
// through here so transient failures are handled in one place.
type Client struct {
	provider Provider
	retry    RetryPolicy
}

func NewClient(provider Provider, retry RetryPolicy) *Client {
	return &Client{provider: provider, retry: retry}
}

func (c *Client) ListEvents(ctx context.Context, creds Credentials, timeMin, timeMax time.Time) ([]Event, error) {
	var events []Event
	err := c.retry.Do(ctx, "list_events", func() error {
		var err error
		events, err = c.provider.ListEvents(ctx, creds, timeMin, timeMax)
		return err
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) InsertEvent(ctx context.Context, creds Credentials, event Event, wantsConferencing bool) (InsertResult, error) {
	var result InsertResult
	err := c.retry.Do(ctx, "insert_event", func() error {
		var err error
		result, err = c.provider.InsertEvent(ctx, creds, event, wantsConferencing)
		return err
	})
	if err != nil {
		return InsertResult{}, err
	}
	return result, nil
}

func (c *Client) PatchEvent(ctx context.Context, creds Credentials, eventID string, patch EventPatch) error {
	return c.retry.Do(ctx, "patch_event", func() error {
		return c.provider.PatchEvent(ctx, creds, eventID, patch)
	})
}

func (c *Client) DeleteEvent(ctx context.Context, creds Credentials, eventID string) error {
	return c.retry.Do(ctx, "delete_event", func() error {
		return c.provider.DeleteEvent(ctx, creds, eventID)
	})
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (TokenPair, error) {
	var pair TokenPair
	err := c.retry.Do(ctx, "refresh_token", func() error {
		var err error
		pair, err = c.provider.RefreshToken(ctx, refreshToken)
		return err
	})
	if err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}
