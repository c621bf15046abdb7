package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const (
	responseAccepted = "accepted"
	conferenceMeet   = "hangoutsMeet"
)

// GoogleProvider implements Provider against the Google Calendar v3 API.
// Event operations run against the configured calendar with a caller-supplied
// access token; token refresh goes through the OAuth authorization-code flow
// configuration.
type GoogleProvider struct {
	oauth      *oauth2.Config
	calendarID string
}

// NewGoogleProvider builds a provider for one OAuth client. calendarID is
// usually "primary".
func NewGoogleProvider(clientID, clientSecret, calendarID string) *GoogleProvider {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gcal.CalendarScope},
		},
		calendarID: calendarID,
	}
}

func (p *GoogleProvider) service(ctx context.Context, creds Credentials) (*gcal.Service, error) {
	source := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: creds.AccessToken,
		TokenType:   "Bearer",
	})
	svc, err := gcal.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("build calendar service: %w", err)
	}
	return svc, nil
}

func (p *GoogleProvider) ListEvents(ctx context.Context, creds Credentials, timeMin, timeMax time.Time) ([]Event, error) {
	svc, err := p.service(ctx, creds)
	if err != nil {
		return nil, err
	}

	var out []Event
	call := svc.Events.List(p.calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(2500).
		Context(ctx)
	err = call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			out = append(out, eventFromGoogle(item))
		}
		return nil
	})
	if err != nil {
		return nil, wrapVendorError("list_events", err)
	}
	return out, nil
}

func (p *GoogleProvider) InsertEvent(ctx context.Context, creds Credentials, event Event, wantsConferencing bool) (InsertResult, error) {
	svc, err := p.service(ctx, creds)
	if err != nil {
		return InsertResult{}, err
	}

	body := &gcal.Event{
		Summary:     event.Summary,
		Description: event.Description,
		Start:       &gcal.EventDateTime{DateTime: event.Start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: event.End.Format(time.RFC3339)},
		Reminders: &gcal.EventReminders{
			UseDefault:      false,
			Overrides:       defaultReminders(),
			ForceSendFields: []string{"UseDefault"},
		},
	}
	for _, attendee := range event.Attendees {
		body.Attendees = append(body.Attendees, &gcal.EventAttendee{
			Email:          attendee.Email,
			DisplayName:    attendee.DisplayName,
			Organizer:      attendee.Organizer,
			ResponseStatus: responseAccepted,
		})
	}

	call := svc.Events.Insert(p.calendarID, body).Context(ctx)
	if wantsConferencing {
		body.ConferenceData = &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             uuid.NewString(),
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: conferenceMeet},
			},
		}
		call = call.ConferenceDataVersion(1)
	}

	created, err := call.Do()
	if err != nil {
		return InsertResult{}, wrapVendorError("insert_event", err)
	}
	return InsertResult{ID: created.Id, ConferencingURI: conferencingURI(created)}, nil
}

func (p *GoogleProvider) PatchEvent(ctx context.Context, creds Credentials, eventID string, patch EventPatch) error {
	svc, err := p.service(ctx, creds)
	if err != nil {
		return err
	}

	body := &gcal.Event{}
	if patch.Summary != nil {
		body.Summary = *patch.Summary
	}
	if patch.Description != nil {
		body.Description = *patch.Description
	}
	if patch.Start != nil {
		body.Start = &gcal.EventDateTime{DateTime: patch.Start.Format(time.RFC3339)}
	}
	if patch.End != nil {
		body.End = &gcal.EventDateTime{DateTime: patch.End.Format(time.RFC3339)}
	}

	if _, err := svc.Events.Patch(p.calendarID, eventID, body).Context(ctx).Do(); err != nil {
		return wrapVendorError("patch_event", err)
	}
	return nil
}

func (p *GoogleProvider) DeleteEvent(ctx context.Context, creds Credentials, eventID string) error {
	svc, err := p.service(ctx, creds)
	if err != nil {
		return err
	}
	if err := svc.Events.Delete(p.calendarID, eventID).Context(ctx).Do(); err != nil {
		return wrapVendorError("delete_event", err)
	}
	return nil
}

// RefreshToken exchanges the long-lived refresh token for a fresh access
// token. Google omits the refresh token from the response when the original
// remains valid, which surfaces here as an empty RefreshToken.
func (p *GoogleProvider) RefreshToken(ctx context.Context, refreshToken string) (TokenPair, error) {
	source := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return TokenPair{}, wrapVendorError("refresh_token", err)
	}

	pair := TokenPair{
		AccessToken: token.AccessToken,
		ExpiresAt:   token.Expiry,
	}
	if token.RefreshToken != refreshToken {
		pair.RefreshToken = token.RefreshToken
	}
	return pair, nil
}

func defaultReminders() []*gcal.EventReminder {
	return []*gcal.EventReminder{
		{Method: "email", Minutes: 60},
		{Method: "popup", Minutes: 10},
	}
}

func eventFromGoogle(item *gcal.Event) Event {
	event := Event{
		ID:              item.Id,
		Status:          item.Status,
		Summary:         item.Summary,
		Description:     item.Description,
		ConferencingURI: conferencingURI(item),
	}
	if item.Start != nil && item.Start.DateTime != "" {
		if start, err := time.Parse(time.RFC3339, item.Start.DateTime); err == nil {
			event.Start = start
		}
	}
	if item.End != nil && item.End.DateTime != "" {
		if end, err := time.Parse(time.RFC3339, item.End.DateTime); err == nil {
			event.End = end
		}
	}
	for _, attendee := range item.Attendees {
		event.Attendees = append(event.Attendees, Attendee{
			Email:          attendee.Email,
			DisplayName:    attendee.DisplayName,
			Organizer:      attendee.Organizer,
			ResponseStatus: attendee.ResponseStatus,
		})
	}
	return event
}

func conferencingURI(item *gcal.Event) string {
	if item.HangoutLink != "" {
		return item.HangoutLink
	}
	if item.ConferenceData != nil {
		for _, entry := range item.ConferenceData.EntryPoints {
			if entry.EntryPointType == "video" {
				return entry.Uri
			}
		}
	}
	return ""
}
