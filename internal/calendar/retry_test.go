package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
)

func testPolicy(maxRetries int) (RetryPolicy, *[]time.Duration) {
	var delays []time.Duration
	policy := NewRetryPolicy(maxRetries, time.Second, 10*time.Second)
	policy.jitter = func() time.Duration { return 0 }
	policy.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return policy, &delays
}

func TestDoRecoversFromTransientFailures(t *testing.T) {
	policy, _ := testPolicy(3)

	calls := 0
	err := policy.Do(context.Background(), "list_events", func() error {
		calls++
		if calls <= 2 {
			return &TransientError{Op: "list_events", StatusCode: 503, Err: errors.New("upstream down")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after transient failures, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDoStopsImmediatelyOnFatalFailure(t *testing.T) {
	policy, delays := testPolicy(3)

	fatal := &FatalError{Op: "insert_event", StatusCode: 400, Err: errors.New("bad request")}
	calls := 0
	err := policy.Do(context.Background(), "insert_event", func() error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected the fatal error to surface, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("fatal failures must not be retried, got %d attempts", calls)
	}
	if len(*delays) != 0 {
		t.Fatalf("fatal failures must not sleep, got %v", *delays)
	}
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	policy, delays := testPolicy(3)

	calls := 0
	err := policy.Do(context.Background(), "list_events", func() error {
		calls++
		return &TransientError{Op: "list_events", StatusCode: 429, Err: errors.New("rate limited")}
	})
	if err == nil {
		t.Fatalf("expected exhaustion error")
	}
	if !IsTransient(err) {
		t.Fatalf("exhaustion error must still expose the transient cause: %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected initial attempt plus 3 retries, got %d attempts", calls)
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %d", len(want), len(*delays))
	}
	for i, d := range *delays {
		if d != want[i] {
			t.Fatalf("retry %d: expected delay %v, got %v", i, want[i], d)
		}
	}
}

func TestDoCapsBackoffDelay(t *testing.T) {
	policy, delays := testPolicy(5)
	policy.BaseDelay = 4 * time.Second

	calls := 0
	_ = policy.Do(context.Background(), "list_events", func() error {
		calls++
		return &TransientError{Op: "list_events", StatusCode: 500, Err: errors.New("boom")}
	})
	if calls != 6 {
		t.Fatalf("expected 6 attempts, got %d", calls)
	}
	for i, d := range *delays {
		if d > 10*time.Second {
			t.Fatalf("retry %d: delay %v exceeds the 10s cap", i, d)
		}
	}
	if last := (*delays)[len(*delays)-1]; last != 10*time.Second {
		t.Fatalf("expected capped delay of 10s, got %v", last)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	policy, _ := testPolicy(3)
	ctx, cancel := context.WithCancel(context.Background())
	policy.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := policy.Do(ctx, "list_events", func() error {
		return &TransientError{Op: "list_events", StatusCode: 503, Err: errors.New("upstream down")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation to surface, got %v", err)
	}
}

func TestWrapVendorErrorClassification(t *testing.T) {
	cases := []struct {
		name          string
		code          int
		wantTransient bool
	}{
		{"rate limited", 429, true},
		{"server error", 500, true},
		{"unavailable", 503, true},
		{"bad request", 400, false},
		{"unauthorized", 401, false},
		{"not found", 404, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := wrapVendorError("list_events", &googleapi.Error{Code: tc.code})
			if got := IsTransient(wrapped); got != tc.wantTransient {
				t.Fatalf("status %d: IsTransient = %v, want %v", tc.code, got, tc.wantTransient)
			}
		})
	}
}

func TestWrapVendorErrorTreatsNetworkFailuresAsTransient(t *testing.T) {
	wrapped := wrapVendorError("list_events", errors.New("connection reset"))
	if !IsTransient(wrapped) {
		t.Fatalf("network-level failures without a status must be retryable")
	}
}

func TestBusyIntervalsFiltering(t *testing.T) {
	start := time.Date(2025, 4, 7, 10, 0, 0, 0, time.UTC)
	events := []Event{
		{ID: "a", Status: "confirmed", Start: start, End: start.Add(time.Hour)},
		{ID: "b", Status: "cancelled", Start: start, End: start.Add(time.Hour)},
		{ID: "c", Status: "confirmed"},
		{ID: "d", Status: "tentative", Start: start.Add(2 * time.Hour), End: start.Add(3 * time.Hour)},
	}

	busy := BusyIntervals(events)
	if len(busy) != 2 {
		t.Fatalf("expected 2 busy intervals, got %d", len(busy))
	}
	if !busy[0].Start.Equal(start) || !busy[1].Start.Equal(start.Add(2*time.Hour)) {
		t.Fatalf("unexpected busy intervals: %v", busy)
	}
}
