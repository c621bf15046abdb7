// Package slots holds the pure interval arithmetic of the engine: candidate
// slot generation and buffered-interval conflict resolution.
package slots

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect. Adjacent
// intervals, where one ends exactly when the other starts, do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && i.End.After(other.Start)
}

// IsZero reports whether the interval carries no bounds.
func (i Interval) IsZero() bool {
	return i.Start.IsZero() && i.End.IsZero()
}

// Slot is one bookable candidate. The buffered interval widens the slot by
// the appointment type's buffers and is used only for conflict testing; it is
// never exposed to callers.
type Slot struct {
	Start     time.Time
	End       time.Time
	Available bool

	buffered Interval
}

// Buffered derives the conflict-testing interval for a booked range.
func Buffered(start, end time.Time, before, after time.Duration) Interval {
	return Interval{Start: start.Add(-before), End: end.Add(after)}
}

// Generate tiles the working-hours window with fixed-size non-overlapping
// slots of the given duration. A slot whose end would fall past the window is
// discarded. Output is ordered ascending and deterministic for fixed inputs.
func Generate(window Interval, duration, bufferBefore, bufferAfter time.Duration) []Slot {
	if duration <= 0 || !window.Start.Before(window.End) {
		return nil
	}

	var out []Slot
	for start := window.Start; ; start = start.Add(duration) {
		end := start.Add(duration)
		if end.After(window.End) {
			break
		}
		out = append(out, Slot{
			Start:     start,
			End:       end,
			Available: true,
			buffered:  Buffered(start, end, bufferBefore, bufferAfter),
		})
	}
	return out
}
