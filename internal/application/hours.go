package application

import (
	"time"

	"github.com/example/availability-engine/internal/persistence"
	"github.com/example/availability-engine/internal/slots"
)

// resolveWindow computes the bookable window for one local calendar day.
// A date override always wins over the weekday rule; a closed day yields the
// zero interval.
func resolveWindow(rules []persistence.WorkingHoursRule, override *persistence.DateOverride, dayStart time.Time) slots.Interval {
	if override != nil {
		switch override.Kind {
		case persistence.OverrideUnavailable:
			return slots.Interval{}
		case persistence.OverrideAvailableAllDay:
			return minuteWindow(dayStart, 0, 24*60)
		case persistence.OverrideCustom:
			return minuteWindow(dayStart, override.StartMinute, override.EndMinute)
		}
	}

	for _, rule := range rules {
		if rule.Weekday == dayStart.Weekday() && rule.Enabled {
			return minuteWindow(dayStart, rule.StartMinute, rule.EndMinute)
		}
	}
	return slots.Interval{}
}

func minuteWindow(dayStart time.Time, startMinute, endMinute int) slots.Interval {
	if startMinute >= endMinute {
		return slots.Interval{}
	}
	return slots.Interval{
		Start: dayStart.Add(time.Duration(startMinute) * time.Minute),
		End:   dayStart.Add(time.Duration(endMinute) * time.Minute),
	}
}

// dayBounds parses the date in the given zone and returns local midnight.
func dayBounds(date, timeZone string) (time.Time, *time.Location, error) {
	loc := time.UTC
	if timeZone != "" {
		parsed, err := time.LoadLocation(timeZone)
		if err != nil {
			return time.Time{}, nil, err
		}
		loc = parsed
	}

	day, err := time.ParseInLocation(DateForm, date, loc)
	if err != nil {
		return time.Time{}, nil, err
	}
	return day, loc, nil
}
