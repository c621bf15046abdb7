package slots

// Annotate marks each candidate unavailable when its buffered interval
// overlaps any busy interval. Busy intervals cover both external calendar
// events and the buffered intervals of existing internal appointments; the
// overlap test treats them uniformly.
func Annotate(candidates []Slot, busy []Interval) []Slot {
	out := make([]Slot, len(candidates))
	copy(out, candidates)

	for i := range out {
		out[i].Available = !conflicts(out[i].buffered, busy)
	}
	return out
}

func conflicts(buffered Interval, busy []Interval) bool {
	for _, interval := range busy {
		if interval.IsZero() {
			continue
		}
		if buffered.Overlaps(interval) {
			return true
		}
	}
	return false
}

// MergeBusy flattens busy intervals from several calendars into one list.
// Used by the team variant, where every active member's calendar contributes.
func MergeBusy(groups ...[]Interval) []Interval {
	var out []Interval
	for _, group := range groups {
		out = append(out, group...)
	}
	return out
}
