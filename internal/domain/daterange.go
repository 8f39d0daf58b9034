package domain

import "time"

// DateRange is a stay period between two calendar dates. The end date is the
// check-out date, so a one-night stay is {d, d+1}.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func NewDateRange(start, end time.Time) (DateRange, error) {
	start = TruncateToDate(start)
	end = TruncateToDate(end)
	if !start.Before(end) {
		return DateRange{}, ErrInvalidRange
	}
	return DateRange{Start: start, End: end}, nil
}

// Nights returns the number of nights covered by the range.
func (r DateRange) Nights() int {
	return int(r.End.Sub(r.Start).Hours() / 24)
}

// Overlaps reports whether two ranges collide. Boundaries are inclusive:
// a range ending on the day another starts still counts as overlapping,
// because check-out and check-in cannot share a day on the same unit.
func (r DateRange) Overlaps(other DateRange) bool {
	return !r.Start.After(other.End) && !r.End.Before(other.Start)
}

func (r DateRange) Equal(other DateRange) bool {
	return r.Start.Equal(other.Start) && r.End.Equal(other.End)
}

// TruncateToDate drops the time-of-day component and normalizes to UTC.
func TruncateToDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
