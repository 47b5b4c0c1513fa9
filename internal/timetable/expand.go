package timetable

import (
	"fmt"
	"time"
)

// Interval is one concrete occurrence of a recurring window.
// Start is never after End.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End], inclusive on both ends.
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && !t.After(iv.End)
}

// Recurrence is anything that can be laid out as concrete intervals for a
// given ISO week. weekOffset 0 is the ISO week containing ref, 1 the next.
type Recurrence interface {
	Expand(weekOffset int, ref time.Time) ([]Interval, error)
}

// Weekly is a window that recurs on a fixed set of weekdays between the same
// start and end time of day.
type Weekly struct {
	Days  []Weekday `yaml:"days"`
	Start TimeOfDay `yaml:"start"`
	End   TimeOfDay `yaml:"end"`
}

// Validate checks the ordering invariant. Time-of-day ranges are already
// enforced when the TimeOfDay values are constructed.
func (w Weekly) Validate() error {
	if !w.Start.Before(w.End) {
		return fmt.Errorf("%w: %s-%s", ErrInvalidWindowOrdering, w.Start, w.End)
	}
	return nil
}

// Expand returns one interval per entry in w.Days, in the order given,
// anchored to the ISO week of ref shifted by weekOffset. Times are built in
// ref's location.
func (w Weekly) Expand(weekOffset int, ref time.Time) ([]Interval, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if weekOffset < 0 {
		return nil, fmt.Errorf("%w: negative week offset %d", ErrInvalidCalendarDate, weekOffset)
	}

	year, week := ref.ISOWeek()
	loc := ref.Location()

	out := make([]Interval, 0, len(w.Days))
	for _, day := range w.Days {
		date, err := isoWeekDate(year, week+weekOffset, day)
		if err != nil {
			return nil, err
		}
		start, err := w.Start.on(date, loc)
		if err != nil {
			return nil, err
		}
		end, err := w.End.on(date, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, Interval{Start: start, End: end})
	}
	return out, nil
}

// Expand lays out r for the given week offset relative to ref.
func Expand(r Recurrence, weekOffset int, ref time.Time) ([]Interval, error) {
	return r.Expand(weekOffset, ref)
}

// isoWeekDate returns midnight UTC of the given ISO year/week/weekday.
// Week numbers past the end of year roll into the following ISO years.
func isoWeekDate(year, week int, day Weekday) (time.Time, error) {
	if day < Sunday || day > Saturday {
		return time.Time{}, fmt.Errorf("%w: weekday %d", ErrInvalidCalendarDate, int(day))
	}
	if week < 1 {
		return time.Time{}, fmt.Errorf("%w: %d-W%02d", ErrInvalidCalendarDate, year, week)
	}
	for n := isoWeeksInYear(year); week > n; n = isoWeeksInYear(year) {
		week -= n
		year++
	}

	// Week 1 is the week containing January 4th.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	week1Monday := jan4.AddDate(0, 0, 1-Weekday(jan4.Weekday()).iso())

	return week1Monday.AddDate(0, 0, (week-1)*7+day.iso()-1), nil
}

// isoWeeksInYear returns 52 or 53. December 28th is always in the last
// ISO week of its year.
func isoWeeksInYear(year int) int {
	_, w := time.Date(year, time.December, 28, 12, 0, 0, 0, time.UTC).ISOWeek()
	return w
}
