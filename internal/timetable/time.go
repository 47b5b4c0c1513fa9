package timetable

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidTimeOfDay is returned when an hour or minute is out of range.
	ErrInvalidTimeOfDay = errors.New("invalid time of day")
	// ErrInvalidWindowOrdering is returned when a window does not start
	// strictly before it ends.
	ErrInvalidWindowOrdering = errors.New("window start must be before end")
	// ErrInvalidCalendarDate is returned when an ISO year/week/weekday
	// combination does not name a real date.
	ErrInvalidCalendarDate = errors.New("invalid calendar date")
	// ErrNoRecurrence is reported for a labeled window without a recurrence.
	ErrNoRecurrence = errors.New("window has no recurrence")
)

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	hour   int
	minute int
}

// NewTimeOfDay validates hour (0-23) and minute (0-59).
func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	t := TimeOfDay{hour: hour, minute: minute}
	if !t.valid() {
		return TimeOfDay{}, fmt.Errorf("%w: %02d:%02d", ErrInvalidTimeOfDay, hour, minute)
	}
	return t, nil
}

// MustTimeOfDay is like NewTimeOfDay but panics on invalid input.
// Intended for literals in tests and examples.
func MustTimeOfDay(hour, minute int) TimeOfDay {
	t, err := NewTimeOfDay(hour, minute)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) Hour() int   { return t.hour }
func (t TimeOfDay) Minute() int { return t.minute }

// Before reports whether t is earlier in the day than u.
func (t TimeOfDay) Before(u TimeOfDay) bool {
	return t.minutes() < u.minutes()
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.hour, t.minute)
}

func (t TimeOfDay) minutes() int { return t.hour*60 + t.minute }

func (t TimeOfDay) valid() bool {
	return t.hour >= 0 && t.hour <= 23 && t.minute >= 0 && t.minute <= 59
}

// on combines t with the calendar date of d in loc.
func (t TimeOfDay) on(d time.Time, loc *time.Location) (time.Time, error) {
	if !t.valid() {
		return time.Time{}, fmt.Errorf("%w: %02d:%02d", ErrInvalidTimeOfDay, t.hour, t.minute)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), t.hour, t.minute, 0, 0, loc), nil
}

// UnmarshalYAML accepts either {hour: 8, minute: 0} or "08:00".
func (t *TimeOfDay) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := ParseTimeOfDay(value.Value)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case yaml.MappingNode:
		var raw struct {
			Hour   *int `yaml:"hour"`
			Minute *int `yaml:"minute"`
		}
		if err := value.Decode(&raw); err != nil {
			return err
		}
		if raw.Hour == nil || raw.Minute == nil {
			return fmt.Errorf("%w: line %d: hour and minute are required", ErrInvalidTimeOfDay, value.Line)
		}
		parsed, err := NewTimeOfDay(*raw.Hour, *raw.Minute)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	default:
		return fmt.Errorf("%w: line %d: expected mapping or HH:MM", ErrInvalidTimeOfDay, value.Line)
	}
}

// MarshalYAML writes the mapping form used by course files.
func (t TimeOfDay) MarshalYAML() (any, error) {
	return struct {
		Hour   int `yaml:"hour"`
		Minute int `yaml:"minute"`
	}{t.hour, t.minute}, nil
}

// ParseTimeOfDay parses "H:MM" or "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || len(m) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return NewTimeOfDay(hour, minute)
}

// Weekday is a time.Weekday that reads and writes the short English names
// ("Mon", "Tue", ...) used in course files.
type Weekday time.Weekday

const (
	Sunday    = Weekday(time.Sunday)
	Monday    = Weekday(time.Monday)
	Tuesday   = Weekday(time.Tuesday)
	Wednesday = Weekday(time.Wednesday)
	Thursday  = Weekday(time.Thursday)
	Friday    = Weekday(time.Friday)
	Saturday  = Weekday(time.Saturday)
)

// ParseWeekday accepts short or full English day names, any case.
func ParseWeekday(s string) (Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if s == full || s == full[:3] {
			return Weekday(d), nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

func (d Weekday) String() string {
	if d < Sunday || d > Saturday {
		return "Weekday(" + strconv.Itoa(int(d)) + ")"
	}
	return time.Weekday(d).String()[:3]
}

// iso returns the ISO 8601 day number, Monday=1 through Sunday=7.
func (d Weekday) iso() int {
	if d == Sunday {
		return 7
	}
	return int(d)
}

func (d *Weekday) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: weekday must be a string", value.Line)
	}
	parsed, err := ParseWeekday(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = parsed
	return nil
}

func (d Weekday) MarshalYAML() (any, error) {
	return d.String(), nil
}
