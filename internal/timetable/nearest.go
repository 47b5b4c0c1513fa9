package timetable

import (
	"errors"
	"fmt"
	"time"
)

// lookaheadWeeks is the number of ISO weeks expanded per window. Any weekly
// window's next occurrence falls within the current or the following week.
const lookaheadWeeks = 2

// Labeled pairs a recurrence with a caller-supplied label that is carried
// through resolution unchanged.
type Labeled[L any] struct {
	Label  L
	Window Recurrence
}

// Nearest is the outcome of ResolveNearest.
type Nearest[L any] struct {
	Label L
	// Until is zero when Active, otherwise the time from now until
	// Interval.Start.
	Until    time.Duration
	Active   bool
	Interval Interval
}

// WindowError reports an expansion failure for a single labeled window.
type WindowError struct {
	Label string
	Week  int
	Err   error
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("window %q (week +%d): %v", e.Label, e.Week, e.Err)
}

func (e *WindowError) Unwrap() error { return e.Err }

// ResolveNearest finds the window that is active at now or, failing that, the
// one whose next occurrence starts soonest after now.
//
// Windows are expanded for the current and next ISO week. The first active
// interval in input order wins. Otherwise the earliest start strictly after
// now wins, ties going to the earlier window. ok is false when no window has
// an active or future interval.
//
// A window that fails to expand is left out and reported in err as a
// *WindowError; the result still reflects every window that did expand, so
// callers should check ok independently of err.
func ResolveNearest[L any](windows []Labeled[L], now time.Time) (res Nearest[L], ok bool, err error) {
	expanded := make([][]Interval, len(windows))
	var errs []error

	for i, w := range windows {
		if w.Window == nil {
			errs = append(errs, &WindowError{Label: fmt.Sprint(w.Label), Err: ErrNoRecurrence})
			continue
		}
		for week := 0; week < lookaheadWeeks; week++ {
			ivs, expErr := w.Window.Expand(week, now)
			if expErr != nil {
				errs = append(errs, &WindowError{Label: fmt.Sprint(w.Label), Week: week, Err: expErr})
				continue
			}
			expanded[i] = append(expanded[i], ivs...)
		}
	}
	err = errors.Join(errs...)

	for i, ivs := range expanded {
		for _, iv := range ivs {
			if iv.Contains(now) {
				return Nearest[L]{Label: windows[i].Label, Active: true, Interval: iv}, true, err
			}
		}
	}

	for i, ivs := range expanded {
		for _, iv := range ivs {
			until := iv.Start.Sub(now)
			if until <= 0 {
				continue
			}
			if !ok || until < res.Until {
				res = Nearest[L]{Label: windows[i].Label, Until: until, Interval: iv}
				ok = true
			}
		}
	}
	return res, ok, err
}
