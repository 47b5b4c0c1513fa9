package ics

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"timetable/internal/model"
	"timetable/internal/timetable"
)

const (
	productID   = "-//timetable//weekly courses//EN"
	localLayout = "20060102T150405"
)

var rruleDays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// Export renders courses as an ICS calendar with one weekly recurring
// VEVENT per course, anchored at the course's first meeting in the ISO week
// of now. Courses without days are left out. A course that cannot be
// expanded is left out too and reported as a *timetable.WindowError; the
// returned calendar is still valid.
func Export(courses []model.Course, now time.Time) (string, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	var errs []error
	for _, c := range courses {
		ivs, err := c.Slot.Expand(0, now)
		if err != nil {
			errs = append(errs, &timetable.WindowError{Label: c.Name, Err: err})
			continue
		}
		if len(ivs) == 0 {
			continue
		}
		first := slices.MinFunc(ivs, func(a, b timetable.Interval) int {
			return a.Start.Compare(b.Start)
		})

		ev := cal.AddEvent(eventUID(c))
		ev.SetDtStampTime(now)
		ev.SetSummary(c.Name)
		// Floating local times: BYDAY must be read in the same zone as the
		// wall-clock start, which is the local zone.
		ev.SetProperty(ical.ComponentPropertyDtStart, first.Start.Format(localLayout))
		ev.SetProperty(ical.ComponentPropertyDtEnd, first.End.Format(localLayout))
		ev.AddProperty(ical.ComponentPropertyRrule, WeeklyRRule(c.Slot.Days))
	}

	return cal.Serialize(), errors.Join(errs...)
}

// WeeklyRRule builds FREQ=WEEKLY;BYDAY=... for days, deduplicated and in
// ISO order (Monday first).
func WeeklyRRule(days []timetable.Weekday) string {
	sorted := slices.Clone(days)
	slices.SortFunc(sorted, func(a, b timetable.Weekday) int {
		return isoIndex(a) - isoIndex(b)
	})
	sorted = slices.Compact(sorted)

	opt := rrule.ROption{Freq: rrule.WEEKLY}
	for _, d := range sorted {
		if d < timetable.Sunday || d > timetable.Saturday {
			continue
		}
		opt.Byweekday = append(opt.Byweekday, rruleDays[d])
	}
	return opt.RRuleString()
}

func isoIndex(d timetable.Weekday) int {
	return (int(d) + 6) % 7
}

// eventUID derives a stable UID from the course's name and slot.
func eventUID(c model.Course) string {
	key := fmt.Sprintf("%s|%v|%s|%s", c.Name, c.Slot.Days, c.Slot.Start, c.Slot.End)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8]) + "@timetable"
}
