package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "timetable/internal/log"
	"timetable/internal/model"
	"timetable/internal/timetable"
)

// errNotWeekly marks events that cannot be represented as a weekly window.
var errNotWeekly = errors.New("not a plain weekly event")

// ParseICS imports the weekly recurring VEVENTs of an ICS payload as
// courses. Times are read in loc. Events that are not weekly, span
// midnight, or whose UNTIL lies before now are skipped and logged; they do
// not fail the feed.
func ParseICS(src Source, body []byte, loc *time.Location, now time.Time) ([]model.Course, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics %s: %w", src.ID, err)
	}

	courses := make([]model.Course, 0)
	for _, ve := range cal.Events() {
		c, err := parseVEvent(ve, loc, now)
		if err != nil {
			appLog.Debug("ics vevent skipped", "id", src.ID, "reason", err.Error())
			continue
		}
		c.Source = src.ID
		courses = append(courses, c)
	}

	appLog.Info("ics import completed", "id", src.ID, "url", redactURL(src.URL), "course_count", len(courses))
	return courses, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location, now time.Time) (model.Course, error) {
	var out model.Course

	uid := ""
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		uid = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Name = strings.TrimSpace(p.Value)
	}
	if out.Name == "" {
		return out, fmt.Errorf("event %q: missing SUMMARY", uid)
	}

	rruleProp := ve.GetProperty(ical.ComponentPropertyRrule)
	if rruleProp == nil {
		return out, fmt.Errorf("event %q: %w: no RRULE", uid, errNotWeekly)
	}
	opt, err := rrule.StrToROption(rruleProp.Value)
	if err != nil {
		return out, fmt.Errorf("event %q: %w", uid, err)
	}
	if opt.Freq != rrule.WEEKLY || opt.Interval > 1 {
		return out, fmt.Errorf("event %q: %w: %s", uid, errNotWeekly, rruleProp.Value)
	}
	if !opt.Until.IsZero() && opt.Until.Before(now) {
		return out, fmt.Errorf("event %q: recurrence ended %s", uid, opt.Until.Format(time.RFC3339))
	}

	rawStart, err := eventTime(ve, ical.ComponentPropertyDtStart, loc)
	if err != nil {
		return out, fmt.Errorf("event %q: DTSTART: %w", uid, err)
	}
	rawEnd, err := eventTime(ve, ical.ComponentPropertyDtEnd, loc)
	if err != nil {
		return out, fmt.Errorf("event %q: DTEND: %w", uid, err)
	}
	start, end := rawStart.In(loc), rawEnd.In(loc)
	if start.YearDay() != end.YearDay() || start.Year() != end.Year() {
		return out, fmt.Errorf("event %q: %w: spans midnight", uid, errNotWeekly)
	}

	if out.Slot.Start, err = timetable.NewTimeOfDay(start.Hour(), start.Minute()); err != nil {
		return out, err
	}
	if out.Slot.End, err = timetable.NewTimeOfDay(end.Hour(), end.Minute()); err != nil {
		return out, err
	}

	if len(opt.Byweekday) == 0 {
		out.Slot.Days = []timetable.Weekday{timetable.Weekday(start.Weekday())}
	} else {
		// BYDAY is read in DTSTART's own zone; follow the start if the
		// conversion to loc moved it to another day.
		shift := civilDayDiff(rawStart, start)
		for i := range opt.Byweekday {
			out.Slot.Days = append(out.Slot.Days, shiftWeekday(fromRRuleDay(opt.Byweekday[i].Day()), shift))
		}
	}

	if err := out.Slot.Validate(); err != nil {
		return out, fmt.Errorf("event %q: %w", uid, err)
	}
	return out, nil
}

// eventTime reads a DTSTART/DTEND property in its own zone. Values carrying
// a TZID go through the library's timezone handling; UTC and floating values
// are parsed directly so that floating times land in loc rather than
// time.Local.
func eventTime(ve *ical.VEvent, prop ical.ComponentProperty, loc *time.Location) (time.Time, error) {
	p := ve.GetProperty(prop)
	if p == nil {
		return time.Time{}, errors.New("missing")
	}
	if tz, ok := p.ICalParameters["TZID"]; ok && len(tz) > 0 {
		var t time.Time
		var err error
		if prop == ical.ComponentPropertyDtEnd {
			t, err = ve.GetEndAt()
		} else {
			t, err = ve.GetStartAt()
		}
		if err != nil {
			return time.Time{}, err
		}
		return t, nil
	}
	if !strings.Contains(p.Value, "T") {
		return time.Time{}, fmt.Errorf("%w: all-day", errNotWeekly)
	}
	return parseICSTime(p.Value, loc)
}

// parseICSTime parses a UTC ("...Z") or floating date-time value.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	return time.ParseInLocation("20060102T150405", v, loc)
}

// fromRRuleDay maps rrule-go's Monday=0 numbering to a Weekday.
func fromRRuleDay(d int) timetable.Weekday {
	return timetable.Weekday((d + 1) % 7)
}

// civilDayDiff returns how many calendar days b's wall-clock date lies after
// a's, each read in its own location.
func civilDayDiff(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

func shiftWeekday(d timetable.Weekday, days int) timetable.Weekday {
	return timetable.Weekday(((int(d)+days)%7 + 7) % 7)
}
