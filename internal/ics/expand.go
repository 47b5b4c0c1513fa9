package ics

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	appLog "timetable/internal/log"
	"timetable/internal/model"
)

const (
	defaultMaxOccurrencesPerCourse = 500
)

// AgendaConfig controls how courses are expanded over a date range.
type AgendaConfig struct {
	// Location is the zone course times are read in. If nil, time.Local is used.
	Location *time.Location

	// RangeStart / RangeEnd define the time window; occurrences overlapping
	// it are returned.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerCourse caps expansion of a single course. If zero,
	// defaultMaxOccurrencesPerCourse is used.
	MaxOccurrencesPerCourse int
}

// AgendaResult wraps the expanded occurrences and the courses that hit the
// per-course cap.
type AgendaResult struct {
	Occurrences []model.Occurrence
	Truncated   []string
}

// Agenda expands courses into concrete occurrences within an arbitrary
// range using each course's weekly RRULE. Unlike the ISO-week expander it
// is not limited to the current and next week.
func Agenda(courses []model.Course, cfg AgendaConfig) (AgendaResult, error) {
	var result AgendaResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("agenda: RangeEnd is before RangeStart")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrencesPerCourse <= 0 {
		cfg.MaxOccurrencesPerCourse = defaultMaxOccurrencesPerCourse
	}

	for _, c := range courses {
		occ, truncated, err := expandCourse(c, cfg)
		if err != nil {
			appLog.Error("agenda: failed to expand course", err, "course", c.Name)
			continue
		}
		if truncated {
			result.Truncated = append(result.Truncated, c.Name)
		}
		result.Occurrences = append(result.Occurrences, occ...)
	}

	slices.SortStableFunc(result.Occurrences, func(a, b model.Occurrence) int {
		return a.Start.Compare(b.Start)
	})

	appLog.Debug("agenda expanded",
		"courses", len(courses),
		"occurrences", len(result.Occurrences),
		"truncated", len(result.Truncated),
	)
	return result, nil
}

func expandCourse(c model.Course, cfg AgendaConfig) ([]model.Occurrence, bool, error) {
	if err := c.Slot.Validate(); err != nil {
		return nil, false, err
	}
	if len(c.Slot.Days) == 0 {
		return nil, false, nil
	}

	opt, err := rrule.StrToROption(WeeklyRRule(c.Slot.Days))
	if err != nil {
		return nil, false, err
	}
	if len(opt.Byweekday) == 0 {
		return nil, false, fmt.Errorf("no valid weekdays in %v", c.Slot.Days)
	}

	// Anchor at midnight of the day before the range so a class already
	// running at RangeStart is still produced.
	from := cfg.RangeStart.In(cfg.Location)
	anchor := time.Date(from.Year(), from.Month(), from.Day()-1,
		c.Slot.Start.Hour(), c.Slot.Start.Minute(), 0, 0, cfg.Location)
	opt.Dtstart = anchor

	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, false, err
	}

	length := time.Duration(slotMinutes(c)) * time.Minute
	starts := rule.Between(anchor, cfg.RangeEnd, true)

	out := make([]model.Occurrence, 0, len(starts))
	truncated := false
	for _, start := range starts {
		end := start.Add(length)
		if !timeRangesOverlap(start, end, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		if len(out) >= cfg.MaxOccurrencesPerCourse {
			truncated = true
			appLog.Info("agenda: max occurrences per course reached",
				"course", c.Name,
				"max", cfg.MaxOccurrencesPerCourse,
			)
			break
		}
		out = append(out, model.Occurrence{
			Course: c.Name,
			Source: c.Source,
			Start:  start,
			End:    end,
		})
	}
	return out, truncated, nil
}

func slotMinutes(c model.Course) int {
	start := c.Slot.Start.Hour()*60 + c.Slot.Start.Minute()
	end := c.Slot.End.Hour()*60 + c.Slot.End.Minute()
	return end - start
}

// timeRangesOverlap reports whether [aStart, aEnd] and [bStart, bEnd]
// intersect.
func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
