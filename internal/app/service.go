package app

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"timetable/internal/config"
	"timetable/internal/course"
	"timetable/internal/ics"
	appLog "timetable/internal/log"
	"timetable/internal/metrics"
	"timetable/internal/model"
	"timetable/internal/timetable"
)

// Service answers timetable queries over a course list that is loaded once
// and never mutated, so it is safe for concurrent use.
type Service struct {
	courses []model.Course
	windows []timetable.Labeled[*model.Course]
	loc     *time.Location
	clock   func() time.Time
	metrics *metrics.Manager
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithMetrics records resolutions in m.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Service) { s.metrics = m }
}

// New builds a Service over courses. A nil loc means time.Local.
func New(courses []model.Course, loc *time.Location, opts ...Option) *Service {
	if loc == nil {
		loc = time.Local
	}
	s := &Service{
		courses: slices.Clone(courses),
		loc:     loc,
		clock:   time.Now,
	}
	s.windows = model.Windows(s.courses)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadCourses gathers courses from the configured directory and ICS feeds.
// Individual failures are logged and returned; whatever loaded is kept.
func LoadCourses(ctx context.Context, cfg *config.Config, loc *time.Location, now time.Time) ([]model.Course, []error) {
	courses, errs := course.LoadDir(cfg.CoursesDir)

	if len(cfg.ICS) > 0 {
		// A missing course directory is fine when feeds supply the timetable.
		errs = slices.DeleteFunc(errs, func(err error) bool { return errors.Is(err, course.ErrNoCourses) })

		sources := make([]ics.Source, 0, len(cfg.ICS))
		for _, c := range cfg.ICS {
			id := c.ID
			if id == "" {
				id = c.URL
			}
			sources = append(sources, ics.Source{ID: id, URL: c.URL})
		}

		fetcher := ics.NewFetcher(cfg.CacheDir, &http.Client{Timeout: 15 * time.Second})
		results, fetchErrs := fetcher.FetchAll(ctx, sources)
		errs = append(errs, fetchErrs...)
		for _, res := range results {
			imported, err := ics.ParseICS(res.Source, res.Body, loc, now)
			if err != nil {
				appLog.Error("ics import failed", err, "id", res.Source.ID)
				errs = append(errs, err)
				continue
			}
			courses = append(courses, imported...)
		}
	}

	appLog.Info("courses loaded", "count", len(courses), "errors", len(errs))
	return courses, errs
}

// ResolveLocation loads an IANA zone name, falling back to time.Local.
func ResolveLocation(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

// Now samples the clock once in the service's zone.
func (s *Service) Now() time.Time { return s.clock().In(s.loc) }

// Location returns the zone all occurrences are built in.
func (s *Service) Location() *time.Location { return s.loc }

// Courses returns a copy of the loaded courses.
func (s *Service) Courses() []model.Course { return slices.Clone(s.courses) }

// Resolve returns the active or next course at now. Windows that fail to
// expand are logged and left out.
func (s *Service) Resolve(now time.Time) (timetable.Nearest[*model.Course], bool) {
	res, ok, err := timetable.ResolveNearest(s.windows, now.In(s.loc))

	failed := 0
	if err != nil {
		failed = len(unwrapJoined(err))
		appLog.Error("some courses could not be expanded", err, "failed", failed)
	}

	switch {
	case !ok:
		s.metrics.ObserveResolution(metrics.OutcomeNone, 0, failed)
	case res.Active:
		s.metrics.ObserveResolution(metrics.OutcomeActive, 0, failed)
	default:
		s.metrics.ObserveResolution(metrics.OutcomeUpcoming, res.Until, failed)
	}

	if ok {
		appLog.Debug("resolved", "course", res.Label.Name, "active", res.Active, "until", res.Until)
	}
	return res, ok
}

// Week lists every occurrence in the ISO week of now shifted by weekOffset,
// ordered by start.
func (s *Service) Week(now time.Time, weekOffset int) ([]model.Occurrence, error) {
	now = now.In(s.loc)
	out := make([]model.Occurrence, 0)
	var errs []error
	for _, c := range s.courses {
		ivs, err := c.Slot.Expand(weekOffset, now)
		if err != nil {
			errs = append(errs, &timetable.WindowError{Label: c.Name, Week: weekOffset, Err: err})
			continue
		}
		for _, iv := range ivs {
			out = append(out, model.Occurrence{Course: c.Name, Source: c.Source, Start: iv.Start, End: iv.End})
		}
	}
	slices.SortStableFunc(out, func(a, b model.Occurrence) int { return a.Start.Compare(b.Start) })
	return out, errors.Join(errs...)
}

// Agenda lists occurrences from now over the next days, using the courses'
// weekly rules rather than the two-week window.
func (s *Service) Agenda(now time.Time, days int) (ics.AgendaResult, error) {
	now = now.In(s.loc)
	return ics.Agenda(s.courses, ics.AgendaConfig{
		Location:   s.loc,
		RangeStart: now,
		RangeEnd:   now.AddDate(0, 0, days),
	})
}

// ExportICS renders the timetable as an ICS calendar. Courses that cannot be
// expanded are left out and reported in err alongside the calendar.
func (s *Service) ExportICS(now time.Time) (string, error) {
	return ics.Export(s.courses, now.In(s.loc))
}

func unwrapJoined(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
