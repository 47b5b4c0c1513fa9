package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"

	"timetable/internal/config"
	"timetable/internal/metrics"
	"timetable/internal/model"
	"timetable/internal/timetable"
)

var kst = time.FixedZone("KST", 9*60*60)

func schedule() []model.Course {
	mwf := []timetable.Weekday{timetable.Monday, timetable.Wednesday, timetable.Friday}
	return []model.Course{
		{Name: "MATH 13", Slot: timetable.Weekly{Days: mwf, Start: timetable.MustTimeOfDay(8, 0), End: timetable.MustTimeOfDay(8, 50)}},
		{Name: "MATH 9", Slot: timetable.Weekly{Days: mwf, Start: timetable.MustTimeOfDay(13, 0), End: timetable.MustTimeOfDay(13, 50)}},
		{Name: "COMLIT 10", Slot: timetable.Weekly{Days: []timetable.Weekday{timetable.Tuesday, timetable.Thursday}, Start: timetable.MustTimeOfDay(11, 0), End: timetable.MustTimeOfDay(12, 20)}},
	}
}

func TestService(t *testing.T) {
	Convey("Given a service over three courses", t, func() {
		m := metrics.NewManager()
		monday := time.Date(2025, time.January, 6, 9, 0, 0, 0, kst)
		svc := New(schedule(), kst, WithMetrics(m), WithClock(func() time.Time { return monday.UTC() }))

		Convey("Now is sampled in the service zone", func() {
			So(svc.Now().Location(), ShouldEqual, kst)
			So(svc.Now().Equal(monday), ShouldBeTrue)
		})

		Convey("Resolve finds the next course and records metrics", func() {
			res, ok := svc.Resolve(svc.Now())
			So(ok, ShouldBeTrue)
			So(res.Label.Name, ShouldEqual, "MATH 9")
			So(res.Until, ShouldEqual, 4*time.Hour)
			n, err := testutil.GatherAndCount(m.Registry(), "timetable_resolutions_total")
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})

		Convey("Week lists occurrences in start order", func() {
			occ, err := svc.Week(monday, 0)
			So(err, ShouldBeNil)
			So(occ, ShouldHaveLength, 8)
			So(occ[0].Course, ShouldEqual, "MATH 13")
			So(occ[1].Course, ShouldEqual, "MATH 9")
			So(occ[2].Course, ShouldEqual, "COMLIT 10")
			for i := 1; i < len(occ); i++ {
				So(occ[i].Start.Before(occ[i-1].Start), ShouldBeFalse)
			}
		})

		Convey("Courses cannot be mutated through the accessor", func() {
			cs := svc.Courses()
			cs[0].Name = "changed"
			res, _ := svc.Resolve(time.Date(2025, time.January, 6, 8, 10, 0, 0, kst))
			So(res.Label.Name, ShouldEqual, "MATH 13")
		})

		Convey("Agenda covers more than two weeks", func() {
			res, err := svc.Agenda(monday, 21)
			So(err, ShouldBeNil)
			So(res.Occurrences[0].Course, ShouldEqual, "MATH 9")
			So(len(res.Occurrences), ShouldBeGreaterThan, 16)
		})

		Convey("ExportICS renders every course", func() {
			out, err := svc.ExportICS(monday)
			So(err, ShouldBeNil)
			So(strings.Count(out, "BEGIN:VEVENT"), ShouldEqual, 3)
		})
	})

	Convey("Given a course that cannot expand", t, func() {
		courses := append(schedule(), model.Course{Name: "broken", Slot: timetable.Weekly{
			Days: []timetable.Weekday{timetable.Weekday(11)}, Start: timetable.MustTimeOfDay(8, 0), End: timetable.MustTimeOfDay(9, 0),
		}})
		svc := New(courses, kst)

		Convey("Resolve still answers from the others", func() {
			res, ok := svc.Resolve(time.Date(2025, time.January, 6, 9, 0, 0, 0, kst))
			So(ok, ShouldBeTrue)
			So(res.Label.Name, ShouldEqual, "MATH 9")
		})

		Convey("Week reports the failure but keeps the rest", func() {
			occ, err := svc.Week(time.Date(2025, time.January, 6, 9, 0, 0, 0, kst), 1)
			So(err, ShouldNotBeNil)
			So(occ, ShouldHaveLength, 8)
		})
	})
}

func TestLoadCourses(t *testing.T) {
	Convey("Given a course directory and an ICS feed", t, func() {
		dir := t.TempDir()
		So(os.WriteFile(filepath.Join(dir, "math.yml"), []byte("name: MATH 13\nslot: {days: [Mon], start: \"08:00\", end: \"08:50\"}\n"), 0o600), ShouldBeNil)

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:test\r\nBEGIN:VEVENT\r\nUID:x\r\nSUMMARY:PHYS 7\r\n" +
				"DTSTART:20250107T090000\r\nDTEND:20250107T100000\r\nRRULE:FREQ=WEEKLY;BYDAY=TU\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"
			_, _ = w.Write([]byte(body))
		}))
		Reset(srv.Close)

		cfg := config.DefaultConfig()
		cfg.CoursesDir = dir
		cfg.CacheDir = filepath.Join(dir, "cache")
		cfg.ICS = []config.ICSConfig{{ID: "uni", URL: srv.URL}}

		courses, errs := LoadCourses(context.Background(), cfg, kst, time.Date(2025, time.January, 8, 0, 0, 0, 0, kst))

		Convey("Then both sources contribute courses", func() {
			So(errs, ShouldBeEmpty)
			So(courses, ShouldHaveLength, 2)
			So(courses[0].Name, ShouldEqual, "MATH 13")
			So(courses[1].Name, ShouldEqual, "PHYS 7")
			So(courses[1].Source, ShouldEqual, "uni")
		})
	})

	Convey("Given an empty course directory and no feeds", t, func() {
		cfg := config.DefaultConfig()
		cfg.CoursesDir = t.TempDir()
		courses, errs := LoadCourses(context.Background(), cfg, kst, time.Now())
		So(courses, ShouldBeEmpty)
		So(errs, ShouldHaveLength, 1)
	})
}

func TestResolveLocation(t *testing.T) {
	Convey("Unknown zones fall back to local", t, func() {
		So(ResolveLocation(""), ShouldEqual, time.Local)
		So(ResolveLocation("Not/AZone"), ShouldEqual, time.Local)
	})
}
