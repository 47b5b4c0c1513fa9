package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"timetable/internal/app"
	"timetable/internal/config"
	"timetable/internal/metrics"
	"timetable/internal/model"
	"timetable/internal/timetable"
)

var kst = time.FixedZone("KST", 9*60*60)

func newTestServer(cfg *config.Config, now time.Time) *Server {
	mwf := []timetable.Weekday{timetable.Monday, timetable.Wednesday, timetable.Friday}
	courses := []model.Course{
		{Name: "MATH 13", Slot: timetable.Weekly{Days: mwf, Start: timetable.MustTimeOfDay(8, 0), End: timetable.MustTimeOfDay(8, 50)}},
		{Name: "MATH 9", Slot: timetable.Weekly{Days: mwf, Start: timetable.MustTimeOfDay(13, 0), End: timetable.MustTimeOfDay(13, 50)}},
	}
	m := metrics.NewManager()
	svc := app.New(courses, kst, app.WithMetrics(m), app.WithClock(func() time.Time { return now }))
	return NewServer(cfg, svc, m)
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestServer(t *testing.T) {
	Convey("Given a server over two courses on Monday morning", t, func() {
		cfg := config.DefaultConfig()
		h := newTestServer(cfg, time.Date(2025, time.January, 6, 8, 20, 0, 0, kst)).Handler()

		Convey("/health answers OK", func() {
			rec := get(h, "/health")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldEqual, "OK")
		})

		Convey("/api/nearest reports the active course", func() {
			rec := get(h, "/api/nearest")
			So(rec.Code, ShouldEqual, http.StatusOK)

			var resp nearestResponse
			So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Course, ShouldEqual, "MATH 13")
			So(resp.Active, ShouldBeTrue)
			So(resp.UntilSeconds, ShouldEqual, int64(0))
			So(resp.End.Equal(time.Date(2025, time.January, 6, 8, 50, 0, 0, kst)), ShouldBeTrue)
		})

		Convey("/api/week lists next week's meetings", func() {
			rec := get(h, "/api/week?offset=1")
			So(rec.Code, ShouldEqual, http.StatusOK)

			var resp weekResponse
			So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Year, ShouldEqual, 2025)
			So(resp.Week, ShouldEqual, 3)
			So(resp.Occurrences, ShouldHaveLength, 6)
		})

		Convey("/api/week rejects other offsets", func() {
			So(get(h, "/api/week?offset=2").Code, ShouldEqual, http.StatusBadRequest)
			So(get(h, "/api/week?offset=-1").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("/api/agenda lists the coming days", func() {
			rec := get(h, "/api/agenda?days=2")
			So(rec.Code, ShouldEqual, http.StatusOK)

			var resp agendaResponse
			So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Days, ShouldEqual, 2)
			So(resp.Occurrences, ShouldHaveLength, 3)
			So(resp.Occurrences[2].Start.Weekday(), ShouldEqual, time.Wednesday)
			So(get(h, "/api/agenda?days=0").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("/api/courses lists slots", func() {
			rec := get(h, "/api/courses")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, `"days":["Mon","Wed","Fri"]`)
			So(rec.Body.String(), ShouldContainSubstring, `"start":"08:00"`)
		})

		Convey("/calendar.ics serves a calendar", func() {
			rec := get(h, "/calendar.ics")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get("Content-Type"), ShouldStartWith, "text/calendar")
			So(strings.Count(rec.Body.String(), "BEGIN:VEVENT"), ShouldEqual, 2)
		})

		Convey("/metrics exposes resolution counters", func() {
			get(h, "/api/nearest")
			rec := get(h, "/metrics")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "timetable_resolutions_total")
		})
	})

	Convey("Given a server late on Sunday of the last week", t, func() {
		h := newTestServer(config.DefaultConfig(), time.Date(2025, time.January, 19, 23, 0, 0, 0, kst)).Handler()

		Convey("/api/nearest still finds Monday's class", func() {
			var resp nearestResponse
			So(json.Unmarshal(get(h, "/api/nearest").Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Course, ShouldEqual, "MATH 13")
			So(resp.Active, ShouldBeFalse)
			So(resp.UntilSeconds, ShouldEqual, int64(9*60*60))
		})
	})

	Convey("Given a server with basic auth", t, func() {
		cfg := config.DefaultConfig()
		cfg.BasicAuth = &config.BasicAuthConfig{Username: "me", Password: "secret"}
		h := newTestServer(cfg, time.Date(2025, time.January, 6, 8, 20, 0, 0, kst)).Handler()

		Convey("/health stays open", func() {
			So(get(h, "/health").Code, ShouldEqual, http.StatusOK)
		})

		Convey("API calls without credentials are rejected", func() {
			rec := get(h, "/api/nearest")
			So(rec.Code, ShouldEqual, http.StatusUnauthorized)
			So(rec.Header().Get("WWW-Authenticate"), ShouldContainSubstring, "Basic")
		})

		Convey("API calls with credentials pass", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/nearest", nil)
			req.SetBasicAuth("me", "secret")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("A wrong password is rejected", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/nearest", nil)
			req.SetBasicAuth("me", "nope")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			So(rec.Code, ShouldEqual, http.StatusUnauthorized)
		})
	})
}
