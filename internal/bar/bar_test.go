package bar

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"timetable/internal/model"
	"timetable/internal/timetable"
)

func TestDuration(t *testing.T) {
	Convey("Durations are compact and round up to the minute", t, func() {
		cases := map[time.Duration]string{
			0:                             "0m",
			30 * time.Second:              "1m",
			45 * time.Minute:              "45m",
			4 * time.Hour:                 "4h",
			80 * time.Minute:              "1h 20m",
			80*time.Minute + time.Second:  "1h 21m",
			66 * time.Hour:                "2d 18h",
			48*time.Hour + 5*time.Minute:  "2d",
			24*time.Hour - 30*time.Second: "1d",
			-5 * time.Minute:              "0m",
		}
		for d, want := range cases {
			So(Duration(d), ShouldEqual, want)
		}
	})
}

func TestCourseText(t *testing.T) {
	math := &model.Course{Name: "MATH 13"}
	end := time.Date(2025, time.January, 6, 8, 50, 0, 0, time.UTC)

	Convey("Given resolutions", t, func() {
		So(CourseText(timetable.Nearest[*model.Course]{}, false), ShouldEqual, NoCourses)
		So(CourseText(timetable.Nearest[*model.Course]{
			Label: math, Active: true, Interval: timetable.Interval{End: end},
		}, true), ShouldEqual, "MATH 13 until 08:50")
		So(CourseText(timetable.Nearest[*model.Course]{Label: math, Until: 4 * time.Hour}, true), ShouldEqual, "MATH 13 in 4h")
	})
}

func TestClockAndDate(t *testing.T) {
	Convey("Clock and date plugins use the bar's formats", t, func() {
		now := time.Date(2025, time.March, 7, 15, 4, 5, 0, time.UTC)
		So(ClockText(now), ShouldEqual, "3:04:05 PM")
		So(DateText(now), ShouldEqual, "March 7")
	})
}

func TestSketchybar(t *testing.T) {
	Convey("Given a sketchybar presenter with a recording runner", t, func() {
		var gotName string
		var gotArgs []string
		s := NewSketchybar("sketchybar", "course")
		s.Run = func(_ context.Context, name string, args ...string) error {
			gotName, gotArgs = name, args
			return nil
		}

		Convey("Label sets the item label", func() {
			So(s.Label(context.Background(), "MATH 13 in 4h"), ShouldBeNil)
			So(gotName, ShouldEqual, "sketchybar")
			So(gotArgs, ShouldResemble, []string{"--set", "course", "label=MATH 13 in 4h"})
		})

		Convey("Icon sets the item icon", func() {
			So(s.Icon(context.Background(), "March 7"), ShouldBeNil)
			So(gotArgs, ShouldResemble, []string{"--set", "course", "icon=March 7"})
		})

		Convey("Runner errors are returned", func() {
			s.Run = func(context.Context, string, ...string) error { return errors.New("not running") }
			So(s.Label(context.Background(), "x"), ShouldNotBeNil)
		})

		Convey("A missing item is an error", func() {
			s.Item = ""
			So(s.Label(context.Background(), "x"), ShouldNotBeNil)
			So(gotName, ShouldBeEmpty)
		})
	})
}
