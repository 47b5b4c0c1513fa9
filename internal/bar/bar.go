package bar

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"timetable/internal/model"
	"timetable/internal/timetable"
)

// NoCourses is shown when nothing is active or upcoming.
const NoCourses = "No classes"

// CourseText renders a resolution for the bar:
//
//	MATH 13 until 08:50
//	MATH 9 in 4h
//	No classes
func CourseText(res timetable.Nearest[*model.Course], ok bool) string {
	if !ok || res.Label == nil {
		return NoCourses
	}
	if res.Active {
		return fmt.Sprintf("%s until %s", res.Label.Name, res.Interval.End.Format("15:04"))
	}
	return fmt.Sprintf("%s in %s", res.Label.Name, Duration(res.Until))
}

// Duration formats d compactly, rounding up to whole minutes: "2d 3h",
// "1h 20m", "45m".
func Duration(d time.Duration) string {
	if d <= 0 {
		return "0m"
	}
	d = (d + time.Minute - 1).Truncate(time.Minute)
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	// Minutes are dropped once the distance is measured in days.
	if minutes > 0 && days == 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	return strings.Join(parts, " ")
}

// ClockText is the time plugin's text, e.g. "3:04:05 PM".
func ClockText(now time.Time) string { return now.Format("3:04:05 PM") }

// DateText is the date plugin's text, e.g. "January 2".
func DateText(now time.Time) string { return now.Format("January 2") }

// Runner executes a command. It is swapped out in tests.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil && len(out) > 0 {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return err
}

// Sketchybar pushes properties to a sketchybar item.
type Sketchybar struct {
	Binary string
	Item   string
	Run    Runner
}

// NewSketchybar returns a presenter that runs binary.
func NewSketchybar(binary, item string) *Sketchybar {
	return &Sketchybar{Binary: binary, Item: item, Run: execRunner}
}

// Set runs `<binary> --set <item> key=value...`.
func (s *Sketchybar) Set(ctx context.Context, props ...string) error {
	if s.Binary == "" {
		return errors.New("bar: no sketchybar binary configured")
	}
	if s.Item == "" {
		return errors.New("bar: no item name (set bar.item or $NAME)")
	}
	run := s.Run
	if run == nil {
		run = execRunner
	}
	args := append([]string{"--set", s.Item}, props...)
	return run(ctx, s.Binary, args...)
}

// Label sets the item's label.
func (s *Sketchybar) Label(ctx context.Context, text string) error {
	return s.Set(ctx, "label="+text)
}

// Icon sets the item's icon.
func (s *Sketchybar) Icon(ctx context.Context, text string) error {
	return s.Set(ctx, "icon="+text)
}
