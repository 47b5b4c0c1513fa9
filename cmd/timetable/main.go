package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "time/tzdata"

	"timetable/internal/app"
	"timetable/internal/bar"
	"timetable/internal/config"
	"timetable/internal/fsutil"
	appLog "timetable/internal/log"
	"timetable/internal/metrics"
	"timetable/internal/scheduler"
	"timetable/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	mode       string
	export     string
	once       bool
	print      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.SetFormat(conf.LogFormat)

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Debug("effective config",
		"courses_dir", conf.CoursesDir,
		"ics_count", len(conf.ICS),
		"timezone", conf.Timezone,
		"listen", conf.Listen,
		"refresh", conf.RefreshCron,
		"mode", flags.mode,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("timetable failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	loc := app.ResolveLocation(conf.Timezone)
	m := metrics.NewManager()

	// Clock and date modes never need the course list.
	var svc *app.Service
	if flags.mode == "course" || flags.export != "" || !flags.once {
		courses, errs := app.LoadCourses(ctx, conf, loc, time.Now().In(loc))
		m.ObserveLoad(len(courses), len(errs))
		svc = app.New(courses, loc, app.WithMetrics(m))
	} else {
		svc = app.New(nil, loc, app.WithMetrics(m))
	}

	if flags.export != "" {
		return exportCalendar(svc, flags.export)
	}

	item := conf.Bar.Item
	if item == "" {
		item = os.Getenv("NAME")
	}
	sb := bar.NewSketchybar(conf.Bar.Binary, item)

	refresh := func(ctx context.Context) error {
		err := present(ctx, svc, sb, flags)
		if !flags.print {
			m.ObserveBarUpdate(err)
		}
		return err
	}

	if flags.once {
		return refresh(ctx)
	}

	sched := scheduler.New(conf.RefreshCron, loc, refresh)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	if conf.Listen == "" {
		<-ctx.Done()
		appLog.Info("timetable exiting")
		return nil
	}

	srv := web.NewServer(conf, svc, m)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	appLog.Info("timetable exiting")
	return nil
}

// present renders the text for flags.mode and prints it or pushes it to
// the bar.
func present(ctx context.Context, svc *app.Service, sb *bar.Sketchybar, flags flagConfig) error {
	now := svc.Now()

	var text string
	switch flags.mode {
	case "time":
		text = bar.ClockText(now)
	case "date":
		text = bar.DateText(now)
	default:
		res, ok := svc.Resolve(now)
		text = bar.CourseText(res, ok)
	}

	if flags.print {
		_, err := fmt.Fprintln(os.Stdout, text)
		return err
	}
	if flags.mode == "course" {
		return sb.Label(ctx, text)
	}
	return sb.Icon(ctx, text)
}

func exportCalendar(svc *app.Service, path string) error {
	body, err := svc.ExportICS(svc.Now())
	if err != nil {
		appLog.Error("some courses were left out of the calendar", err)
	}
	if path == "-" {
		_, err = os.Stdout.WriteString(body)
		return err
	}
	if err := fsutil.WriteFileAtomic(path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write calendar: %w", err)
	}
	appLog.Info("calendar exported", "path", path, "courses", len(svc.Courses()))
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", defaultConfigPath(), "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.mode, "mode", "course", "What to present: course, time or date")
	flag.StringVar(&cfg.export, "export", "", "Write the timetable as ICS to this path (- for stdout) and exit")
	flag.BoolVar(&cfg.once, "once", false, "Present once and exit (sketchybar plugin mode)")
	flag.BoolVar(&cfg.print, "print", false, "Print the text to stdout instead of updating the bar")

	flag.Parse()

	switch cfg.mode {
	case "course", "time", "date":
	default:
		fmt.Fprintf(os.Stderr, "invalid -mode %q: want course, time or date\n", cfg.mode)
		os.Exit(2)
	}

	return cfg
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		if home, herr := os.UserHomeDir(); herr == nil {
			return filepath.Join(home, ".config", "timetable", "config.yaml")
		}
		return "config.yaml"
	}
	return filepath.Join(dir, "timetable", "config.yaml")
}
