package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"timetable/internal/app"
	"timetable/internal/config"
	appLog "timetable/internal/log"
	"timetable/internal/metrics"
	"timetable/internal/model"
)

// Server provides the read-only HTTP API over a timetable service.
type Server struct {
	cfg     *config.Config
	svc     *app.Service
	metrics *metrics.Manager
	mux     *http.ServeMux
}

// NewServer constructs a new Server. m may be nil, in which case /metrics
// is not registered.
func NewServer(cfg *config.Config, svc *app.Service, m *metrics.Manager) *Server {
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		metrics: m,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured with both
// a username and a password.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="timetable", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/nearest", s.handleNearest)
	s.mux.HandleFunc("GET /api/week", s.handleWeek)
	s.mux.HandleFunc("GET /api/agenda", s.handleAgenda)
	s.mux.HandleFunc("GET /api/courses", s.handleCourses)
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendar)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// nearestResponse is the JSON response shape for /api/nearest.
// Course is empty when nothing is active or upcoming.
type nearestResponse struct {
	Now          time.Time  `json:"now"`
	Course       string     `json:"course,omitempty"`
	Source       string     `json:"source,omitempty"`
	Active       bool       `json:"active"`
	UntilSeconds int64      `json:"until_seconds"`
	Start        *time.Time `json:"start,omitempty"`
	End          *time.Time `json:"end,omitempty"`
}

// handleNearest returns the active or next course.
//
// GET /api/nearest
func (s *Server) handleNearest(w http.ResponseWriter, _ *http.Request) {
	now := s.svc.Now()
	res, ok := s.svc.Resolve(now)

	resp := nearestResponse{Now: now}
	if ok {
		resp.Course = res.Label.Name
		resp.Source = res.Label.Source
		resp.Active = res.Active
		resp.UntilSeconds = int64(res.Until / time.Second)
		resp.Start = &res.Interval.Start
		resp.End = &res.Interval.End
	}
	writeJSON(w, http.StatusOK, resp)
}

// weekResponse is the JSON response shape for /api/week.
type weekResponse struct {
	Year        int                `json:"year"`
	Week        int                `json:"week"`
	TimeZone    string             `json:"timezone"`
	Occurrences []model.Occurrence `json:"occurrences"`
}

// handleWeek lists the occurrences of the current (offset=0) or next
// (offset=1) ISO week.
//
// GET /api/week?offset=1
func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)
	if offset < 0 || offset > 1 {
		writeError(w, http.StatusBadRequest, "offset must be 0 or 1")
		return
	}

	now := s.svc.Now()
	occ, err := s.svc.Week(now, offset)
	if err != nil {
		appLog.Error("api week: some courses could not be expanded", err, "offset", offset)
	}

	year, week := now.AddDate(0, 0, 7*offset).ISOWeek()
	writeJSON(w, http.StatusOK, weekResponse{
		Year:        year,
		Week:        week,
		TimeZone:    s.svc.Location().String(),
		Occurrences: occ,
	})
}

// agendaResponse is the JSON response shape for /api/agenda.
type agendaResponse struct {
	Days        int                `json:"days"`
	Occurrences []model.Occurrence `json:"occurrences"`
	Truncated   []string           `json:"truncated,omitempty"`
}

// handleAgenda lists occurrences from now over the next days (default 7,
// at most 90).
//
// GET /api/agenda?days=14
func (s *Server) handleAgenda(w http.ResponseWriter, r *http.Request) {
	days := parseIntDefault(r.URL.Query().Get("days"), 7)
	if days < 1 || days > 90 {
		writeError(w, http.StatusBadRequest, "days must be between 1 and 90")
		return
	}

	res, err := s.svc.Agenda(s.svc.Now(), days)
	if err != nil {
		appLog.Error("api agenda: expansion failed", err, "days", days)
		writeError(w, http.StatusInternalServerError, "failed to expand agenda")
		return
	}
	occ := res.Occurrences
	if occ == nil {
		occ = []model.Occurrence{}
	}
	writeJSON(w, http.StatusOK, agendaResponse{Days: days, Occurrences: occ, Truncated: res.Truncated})
}

// courseDTO is a JSON-friendly view of a course.
type courseDTO struct {
	Name   string   `json:"name"`
	Source string   `json:"source,omitempty"`
	Days   []string `json:"days"`
	Start  string   `json:"start"`
	End    string   `json:"end"`
}

func (s *Server) handleCourses(w http.ResponseWriter, _ *http.Request) {
	courses := s.svc.Courses()
	out := make([]courseDTO, 0, len(courses))
	for _, c := range courses {
		days := make([]string, 0, len(c.Slot.Days))
		for _, d := range c.Slot.Days {
			days = append(days, d.String())
		}
		out = append(out, courseDTO{
			Name:   c.Name,
			Source: c.Source,
			Days:   days,
			Start:  c.Slot.Start.String(),
			End:    c.Slot.End.String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCalendar serves the timetable as an ICS feed for calendar apps.
func (s *Server) handleCalendar(w http.ResponseWriter, _ *http.Request) {
	body, err := s.svc.ExportICS(s.svc.Now())
	if err != nil {
		appLog.Error("api calendar: some courses were left out", err)
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
