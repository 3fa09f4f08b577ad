package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"bookcal/internal/calendar"
	"bookcal/internal/config"
	"bookcal/internal/ics"
	appLog "bookcal/internal/log"
	"bookcal/internal/metrics"
	"bookcal/internal/model"
	"bookcal/internal/session"
)

// Calendar is the view state the HTTP surface reads and drives.
// *session.Session satisfies it.
type Calendar interface {
	Snapshot() session.Snapshot
	Next() session.Snapshot
	Prev() session.Snapshot
	Today() session.Snapshot
	ToggleMode() session.Snapshot
	SetMode(calendar.Mode) session.Snapshot
	SetDate(model.Date) session.Snapshot
	Reload(ctx context.Context) (session.Snapshot, error)
}

// Options carries the optional collaborators of a Server.
type Options struct {
	Metrics *metrics.Metrics
	// AccessLog receives Apache-style access lines. Nil disables them.
	AccessLog io.Writer
}

// Server provides the grid API, the rendered calendar page, the iCalendar
// feed and metrics.
type Server struct {
	cfg     *config.Config
	cal     Calendar
	metrics *metrics.Metrics
	access  io.Writer
	router  *mux.Router
}

func NewServer(cfg *config.Config, cal Calendar, opts Options) *Server {
	s := &Server{
		cfg:     cfg,
		cal:     cal,
		metrics: opts.Metrics,
		access:  opts.AccessLog,
		router:  mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the full middleware chain around the router.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(h)
	if s.access != nil {
		h = handlers.LoggingHandler(s.access, h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password means disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health and /metrics with
// HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="bookcal", charset="UTF-8"`)
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

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appLog.Info("stopping HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.handle("/health", s.handleHealth, http.MethodGet)
	s.handle("/api/grid", s.handleGrid, http.MethodGet)
	s.handle("/api/navigate/{action}", s.handleNavigate, http.MethodPost)
	s.handle("/api/reload", s.handleReload, http.MethodPost)
	s.handle("/api/calendar.ics", s.handleICS, http.MethodGet)
	s.handle("/calendar", s.handleCalendarPage, http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
}

func (s *Server) handle(path string, fn http.HandlerFunc, methods ...string) {
	s.router.Handle(path, s.metrics.WrapHandler(path, fn)).Methods(methods...)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleGrid(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newGridResponse(s.cal.Snapshot()))
}

// handleNavigate moves the view and reloads the new period.
//
// POST /api/navigate/{action}
//   - next, prev, today, toggle
//   - week, month: switch mode explicitly
//   - date: requires ?date=YYYY-MM-DD
func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]

	switch action {
	case "next":
		s.cal.Next()
	case "prev":
		s.cal.Prev()
	case "today":
		s.cal.Today()
	case "toggle":
		s.cal.ToggleMode()
	case "week":
		s.cal.SetMode(calendar.Week)
	case "month":
		s.cal.SetMode(calendar.Month)
	case "date":
		d, err := model.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		s.cal.SetDate(d)
	default:
		writeError(w, http.StatusNotFound, "unknown navigation action")
		return
	}

	s.reloadAndRespond(w, r)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	s.reloadAndRespond(w, r)
}

// reloadAndRespond answers with whatever snapshot is current after the
// reload. A failed fetch still answers 200: the previous grid is kept and
// the failure is reported in last_error.
func (s *Server) reloadAndRespond(w http.ResponseWriter, r *http.Request) {
	snap, err := s.cal.Reload(r.Context())
	if errors.Is(err, session.ErrStale) {
		snap = s.cal.Snapshot()
	}
	writeJSON(w, http.StatusOK, newGridResponse(snap))
}

func (s *Server) handleICS(w http.ResponseWriter, _ *http.Request) {
	snap := s.cal.Snapshot()
	body := ics.Export(ics.Feed{
		Name:     snap.Header,
		Timezone: snap.Timezone,
		Stamp:    time.Now(),
	}, ics.Bookings(snap.Grid))

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="bookings.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
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
