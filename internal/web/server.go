package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/example/teetime-scheduler/internal/auth"
	"github.com/example/teetime-scheduler/internal/db"
	"github.com/example/teetime-scheduler/internal/domain/booking"
	"github.com/example/teetime-scheduler/internal/runs"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var fs embed.FS

const recentRuns = 25

// RunStore is the run history the UI reads. *runs.Repo satisfies it.
type RunStore interface {
	ListRecent(ctx context.Context, limit int) ([]runs.Run, error)
	Get(ctx context.Context, id string) (booking.RunResult, error)
}

// Trigger starts a run outside the weekly schedule. *scheduler.Scheduler satisfies it.
type Trigger interface {
	TriggerNow() bool
	Running() bool
}

type Server struct {
	Auth    *auth.Store
	Runs    RunStore
	Trigger Trigger
	Metrics http.Handler
	Log     *zap.Logger
}

type tmplData struct {
	Title   string
	User    int64
	Flash   string
	Running bool
	Runs    []runs.Run
	Run     booking.RunResult
}

var funcs = template.FuncMap{
	"date":    func(t time.Time) string { return t.Format("Mon 2006-01-02") },
	"stamp":   stamp,
	"elapsed": elapsed,
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05 MST")
}

func elapsed(a, b time.Time) string {
	if a.IsZero() || b.Before(a) {
		return ""
	}
	return b.Sub(a).Round(time.Second).String()
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics)
	}

	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)

	mux.Handle("GET /{$}", s.Auth.RequireAuth(http.HandlerFunc(s.handleHome)))
	mux.Handle("GET /runs/{id}", s.Auth.RequireAuth(http.HandlerFunc(s.handleRun)))
	mux.Handle("POST /runs/trigger", s.Auth.RequireAuth(http.HandlerFunc(s.handleTrigger)))

	return s.logging(mux)
}

func (s *Server) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	rs, err := s.Runs.ListRecent(r.Context(), recentRuns)
	if err != nil {
		s.log().Error("list runs", zap.Error(err))
		http.Error(w, "failed to load runs", http.StatusInternalServerError)
		return
	}
	data := tmplData{Title: "Runs", User: uid, Runs: rs}
	if s.Trigger != nil {
		data.Running = s.Trigger.Running()
	}
	switch r.URL.Query().Get("flash") {
	case "started":
		data.Flash = "Run started."
	case "busy":
		data.Flash = "A run is already in progress."
	}
	s.render(w, "templates/runs.html", data)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	res, err := s.Runs.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.log().Error("get run", zap.String("run_id", r.PathValue("id")), zap.Error(err))
		http.Error(w, "failed to load run", http.StatusInternalServerError)
		return
	}
	s.render(w, "templates/run.html", tmplData{Title: "Run " + res.RunID, User: uid, Run: res})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if s.Trigger == nil {
		http.Error(w, "scheduler not running", http.StatusServiceUnavailable)
		return
	}
	uid, _ := auth.UserIDFromContext(r.Context())
	if !s.Trigger.TriggerNow() {
		http.Redirect(w, r, "/?flash=busy", http.StatusSeeOther)
		return
	}
	s.log().Info("manual run requested", zap.Int64("user_id", uid))
	http.Redirect(w, r, "/?flash=started", http.StatusSeeOther)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, "templates/login.html", tmplData{Title: "Login"})
		return
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		username := strings.TrimSpace(r.FormValue("username"))
		password := r.FormValue("password")
		id, err := s.Auth.Authenticate(r.Context(), username, password)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidCredentials) && !errors.Is(err, db.ErrNotFound) {
				s.log().Error("login", zap.Error(err))
			}
			s.render(w, "templates/login.html", tmplData{Title: "Login", Flash: "Invalid username/password"})
			return
		}
		if err := s.Auth.SetSession(w, r, id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
		return
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) render(w http.ResponseWriter, name string, data tmplData) {
	t, err := template.New("").Funcs(funcs).ParseFS(fs,
		"templates/base.html",
		name,
	)
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
	}
}

// Start serves h until ctx is done, then shuts down gracefully.
func Start(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
