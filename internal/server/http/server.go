// Package httpserver serves the landing page, click routing and the admin JSON API.
package httpserver

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/and161185/goph-landing/internal/landing"
	"github.com/and161185/goph-landing/internal/router"
	"github.com/and161185/goph-landing/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/landing.html"))

// maxBodyBytes bounds admin request bodies.
const maxBodyBytes = 64 << 10

// Deps are the collaborators of the HTTP server.
type Deps struct {
	Page     *landing.Page
	Payloads service.PayloadService
	Auth     service.AdminAuth // nil disables the admin API
	Reporter router.Reporter
	Clock    clockwork.Clock
	Logger   *zap.Logger
}

// Server holds handlers.
type Server struct {
	page     *landing.Page
	payloads service.PayloadService
	auth     service.AdminAuth
	rep      router.Reporter
	clock    clockwork.Clock
	log      *zap.Logger
}

// New constructs the HTTP server.
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	return &Server{
		page:     d.Page,
		payloads: d.Payloads,
		auth:     d.Auth,
		rep:      d.Reporter,
		clock:    d.Clock,
		log:      d.Logger,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.recoverMiddleware, s.logMiddleware)

	r.Handle("/", handlerFunc(s.landingPage)).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/r", handlerFunc(s.routeClick)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	if s.auth != nil {
		api := r.PathPrefix("/api/v1").Subrouter()
		api.Handle("/login", handlerFunc(s.login)).Methods(http.MethodPost)
		api.Handle("/payloads", s.requireAdmin(s.mintPayload)).Methods(http.MethodPost)
	}
	return r
}

// NewHTTPServer wraps h with the timeouts used in production.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
