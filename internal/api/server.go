package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/koi-prep/internal/config"
	"github.com/terra-clan/koi-prep/internal/quota"
	"github.com/terra-clan/koi-prep/internal/report"
	"github.com/terra-clan/koi-prep/internal/services"
	"github.com/terra-clan/koi-prep/internal/session"
	"github.com/terra-clan/koi-prep/internal/storage"
	"github.com/terra-clan/koi-prep/internal/templates"
)

const requestTimeout = 60 * time.Second

// Dependencies are the collaborators of the API server. Limiter defaults to
// no quota; a nil Ledger disables the ledger endpoints.
type Dependencies struct {
	Machine   *session.Machine
	Sessions  *session.Registry
	Languages *templates.Loader
	Hub       *Hub
	Exporter  *report.Exporter
	Services  *services.Registry
	Limiter   quota.Limiter
	Ledger    storage.Repository
}

// Server represents the HTTP API server
type Server struct {
	config    config.ServerConfig
	router    *chi.Mux
	machine   *session.Machine
	sessions  *session.Registry
	languages *templates.Loader
	hub       *Hub
	exporter  *report.Exporter
	services  *services.Registry
	limiter   quota.Limiter
	ledger    storage.Repository
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Dependencies) *Server {
	s := &Server{
		config:    cfg,
		machine:   deps.Machine,
		sessions:  deps.Sessions,
		languages: deps.Languages,
		hub:       deps.Hub,
		exporter:  deps.Exporter,
		services:  deps.Services,
		limiter:   deps.Limiter,
		ledger:    deps.Ledger,
	}
	if s.hub == nil {
		s.hub = NewHub()
	}
	if s.exporter == nil {
		s.exporter = report.NewExporter(nil)
	}
	if s.services == nil {
		s.services = services.NewRegistry()
	}
	if s.limiter == nil {
		s.limiter = quota.Unlimited{}
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	timeout := middleware.Timeout(requestTimeout)

	// Health check (outside versioned API)
	r.With(timeout).Get("/health", s.handleHealth)
	r.With(timeout).Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		// Catalog
		r.With(timeout).Get("/languages", s.handleListLanguages)
		r.With(timeout).Get("/levels", s.handleListLevels)

		// Gateway call ledger
		r.Route("/gateway", func(r chi.Router) {
			r.Use(timeout)
			r.Get("/calls", s.handleListGatewayCalls)
			r.Get("/stats", s.handleGatewayStats)
		})

		// Sessions
		r.Route("/sessions", func(r chi.Router) {
			r.With(timeout).Post("/", s.handleCreateSession)

			r.Route("/{id}", func(r chi.Router) {
				r.Use(s.sessionContext)

				// Long-lived, so kept out of the request timeout
				r.Get("/events", s.handleSessionEvents)

				r.Group(func(r chi.Router) {
					r.Use(timeout)

					r.Get("/", s.handleGetSession)
					r.Delete("/", s.handleDeleteSession)

					r.With(s.quotaMiddleware).Post("/start", s.handleStartSession)
					r.Put("/problems/current", s.handleSelectProblem)
					r.Put("/code", s.handleEditCode)
					r.Post("/editor/keys", s.handlePressKey)
					r.Post("/run", s.handleRunSample)
					r.Post("/advance", s.handleAdvance)
					r.With(s.quotaMiddleware).Post("/finish", s.handleFinish)
					r.Post("/restart", s.handleRestart)

					r.Get("/report", s.handleGetReport)
					r.Get("/report/print", s.handlePrintReport)
					r.Post("/report/export", s.handleExportReport)
				})
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
