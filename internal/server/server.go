package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"kryodeploy/internal/config"
	"kryodeploy/internal/deployment"
	"kryodeploy/internal/history"
	"kryodeploy/internal/metrics"
	"kryodeploy/internal/webhook"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 10 * time.Second
	HTTPIdleTimeout  = 60 * time.Second

	// Request timeout for middleware
	RequestTimeout = 30 * time.Second

	// ShutdownGrace is added to the deploy timeout to bound the wait for an
	// in-flight deploy on shutdown.
	ShutdownGrace = 30 * time.Second

	// Requests per minute, per client IP
	GlobalRateLimit  = 60
	WebhookRateLimit = 10
)

// ReasonShutdown is recorded on a deploy still running when shutdown gave up waiting.
const ReasonShutdown = "interrupted by shutdown"

// Deployer starts background deploys.
type Deployer interface {
	Start(ctx context.Context, req deployment.Request) (*history.Task, error)
	InProgress() bool
	Wait()
}

// Server represents the HTTP server
type Server struct {
	Config   *config.Config
	Deployer Deployer
	Store    history.Store
	Verifier webhook.Verifier
	Filter   *webhook.Filter
	Metrics  *metrics.Recorder
	Logger   *slog.Logger
	Version  string
	TestMode bool

	// ShutdownTimeout bounds the wait for a running deploy on shutdown.
	ShutdownTimeout time.Duration
}

// NewServer wires the handlers to the deployer and store.
func NewServer(cfg *config.Config, deployer Deployer, store history.Store, rec *metrics.Recorder, logger *slog.Logger, version string) *Server {
	filter := webhook.NewFilter(cfg.Branches...)
	filter.RequireEvent = cfg.RequireEvent

	deployTimeout := cfg.Deploy.Timeout
	if deployTimeout <= 0 {
		deployTimeout = deployment.DefaultTimeout
	}

	return &Server{
		Config:          cfg,
		Deployer:        deployer,
		Store:           store,
		Verifier:        webhook.Verifier{Secret: cfg.WebhookSecret, AllowUnsigned: cfg.AllowUnsigned},
		Filter:          filter,
		Metrics:         rec,
		Logger:          logger,
		Version:         version,
		TestMode:        cfg.TestMode,
		ShutdownTimeout: deployTimeout + ShutdownGrace,
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				s.Logger.Info("http_request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"request_id", middleware.GetReqID(r.Context()),
					"duration_ms", time.Since(start).Milliseconds())
			}()

			next.ServeHTTP(ww, r)
		})
	})

	// Rate limiting is off in test mode
	if !s.TestMode {
		r.Use(NewRateLimitMiddleware(GlobalRateLimit, s.Logger))
	}

	r.Get("/health", s.HandleHealth)
	r.Get("/status", s.HandleStatus)
	r.Get("/deploys", s.HandleListDeploys)
	r.Get("/deploys/{id}", s.HandleGetDeploy)
	r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())

	r.Group(func(r chi.Router) {
		if !s.TestMode {
			r.Use(NewWebhookRateLimitMiddleware(WebhookRateLimit, s.Logger))
		}
		r.Post("/webhook", s.HandleWebhook)
		r.Post("/deploy", s.HandleDeploy)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.respondJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully:
// stop accepting, wait for the running deploy, close the store.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.Config.Addr()

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("Starting server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.Logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.Logger.Error("HTTP shutdown failed", "error", err)
	}
	return s.Shutdown(shutdownCtx)
}

// WaitForDeployments waits for all in-flight async deployments to complete.
func (s *Server) WaitForDeployments() {
	s.Deployer.Wait()
}

// Shutdown waits for in-flight deploys (bounded by ctx) and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.Deployer.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.Logger.Warn("Gave up waiting for running deploy", "error", ctx.Err())
		if s.Store != nil {
			failCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := s.Store.FailStale(failCtx, s.Config.Service, ReasonShutdown)
			cancel()
			if err != nil {
				s.Logger.Error("Failed to mark interrupted deploy", "error", err)
			} else if n > 0 {
				s.Logger.Warn("Marked interrupted deploy as failed", "count", n)
			}
		}
	}

	if s.Store != nil {
		return s.Store.Close()
	}
	return nil
}
