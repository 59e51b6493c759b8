// Package server exposes the suggestion service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/newsdesk/tagsuggest/internal/article"
	"github.com/newsdesk/tagsuggest/internal/auth"
	"github.com/newsdesk/tagsuggest/internal/cache"
	"github.com/newsdesk/tagsuggest/internal/repository"
	"github.com/newsdesk/tagsuggest/internal/suggest"
)

// HTTPServer wraps the HTTP server and its routes
type HTTPServer struct {
	server *http.Server
	router *chi.Mux
	logger *slog.Logger

	engine   *suggest.Engine
	manager  *suggest.Manager
	articles *article.Client
	cache    *cache.SuggestionCache
	feedback repository.FeedbackRepository
	logs     repository.SuggestionLogRepository
	model    string

	reloadLimiter *rate.Limiter
}

// HTTPServerConfig holds configuration for the HTTP server
type HTTPServerConfig struct {
	Port           int
	Logger         *slog.Logger
	AllowedOrigins []string // CORS allowed origins

	Engine  *suggest.Engine
	Manager *suggest.Manager
	Auth    *auth.Middleware
	Model   string

	// Optional integrations; nil disables the corresponding feature.
	Articles *article.Client
	Cache    *cache.SuggestionCache
	Feedback repository.FeedbackRepository
	Logs     repository.SuggestionLogRepository

	// ReloadMinInterval throttles the reload endpoint.
	ReloadMinInterval time.Duration
}

// NewHTTPServer creates a new HTTP server with all routes mounted
func NewHTTPServer(cfg HTTPServerConfig) *HTTPServer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReloadMinInterval <= 0 {
		cfg.ReloadMinInterval = 30 * time.Second
	}

	s := &HTTPServer{
		logger:        logger,
		engine:        cfg.Engine,
		manager:       cfg.Manager,
		articles:      cfg.Articles,
		cache:         cfg.Cache,
		feedback:      cfg.Feedback,
		logs:          cfg.Logs,
		model:         cfg.Model,
		reloadLimiter: rate.NewLimiter(rate.Every(cfg.ReloadMinInterval), 1),
	}

	// Create chi router
	router := chi.NewRouter()

	// Add middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLoggingMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	router.Get("/healthz", s.handleHealthz)
	router.Get("/readyz", s.handleReadyz)

	router.Route("/tags", func(r chi.Router) {
		r.With(cfg.Auth.Authenticate).Post("/suggest", s.handleSuggest)
		r.With(cfg.Auth.Authenticate).Get("/suggest/{articleID}", s.handleSuggestArticle)
		r.Get("/health", s.handleTagsHealth)
		r.With(cfg.Auth.RequireAdmin).Post("/reload", s.handleReload)
		r.With(cfg.Auth.RequireAdmin).Post("/feedback/{articleID}", s.handleFeedback)
		r.With(cfg.Auth.RequireAdmin).Get("/feedback/{articleID}", s.handleListFeedback)
		r.With(cfg.Auth.RequireAdmin).Get("/feedback", s.handleListFeedbackBySlug)
		r.With(cfg.Auth.RequireAdmin).Get("/log", s.handleListSuggestionLogs)
		r.With(cfg.Auth.RequireAdmin).Get("/log/{logID}", s.handleGetSuggestionLog)
	})

	s.router = router
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // embedding and rerank calls can be slow
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", "address", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying chi router, mainly for tests
func (s *HTTPServer) Router() *chi.Mux {
	return s.router
}

// requestLoggingMiddleware logs HTTP requests
func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)

			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", duration,
				"remote_addr", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// corsMiddleware handles CORS headers
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Check if origin is allowed
			allowed := false
			if len(allowedOrigins) == 0 {
				// If no origins specified, allow all in development
				allowed = true
				origin = "*"
			} else {
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, X-Api-Key")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !s.manager.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
