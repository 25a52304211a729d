// Package api exposes the orchestrator over a small JSON HTTP API.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/leofalp/taxassist/core/orchestrator"
)

// Service is the part of the orchestrator the API serves.
type Service interface {
	Chat(ctx context.Context, input orchestrator.ChatInput) (*orchestrator.ChatResult, error)
	GetHistory(ctx context.Context, userID, threadID string) (*orchestrator.History, error)
	ListThreads(ctx context.Context, userID string) ([]string, error)
	DeleteThread(ctx context.Context, userID, threadID string) error
	SuggestPrompts(ctx context.Context) []string
}

var _ Service = (*orchestrator.Orchestrator)(nil)

// Option configures the API handler.
type Option func(*Server)

// WithAuthKey requires every API call to present key, either as a bearer
// token or in the X-API-Key header. Health and metrics stay open.
func WithAuthKey(key string) Option {
	return func(s *Server) {
		s.authKey = key
	}
}

// WithRateLimit applies a process-wide token bucket to API calls.
func WithRateLimit(requestsPerMinute, burst int) Option {
	return func(s *Server) {
		if requestsPerMinute > 0 && burst > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), burst)
		}
	}
}

// WithLogger sets the access and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server routes API requests to a Service.
type Server struct {
	service Service
	authKey string
	limiter *rate.Limiter
	logger  *slog.Logger
	handler http.Handler
}

// New builds the API handler.
func New(service Service, opts ...Option) *Server {
	s := &Server{
		service: service,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "api")

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var handler http.Handler = mux
	handler = s.rateLimitMiddleware(handler)
	handler = s.authMiddleware(handler)
	handler = s.accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	s.handler = handler
	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	s.handle(mux, "POST /api/v1/chat", s.chat)
	s.handle(mux, "GET /api/v1/threads/{user}/{thread}/history", s.history)
	s.handle(mux, "GET /api/v1/threads/{user}", s.listThreads)
	s.handle(mux, "DELETE /api/v1/threads/{user}/{thread}", s.deleteThread)
	s.handle(mux, "GET /api/v1/prompts", s.prompts)
	s.handle(mux, "GET /healthz", s.health)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
