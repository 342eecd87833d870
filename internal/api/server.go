// Package api serves passage lookups and pagination over HTTP and
// websockets.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/JuniperBot/core/passage"
	"github.com/FocuswithJustin/JuniperBot/internal/logging"
	"github.com/FocuswithJustin/JuniperBot/internal/metrics"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

// Server is the host surface for a passage.Service.
type Server struct {
	cfg      Config
	svc      *passage.Service
	metrics  *metrics.Metrics
	limiter  *RateLimiter
	hub      *hub
	upgrader websocket.Upgrader
	started  time.Time
}

// New validates cfg and builds a Server. m may be nil.
func New(cfg Config, svc *passage.Service, m *metrics.Metrics) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("api server needs a passage service")
	}
	if err := ValidateAuthConfig(cfg.Auth); err != nil {
		return nil, fmt.Errorf("invalid auth config: %w", err)
	}
	defaults := DefaultWebSocketConfig()
	if cfg.WebSocket.MaxMessageRate <= 0 {
		cfg.WebSocket.MaxMessageRate = defaults.MaxMessageRate
	}
	if cfg.WebSocket.MaxMessageSize <= 0 {
		cfg.WebSocket.MaxMessageSize = defaults.MaxMessageSize
	}

	s := &Server{
		cfg:     cfg,
		svc:     svc,
		metrics: m,
		hub:     newHub(),
		started: time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if !originAllowed(origin, cfg.AllowedOrigins) {
				logging.SecurityEvent("websocket_origin_rejected", "websocket", "origin", origin)
				return false
			}
			return true
		},
	}
	if cfg.RateLimitRequests > 0 {
		s.limiter = NewRateLimiter(RateLimiterConfig{
			RequestsPerMinute: cfg.RateLimitRequests,
			BurstSize:         cfg.RateLimitBurst,
		})
	}
	return s, nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("GET /commands", s.handleCommands)
	mux.HandleFunc("GET /translations", s.handleTranslations)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("POST /passages", s.handlePassages)
	mux.HandleFunc("POST /sessions/{id}/{action}", s.handleNavigate)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleClose)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return mux
}

// Handler returns the routes wrapped in the middleware chain, outermost
// first: request ID and logging, CORS, rate limiting, authentication,
// security headers.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = SecurityHeaders(s.routes())

	if s.cfg.Auth.Enabled {
		handler = AuthMiddleware(s.cfg.Auth, handler)
	}
	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
	}
	handler = CORSMiddleware(s.cfg.AllowedOrigins, handler)
	return logging.CombinedMiddleware(handler)
}

// ListenAndServe serves on the configured port until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.logStartup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	logging.Info("shutting down", "websocket_clients", s.hub.len())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.hub.closeAll()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases background resources.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Close()
	}
}

func (s *Server) logStartup() {
	logging.ServerStartup("passage_api", "http", s.cfg.Port,
		"websocket_protocol", "ws",
		"translations", len(s.svc.Translations()))
	logging.SecurityEvent("authentication_configured", "api",
		"enabled", s.cfg.Auth.Enabled,
		"keys", len(s.cfg.Auth.APIKeys))
	if len(s.cfg.AllowedOrigins) > 0 {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "restricted",
			"allowed_origins_count", len(s.cfg.AllowedOrigins))
	} else {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "permissive",
			"note", "allowing all origins")
	}
	if s.limiter != nil {
		logging.Info("rate limiting enabled",
			"requests_per_minute", s.cfg.RateLimitRequests,
			"burst_size", s.limiter.config.BurstSize)
	}
}
