// Package gateway serves the relay over HTTP: the viewer WebSocket endpoint
// and a small JSON API for health and engine control.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"othello-relay/internal/config"
	"othello-relay/internal/gateway/handlers"
	"othello-relay/internal/gateway/middleware"
	"othello-relay/internal/gateway/websocket"
	"othello-relay/pkg/logger"
)

// Server is the relay's HTTP gateway.
type Server struct {
	httpServer  *http.Server
	router      *mux.Router
	hub         *websocket.Hub
	handlers    *handlers.Handlers
	config      *config.Config
	clientOpts  websocket.ClientOptions
	rateLimiter *middleware.RateLimiter

	mu       sync.Mutex
	listener net.Listener
	watcher  *Watcher
}

// ClientOptionsFrom maps viewer settings onto WebSocket client options.
func ClientOptionsFrom(v config.ViewerConfig) websocket.ClientOptions {
	return websocket.ClientOptions{
		WriteWait:      v.WriteWait,
		PongWait:       v.PongWait,
		PingPeriod:     v.PingPeriod,
		MaxMessageSize: v.MaxMessageSize,
		SendBuffer:     v.SendBuffer,
		AllowedOrigins: v.AllowedOrigins,
	}
}

// NewServer creates a gateway for hub. relay backs the JSON API.
func NewServer(cfg *config.Config, hub *websocket.Hub, relay handlers.Relay, version string) *Server {
	router := mux.NewRouter()

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Enabled:           cfg.Gateway.RateLimit.Enabled,
		RequestsPerMinute: cfg.Gateway.RateLimit.RequestsPerMinute,
		Burst:             cfg.Gateway.RateLimit.Burst,
	})

	// Recovery -> Logging -> router
	handler := middleware.Recovery(middleware.Logging(router))

	s := &Server{
		httpServer: &http.Server{
			Handler:     handler,
			ReadTimeout: 60 * time.Second,
			// WebSocket connections live past any write deadline.
			WriteTimeout: 0,
			IdleTimeout:  120 * time.Second,
		},
		router:      router,
		hub:         hub,
		handlers:    handlers.New(relay, version),
		config:      cfg,
		clientOpts:  ClientOptionsFrom(cfg.Viewer),
		rateLimiter: rateLimiter,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(s.hub, s.clientOpts, w, r)
	})
	s.router.Handle("/ws", s.rateLimiter.Limit(ws))

	s.router.HandleFunc("/health", s.handlers.Health).Methods(http.MethodGet)

	// Full paths on the root router; a PathPrefix subrouter turns method
	// mismatches into 404s.
	s.router.HandleFunc("/api/v1/status", s.handlers.Status).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/engine/restart", s.handlers.RestartEngine).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/events", s.handlers.Events).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(handlers.NotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(handlers.MethodNotAllowed)
}

// Listen binds the configured address. Port 0 picks a free port.
func (s *Server) Listen() error {
	addr := s.config.Gateway.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.httpServer.Addr = ln.Addr().String()
	s.mu.Unlock()

	logger.Info().Str("addr", ln.Addr().String()).Msg("Gateway listening")
	return nil
}

// Serve accepts connections until Shutdown. Listen must have been called.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("gateway: Serve called before Listen")
	}

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Start listens and serves; it blocks until Shutdown.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// SetEventLog serves l on /api/v1/events.
func (s *Server) SetEventLog(l handlers.EventLog) {
	s.handlers.SetEventLog(l)
}

// SetWatcher attaches a watcher to stop on Shutdown.
func (s *Server) SetWatcher(w *Watcher) {
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
}

// Router exposes the router so callers can mount extra routes.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Shutdown stops accepting connections, waits for in-flight requests and
// closes every viewer.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info().Msg("Shutting down gateway server")

	s.mu.Lock()
	watcher := s.watcher
	s.mu.Unlock()
	if watcher != nil {
		watcher.Stop()
	}

	s.rateLimiter.Stop()

	timeout := s.config.Gateway.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by http.Server.
	s.hub.CloseAll()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
