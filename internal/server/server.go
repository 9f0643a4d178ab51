// Package server assembles the relay: engine supervisor, viewer hub and HTTP
// gateway, started and stopped as one unit.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"othello-relay/internal/config"
	"othello-relay/internal/gateway"
	"othello-relay/internal/gateway/websocket"
	"othello-relay/internal/procmgr"
	"othello-relay/internal/protocol"
	"othello-relay/internal/storage"
	"othello-relay/pkg/logger"
)

// Server is one running relay.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	version    string
	launcher   procmgr.Launcher
	hub        *websocket.Hub
	supervisor *procmgr.Supervisor
	gateway    *gateway.Server

	db      *storage.DB
	journal *storage.Journal
	pruner  *storage.Pruner

	mu            sync.RWMutex
	running       bool
	startedAt     time.Time
	errChan       chan error
	onStateChange func(bool)
}

// Option customizes a Server.
type Option func(*Server)

// WithLauncher replaces the OS process launcher, typically with a test double.
func WithLauncher(l procmgr.Launcher) Option {
	return func(s *Server) { s.launcher = l }
}

// WithLogger sets the server's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithOnStateChange registers a callback for start and stop.
func WithOnStateChange(fn func(running bool)) Option {
	return func(s *Server) { s.onStateChange = fn }
}

// New builds a relay from cfg. Nothing is started until Start.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger.Component("server"),
		version: "dev",
		errChan: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.launcher == nil {
		s.launcher = procmgr.NewExecLauncher(procmgr.ProcessConfig{
			Path:   procmgr.GetEnginePath(cfg.Engine.Path),
			Args:   cfg.Engine.Args,
			Env:    cfg.Engine.Env,
			Dir:    cfg.Engine.Dir,
			Hidden: true,
		})
	}

	s.hub = websocket.NewHub()
	var publisher procmgr.Publisher = s.hub
	if cfg.Journal.Enabled {
		if err := s.openJournal(); err != nil {
			return nil, err
		}
		publisher = procmgr.PublisherFunc(func(ev protocol.Event) {
			s.hub.Publish(ev)
			s.journal.Publish(ev)
		})
	}

	s.supervisor = procmgr.NewSupervisor(s.launcher, publisher, procmgr.RestartPolicy{
		MaxRestarts:  cfg.Engine.MaxRestarts,
		RestartDelay: cfg.Engine.RestartDelay,
	})
	s.hub.SetEngine(s.supervisor)
	s.gateway = gateway.NewServer(cfg, s.hub, s, s.version)
	if s.journal != nil {
		s.gateway.SetEventLog(s.journal)
	}

	return s, nil
}

func (s *Server) openJournal() error {
	jc := s.cfg.Journal
	db, err := storage.Open(jc.Path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	pruner, err := storage.NewPruner(db, jc.PruneSchedule, jc.Retention)
	if err != nil {
		db.Close()
		return err
	}
	s.db = db
	s.pruner = pruner
	s.journal = storage.NewJournal(db, jc.BufferSize)
	return nil
}

func (s *Server) closeJournal() {
	if s.journal == nil {
		return
	}
	s.pruner.Stop()
	s.journal.Close()
	if s.journal.Dropped() > 0 {
		s.logger.Warn().Int64("dropped", s.journal.Dropped()).Msg("Journal dropped events")
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error().Err(err).Msg("Error closing journal")
	}
}

// ErrorChan delivers a fatal serve error, at most once.
func (s *Server) ErrorChan() <-chan error {
	return s.errChan
}

// Start binds the listener, launches the engine and serves in the
// background. An engine that fails to launch is reported to viewers and does
// not fail Start.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	if err := s.gateway.Listen(); err != nil {
		return err
	}

	if err := s.supervisor.Start(); err != nil {
		s.logger.Error().Err(err).Msg("Engine did not start; viewers will see it as not running")
	}

	if s.cfg.Engine.WatchBinary {
		s.startWatcher()
	}
	if s.pruner != nil {
		s.pruner.Start()
	}

	go func() {
		if err := s.gateway.Serve(); err != nil {
			s.errChan <- err
		}
	}()

	s.running = true
	s.startedAt = time.Now()
	s.logger.Info().Str("addr", s.gateway.Addr()).Str("engine", s.cfg.Engine.Path).Msg("Relay started")

	if s.onStateChange != nil {
		s.onStateChange(true)
	}
	return nil
}

func (s *Server) startWatcher() {
	w, err := gateway.NewWatcher(s.supervisor, procmgr.GetEnginePath(s.cfg.Engine.Path))
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to create engine binary watcher")
		return
	}
	if err := w.Start(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to watch engine binary")
		w.Stop()
		return
	}
	s.gateway.SetWatcher(w)
}

// Stop shuts the gateway down, disconnects every viewer and kills the engine.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info().Msg("Stopping relay...")

	err := s.gateway.Shutdown(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error during gateway shutdown")
	}
	s.supervisor.Stop()
	s.closeJournal()

	if s.onStateChange != nil {
		s.onStateChange(false)
	}

	s.logger.Info().Msg("Relay stopped")
	return err
}

// IsRunning reports whether Start has succeeded and Stop has not been called.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// StartedAt returns when the relay last started.
func (s *Server) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// Addr returns the bound gateway address.
func (s *Server) Addr() string {
	return s.gateway.Addr()
}

// Journal returns the event journal, or nil when it is disabled.
func (s *Server) Journal() *storage.Journal {
	return s.journal
}

// Hub returns the viewer hub.
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}

// EngineStatus implements handlers.Relay.
func (s *Server) EngineStatus() procmgr.Status {
	return s.supervisor.Status()
}

// ViewerCount implements handlers.Relay.
func (s *Server) ViewerCount() int {
	return s.hub.ViewerCount()
}

// RestartEngine implements handlers.Relay.
func (s *Server) RestartEngine() error {
	return s.supervisor.Restart()
}
