// Package procmgr supervises the single engine process the relay drives.
package procmgr

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"othello-relay/internal/protocol"
	"othello-relay/pkg/logger"
)

var (
	// ErrEngineUnavailable is returned by Send when no engine process is
	// running or its stdin has been closed.
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrSpawnFailed wraps launcher errors. Spawn failures are not retried.
	ErrSpawnFailed = errors.New("engine spawn failed")

	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("supervisor stopped")
)

// MsgEngineRestarted is published when a requested restart brings up a
// fresh engine.
const MsgEngineRestarted = "engine process restarted."

// maxLineSize bounds one line of engine output, newline included.
const maxLineSize = 1 << 20

// Publisher receives every event the engine produces.
type Publisher interface {
	Publish(ev protocol.Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ev protocol.Event)

// Publish implements Publisher.
func (f PublisherFunc) Publish(ev protocol.Event) { f(ev) }

// RestartPolicy controls what happens after the engine exits.
// The zero value restarts immediately and without limit.
type RestartPolicy struct {
	// MaxRestarts is the maximum number of restart attempts (0 = unlimited)
	MaxRestarts int

	// RestartDelay is the delay between an exit and the next start
	RestartDelay time.Duration
}

// Supervisor keeps one engine process alive, turns its output into events
// and serializes commands onto its stdin.
type Supervisor struct {
	launcher  Launcher
	publisher Publisher
	policy    RestartPolicy
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	proc        Process
	stdinClosed bool
	restarts    int
	startedAt   time.Time
	restarting  Process
	starting    bool

	writeMu sync.Mutex
}

// NewSupervisor creates a supervisor. Nothing is launched until Start.
func NewSupervisor(launcher Launcher, publisher Publisher, policy RestartPolicy) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		launcher:  launcher,
		publisher: publisher,
		policy:    policy,
		log:       logger.Component("procmgr"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the engine if it is not already running or starting.
// A launch failure is published as an error event and returned; it is not retried.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.proc != nil || s.starting {
		s.mu.Unlock()
		s.log.Debug().Msg("engine process already running")
		return nil
	}
	s.starting = true
	s.mu.Unlock()

	// Launch runs unlocked so a slow exec does not block Send or Status.
	proc, err := s.launcher.Launch(s.ctx)

	s.mu.Lock()
	s.starting = false
	if err != nil {
		s.mu.Unlock()
		s.log.Error().Err(err).Msg("failed to spawn engine process")
		s.publish(protocol.ErrorEvent(fmt.Sprintf("failed to start engine process: %v", err)))
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = proc.Stdin().Close()
		_ = proc.Kill()
		return ErrStopped
	}

	s.proc = proc
	s.stdinClosed = false
	s.startedAt = time.Now()
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Info().Int("pid", proc.Pid()).Msg("engine process started")

	go s.supervise(proc)
	return nil
}

// Stop kills the engine and disables restarts. It waits for the output
// readers to finish.
func (s *Supervisor) Stop() {
	s.cancel()

	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()

	if proc != nil {
		_ = proc.Stdin().Close()
		if err := proc.Kill(); err != nil {
			s.log.Warn().Err(err).Msg("failed to kill engine process")
		}
	}

	s.wg.Wait()
	s.log.Info().Msg("engine supervisor stopped")
}

// Restart kills the running engine; the exit path starts a fresh one.
// If no engine is running it is started directly.
func (s *Supervisor) Restart() error {
	s.mu.Lock()
	proc := s.proc
	if proc != nil {
		s.restarting = proc
	}
	s.mu.Unlock()

	if proc == nil {
		return s.Start()
	}

	s.log.Info().Int("pid", proc.Pid()).Msg("restarting engine process")
	if err := proc.Kill(); err != nil {
		s.mu.Lock()
		if s.restarting == proc {
			s.restarting = nil
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Send encodes a command and writes it to the engine's stdin.
func (s *Supervisor) Send(cmd protocol.Command) error {
	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	return s.SendRaw(data)
}

// SendRaw writes one already-validated command line to the engine's stdin.
// Writes are serialized; delivery is fire-and-forget.
func (s *Supervisor) SendRaw(line []byte) error {
	s.mu.Lock()
	proc := s.proc
	closed := s.stdinClosed
	s.mu.Unlock()

	if proc == nil || closed {
		return ErrEngineUnavailable
	}

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, bytes.TrimRight(line, "\r\n")...)
	buf = append(buf, '\n')

	s.writeMu.Lock()
	_, err := proc.Stdin().Write(buf)
	s.writeMu.Unlock()

	if err != nil {
		s.mu.Lock()
		if s.proc == proc {
			s.stdinClosed = true
		}
		s.mu.Unlock()
		s.log.Warn().Err(err).Msg("write to engine stdin failed")
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	s.log.Debug().Bytes("line", buf[:len(buf)-1]).Msg("sent to engine stdin")
	return nil
}

// Available reports whether a command sent now would reach an engine.
func (s *Supervisor) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc != nil && !s.stdinClosed
}

// Status is a point-in-time view of the supervised process.
type Status struct {
	Running   bool      `json:"running"`
	Pid       int       `json:"pid,omitempty"`
	Restarts  int       `json:"restarts"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Status returns the current process status.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Restarts: s.restarts}
	if s.proc != nil {
		st.Running = !s.stdinClosed
		st.Pid = s.proc.Pid()
		st.StartedAt = s.startedAt
	}
	return st
}

// supervise pumps one process's output and handles its exit.
func (s *Supervisor) supervise(proc Process) {
	defer s.wg.Done()

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		s.readStdout(proc.Stdout())
	}()
	go func() {
		defer readers.Done()
		s.readStderr(proc.Stderr())
	}()
	readers.Wait()

	code := proc.Wait()

	if s.ctx.Err() != nil {
		s.clear(proc)
		s.log.Info().Int("code", code).Msg("engine process exited after stop")
		return
	}

	s.mu.Lock()
	requested := s.restarting == proc
	if requested {
		s.restarting = nil
	}
	s.mu.Unlock()

	if requested {
		s.clear(proc)
		s.log.Info().Int("code", code).Msg("engine process exited for restart")
		if err := s.Start(); err != nil {
			if !errors.Is(err, ErrStopped) {
				s.log.Error().Err(err).Msg("engine restart failed")
			}
			return
		}
		s.publish(protocol.InfoEvent(MsgEngineRestarted))
		return
	}

	s.log.Warn().Int("code", code).Msg("engine process exited")
	s.publish(protocol.ErrorEvent(fmt.Sprintf("engine process exited unexpectedly (code: %d)", code)))
	s.clear(proc)

	s.mu.Lock()
	s.restarts++
	attempt := s.restarts
	s.mu.Unlock()

	if s.policy.MaxRestarts > 0 && attempt > s.policy.MaxRestarts {
		s.log.Error().Int("max_restarts", s.policy.MaxRestarts).Msg("engine exceeded max restarts; giving up")
		return
	}

	if s.policy.RestartDelay > 0 {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.policy.RestartDelay):
		}
	}

	s.log.Warn().Int("attempt", attempt).Msg("restarting engine process")
	if err := s.Start(); err != nil && !errors.Is(err, ErrStopped) {
		s.log.Error().Err(err).Msg("engine restart failed")
	}
}

func (s *Supervisor) clear(proc Process) {
	s.mu.Lock()
	if s.proc == proc {
		s.proc = nil
	}
	s.mu.Unlock()
}

// readStdout publishes one event per non-empty line, in emission order.
func (s *Supervisor) readStdout(r io.Reader) {
	s.readLines(r, func(line []byte) {
		s.log.Debug().Bytes("line", line).Msg("engine stdout")

		ev, err := protocol.Decode(line)
		if err != nil {
			s.log.Warn().Bytes("line", line).Msg("non-JSON line from engine stdout")
			ev = protocol.RawLog(string(line))
		}
		s.publish(ev)
	})
}

func (s *Supervisor) readStderr(r io.Reader) {
	s.readLines(r, func(line []byte) {
		s.log.Warn().Bytes("line", line).Msg("engine stderr")
		s.publish(protocol.ErrorEvent("engine stderr: " + string(line)))
	})
}

// readLines hands each trimmed, non-empty line to handle. Lines longer
// than maxLineSize (newline included) are dropped whole and reported as
// an error event.
func (s *Supervisor) readLines(r io.Reader, handle func([]byte)) {
	br := bufio.NewReader(r)
	var line []byte
	dropping := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !dropping {
			if len(line)+len(chunk) > maxLineSize {
				dropping = true
				line = nil
				s.log.Warn().Int("max_bytes", maxLineSize).Msg("engine output line too long, dropping")
				s.publish(protocol.ErrorEvent(fmt.Sprintf("engine output line dropped (longer than %d bytes)", maxLineSize)))
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		if !dropping {
			if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
				handle(bytes.Clone(trimmed))
			}
		}
		dropping = false
		if cap(line) > 64<<10 {
			line = nil
		} else {
			line = line[:0]
		}

		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				s.log.Debug().Err(err).Msg("engine stream closed")
			}
			return
		}
	}
}

func (s *Supervisor) publish(ev protocol.Event) {
	if s.publisher != nil {
		s.publisher.Publish(ev)
	}
}
