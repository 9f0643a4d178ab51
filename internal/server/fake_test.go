package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"

	"othello-relay/internal/procmgr"
	"othello-relay/internal/protocol"
)

// scriptedEngine answers a few commands the way the real engine would.
type scriptedEngine struct {
	pid int

	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	writeMu  sync.Mutex
	exitOnce sync.Once
	exitCh   chan int
}

func newScriptedEngine(pid int) *scriptedEngine {
	e := &scriptedEngine{pid: pid, exitCh: make(chan int, 1)}
	e.stdinR, e.stdinW = io.Pipe()
	e.stdoutR, e.stdoutW = io.Pipe()
	e.stderrR, e.stderrW = io.Pipe()
	go e.loop()
	return e
}

func (e *scriptedEngine) Pid() int              { return e.pid }
func (e *scriptedEngine) Stdin() io.WriteCloser { return e.stdinW }
func (e *scriptedEngine) Stdout() io.Reader     { return e.stdoutR }
func (e *scriptedEngine) Stderr() io.Reader     { return e.stderrR }
func (e *scriptedEngine) Wait() int             { return <-e.exitCh }

func (e *scriptedEngine) Kill() error {
	e.exit(-1)
	return nil
}

func (e *scriptedEngine) exit(code int) {
	e.exitOnce.Do(func() {
		_ = e.stdoutW.Close()
		_ = e.stderrW.Close()
		_ = e.stdinR.Close()
		e.exitCh <- code
	})
}

func (e *scriptedEngine) emit(ev protocol.Event) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	_, _ = e.stdoutW.Write(append(protocol.MustEncode(ev), '\n'))
}

func (e *scriptedEngine) loop() {
	sc := bufio.NewScanner(e.stdinR)
	for sc.Scan() {
		cmd, err := protocol.ParseCommand(sc.Bytes())
		if err != nil {
			continue
		}
		switch cmd.Command {
		case protocol.CmdGetStatus:
			e.emit(protocol.StateChange("Lobby", nil, nil))
		case protocol.CmdPlace:
			board := make([][]protocol.Color, protocol.BoardSize)
			for i := range board {
				board[i] = make([]protocol.Color, protocol.BoardSize)
			}
			board[*cmd.Row][*cmd.Col] = protocol.ColorBlack
			e.emit(protocol.BoardUpdate(board))
			e.emit(protocol.StateChange("OpponentTurn", cmd.RoomID, nil))
		}
	}
}

// fakeLauncher starts a new scriptedEngine per launch, or fails with err.
type fakeLauncher struct {
	mu       sync.Mutex
	err      error
	launched []*scriptedEngine
}

func (l *fakeLauncher) Launch(ctx context.Context) (procmgr.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	e := newScriptedEngine(len(l.launched) + 1)
	l.launched = append(l.launched, e)
	return e, nil
}

func (l *fakeLauncher) last() *scriptedEngine {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.launched) == 0 {
		return nil
	}
	return l.launched[len(l.launched)-1]
}

var errNoBinary = errors.New("exec: no such file")
