package procmgr

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"othello-relay/internal/protocol"
)

// fakeProcess is an in-memory engine driven by the test through pipes.
type fakeProcess struct {
	pid int

	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	exitOnce sync.Once
	exitCh   chan int
	lines    chan string
}

func newFakeProcess(pid int) *fakeProcess {
	p := &fakeProcess{pid: pid, exitCh: make(chan int, 1), lines: make(chan string, 64)}
	p.stdinR, p.stdinW = io.Pipe()
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()

	go func() {
		sc := bufio.NewScanner(p.stdinR)
		for sc.Scan() {
			p.lines <- sc.Text()
		}
	}()
	return p
}

func (p *fakeProcess) Pid() int              { return p.pid }
func (p *fakeProcess) Stdin() io.WriteCloser { return p.stdinW }
func (p *fakeProcess) Stdout() io.Reader     { return p.stdoutR }
func (p *fakeProcess) Stderr() io.Reader     { return p.stderrR }
func (p *fakeProcess) Wait() int             { return <-p.exitCh }

func (p *fakeProcess) Kill() error {
	p.exit(-1)
	return nil
}

func (p *fakeProcess) exit(code int) {
	p.exitOnce.Do(func() {
		_ = p.stdoutW.Close()
		_ = p.stderrW.Close()
		_ = p.stdinR.Close()
		p.exitCh <- code
	})
}

func (p *fakeProcess) emit(line string) {
	_, _ = io.WriteString(p.stdoutW, line+"\n")
}

func (p *fakeProcess) emitStderr(line string) {
	_, _ = io.WriteString(p.stderrW, line+"\n")
}

// fakeLauncher hands out a new fakeProcess per launch, or fails when err is set.
type fakeLauncher struct {
	mu        sync.Mutex
	err       error
	launched  []*fakeProcess
	launchedC chan *fakeProcess
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{launchedC: make(chan *fakeProcess, 16)}
}

func (l *fakeLauncher) Launch(ctx context.Context) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	p := newFakeProcess(1000 + len(l.launched))
	l.launched = append(l.launched, p)
	l.launchedC <- p
	return p, nil
}

func (l *fakeLauncher) next(timeout time.Duration) (*fakeProcess, error) {
	select {
	case p := <-l.launchedC:
		return p, nil
	case <-time.After(timeout):
		return nil, errors.New("timeout waiting for launch")
	}
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launched)
}

// recorder collects published events.
type recorder struct {
	ch chan protocol.Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan protocol.Event, 256)}
}

func (r *recorder) Publish(ev protocol.Event) { r.ch <- ev }

func (r *recorder) next(timeout time.Duration) (protocol.Event, bool) {
	select {
	case ev := <-r.ch:
		return ev, true
	case <-time.After(timeout):
		return protocol.Event{}, false
	}
}

// gatedLauncher blocks each launch until release is closed.
type gatedLauncher struct {
	*fakeLauncher
	entered chan struct{}
	release chan struct{}
}

func (l *gatedLauncher) Launch(ctx context.Context) (Process, error) {
	l.entered <- struct{}{}
	<-l.release
	return l.fakeLauncher.Launch(ctx)
}
