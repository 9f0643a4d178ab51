package procmgr

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ProcessConfig defines how the engine process is launched.
type ProcessConfig struct {
	// Path is the path to the engine executable
	Path string

	// Args are command line arguments
	Args []string

	// Env are additional environment variables
	Env []string

	// Dir is the working directory; empty means the relay's own
	Dir string

	// Hidden controls whether the process should be hidden (no window on Windows)
	Hidden bool
}

// Process is a running engine instance with its three standard streams.
type Process interface {
	Pid() int
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the process exits and returns its exit code. It must
	// only be called after Stdout and Stderr have been read to EOF.
	Wait() int
	Kill() error
}

// Launcher starts engine processes. The supervisor calls it on every (re)start.
type Launcher interface {
	Launch(ctx context.Context) (Process, error)
}

// ExecLauncher launches the engine as an operating system process.
type ExecLauncher struct {
	Config ProcessConfig
}

// NewExecLauncher creates a launcher for the given configuration.
func NewExecLauncher(cfg ProcessConfig) *ExecLauncher {
	return &ExecLauncher{Config: cfg}
}

// Launch implements Launcher.
func (l *ExecLauncher) Launch(ctx context.Context) (Process, error) {
	cfg := l.Config
	if cfg.Path == "" {
		return nil, fmt.Errorf("engine path is required")
	}

	cmd := exec.CommandContext(ctx, cfg.Path, cfg.Args...)
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.Dir = cfg.Dir
	configurePlatformProcess(cmd, &cfg)
	cmd.Cancel = func() error { return killProcess(cmd) }

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.Path, err)
	}

	return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
}

func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }
func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return p.stdout }
func (p *execProcess) Stderr() io.Reader     { return p.stderr }

func (p *execProcess) Wait() int {
	_ = p.cmd.Wait()
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

func (p *execProcess) Kill() error {
	return killProcess(p.cmd)
}

// GetEnginePath resolves a relative engine path against the relay binary's
// directory when the file exists there; otherwise name is returned as is.
func GetEnginePath(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}

	execPath, err := os.Executable()
	if err != nil {
		return name
	}
	execDir := filepath.Dir(execPath)

	if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
		name += ".exe"
	}
	candidate := filepath.Join(execDir, name)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return name
}
