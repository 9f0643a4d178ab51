//go:build !windows
// +build !windows

package procmgr

import (
	"os/exec"
	"syscall"
)

// configurePlatformProcess configures platform-specific process settings
func configurePlatformProcess(cmd *exec.Cmd, cfg *ProcessConfig) {
	// Own process group so the engine and anything it forks die together
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// killProcess kills the engine's whole process group.
func killProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}
