//go:build windows
// +build windows

package procmgr

import (
	"os/exec"
	"syscall"
)

// configurePlatformProcess configures platform-specific process settings
func configurePlatformProcess(cmd *exec.Cmd, cfg *ProcessConfig) {
	if cfg.Hidden {
		cmd.SysProcAttr = &syscall.SysProcAttr{
			HideWindow: true,
		}
	}
}

func killProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
