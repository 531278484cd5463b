//go:build !windows

package host

import (
	"os/exec"
	"syscall"
)

// shellCommand wraps a script for the POSIX shell.
func shellCommand(script string) (string, []string) {
	return "/bin/sh", []string{"-c", script}
}

// setProcGroup runs the step in its own process group so cancellation
// reaches processes the script spawned, not just the shell.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
