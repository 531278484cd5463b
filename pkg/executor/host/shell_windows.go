//go:build windows

package host

import "os/exec"

// shellCommand wraps a script for cmd.exe.
func shellCommand(script string) (string, []string) {
	return "cmd", []string{"/C", script}
}

// setProcGroup is a no-op on Windows; CommandContext kills the child
// directly.
func setProcGroup(cmd *exec.Cmd) {}
