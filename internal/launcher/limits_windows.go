//go:build windows

package launcher

import "os/exec"

// setProcessGroup is a no-op on Windows; the debug tool's child
// processes are killed individually.
func setProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup kills the process directly on Windows.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
