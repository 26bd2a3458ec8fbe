//go:build windows

package tactile

import "os/exec"

func setupProcessGroup(cmd *exec.Cmd) {}

// terminateProcess has no graceful signal on Windows; the stdin close that
// precedes it lets cooperative shells exit on their own.
func terminateProcess(cmd *exec.Cmd) error {
	return nil
}

func killProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
