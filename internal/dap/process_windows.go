//go:build windows

package dap

import (
	"os/exec"
)

// killProcessGroup kills a spawned adapter process. Windows has no
// Unix-style process groups; the process is killed directly.
func killProcessGroup(pid int, cmd *exec.Cmd) error {
	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil {
			if err.Error() != "os: process already finished" {
				return err
			}
		}
	}
	return nil
}
