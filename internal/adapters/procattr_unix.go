//go:build !windows

package adapters

import (
	"os/exec"
	"syscall"
)

// setProcAttr puts spawned debug adapters in their own session so the whole
// process tree can be killed on termination.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
