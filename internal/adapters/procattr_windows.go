//go:build windows

package adapters

import (
	"os/exec"
	"syscall"
)

// setProcAttr puts spawned debug adapters in a new process group so child
// processes can be signalled on termination.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
