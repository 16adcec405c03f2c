//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

// Windows creation flags
const (
	CREATE_NEW_PROCESS_GROUP = 0x00000200
	DETACHED_PROCESS         = 0x00000008
)

// configureSysProcAttr sets platform-specific attributes for Windows.
// Children get their own process group; a detached child additionally does
// not inherit the launcher's console.
func configureSysProcAttr(cmd *exec.Cmd, spec Spec) {
	flags := uint32(CREATE_NEW_PROCESS_GROUP)
	if spec.Detached {
		flags |= DETACHED_PROCESS
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: flags}
}
