//go:build !windows

package execute

import (
	"os/exec"
	"syscall"
	"time"
)

// setProcGroup configures cmd to run in its own process group and sets up
// Cancel/WaitDelay so that context cancellation kills the entire group
// (including grandchildren spawned by shell wrappers) rather than only
// the direct child.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative PID addresses the whole process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	// Grace period for children to drain before their pipe descriptors are
	// forcibly closed.
	cmd.WaitDelay = 3 * time.Second
}
