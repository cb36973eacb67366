//go:build windows

package execute

import (
	"os/exec"
	"time"
)

// setProcGroup is a no-op on Windows. exec.CommandContext already sends
// os.Kill on context cancellation, and Windows has no Unix-style process
// groups. The WaitDelay gives children a grace period to drain.
func setProcGroup(cmd *exec.Cmd) {
	cmd.WaitDelay = 3 * time.Second
}
