//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// configureGroup puts the child in its own process group so cancellation
// reaches anything it spawned.
func configureGroup(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		return syscall.Kill(-c.Process.Pid, syscall.SIGTERM)
	}
}
