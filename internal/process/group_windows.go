//go:build windows

package process

import "os/exec"

func configureGroup(c *exec.Cmd) {}
