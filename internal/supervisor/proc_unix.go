//go:build !windows

package supervisor

import (
	"errors"
	"os"
	"syscall"
)

// sysProcAttr puts each worker in its own process group so a kill can
// reach the worker's own children too.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// killProcessTree signals the worker's whole process group, falling
// back to the single process when no group exists anymore.
func killProcessTree(p *os.Process) error {
	err := syscall.Kill(-p.Pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return p.Kill()
}
