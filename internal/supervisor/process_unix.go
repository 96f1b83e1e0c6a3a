//go:build !windows

package supervisor

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

type osProcesses struct{}

// Alive sends signal 0. EPERM means the process exists but belongs to
// someone else.
func (osProcesses) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// CommandLine uses ps, which works on Linux and macOS.
func (osProcesses) CommandLine(pid int) (string, error) {
	out, err := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "command=").Output()
	if err != nil {
		return "", fmt.Errorf("ps -p %d: %w", pid, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (osProcesses) Terminate(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}

func (osProcesses) Kill(pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}

// serverSysProcAttr puts the server in its own process group so a Ctrl-C
// aimed at the launcher does not reach it before the graceful stop.
func serverSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
