//go:build windows

package supervisor

import (
	"encoding/csv"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"
)

type osProcesses struct{}

// tasklistRow returns the CSV row tasklist prints for pid, or nil.
func tasklistRow(pid int) []string {
	out, err := exec.Command("tasklist", "/FI", fmt.Sprintf("PID eq %d", pid), "/FO", "CSV", "/NH").Output()
	if err != nil {
		return nil
	}
	line := strings.TrimSpace(string(out))
	if line == "" || strings.Contains(strings.ToLower(line), "no tasks are running") {
		return nil
	}
	row, err := csv.NewReader(strings.NewReader(line)).Read()
	if err != nil || len(row) < 2 || row[1] != strconv.Itoa(pid) {
		return nil
	}
	return row
}

func (osProcesses) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return tasklistRow(pid) != nil
}

// CommandLine returns the image name; tasklist does not expose arguments.
func (osProcesses) CommandLine(pid int) (string, error) {
	row := tasklistRow(pid)
	if row == nil {
		return "", fmt.Errorf("process %d not found", pid)
	}
	return row[0], nil
}

// Terminate asks the process tree to close without /F.
func (osProcesses) Terminate(pid int) error {
	return exec.Command("taskkill", "/T", "/PID", strconv.Itoa(pid)).Run()
}

func (osProcesses) Kill(pid int) error {
	return exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run()
}

// serverSysProcAttr keeps the server from opening a console window.
func serverSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: windows.CREATE_NO_WINDOW, HideWindow: true}
}
