package supervisor

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/steveyegge/pawlaunch/internal/state"
)

// ProcessTable is the operating system's view of processes.
type ProcessTable interface {
	// Alive reports whether pid is a running process.
	Alive(pid int) bool
	// CommandLine returns the command pid was started with. On Windows
	// only the image name is available.
	CommandLine(pid int) (string, error)
	// Terminate asks pid to exit.
	Terminate(pid int) error
	// Kill forces pid to exit.
	Kill(pid int) error
}

// OSProcesses returns the ProcessTable for the running platform.
func OSProcesses() ProcessTable {
	return osProcesses{}
}

// identities returns the strings one of which must appear in a live
// process's command line for rec to be considered ours. This guards
// against PID reuse.
func identities(rec *state.PIDRecord, module string) []string {
	var ids []string
	if rec.Module != "" {
		ids = append(ids, rec.Module)
	} else if module != "" {
		ids = append(ids, module)
	}
	if runtime.GOOS == "windows" && rec.Executable != "" {
		ids = append(ids, filepath.Base(rec.Executable))
	}
	return ids
}

func matchesIdentity(cmdline string, ids []string) bool {
	cmdline = strings.ToLower(cmdline)
	for _, id := range ids {
		if id != "" && strings.Contains(cmdline, strings.ToLower(id)) {
			return true
		}
	}
	return false
}
