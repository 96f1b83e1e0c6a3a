package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// DefaultHomeDir is the directory name under the user's home.
const DefaultHomeDir = ".pocketclaw"

// Paths is every on-disk location the launcher owns or inspects.
type Paths struct {
	Home string

	// Launcher artifacts
	Env          string // virtual environment
	UVDir        string // downloaded uv binary
	PythonDir    string // provisioned interpreter (Windows embedded)
	Logs         string
	LauncherLog  string
	ServerLog    string
	PIDFile      string
	InstallFile  string
	DevMarker    string
	Overrides    string
	OpLock       string
	InstanceLock string
	UVTagCache   string
	SourceDir    string // branch checkouts

	// User data
	AppConfig string
	Memory    string
	Audit     string
}

// ResolveHome returns the launcher home: the explicit value if set, then
// $PAWLAUNCH_HOME, then ~/.pocketclaw.
func ResolveHome(explicit string) (string, error) {
	if explicit != "" {
		return filepath.Abs(explicit)
	}
	if env := os.Getenv(HomeEnv); env != "" {
		return filepath.Abs(env)
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(userHome, DefaultHomeDir), nil
}

// NewPaths computes the layout rooted at home.
func NewPaths(home string) Paths {
	logs := filepath.Join(home, "logs")
	return Paths{
		Home:         home,
		Env:          filepath.Join(home, "venv"),
		UVDir:        filepath.Join(home, "uv"),
		PythonDir:    filepath.Join(home, "python"),
		Logs:         logs,
		LauncherLog:  filepath.Join(logs, "launcher.log"),
		ServerLog:    filepath.Join(home, "server.log"),
		PIDFile:      filepath.Join(home, "launcher.pid"),
		InstallFile:  filepath.Join(home, "install.json"),
		DevMarker:    filepath.Join(home, ".dev-mode"),
		Overrides:    filepath.Join(home, "uv-overrides.txt"),
		OpLock:       filepath.Join(home, ".operation.lock"),
		InstanceLock: filepath.Join(home, ".launcher.lock"),
		UVTagCache:   filepath.Join(home, "uv", ".latest-tag"),
		SourceDir:    filepath.Join(home, "src"),
		AppConfig:    filepath.Join(home, "config.json"),
		Memory:       filepath.Join(home, "memory"),
		Audit:        filepath.Join(home, "audit.jsonl"),
	}
}

// EnvBin returns the environment's executables directory.
func (p Paths) EnvBin() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(p.Env, "Scripts")
	}
	return filepath.Join(p.Env, "bin")
}

// EnvPython returns the interpreter inside the environment.
func (p Paths) EnvPython() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(p.EnvBin(), "python.exe")
	}
	return filepath.Join(p.EnvBin(), "python")
}

// UVBinary returns the path of the launcher-managed uv binary.
func (p Paths) UVBinary() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(p.UVDir, "uv.exe")
	}
	return filepath.Join(p.UVDir, "uv")
}
