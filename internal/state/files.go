package state

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/steveyegge/pawlaunch/internal/config"
	"github.com/steveyegge/pawlaunch/internal/util"
)

// Files is the file-backed Repository rooted at a launcher home.
type Files struct {
	paths config.Paths

	// mu serializes read-modify-write within one process; cross-process
	// mutations are serialized by the operation lock.
	mu sync.Mutex
}

var _ Repository = (*Files)(nil)

// NewFiles returns a repository over the given layout.
func NewFiles(paths config.Paths) *Files {
	return &Files{paths: paths}
}

// LoadInstall reads install.json.
func (f *Files) LoadInstall() (*InstallationRecord, error) {
	data, err := os.ReadFile(f.paths.InstallFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading installation record: %w", err)
	}

	var rec InstallationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing installation record: %w", err)
	}
	return &rec, nil
}

// SaveInstall validates and atomically writes install.json.
func (f *Files) SaveInstall(rec *InstallationRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid installation record: %w", err)
	}
	return util.AtomicWriteJSON(f.paths.InstallFile, rec)
}

// UpdateInstall loads the record (creating a blank one if absent), applies
// fn, and saves the result.
func (f *Files) UpdateInstall(fn func(rec *InstallationRecord) error) (*InstallationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, err := f.LoadInstall()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &InstallationRecord{Mode: ModeRelease}
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if err := f.SaveInstall(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// RemoveInstall deletes install.json. Missing is not an error.
func (f *Files) RemoveInstall() error {
	return removeIfExists(f.paths.InstallFile)
}

// LoadPID reads launcher.pid. A file containing only a number (written by
// older launchers) is accepted as a bare PID.
func (f *Files) LoadPID() (*PIDRecord, error) {
	data, err := os.ReadFile(f.paths.PIDFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading PID record: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if pid, err := strconv.Atoi(text); err == nil {
		return &PIDRecord{PID: pid}, nil
	}

	var rec PIDRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing PID record: %w", err)
	}
	if rec.PID <= 0 {
		return nil, fmt.Errorf("PID record has invalid pid %d", rec.PID)
	}
	return &rec, nil
}

// SavePID atomically writes launcher.pid.
func (f *Files) SavePID(rec *PIDRecord) error {
	if rec.PID <= 0 {
		return fmt.Errorf("refusing to record pid %d", rec.PID)
	}
	return util.AtomicWriteJSON(f.paths.PIDFile, rec)
}

// ClearPID deletes launcher.pid. Missing is not an error.
func (f *Files) ClearPID() error {
	return removeIfExists(f.paths.PIDFile)
}

// LoadDevMarker reads .dev-mode, a key=value file. A marker holding a single
// bare line is read as a branch name.
func (f *Files) LoadDevMarker() (*DevModeMarker, error) {
	file, err := os.Open(f.paths.DevMarker)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading dev marker: %w", err)
	}
	defer file.Close()

	m := &DevModeMarker{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			m.Branch = line
			continue
		}
		switch strings.TrimSpace(key) {
		case "mode":
			m.Mode = Mode(strings.TrimSpace(value))
		case "branch":
			m.Branch = strings.TrimSpace(value)
		case "local":
			m.LocalPath = strings.TrimSpace(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading dev marker: %w", err)
	}

	if m.Mode == "" {
		if m.LocalPath != "" {
			m.Mode = ModeLocal
		} else {
			m.Mode = ModeBranch
		}
	}
	if !m.Mode.IsDev() {
		return nil, fmt.Errorf("dev marker has non-dev mode %q", m.Mode)
	}
	return m, nil
}

// SaveDevMarker atomically writes .dev-mode.
func (f *Files) SaveDevMarker(m *DevModeMarker) error {
	if m == nil || !m.Mode.IsDev() {
		return fmt.Errorf("dev marker requires a branch or local mode")
	}
	if err := m.Source().Validate(); err != nil {
		return fmt.Errorf("invalid dev marker: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "mode=%s\n", m.Mode)
	fmt.Fprintf(&sb, "branch=%s\n", m.Branch)
	fmt.Fprintf(&sb, "local=%s\n", m.LocalPath)
	return util.AtomicWriteFile(f.paths.DevMarker, []byte(sb.String()), 0644)
}

// ClearDevMarker deletes .dev-mode. Missing is not an error.
func (f *Files) ClearDevMarker() error {
	return removeIfExists(f.paths.DevMarker)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
