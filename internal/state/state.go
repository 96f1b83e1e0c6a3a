// Package state persists the launcher's records: the installation record,
// the server PID record, and the dev-mode marker. Every write goes through a
// temp file and rename so concurrent readers never see a partial record.
package state

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Mode is where the installed application came from.
type Mode string

const (
	ModeRelease Mode = "release"
	ModeBranch  Mode = "branch"
	ModeLocal   Mode = "local"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeRelease, ModeBranch, ModeLocal:
		return true
	}
	return false
}

// IsDev reports whether m is a dev-channel mode.
func (m Mode) IsDev() bool {
	return m == ModeBranch || m == ModeLocal
}

// Source identifies what to install: a release (optionally pinned), a
// branch of the repository, or a local checkout.
type Source struct {
	Mode      Mode
	Version   string // release pin; empty means latest
	Branch    string
	LocalPath string
}

// ReleaseSource returns the latest-release source.
func ReleaseSource() Source {
	return Source{Mode: ModeRelease}
}

// Validate checks that the fields match the mode.
func (s Source) Validate() error {
	switch s.Mode {
	case ModeRelease:
		if s.Branch != "" || s.LocalPath != "" {
			return fmt.Errorf("release source cannot name a branch or local path")
		}
	case ModeBranch:
		if s.Branch == "" {
			return fmt.Errorf("branch source requires a branch name")
		}
	case ModeLocal:
		if s.LocalPath == "" {
			return fmt.Errorf("local source requires a path")
		}
	default:
		return fmt.Errorf("unknown install mode %q", s.Mode)
	}
	return nil
}

// String describes the source for logs and status output.
func (s Source) String() string {
	switch s.Mode {
	case ModeBranch:
		return "branch " + s.Branch
	case ModeLocal:
		return "local " + s.LocalPath
	}
	if s.Version != "" {
		return "release " + s.Version
	}
	return "release (latest)"
}

// InstallationRecord describes the current installation.
// Dev is true exactly when Mode is branch or local.
type InstallationRecord struct {
	InstallID   string    `json:"install_id"`
	Interpreter string    `json:"interpreter"`
	EnvPath     string    `json:"env_path"`
	Version     string    `json:"version"`
	Mode        Mode      `json:"mode"`
	Branch      string    `json:"branch,omitempty"`
	LocalPath   string    `json:"local_path,omitempty"`
	Dev         bool      `json:"dev"`
	Extras      []string  `json:"extras,omitempty"`
	Installer   string    `json:"installer,omitempty"`
	Complete    bool      `json:"complete"`
	InstalledAt time.Time `json:"installed_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewInstallationRecord creates a record with a fresh install ID.
func NewInstallationRecord(now time.Time) *InstallationRecord {
	return &InstallationRecord{
		InstallID:   uuid.NewString(),
		Mode:        ModeRelease,
		InstalledAt: now,
		UpdatedAt:   now,
	}
}

// Source returns the source the record was installed from.
func (r *InstallationRecord) Source() Source {
	return Source{Mode: r.Mode, Branch: r.Branch, LocalPath: r.LocalPath}
}

// SetSource switches the record to src and keeps Dev consistent.
func (r *InstallationRecord) SetSource(src Source) {
	r.Mode = src.Mode
	r.Branch = ""
	r.LocalPath = ""
	switch src.Mode {
	case ModeBranch:
		r.Branch = src.Branch
	case ModeLocal:
		r.LocalPath = src.LocalPath
	}
	r.Dev = src.Mode.IsDev()
}

// Validate checks the record's invariants.
func (r *InstallationRecord) Validate() error {
	if !r.Mode.Valid() {
		return fmt.Errorf("unknown install mode %q", r.Mode)
	}
	if r.Dev != r.Mode.IsDev() {
		return fmt.Errorf("dev flag %t inconsistent with mode %s", r.Dev, r.Mode)
	}
	if r.Mode == ModeBranch && r.Branch == "" {
		return fmt.Errorf("branch mode without a branch")
	}
	if r.Mode == ModeLocal && r.LocalPath == "" {
		return fmt.Errorf("local mode without a path")
	}
	return nil
}

// PIDRecord is the persisted identity of the running server.
type PIDRecord struct {
	PID        int       `json:"pid"`
	Port       int       `json:"port"`
	StartedAt  time.Time `json:"started_at"`
	Executable string    `json:"executable,omitempty"`
	Module     string    `json:"module,omitempty"`
	Owner      string    `json:"owner,omitempty"`
}

// DevModeMarker records an active dev-channel install.
type DevModeMarker struct {
	Mode      Mode
	Branch    string
	LocalPath string
}

// MarkerFor returns the marker for src, or nil for a release source.
func MarkerFor(src Source) *DevModeMarker {
	if !src.Mode.IsDev() {
		return nil
	}
	m := &DevModeMarker{Mode: src.Mode}
	if src.Mode == ModeBranch {
		m.Branch = src.Branch
	} else {
		m.LocalPath = src.LocalPath
	}
	return m
}

// Source returns the dev source the marker names.
func (m *DevModeMarker) Source() Source {
	return Source{Mode: m.Mode, Branch: m.Branch, LocalPath: m.LocalPath}
}

// Repository is the persisted state shared by the launcher components.
// Load methods return (nil, nil) when the record does not exist.
type Repository interface {
	LoadInstall() (*InstallationRecord, error)
	SaveInstall(rec *InstallationRecord) error
	UpdateInstall(fn func(rec *InstallationRecord) error) (*InstallationRecord, error)
	RemoveInstall() error

	LoadPID() (*PIDRecord, error)
	SavePID(rec *PIDRecord) error
	ClearPID() error

	LoadDevMarker() (*DevModeMarker, error)
	SaveDevMarker(m *DevModeMarker) error
	ClearDevMarker() error
}
