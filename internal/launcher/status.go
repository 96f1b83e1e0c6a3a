package launcher

import (
	"context"

	"github.com/steveyegge/pawlaunch/internal/state"
	"github.com/steveyegge/pawlaunch/internal/supervisor"
	"github.com/steveyegge/pawlaunch/internal/upgrade"
)

// Status is a snapshot of the installation for "pawlaunch status".
type Status struct {
	Home      string                    `json:"home"`
	Installed bool                      `json:"installed"`
	Install   *state.InstallationRecord `json:"install,omitempty"`
	// DevMarker is the source named by the dev-mode marker, if present.
	DevMarker string            `json:"dev_marker,omitempty"`
	Server    supervisor.Handle `json:"server"`
	URL       string            `json:"url,omitempty"`

	Autostart         bool   `json:"autostart"`
	AutostartLocation string `json:"autostart_location,omitempty"`

	Update *upgrade.UpdateInfo `json:"update,omitempty"`
	// Problems lists records that could not be read.
	Problems []string `json:"problems,omitempty"`
}

// StatusOptions configures Status.
type StatusOptions struct {
	// CheckUpdates queries the index (or reports a dev re-pull).
	CheckUpdates bool
}

// Status reads the records from disk and probes the server. Unreadable
// records are reported in Problems rather than failing the whole status.
func (l *Launcher) Status(ctx context.Context, o StatusOptions) *Status {
	st := &Status{Home: l.Paths.Home}

	rec, err := l.Store.LoadInstall()
	if err != nil {
		st.Problems = append(st.Problems, "install record: "+err.Error())
	}
	st.Install = rec
	st.Installed = rec != nil && rec.Complete

	marker, err := l.Store.LoadDevMarker()
	if err != nil {
		st.Problems = append(st.Problems, "dev marker: "+err.Error())
	}
	if marker != nil {
		st.DevMarker = marker.Source().String()
	}

	h, err := l.Supervisor.Status(ctx)
	if err != nil {
		st.Problems = append(st.Problems, "pid record: "+err.Error())
	}
	st.Server = h
	if h.Running() {
		st.URL = l.Supervisor.URL(h.Port)
	}

	if l.Autostart != nil {
		st.Autostart = l.Autostart.IsEnabled()
		st.AutostartLocation = l.Autostart.Location()
	}

	if o.CheckUpdates && st.Installed {
		info, err := l.Reconciler.Check(ctx)
		if err != nil {
			st.Problems = append(st.Problems, "update check: "+err.Error())
		} else {
			st.Update = &info
		}
	}
	return st
}
