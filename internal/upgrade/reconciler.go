// Package upgrade keeps an installation current. Release installs are
// compared against the package index; dev installs are re-pulled from their
// branch or checkout on request.
package upgrade

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	latest "github.com/tcnksm/go-latest"

	"github.com/steveyegge/pawlaunch/internal/config"
	"github.com/steveyegge/pawlaunch/internal/installer"
	"github.com/steveyegge/pawlaunch/internal/metrics"
	"github.com/steveyegge/pawlaunch/internal/state"
	"github.com/steveyegge/pawlaunch/internal/supervisor"
	"github.com/steveyegge/pawlaunch/internal/version"
)

// Upgrader moves an installation forward.
type Upgrader interface {
	Upgrade(ctx context.Context) (*state.InstallationRecord, error)
}

// Server is the part of the supervisor the reconciler restarts.
type Server interface {
	Status(ctx context.Context) (supervisor.Handle, error)
	RestartFor(ctx context.Context, reason string, port int) (supervisor.Handle, error)
}

// UpdateInfo is the outcome of one check.
type UpdateInfo struct {
	Current   string       `json:"current,omitempty"`
	Latest    string       `json:"latest,omitempty"`
	Available bool         `json:"available"`
	Dev       bool         `json:"dev"`
	Source    state.Source `json:"source"`
	CheckedAt time.Time    `json:"checked_at"`
	// Error is set when the index could not be asked. The check then
	// counts as "no update".
	Error string `json:"error,omitempty"`
}

// Summary is a one-line description for status output.
func (u UpdateInfo) Summary() string {
	switch {
	case u.Dev:
		return fmt.Sprintf("dev install (%s): re-pull available", u.Source)
	case u.Error != "":
		return "could not check for updates: " + u.Error
	case u.Available:
		return fmt.Sprintf("update available: %s -> %s", u.Current, u.Latest)
	default:
		return fmt.Sprintf("up to date (%s)", u.Current)
	}
}

// ApplyResult describes an applied upgrade.
type ApplyResult struct {
	From      string            `json:"from,omitempty"`
	To        string            `json:"to,omitempty"`
	Restarted bool              `json:"restarted"`
	Server    supervisor.Handle `json:"server"`
}

// Reconciler checks for and applies updates.
type Reconciler struct {
	cfg      config.UpdatesConfig
	store    state.Repository
	index    *PyPI
	upgrader Upgrader
	server   Server
	rec      metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time

	// OnCheck, if set, receives every check result from Run.
	OnCheck func(UpdateInfo)

	trigger chan struct{}

	mu   sync.Mutex
	last *UpdateInfo
}

// New creates a reconciler. server may be nil, in which case applying
// never restarts anything.
func New(cfg *config.Config, store state.Repository, upgrader Upgrader, server Server, rec metrics.Recorder, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		cfg:   cfg.Updates,
		store: store,
		index: &PyPI{
			IndexURL: cfg.App.IndexURL,
			Package:  cfg.App.Package,
			Client:   &http.Client{Timeout: HTTPTimeout},
		},
		upgrader: upgrader,
		server:   server,
		rec:      metrics.OrNoop(rec),
		logger:   logger,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
	}
}

// Last returns the most recent check, or nil before the first one.
func (r *Reconciler) Last() *UpdateInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	info := *r.last
	return &info
}

// Check compares the installation with the index. Dev installs never
// query the index and always report a re-pull as available. Index
// failures are reported in UpdateInfo.Error, not as an error.
func (r *Reconciler) Check(ctx context.Context) (UpdateInfo, error) {
	rec, err := r.store.LoadInstall()
	if err != nil {
		return UpdateInfo{}, err
	}
	if rec == nil || !rec.Complete {
		return UpdateInfo{}, installer.ErrNotInstalled
	}

	info := UpdateInfo{
		Current:   rec.Version,
		Source:    rec.Source(),
		CheckedAt: r.now(),
	}

	marker, err := r.store.LoadDevMarker()
	if err != nil {
		return UpdateInfo{}, err
	}
	if (marker != nil) != rec.Mode.IsDev() {
		r.logger.Warn("dev-mode marker disagrees with installation record, following the marker",
			"marker", marker != nil, "mode", rec.Mode)
	}
	if marker != nil {
		info.Source = marker.Source()
		info.Dev = true
		info.Available = true
		r.record(info, metrics.OutcomeDev)
		return info, nil
	}

	if r.cfg.CheckTimeout.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.CheckTimeout.Duration)
		defer cancel()
	}

	current, err := normalized(rec.Version)
	if err != nil {
		info.Error = fmt.Sprintf("installed version %q is not comparable", rec.Version)
		r.record(info, metrics.OutcomeError)
		return info, nil
	}

	src := r.index.WithContext(ctx)
	res, err := latest.Check(src, current)
	if err != nil {
		r.logger.Warn("update check failed", "error", err)
		info.Error = err.Error()
		r.record(info, metrics.OutcomeError)
		return info, nil
	}

	info.Latest = src.Spelling(res.Current)
	info.Available = res.Outdated
	outcome := metrics.OutcomeCurrent
	if info.Available {
		outcome = metrics.OutcomeAvailable
	}
	r.record(info, outcome)
	return info, nil
}

func (r *Reconciler) record(info UpdateInfo, outcome string) {
	r.mu.Lock()
	r.last = &info
	r.mu.Unlock()
	r.rec.UpdateCheck(outcome)
}

// Apply upgrades the installation and restarts the server if one is
// running. Dev installs are force-reinstalled from the same source.
func (r *Reconciler) Apply(ctx context.Context) (*ApplyResult, error) {
	before, err := r.store.LoadInstall()
	if err != nil {
		return nil, err
	}
	if before == nil || !before.Complete {
		return nil, installer.ErrNotInstalled
	}

	after, err := r.upgrader.Upgrade(ctx)
	if err != nil {
		return nil, err
	}
	res := &ApplyResult{From: before.Version, To: after.Version}
	if !before.Source().Mode.IsDev() && !version.Newer(after.Version, before.Version) {
		r.logger.Info("upgrade left version unchanged", "version", after.Version)
	}

	if r.server == nil {
		return res, nil
	}
	h, err := r.server.Status(ctx)
	if err != nil {
		return res, fmt.Errorf("reading server status: %w", err)
	}
	if !h.Running() {
		res.Server = h
		return res, nil
	}
	h, err = r.server.RestartFor(ctx, "update", h.Port)
	res.Server = h
	if err != nil {
		return res, fmt.Errorf("restarting after upgrade: %w", err)
	}
	res.Restarted = true
	return res, nil
}

// Trigger asks Run for an immediate check. It never blocks.
func (r *Reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run checks once at startup, then on every interval tick and every
// Trigger, until ctx is done. With updates disabled only triggers are
// served. Release installs are upgraded automatically when AutoApply is
// set.
func (r *Reconciler) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if r.cfg.Enabled && r.cfg.Interval.Duration > 0 {
		t := time.NewTicker(r.cfg.Interval.Duration)
		defer t.Stop()
		tick = t.C
		r.cycle(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			r.cycle(ctx)
		case <-r.trigger:
			r.cycle(ctx)
		}
	}
}

func (r *Reconciler) cycle(ctx context.Context) {
	info, err := r.Check(ctx)
	if err != nil {
		r.logger.Debug("skipping update check", "error", err)
		return
	}
	if r.OnCheck != nil {
		r.OnCheck(info)
	}
	if !info.Available || info.Dev || !r.cfg.AutoApply {
		return
	}

	r.logger.Info("applying update", "from", info.Current, "to", info.Latest)
	res, err := r.Apply(ctx)
	if err != nil {
		r.logger.Error("update failed", "error", err)
		return
	}
	r.logger.Info("update applied", "version", res.To, "restarted", res.Restarted)
}
