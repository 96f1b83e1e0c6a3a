// Package metrics defines the events the launcher components report and a
// Prometheus collector for them. All Recorder implementations must be safe
// for concurrent use and nil-safe via Noop.
package metrics

import (
	"time"
)

// Recorder receives launcher events.
type Recorder interface {
	// ServerState records a supervisor state transition.
	ServerState(from, to string)
	// HealthCheck records one health probe.
	HealthCheck(healthy bool, d time.Duration)
	// ServerRestart records a restart, with reason "manual", "crash" or "update".
	ServerRestart(reason string)
	// Operation records an install, reset, upgrade or reinstall.
	Operation(op, mode string, d time.Duration, err error)
	// UpdateCheck records the outcome of a reconciler cycle.
	UpdateCheck(outcome string)
	// ComponentRemoved records one uninstall removal.
	ComponentRemoved(component string, err error)
}

// Update check outcomes.
const (
	OutcomeAvailable = "available"
	OutcomeCurrent   = "current"
	OutcomeDev       = "dev"
	OutcomeError     = "error"
)

type noop struct{}

func (noop) ServerState(string, string) {}
func (noop) HealthCheck(bool, time.Duration) {}
func (noop) ServerRestart(string) {}
func (noop) Operation(string, string, time.Duration, error) {}
func (noop) UpdateCheck(string) {}
func (noop) ComponentRemoved(string, error) {}

// Noop returns a Recorder that drops everything.
func Noop() Recorder { return noop{} }

// OrNoop returns r, or Noop if r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return noop{}
	}
	return r
}

type multi []Recorder

// Multi fans each event out to every non-nil recorder.
func Multi(rs ...Recorder) Recorder {
	var m multi
	for _, r := range rs {
		if r != nil {
			m = append(m, r)
		}
	}
	if len(m) == 0 {
		return noop{}
	}
	if len(m) == 1 {
		return m[0]
	}
	return m
}

func (m multi) ServerState(from, to string) {
	for _, r := range m {
		r.ServerState(from, to)
	}
}

func (m multi) HealthCheck(healthy bool, d time.Duration) {
	for _, r := range m {
		r.HealthCheck(healthy, d)
	}
}

func (m multi) ServerRestart(reason string) {
	for _, r := range m {
		r.ServerRestart(reason)
	}
}

func (m multi) Operation(op, mode string, d time.Duration, err error) {
	for _, r := range m {
		r.Operation(op, mode, d, err)
	}
}

func (m multi) UpdateCheck(outcome string) {
	for _, r := range m {
		r.UpdateCheck(outcome)
	}
}

func (m multi) ComponentRemoved(component string, err error) {
	for _, r := range m {
		r.ComponentRemoved(component, err)
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
