package supervisor

import (
	"fmt"
	"sync"
	"time"
)

// Crash restart policy.
const (
	// InitialBackoff is the wait before the first crash restart.
	InitialBackoff = 2 * time.Second

	// MaxBackoff caps the wait between crash restarts.
	MaxBackoff = 2 * time.Minute

	// BackoffMultiplier is the exponential growth factor.
	BackoffMultiplier = 2.0

	// CrashLoopThreshold is the number of crashes within CrashLoopWindow
	// after which the server is left stopped.
	CrashLoopThreshold = 5

	// CrashLoopWindow is the window crash loops are detected in.
	CrashLoopWindow = 10 * time.Minute

	// BackoffResetDuration is how long the server must stay up before its
	// crash count is forgotten.
	BackoffResetDuration = 30 * time.Minute
)

// crashTracker decides when a crashed server may be restarted.
type crashTracker struct {
	mu  sync.Mutex
	now func() time.Time

	count        int
	firstCrash   time.Time
	lastCrash    time.Time
	loopDetected bool
}

func newCrashTracker(now func() time.Time) *crashTracker {
	return &crashTracker{now: now}
}

// RecordCrash notes a crash and returns the backoff before a restart, or
// an error once the server is crash-looping.
func (c *crashTracker) RecordCrash() (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.count > 0 && now.Sub(c.lastCrash) > BackoffResetDuration {
		c.reset()
	}
	if c.count == 0 {
		c.firstCrash = now
	}
	c.count++
	c.lastCrash = now

	if c.count >= CrashLoopThreshold && now.Sub(c.firstCrash) <= CrashLoopWindow {
		c.loopDetected = true
		return 0, fmt.Errorf("crash loop detected: server crashed %d times in %v", c.count, now.Sub(c.firstCrash).Round(time.Second))
	}
	return backoff(c.count), nil
}

// RecordHealthy notes that a restarted server came up.
func (c *crashTracker) RecordHealthy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count > 0 && c.now().Sub(c.lastCrash) > BackoffResetDuration {
		c.reset()
	}
}

// ShouldRestart reports whether the backoff after the last crash has
// elapsed, with the reason when it has not.
func (c *crashTracker) ShouldRestart() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loopDetected {
		return false, fmt.Sprintf("crash loop detected: %d crashes", c.count)
	}
	if c.count == 0 {
		return true, ""
	}
	if remaining := backoff(c.count) - c.now().Sub(c.lastCrash); remaining > 0 {
		return false, fmt.Sprintf("backoff in effect: %v remaining", remaining.Round(time.Second))
	}
	return true, ""
}

// Reset clears the crash history, including a detected loop.
func (c *crashTracker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *crashTracker) reset() {
	c.count = 0
	c.firstCrash = time.Time{}
	c.lastCrash = time.Time{}
	c.loopDetected = false
}

// backoff returns InitialBackoff * 2^(count-1), capped at MaxBackoff.
func backoff(count int) time.Duration {
	d := float64(InitialBackoff)
	for i := 1; i < count; i++ {
		d *= BackoffMultiplier
		if d >= float64(MaxBackoff) {
			return MaxBackoff
		}
	}
	return time.Duration(d)
}
