// Package resilience guards backend dial attempts against hammering a
// failing endpoint.
//
// The central type is [DialGuard], a small breaker that tracks consecutive
// dial failures. Once the failure threshold is reached, further attempts are
// rejected with [ErrBackendCooling] until the cooldown window elapses, after
// which a single probe attempt is allowed through. A successful dial resets
// the guard.
//
// Sessions are started by an operator, never by an automatic retry loop, so
// the guard exists purely to turn a burst of hopeless manual retries into an
// immediate, explicit refusal rather than a hung dial.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBackendCooling is returned by [DialGuard.Attempt] when the guard has
// tripped and the cooldown window has not yet elapsed.
var ErrBackendCooling = errors.New("resilience: backend in cooldown after repeated dial failures")

// DialGuardConfig holds tuning knobs for a [DialGuard].
type DialGuardConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// Threshold is the number of consecutive dial failures before the guard
	// trips. Default: 3.
	Threshold int

	// Cooldown is how long attempts are rejected after the guard trips.
	// Default: 15s.
	Cooldown time.Duration
}

// DialGuard rejects dial attempts after repeated consecutive failures.
// It is safe for concurrent use from multiple goroutines.
type DialGuard struct {
	name      string
	threshold int
	cooldown  time.Duration

	// now is swapped out in tests.
	now func() time.Time

	mu       sync.Mutex
	failures int
	tripped  time.Time
	probing  bool
}

// NewDialGuard creates a [DialGuard] with the supplied configuration.
// Zero-value config fields are replaced with defaults.
func NewDialGuard(cfg DialGuardConfig) *DialGuard {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	return &DialGuard{
		name:      cfg.Name,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		now:       time.Now,
	}
}

// Attempt runs dial if the guard allows it. While tripped it returns
// [ErrBackendCooling] without calling dial; once the cooldown has elapsed a
// single probe call is let through and the guard re-trips or resets based on
// its outcome.
func (g *DialGuard) Attempt(dial func() error) error {
	g.mu.Lock()
	if g.failures >= g.threshold {
		if g.now().Sub(g.tripped) < g.cooldown {
			g.mu.Unlock()
			return ErrBackendCooling
		}
		if g.probing {
			// Another goroutine already holds the probe slot.
			g.mu.Unlock()
			return ErrBackendCooling
		}
		g.probing = true
		slog.Info("dial guard allowing probe after cooldown", "name", g.name)
	}
	g.mu.Unlock()

	err := dial()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.probing = false

	if err != nil {
		g.failures++
		g.tripped = g.now()
		if g.failures == g.threshold {
			slog.Warn("dial guard tripped",
				"name", g.name,
				"failures", g.failures,
				"cooldown", g.cooldown,
			)
		}
		return err
	}

	if g.failures > 0 {
		slog.Info("dial guard reset after successful dial", "name", g.name)
	}
	g.failures = 0
	return nil
}

// Failures reports the current consecutive failure count.
func (g *DialGuard) Failures() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures
}

// Tripped reports whether the guard is currently rejecting attempts.
func (g *DialGuard) Tripped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures >= g.threshold && g.now().Sub(g.tripped) < g.cooldown
}
