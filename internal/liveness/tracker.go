// Package liveness tracks whether a validating participant is still present.
//
// A Tracker owns the activation flag, a monotonically increasing validation
// count and the timestamp of the last checkin. The dead-man's switch is the
// number of days left before the configured window elapses without a
// checkin. The tracker only reports that value; acting on an expired switch
// is the job of an external supervisor.
package liveness

import (
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultWindowDays is the dead-man's switch window.
const DefaultWindowDays = 90.0

// degradedFraction is the share of the window below which a still-active
// tracker reports a degraded consensus.
const degradedFraction = 0.1

const day = 24 * time.Hour

// ErrNotActive is returned when a validation is recorded while inactive.
var ErrNotActive = errors.New("liveness: not active")

// Consensus summarizes the validator's health.
type Consensus string

const (
	ConsensusOnline   Consensus = "online"
	ConsensusDegraded Consensus = "degraded"
	ConsensusOffline  Consensus = "offline"
)

// State is a point-in-time view of the tracker.
type State struct {
	Active          bool       `json:"active"`
	LastCheckin     *time.Time `json:"last_checkin,omitempty"`
	ValidatedCount  uint64     `json:"validated_count"`
	WindowDays      float64    `json:"window_days"`
	DaysUntilSwitch float64    `json:"days_until_switch"`
	Consensus       Consensus  `json:"consensus"`
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithWindowDays overrides the liveness window. Non-positive values are ignored.
func WithWindowDays(days float64) Option {
	return func(t *Tracker) {
		if days > 0 && !math.IsInf(days, 0) {
			t.windowDays = days
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l.Named("force")
		}
	}
}

// Tracker implements the liveness state machine:
//
//	Inactive --Activate--> Active --Deactivate--> Inactive
//
// Checkin is accepted in either state.
type Tracker struct {
	mu             sync.RWMutex
	active         bool
	lastCheckin    time.Time
	hasCheckin     bool
	validatedCount uint64
	windowDays     float64

	now func() time.Time
	log *zap.Logger
}

// NewTracker creates an inactive tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		windowDays: DefaultWindowDays,
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Activate marks the tracker active and records a checkin.
func (t *Tracker) Activate() {
	t.mu.Lock()
	t.active = true
	t.lastCheckin = t.now()
	t.hasCheckin = true
	t.mu.Unlock()
	t.log.Info("iron will activated, validator ready")
}

// Deactivate clears the active flag. Count and last checkin are kept.
func (t *Tracker) Deactivate() {
	t.mu.Lock()
	t.active = false
	t.mu.Unlock()
	t.log.Info("iron will rested")
}

// Checkin refreshes the last checkin time.
func (t *Tracker) Checkin() {
	t.mu.Lock()
	t.lastCheckin = t.now()
	t.hasCheckin = true
	t.mu.Unlock()
	t.log.Debug("checkin recorded")
}

// RecordValidation increments the validated count. It fails with
// ErrNotActive, leaving the count unchanged, when the tracker is inactive.
func (t *Tracker) RecordValidation(ref string) (uint64, error) {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return 0, ErrNotActive
	}
	t.validatedCount++
	n := t.validatedCount
	t.mu.Unlock()
	t.log.Debug("validation recorded", zap.String("ref", ref), zap.Uint64("count", n))
	return n, nil
}

// Active reports whether the tracker is active.
func (t *Tracker) Active() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}

// ValidatedCount returns the number of recorded validations.
func (t *Tracker) ValidatedCount() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.validatedCount
}

// WindowDays returns the configured window.
func (t *Tracker) WindowDays() float64 {
	return t.windowDays
}

// DaysUntilSwitch returns the days left before the switch fires, never negative.
func (t *Tracker) DaysUntilSwitch() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.daysUntilSwitchLocked(t.now())
}

// Expired reports whether the window has fully elapsed.
func (t *Tracker) Expired() bool {
	return t.DaysUntilSwitch() == 0
}

func (t *Tracker) daysUntilSwitchLocked(now time.Time) float64 {
	if !t.hasCheckin {
		return t.windowDays
	}
	since := now.Sub(t.lastCheckin)
	if since < 0 {
		since = 0
	}
	return math.Max(0, t.windowDays-float64(since)/float64(day))
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	now := t.now()
	st := State{
		Active:          t.active,
		ValidatedCount:  t.validatedCount,
		WindowDays:      t.windowDays,
		DaysUntilSwitch: t.daysUntilSwitchLocked(now),
	}
	if t.hasCheckin {
		last := t.lastCheckin
		st.LastCheckin = &last
	}
	st.Consensus = consensusFor(st)
	return st
}

// Restore loads persisted history into the tracker. The active flag and the
// window are not restored; the validated count never goes backwards.
//
// Restore may raise the validated count while the tracker is inactive. Only
// new validations require an active tracker; loading history does not.
func (t *Tracker) Restore(st State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st.ValidatedCount > t.validatedCount {
		t.validatedCount = st.ValidatedCount
	}
	if st.LastCheckin != nil && (!t.hasCheckin || st.LastCheckin.After(t.lastCheckin)) {
		t.lastCheckin = *st.LastCheckin
		t.hasCheckin = true
	}
}

// Consensus derives the health summary from the current state.
func (t *Tracker) Consensus() Consensus {
	return t.Snapshot().Consensus
}

func consensusFor(st State) Consensus {
	switch {
	case !st.Active || st.DaysUntilSwitch == 0:
		return ConsensusOffline
	case st.DaysUntilSwitch < st.WindowDays*degradedFraction:
		return ConsensusDegraded
	default:
		return ConsensusOnline
	}
}
