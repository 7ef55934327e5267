// Package activity defines the core domain entity for player activities.
// This package is PURE and must NOT import any infrastructure packages (network, events, platform).
package activity

import "github.com/google/uuid"

// Kind classifies how an activity occupies the player.
type Kind string

const (
	KindPhysical Kind = "Physical" // Workouts, manual jobs, burglary
	KindScreen   Kind = "Screen"   // Remote work, hacking, trading
	KindPassive  Kind = "Passive"  // Listening, waiting, surveillance stakeout
)

// MultitaskingLevel describes how well an activity tolerates concurrency.
type MultitaskingLevel string

const (
	MultitaskFull    MultitaskingLevel = "Full"    // Runs alongside anything
	MultitaskPartial MultitaskingLevel = "Partial" // Runs alongside light tasks
	MultitaskBreaks  MultitaskingLevel = "Breaks"  // Only multitasks during breaks
	MultitaskNone    MultitaskingLevel = "None"    // Demands exclusive focus
)

// State is the lifecycle state of an activity.
type State string

const (
	StateActive    State = "Active"  // Created, not yet ticked
	StateRunning   State = "Running" // Advancing each tick
	StatePaused    State = "Paused"
	StateFailed    State = "Failed"
	StateCompleted State = "Completed"
)

// Phase is a timed segment of an activity with its own focus demands.
// A shift job might be {commute, work, break, work}: multitasking rules
// follow whichever phase is current.
type Phase struct {
	Name            string            `json:"name"`
	DurationSeconds float64           `json:"duration_seconds"`
	Multitasking    MultitaskingLevel `json:"multitasking"`
	Attention       float64           `json:"attention"`
}

// Activity represents a timed, possibly risk-bearing task an actor performs.
type Activity struct {
	ID                string            `json:"id"`
	OwnerID           string            `json:"owner_id"`
	Kind              Kind              `json:"kind"`
	RiskTag           string            `json:"risk_tag"`
	Multitasking      MultitaskingLevel `json:"multitasking"`
	RequiredAttention float64           `json:"required_attention"` // 0-1
	DurationSeconds   float64           `json:"duration_seconds"`
	State             State             `json:"state"`
	ElapsedSeconds    float64           `json:"elapsed_seconds"`
	PerformanceScore  float64           `json:"performance_score"` // 0-100
	WasDetected       bool              `json:"was_detected"`
	ConcurrentWith    map[string]bool   `json:"concurrent_with"`
	Phases            []Phase           `json:"phases"`
	CurrentPhaseIndex int               `json:"current_phase_index"`

	// Seq orders activities by creation so pause tie-breaks always favor
	// the most recently created one.
	Seq int64 `json:"seq"`
}

// New creates an activity with per-kind focus defaults. Non-positive
// durations are clamped to one second at the boundary.
func New(ownerID string, kind Kind, riskTag string, durationSeconds float64) *Activity {
	if durationSeconds <= 0 {
		durationSeconds = 1
	}

	a := &Activity{
		ID:               uuid.NewString(),
		OwnerID:          ownerID,
		Kind:             kind,
		RiskTag:          riskTag,
		DurationSeconds:  durationSeconds,
		State:            StateActive,
		PerformanceScore: 50, // Neutral starting score
		ConcurrentWith:   make(map[string]bool),
	}

	switch kind {
	case KindPhysical:
		a.Multitasking = MultitaskBreaks
		a.RequiredAttention = 0.6
	case KindScreen:
		a.Multitasking = MultitaskPartial
		a.RequiredAttention = 0.5
	case KindPassive:
		a.Multitasking = MultitaskFull
		a.RequiredAttention = 0.2
	default:
		a.Multitasking = MultitaskPartial
		a.RequiredAttention = 0.5
	}

	return a
}

// IsLive reports whether the activity is occupying the actor right now.
func (a *Activity) IsLive() bool {
	return a.State == StateActive || a.State == StateRunning
}

// IsRiskBearing reports whether the activity must be checked against
// observers each tick. Untagged activities are never risky.
func (a *Activity) IsRiskBearing() bool {
	return a.RiskTag != ""
}

// CurrentPhase returns the active phase, or nil for phaseless activities.
func (a *Activity) CurrentPhase() *Phase {
	if len(a.Phases) == 0 || a.CurrentPhaseIndex >= len(a.Phases) {
		return nil
	}
	return &a.Phases[a.CurrentPhaseIndex]
}

// AdvancePhase moves to the next declared phase once its duration has
// elapsed, and rewrites the activity's focus parameters to match.
// Returns true if the phase index changed.
func (a *Activity) AdvancePhase() bool {
	if len(a.Phases) == 0 || a.CurrentPhaseIndex >= len(a.Phases)-1 {
		return false
	}

	var boundary float64
	for i := 0; i <= a.CurrentPhaseIndex; i++ {
		boundary += a.Phases[i].DurationSeconds
	}
	if a.ElapsedSeconds < boundary {
		return false
	}

	a.CurrentPhaseIndex++
	next := a.Phases[a.CurrentPhaseIndex]
	a.Multitasking = next.Multitasking
	a.RequiredAttention = next.Attention
	return true
}
