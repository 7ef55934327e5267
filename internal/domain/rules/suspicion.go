// Package rules contains the pure calculation logic for the simulation.
// This package is PURE and must NOT import any infrastructure packages.
package rules

import (
	"github.com/vidadoble/juego/server/internal/domain/activity"
	"github.com/vidadoble/juego/server/internal/domain/observer"
)

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DetectionSeverity scores how bad it is to be caught by this observer.
// Base 0.5; illegal acts are worse; law enforcement catching crime and
// authority figures catching slacking stack on top. Clamped to [0, 1].
func DetectionSeverity(o *observer.Observer, illegal bool) float64 {
	severity := 0.5
	if illegal {
		severity += 0.3
		if o.IsLawEnforcement() {
			severity += 0.2
		}
	}
	if o.IsAuthority() && o.CaresAboutJobPerformance {
		severity += 0.2
	}
	return Clamp(severity, 0, 1)
}

// DecayMultiplier scales heat decay by the age of the last suspicious act.
// Fresh suspicion resists decay; stale suspicion fades fast.
func DecayMultiplier(hoursSinceIncrease float64) float64 {
	switch {
	case hoursSinceIncrease < 24:
		return 0.5
	case hoursSinceIncrease < 7*24:
		return 1.0
	case hoursSinceIncrease < 30*24:
		return 2.0
	default:
		return 3.0
	}
}

// CanMultitask is the pairwise compatibility predicate for two activities
// of the same owner. It is evaluated at creation and pause/resume time
// only, never re-validated mid-run.
func CanMultitask(a, b *activity.Activity) bool {
	if a.Multitasking == activity.MultitaskNone || b.Multitasking == activity.MultitaskNone {
		return false
	}
	// Two demanding activities of the same kind collide: you cannot hold
	// two physical jobs or stare at two screens at once unless both
	// tolerate full concurrency.
	if a.Kind == b.Kind && a.Kind != activity.KindPassive {
		if a.Multitasking != activity.MultitaskFull || b.Multitasking != activity.MultitaskFull {
			return false
		}
	}
	return a.RequiredAttention+b.RequiredAttention <= 1.0
}
