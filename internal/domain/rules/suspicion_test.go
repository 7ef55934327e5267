package rules

import (
	"testing"

	"github.com/vidadoble/juego/server/internal/domain/activity"
	"github.com/vidadoble/juego/server/internal/domain/observer"
)

func TestDetectionSeverityStacking(t *testing.T) {
	civilian := observer.New("O1", observer.RoleCivilian)
	cop := observer.New("O2", observer.RoleCop)
	boss := observer.New("O3", observer.RoleBoss)

	// Legal act seen by a civilian: base only.
	if got := DetectionSeverity(civilian, false); got != 0.5 {
		t.Errorf("civilian/legal severity = %v, want 0.5", got)
	}

	// Illegal act seen by a civilian: base + illegal.
	if got := DetectionSeverity(civilian, true); got != 0.8 {
		t.Errorf("civilian/illegal severity = %v, want 0.8", got)
	}

	// Illegal act seen by a cop: base + illegal + law enforcement, clamped.
	if got := DetectionSeverity(cop, true); got != 1.0 {
		t.Errorf("cop/illegal severity = %v, want 1.0", got)
	}

	// Legal act seen by the boss who cares about performance.
	if got := DetectionSeverity(boss, false); got != 0.7 {
		t.Errorf("boss/legal severity = %v, want 0.7", got)
	}
}

func TestDecayMultiplierTiers(t *testing.T) {
	cases := []struct {
		hours float64
		want  float64
	}{
		{0, 0.5},
		{23.9, 0.5},
		{24, 1.0},
		{7*24 - 1, 1.0},
		{7 * 24, 2.0},
		{30*24 - 1, 2.0},
		{30 * 24, 3.0},
		{365 * 24, 3.0},
	}
	for _, c := range cases {
		if got := DecayMultiplier(c.hours); got != c.want {
			t.Errorf("DecayMultiplier(%v) = %v, want %v", c.hours, got, c.want)
		}
	}
}

func TestCanMultitaskExclusiveFocus(t *testing.T) {
	heist := activity.New("P1", activity.KindPhysical, "burglary", 3600)
	heist.Multitasking = activity.MultitaskNone

	podcast := activity.New("P1", activity.KindPassive, "", 3600)

	if CanMultitask(heist, podcast) {
		t.Error("an exclusive-focus activity must never share")
	}
	if CanMultitask(podcast, heist) {
		t.Error("exclusivity must hold in both argument orders")
	}
}

func TestCanMultitaskSameKindCollision(t *testing.T) {
	jobA := activity.New("P1", activity.KindScreen, "", 3600)
	jobB := activity.New("P1", activity.KindScreen, "", 3600)

	// Two Partial screen jobs collide even with low attention.
	jobA.RequiredAttention = 0.2
	jobB.RequiredAttention = 0.2
	if CanMultitask(jobA, jobB) {
		t.Error("two screen activities must not share unless both are Full")
	}

	jobA.Multitasking = activity.MultitaskFull
	jobB.Multitasking = activity.MultitaskFull
	if !CanMultitask(jobA, jobB) {
		t.Error("two Full screen activities within budget should share")
	}
}

func TestCanMultitaskAttentionBudget(t *testing.T) {
	workout := activity.New("P1", activity.KindPhysical, "", 3600) // Breaks, 0.6
	stream := activity.New("P1", activity.KindScreen, "", 3600)   // Partial, 0.5

	if CanMultitask(workout, stream) {
		t.Error("combined attention 1.1 exceeds the budget")
	}

	stream.RequiredAttention = 0.4
	if !CanMultitask(workout, stream) {
		t.Error("combined attention 1.0 is exactly the budget and should pass")
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(-5, 0, 100); got != 0 {
		t.Errorf("Clamp(-5) = %v, want 0", got)
	}
	if got := Clamp(150, 0, 100); got != 100 {
		t.Errorf("Clamp(150) = %v, want 100", got)
	}
	if got := Clamp(42, 0, 100); got != 42 {
		t.Errorf("Clamp(42) = %v, want 42", got)
	}
}
