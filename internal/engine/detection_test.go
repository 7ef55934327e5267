package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidadoble/juego/server/internal/clock"
	"github.com/vidadoble/juego/server/internal/domain/observer"
	"github.com/vidadoble/juego/server/internal/events"
	"github.com/vidadoble/juego/server/internal/platform/logger"
)

func newTestDetection(clk *clock.GameClock, raycast Raycaster) *DetectionEngine {
	de := NewDetectionEngine(events.NewEventLog(nil), logger.NewLogger(), clk, raycast)
	de.SetRand(rand.New(rand.NewSource(42)))
	return de
}

func streetCop() *observer.Observer {
	cop := observer.New("COP", observer.RoleCop)
	cop.LocationID = "street"
	cop.Position = observer.Vec3{}
	cop.Facing = observer.Vec3{Z: 1}
	cop.VisionRange = 6
	cop.VisionConeDegrees = 120
	return cop
}

func TestCheckDetectionHit(t *testing.T) {
	de := newTestDetection(clock.New(), nil)
	de.RegisterObserver(streetCop())
	de.RegisterRiskProfile("drug_dealing", RiskProfile{Illegal: true, VisualProfile: 0.8})
	de.UpdateActorPose("P1", "street", observer.Vec3{Z: 3})

	result := de.CheckDetection("P1", "drug_dealing")

	require.True(t, result.Detected)
	assert.Equal(t, "COP", result.ObserverID)
	assert.Equal(t, ReasonDetected, result.Reason)
	// Illegal act caught by law enforcement saturates severity.
	assert.Equal(t, 1.0, result.Severity)
}

func TestCheckDetectionRejectionLadder(t *testing.T) {
	de := newTestDetection(clock.New(), nil)
	de.RegisterObserver(streetCop())
	de.RegisterRiskProfile("drug_dealing", RiskProfile{Illegal: true, VisualProfile: 0.8})

	// Unknown actor: nothing to check.
	assert.Equal(t, ReasonNoObserver, de.CheckDetection("GHOST", "drug_dealing").Reason)

	// Different location: observer is not a candidate at all.
	de.UpdateActorPose("P1", "apartment", observer.Vec3{Z: 3})
	assert.Equal(t, ReasonNoObserver, de.CheckDetection("P1", "drug_dealing").Reason)

	// Beyond vision range.
	de.UpdateActorPose("P1", "street", observer.Vec3{X: 5, Z: 5})
	assert.Equal(t, ReasonOutOfRange, de.CheckDetection("P1", "drug_dealing").Reason)

	// Behind the observer, inside range.
	de.UpdateActorPose("P1", "street", observer.Vec3{Z: -3})
	assert.Equal(t, ReasonOutsideCone, de.CheckDetection("P1", "drug_dealing").Reason)
}

func TestCheckDetectionFirstRegisteredObserverWins(t *testing.T) {
	de := newTestDetection(clock.New(), nil)
	de.RegisterRiskProfile("drug_dealing", RiskProfile{Illegal: true, VisualProfile: 0.8})

	first := streetCop()
	second := streetCop()
	second.ID = "COP_2"
	de.RegisterObserver(first)
	de.RegisterObserver(second)

	// Both cops stand at the origin facing +Z, so both can see the actor.
	de.UpdateActorPose("P1", "street", observer.Vec3{Z: 3})

	for i := 0; i < 5; i++ {
		result := de.CheckDetection("P1", "drug_dealing")
		require.True(t, result.Detected)
		assert.Equal(t, "COP", result.ObserverID)
	}
}

func TestCheckDetectionLineOfSight(t *testing.T) {
	wall := RaycasterFunc(func(from, to observer.Vec3) bool { return true })
	de := newTestDetection(clock.New(), wall)
	de.RegisterObserver(streetCop())
	de.RegisterRiskProfile("drug_dealing", RiskProfile{Illegal: true, VisualProfile: 0.8})
	de.UpdateActorPose("P1", "street", observer.Vec3{Z: 3})

	result := de.CheckDetection("P1", "drug_dealing")

	assert.False(t, result.Detected)
	assert.Equal(t, ReasonSightBlocked, result.Reason)
}

func TestCheckDetectionCareFilter(t *testing.T) {
	de := newTestDetection(clock.New(), nil)

	// A coworker cares about neither legality nor performance.
	bystander := observer.New("CW", observer.RoleCoworker)
	bystander.LocationID = "office"
	bystander.Facing = observer.Vec3{Z: 1}
	bystander.CaresAboutLegality = false
	bystander.CaresAboutJobPerformance = false
	de.RegisterObserver(bystander)

	de.RegisterRiskProfile("hacking", RiskProfile{Illegal: true, VisualProfile: 0.3})
	de.RegisterRiskProfile("slacking", RiskProfile{Illegal: false, VisualProfile: 0.6})
	de.UpdateActorPose("P1", "office", observer.Vec3{Z: 2})

	assert.Equal(t, ReasonIndifferent, de.CheckDetection("P1", "hacking").Reason)
	assert.Equal(t, ReasonIndifferent, de.CheckDetection("P1", "slacking").Reason)
}

func TestCheckDetectionUndetectableProfile(t *testing.T) {
	de := newTestDetection(clock.New(), nil)
	de.RegisterObserver(streetCop())
	de.RegisterRiskProfile("thought_crime", RiskProfile{Illegal: true, VisualProfile: 0})
	de.UpdateActorPose("P1", "street", observer.Vec3{Z: 3})

	result := de.CheckDetection("P1", "thought_crime")

	assert.False(t, result.Detected)
	assert.Equal(t, ReasonUndetectable, result.Reason)
}

func TestSensitivityDialComposesAndGates(t *testing.T) {
	de := newTestDetection(clock.New(), nil)
	de.RegisterObserver(streetCop())
	de.RegisterRiskProfile("drug_dealing", RiskProfile{Illegal: true, VisualProfile: 0.8})
	de.UpdateActorPose("P1", "street", observer.Vec3{Z: 5})

	// awareness = 6/5 = 1.2; at half sensitivity 0.6 < 0.8 fails.
	de.SetDetectionSensitivity(0.5)
	assert.Equal(t, ReasonBelowThreshold, de.CheckDetection("P1", "drug_dealing").Reason)

	// Dial calls compose multiplicatively: 0.5 * 2 = 1.0 restores the hit.
	de.SetDetectionSensitivity(2.0)
	assert.Equal(t, 1.0, de.DetectionSensitivity())
	assert.True(t, de.CheckDetection("P1", "drug_dealing").Detected)

	// Non-positive multipliers are rejected, not applied.
	de.SetDetectionSensitivity(0)
	de.SetDetectionSensitivity(-3)
	assert.Equal(t, 1.0, de.DetectionSensitivity())
}

func TestGetDetectionRisk(t *testing.T) {
	de := newTestDetection(clock.New(), nil)
	de.RegisterObserver(streetCop())
	de.RegisterRiskProfile("drug_dealing", RiskProfile{Illegal: true, VisualProfile: 0.8})

	// Unknown actor reads as zero risk.
	assert.Equal(t, 0.0, de.GetDetectionRisk("GHOST", "drug_dealing", "street"))

	// Halfway into the range: (1 - 3/6) * 0.8 = 0.4.
	de.UpdateActorPose("P1", "street", observer.Vec3{Z: 3})
	assert.InDelta(t, 0.4, de.GetDetectionRisk("P1", "drug_dealing", "street"), 1e-9)

	// Out of range contributes nothing.
	de.UpdateActorPose("P1", "street", observer.Vec3{Z: 10})
	assert.Equal(t, 0.0, de.GetDetectionRisk("P1", "drug_dealing", "street"))

	// The sensitivity dial scales the estimate but it stays clamped to 1.
	de.UpdateActorPose("P1", "street", observer.Vec3{Z: 0.1})
	de.SetDetectionSensitivity(10)
	assert.Equal(t, 1.0, de.GetDetectionRisk("P1", "drug_dealing", "street"))
}

func TestRegisterObserverReplaceAndClamp(t *testing.T) {
	de := newTestDetection(clock.New(), nil)

	first := streetCop()
	de.RegisterObserver(first)

	degenerate := observer.New("COP", observer.RoleCop)
	degenerate.VisionRange = -5
	degenerate.VisionConeDegrees = 720
	de.RegisterObserver(degenerate)

	require.Len(t, de.Observers(), 1)
	got := de.GetObserver("COP")
	assert.Equal(t, 1.0, got.VisionRange)
	assert.Equal(t, 360.0, got.VisionConeDegrees)
}

func TestPatrolStepping(t *testing.T) {
	clk := clock.New()
	de := newTestDetection(clk, nil)

	cop := streetCop()
	cop.PatrolWaypoints = []observer.Vec3{
		{X: 0, Z: 0},
		{X: 10, Z: 0},
		{X: 10, Z: 10},
	}
	de.RegisterObserver(cop)

	// First tick only schedules the initial step.
	de.Tick(120)
	assert.Equal(t, 0, cop.CurrentWaypointIndex)
	require.NotZero(t, cop.NextPatrolHours)

	// Max jittered interval is 1.1 game hours; two hours later the
	// observer must have snapped to the next waypoint, facing along
	// the leg it walked.
	clk.Advance(120)
	de.Tick(120)
	assert.Equal(t, 1, cop.CurrentWaypointIndex)
	assert.Equal(t, observer.Vec3{X: 10, Z: 0}, cop.Position)
	assert.InDelta(t, 1.0, cop.Facing.X, 1e-9)

	// Raising patrol frequency shortens future delays.
	before := cop.NextPatrolHours
	de.SetPatrolFrequency(4)
	clk.Advance(120)
	de.Tick(120)
	assert.Equal(t, 2, cop.CurrentWaypointIndex)
	// Next step is scheduled at most 1.1/4 game hours out.
	assert.LessOrEqual(t, cop.NextPatrolHours-clk.NowHours(), 1.1/4)
	assert.Greater(t, cop.NextPatrolHours, before)
}

func TestPatrolWrapsAround(t *testing.T) {
	clk := clock.New()
	de := newTestDetection(clk, nil)

	cop := streetCop()
	cop.PatrolWaypoints = []observer.Vec3{{X: 0}, {X: 5}}
	de.RegisterObserver(cop)

	de.Tick(120)
	for i := 0; i < 4; i++ {
		clk.Advance(120)
		de.Tick(120)
	}

	// Four steps over a two-point route ends back at the start.
	assert.Equal(t, 0, cop.CurrentWaypointIndex)
	assert.Equal(t, observer.Vec3{}, cop.Position)
}
