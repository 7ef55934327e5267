package engine

import (
	"testing"

	"github.com/vidadoble/juego/server/internal/clock"
	"github.com/vidadoble/juego/server/internal/domain/activity"
	"github.com/vidadoble/juego/server/internal/domain/observer"
	"github.com/vidadoble/juego/server/internal/events"
	"github.com/vidadoble/juego/server/internal/platform/logger"
)

func newTestActivityStack() (*ActivityEngine, *DetectionEngine, *events.EventLog) {
	el := events.NewEventLog(nil)
	log := logger.NewLogger()
	clk := clock.New()
	de := NewDetectionEngine(el, log, clk, nil)
	ae := NewActivityEngine(el, log, clk, de)
	return ae, de, el
}

func countEvents(el *events.EventLog, eventType events.EventType) int {
	return len(el.GetByType(eventType))
}

func TestNewActivityDisplacesIncompatible(t *testing.T) {
	ae, _, el := newTestActivityStack()

	jobID := ae.Create("P1", activity.KindScreen, "", 3600)
	workoutID := ae.Create("P1", activity.KindPhysical, "", 1800)

	// Screen 0.5 + Physical 0.6 busts the attention budget: the running
	// job yields, the newcomer proceeds.
	if got := ae.Get(jobID).State; got != activity.StatePaused {
		t.Errorf("Expected existing job Paused, got %s", got)
	}
	if got := ae.Get(workoutID).State; got != activity.StateActive {
		t.Errorf("Expected new workout Active, got %s", got)
	}
	if countEvents(el, events.EventTypeActivityPaused) != 1 {
		t.Error("Expected exactly one pause event")
	}
}

func TestCompatibleActivitiesRunTogether(t *testing.T) {
	ae, _, _ := newTestActivityStack()

	podcastID := ae.Create("P1", activity.KindPassive, "", 7200)
	jobID := ae.Create("P1", activity.KindScreen, "", 3600)

	podcast := ae.Get(podcastID)
	job := ae.Get(jobID)

	if !podcast.IsLive() || !job.IsLive() {
		t.Fatal("Expected both activities live")
	}
	if !podcast.ConcurrentWith[jobID] || !job.ConcurrentWith[podcastID] {
		t.Error("Expected the pair linked as concurrent")
	}
}

func TestEndPrunesConcurrentLinks(t *testing.T) {
	ae, _, _ := newTestActivityStack()

	podcastID := ae.Create("P1", activity.KindPassive, "", 7200)
	jobID := ae.Create("P1", activity.KindScreen, "", 3600)

	ae.End(podcastID)

	if ae.Get(jobID).ConcurrentWith[podcastID] {
		t.Error("Expected the ended peer unlinked from the survivor")
	}
}

func TestDifferentOwnersNeverConflict(t *testing.T) {
	ae, _, _ := newTestActivityStack()

	aID := ae.Create("P1", activity.KindPhysical, "", 3600)
	bID := ae.Create("P2", activity.KindPhysical, "", 3600)

	if !ae.Get(aID).IsLive() || !ae.Get(bID).IsLive() {
		t.Error("Activities of different owners must not displace each other")
	}
}

func TestPerformanceSampleBlending(t *testing.T) {
	ae, _, _ := newTestActivityStack()

	id := ae.Create("P1", activity.KindScreen, "", 3600)
	ae.SetPerformanceSample(id, 100)

	// EMA from the neutral 50: 50*0.9 + 100*0.1 = 55, then 59.5.
	ae.Tick(60)
	if got := ae.GetPerformance(id); got != 55 {
		t.Errorf("Expected score 55 after one tick, got %v", got)
	}
	ae.Tick(60)
	if got := ae.GetPerformance(id); got != 59.5 {
		t.Errorf("Expected score 59.5 after two ticks, got %v", got)
	}

	// Samples are clamped at ingestion, not application.
	ae.SetPerformanceSample(id, 250)
	ae.Tick(60)
	if got := ae.GetPerformance(id); got > 63.55+1e-9 {
		t.Errorf("Oversized sample leaked through the clamp: %v", got)
	}
}

func TestAutoCompletionAtDuration(t *testing.T) {
	ae, _, el := newTestActivityStack()

	id := ae.Create("P1", activity.KindScreen, "", 120)
	ae.Tick(120)

	if ae.Get(id) != nil {
		t.Error("Expected completed activity removed from the live set")
	}

	ended := el.GetByType(events.EventTypeActivityEnded)
	if len(ended) != 1 {
		t.Fatalf("Expected one ended event, got %d", len(ended))
	}
	payload := ended[0].Payload.(ActivityEventPayload)
	if !payload.Completed {
		t.Error("Expected completion flagged on the ended event")
	}
}

func TestEndIsIdempotent(t *testing.T) {
	ae, _, el := newTestActivityStack()

	id := ae.Create("P1", activity.KindScreen, "", 3600)
	ae.Tick(60)

	first := ae.End(id)
	if first.ActivityID != id || first.Completed {
		t.Errorf("Expected a Failed result for early end, got %+v", first)
	}

	second := ae.End(id)
	if second != (Result{}) {
		t.Errorf("Expected zero Result on double end, got %+v", second)
	}
	if countEvents(el, events.EventTypeActivityEnded) != 1 {
		t.Error("Double end must not emit a second event")
	}
}

func TestDetectionPenaltyAppliedOnce(t *testing.T) {
	ae, de, el := newTestActivityStack()

	cop := observer.New("COP", observer.RoleCop)
	cop.LocationID = "street"
	cop.Facing = observer.Vec3{Z: 1}
	de.RegisterObserver(cop)
	de.RegisterRiskProfile("drug_dealing", RiskProfile{Illegal: true, VisualProfile: 0.8})
	de.UpdateActorPose("P1", "street", observer.Vec3{Z: 3})

	id := ae.Create("P1", activity.KindPhysical, "drug_dealing", 7200)

	ae.Tick(60)
	a := ae.Get(id)
	if !a.WasDetected {
		t.Fatal("Expected the activity caught on the first poll")
	}
	if got := a.PerformanceScore; got != 49.8 {
		t.Errorf("Expected flat penalty 50 - 0.2 = 49.8, got %v", got)
	}

	// Already-caught activities are not polled again.
	ae.Tick(60)
	ae.Tick(60)
	if countEvents(el, events.EventTypeDetection) != 1 {
		t.Error("Expected exactly one detection event per activity run")
	}
	if got := ae.Get(id).PerformanceScore; got != 49.8 {
		t.Errorf("Penalty must not stack, got %v", got)
	}
}

func TestUntaggedActivityNeverPolled(t *testing.T) {
	ae, de, el := newTestActivityStack()

	cop := observer.New("COP", observer.RoleCop)
	cop.LocationID = "street"
	cop.Facing = observer.Vec3{Z: 1}
	de.RegisterObserver(cop)
	de.UpdateActorPose("P1", "street", observer.Vec3{Z: 1})

	ae.Create("P1", activity.KindPhysical, "", 7200)
	ae.Tick(60)
	ae.Tick(60)

	if countEvents(el, events.EventTypeDetection) != 0 {
		t.Error("Untagged activities carry no risk and must not be polled")
	}
}

func TestPhaseTransitionRewritesFocus(t *testing.T) {
	ae, _, el := newTestActivityStack()

	id := ae.CreateWithPhases("P1", activity.KindScreen, "", []activity.Phase{
		{Name: "shift", DurationSeconds: 120, Multitasking: activity.MultitaskNone, Attention: 0.9},
		{Name: "break", DurationSeconds: 120, Multitasking: activity.MultitaskFull, Attention: 0.1},
	})

	a := ae.Get(id)
	if a.Multitasking != activity.MultitaskNone || a.RequiredAttention != 0.9 {
		t.Error("Expected the first phase's focus applied at creation")
	}
	if a.DurationSeconds != 240 {
		t.Errorf("Expected total duration 240, got %v", a.DurationSeconds)
	}

	ae.Tick(120)
	if a.Multitasking != activity.MultitaskFull || a.RequiredAttention != 0.1 {
		t.Error("Expected focus rewritten at the phase boundary")
	}
	if countEvents(el, events.EventTypeActivityPhaseChanged) != 1 {
		t.Error("Expected one phase change event")
	}

	// During the break phase a second activity fits alongside.
	otherID := ae.Create("P1", activity.KindPhysical, "", 600)
	if !a.IsLive() || !ae.Get(otherID).IsLive() {
		t.Error("Expected the break phase to tolerate a workout")
	}
}

func TestResumeDisplacesIncompatible(t *testing.T) {
	ae, _, _ := newTestActivityStack()

	jobID := ae.Create("P1", activity.KindScreen, "", 3600)
	workoutID := ae.Create("P1", activity.KindPhysical, "", 1800)

	// The workout displaced the job; resuming the job turns the tables.
	ae.Resume(jobID)

	if got := ae.Get(jobID).State; got != activity.StateActive {
		t.Errorf("Expected resumed job Active, got %s", got)
	}
	if got := ae.Get(workoutID).State; got != activity.StatePaused {
		t.Errorf("Expected workout displaced by resume, got %s", got)
	}
}
