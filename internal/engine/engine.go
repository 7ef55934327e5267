package engine

import (
	"context"
	"sync"

	"github.com/vidadoble/juego/server/internal/clock"
	"github.com/vidadoble/juego/server/internal/domain/activity"
	"github.com/vidadoble/juego/server/internal/domain/observer"
	"github.com/vidadoble/juego/server/internal/events"
	"github.com/vidadoble/juego/server/internal/platform/logger"
)

// heatPerSeverity converts a detection's severity into heat points.
// A maximum-severity catch is worth a quarter of the whole scale.
const heatPerSeverity = 25.0

// Engine is the central orchestrator wiring the three simulation engines
// together with explicit dependency injection: Detection first, Activity
// on top of it, Heat observing both and writing Detection's dials.
type Engine struct {
	eventLog *events.EventLog
	logger   *logger.Logger
	clock    *clock.GameClock
	ticker   *Ticker

	detection *DetectionEngine
	activity  *ActivityEngine
	heat      *HeatEngine

	// mu serializes the tick loop against the command facade below.
	// The sub-engines themselves are not goroutine safe.
	mu sync.Mutex
}

// NewEngine constructs the engines in dependency order and subscribes
// the heat engine to detection events, closing the feedback loop.
func NewEngine(eventLog *events.EventLog, log *logger.Logger, clk *clock.GameClock, raycast Raycaster, economy EconomyProvider, evidence EvidenceProvider) *Engine {
	detection := NewDetectionEngine(eventLog, log, clk, raycast)
	activity := NewActivityEngine(eventLog, log, clk, detection)
	heat := NewHeatEngine(eventLog, log, clk, detection, economy, evidence)

	e := &Engine{
		eventLog:  eventLog,
		logger:    log,
		clock:     clk,
		detection: detection,
		activity:  activity,
		heat:      heat,
	}
	e.ticker = NewTicker(eventLog, log, clk, detection, activity, heat)
	e.ticker.mu = &e.mu

	// Every caught activity raises the actor's heat the same step.
	eventLog.Subscribe(events.EventTypeDetection, func(ev events.GameEvent) {
		payload, ok := ev.Payload.(DetectionEventPayload)
		if !ok {
			return
		}
		heat.AddHeat(payload.ActorID, payload.Severity*heatPerSeverity, payload.RiskTag)
	})

	return e
}

// Start spawns the simulation loop.
func (e *Engine) Start(ctx context.Context) {
	e.logger.Info("Starting simulation engine")
	go e.ticker.Start(ctx)
}

// Detection exposes the sensor model.
func (e *Engine) Detection() *DetectionEngine {
	return e.detection
}

// Activities exposes the activity lifecycle engine.
func (e *Engine) Activities() *ActivityEngine {
	return e.activity
}

// Heat exposes the suspicion accumulator.
func (e *Engine) Heat() *HeatEngine {
	return e.heat
}

// Ticker exposes the heartbeat, mainly for scenario drivers.
func (e *Engine) Ticker() *Ticker {
	return e.ticker
}

// Clock exposes the in-game calendar.
func (e *Engine) Clock() *clock.GameClock {
	return e.clock
}

// EventLog exposes the log for clients to observe.
func (e *Engine) EventLog() *events.EventLog {
	return e.eventLog
}

// The methods below are the command facade for callers running on other
// goroutines: websocket readers, HTTP handlers, the backup loop. They
// take the engine lock so every call is serialized against the tick
// loop. Single-goroutine drivers (scenario runs, tests) may keep using
// the sub-engine accessors directly.

// CreateActivity starts an activity for the actor and returns its id.
func (e *Engine) CreateActivity(ownerID string, kind activity.Kind, riskTag string, durationSeconds float64) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activity.Create(ownerID, kind, riskTag, durationSeconds)
}

// PauseActivity suspends a running activity. Unknown ids are no-ops.
func (e *Engine) PauseActivity(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activity.Pause(id)
}

// ResumeActivity restarts a paused activity, displacing incompatible peers.
func (e *Engine) ResumeActivity(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activity.Resume(id)
}

// EndActivity finishes an activity and returns its final result.
func (e *Engine) EndActivity(id string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activity.End(id)
}

// RecordPerformanceSample blends a quality sample into an activity's score.
func (e *Engine) RecordPerformanceSample(id string, sample float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activity.SetPerformanceSample(id, sample)
}

// MoveActor updates an actor's pose in the sensor model.
func (e *Engine) MoveActor(actorID, locationID string, position observer.Vec3) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detection.UpdateActorPose(actorID, locationID, position)
}

// ReduceActorHeat lowers an actor's heat, draining the named bucket first.
func (e *Engine) ReduceActorHeat(actorID string, amount float64, cause string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.heat.ReduceHeat(actorID, amount, cause)
}

// ActorHeatLevel returns the actor's current heat level.
func (e *Engine) ActorHeatLevel(actorID string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.heat.GetLevel(actorID)
}

// ActorHeatSnapshot returns a copy of the actor's full heat view.
func (e *Engine) ActorHeatSnapshot(actorID string) HeatSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.heat.Snapshot(actorID)
}

// HeatActorIDs lists every actor carrying heat state.
func (e *Engine) HeatActorIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.heat.ActorIDs()
}

// ActivitiesByOwner returns value copies of the actor's activities, in
// creation order.
func (e *Engine) ActivitiesByOwner(ownerID string) []activity.Activity {
	e.mu.Lock()
	defer e.mu.Unlock()
	live := e.activity.ByOwner(ownerID)
	out := make([]activity.Activity, 0, len(live))
	for _, a := range live {
		out = append(out, *a)
	}
	return out
}

// ObserverPoses returns value copies of every registered observer, in
// registration order.
func (e *Engine) ObserverPoses() []observer.Observer {
	e.mu.Lock()
	defer e.mu.Unlock()
	live := e.detection.Observers()
	out := make([]observer.Observer, 0, len(live))
	for _, o := range live {
		out = append(out, *o)
	}
	return out
}

// GameTime returns the current in-game day and hour.
func (e *Engine) GameTime() (day, hour int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock.Day(), e.clock.Hour()
}
