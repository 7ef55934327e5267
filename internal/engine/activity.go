package engine

import (
	"fmt"
	"time"

	"github.com/vidadoble/juego/server/internal/clock"
	"github.com/vidadoble/juego/server/internal/domain/activity"
	"github.com/vidadoble/juego/server/internal/domain/rules"
	"github.com/vidadoble/juego/server/internal/events"
	"github.com/vidadoble/juego/server/internal/platform/logger"
)

// ActivityEventPayload describes an activity lifecycle transition.
type ActivityEventPayload struct {
	ActivityID  string  `json:"activity_id"`
	OwnerID     string  `json:"owner_id"`
	Kind        string  `json:"kind"`
	RiskTag     string  `json:"risk_tag"`
	Performance float64 `json:"performance"`
	Elapsed     float64 `json:"elapsed_seconds"`
	Completed   bool    `json:"completed"`
	Phase       string  `json:"phase,omitempty"`
}

// DetectionEventPayload describes a positive detection against an activity.
type DetectionEventPayload struct {
	ActorID    string  `json:"actor_id"`
	ActivityID string  `json:"activity_id"`
	RiskTag    string  `json:"risk_tag"`
	ObserverID string  `json:"observer_id"`
	Severity   float64 `json:"severity"`
}

// Result carries the reward inputs computed when an activity ends.
// A second End on the same id yields the zero Result.
type Result struct {
	ActivityID       string  `json:"activity_id"`
	PerformanceScore float64 `json:"performance_score"`
	ElapsedSeconds   float64 `json:"elapsed_seconds"`
	Completed        bool    `json:"completed"`
}

// ActivityEngine owns the lifecycle of concurrently running activities.
// New activities always proceed; an incompatible existing activity is the
// one that gets paused. Risk-bearing activities are checked against the
// DetectionEngine once per tick until first caught.
type ActivityEngine struct {
	eventLog  *events.EventLog
	logger    *logger.Logger
	clock     *clock.GameClock
	detection *DetectionEngine

	activities map[string]*activity.Activity
	order      []string // Creation order, for deterministic ticking
	samples    map[string]float64
	seq        int64

	detectionPenalty float64
	sampleWeight     float64
}

// NewActivityEngine wires the activity lifecycle to the sensor model.
func NewActivityEngine(eventLog *events.EventLog, log *logger.Logger, clk *clock.GameClock, detection *DetectionEngine) *ActivityEngine {
	return &ActivityEngine{
		eventLog:         eventLog,
		logger:           log,
		clock:            clk,
		detection:        detection,
		activities:       make(map[string]*activity.Activity),
		samples:          make(map[string]float64),
		detectionPenalty: 0.2,
		sampleWeight:     0.1,
	}
}

// SetDetectionPenalty overrides the flat score deduction applied on a
// positive detection.
func (ae *ActivityEngine) SetDetectionPenalty(p float64) {
	if p >= 0 {
		ae.detectionPenalty = p
	}
}

// SetSampleWeight overrides the EMA weight for performance samples.
func (ae *ActivityEngine) SetSampleWeight(w float64) {
	if w > 0 && w <= 1 {
		ae.sampleWeight = w
	}
}

// Create starts a new activity for an owner. For every other live
// activity of the same owner that cannot run alongside it, the existing
// one is paused; the new activity always proceeds.
func (ae *ActivityEngine) Create(ownerID string, kind activity.Kind, riskTag string, durationSeconds float64) string {
	a := activity.New(ownerID, kind, riskTag, durationSeconds)
	ae.seq++
	a.Seq = ae.seq
	return ae.admit(a)
}

// CreateWithPhases starts a phased activity. The first phase's focus
// parameters apply immediately.
func (ae *ActivityEngine) CreateWithPhases(ownerID string, kind activity.Kind, riskTag string, phases []activity.Phase) string {
	var total float64
	for _, ph := range phases {
		total += ph.DurationSeconds
	}
	a := activity.New(ownerID, kind, riskTag, total)
	ae.seq++
	a.Seq = ae.seq
	a.Phases = phases
	if len(phases) > 0 {
		a.Multitasking = phases[0].Multitasking
		a.RequiredAttention = phases[0].Attention
	}
	return ae.admit(a)
}

func (ae *ActivityEngine) admit(a *activity.Activity) string {
	for _, id := range ae.order {
		other := ae.activities[id]
		if other.OwnerID != a.OwnerID || !other.IsLive() {
			continue
		}
		if rules.CanMultitask(a, other) {
			a.ConcurrentWith[other.ID] = true
			other.ConcurrentWith[a.ID] = true
			continue
		}
		// The newcomer wins; the running activity yields.
		ae.pause(other, "displaced by "+a.ID)
	}

	ae.activities[a.ID] = a
	ae.order = append(ae.order, a.ID)

	ae.logger.Event("ACTIVITY_STARTED", a.OwnerID, "id="+a.ID+" kind="+string(a.Kind)+" risk="+a.RiskTag)
	ae.emit(events.EventTypeActivityStarted, a, false)
	return a.ID
}

// Pause suspends an activity. Unknown ids are a no-op.
func (ae *ActivityEngine) Pause(id string) {
	a, exists := ae.activities[id]
	if !exists || !a.IsLive() {
		return
	}
	ae.pause(a, "requested")
}

func (ae *ActivityEngine) pause(a *activity.Activity, why string) {
	a.State = activity.StatePaused
	ae.logger.Event("ACTIVITY_PAUSED", a.OwnerID, "id="+a.ID+" ("+why+")")
	ae.emit(events.EventTypeActivityPaused, a, false)
}

// Resume reactivates a paused activity. Unknown ids are a no-op.
// Compatibility is re-evaluated against the owner's live activities:
// anything that cannot share focus with the resumed activity is paused,
// the resume itself always proceeds.
func (ae *ActivityEngine) Resume(id string) {
	a, exists := ae.activities[id]
	if !exists || a.State != activity.StatePaused {
		return
	}

	for _, oid := range ae.order {
		other := ae.activities[oid]
		if other.ID == a.ID || other.OwnerID != a.OwnerID || !other.IsLive() {
			continue
		}
		if !rules.CanMultitask(a, other) {
			ae.pause(other, "displaced by resume of "+a.ID)
		}
	}

	a.State = activity.StateActive
	ae.logger.Event("ACTIVITY_RESUMED", a.OwnerID, "id="+a.ID)
	ae.emit(events.EventTypeActivityResumed, a, false)
}

// End finishes an activity and returns its reward inputs. The activity is
// removed from the live map; a second End on the same id returns the zero
// Result and emits nothing.
func (ae *ActivityEngine) End(id string) Result {
	a, exists := ae.activities[id]
	if !exists {
		return Result{}
	}

	completed := a.ElapsedSeconds >= a.DurationSeconds
	if completed {
		a.State = activity.StateCompleted
	} else {
		a.State = activity.StateFailed
	}

	result := Result{
		ActivityID:       a.ID,
		PerformanceScore: a.PerformanceScore,
		ElapsedSeconds:   a.ElapsedSeconds,
		Completed:        completed,
	}

	delete(ae.activities, id)
	delete(ae.samples, id)
	for i, oid := range ae.order {
		if oid == id {
			ae.order = append(ae.order[:i], ae.order[i+1:]...)
			break
		}
	}
	for peerID := range a.ConcurrentWith {
		if peer, ok := ae.activities[peerID]; ok {
			delete(peer.ConcurrentWith, id)
		}
	}

	ae.logger.Event("ACTIVITY_ENDED", a.OwnerID, fmt.Sprintf("id=%s completed=%t score=%.1f", a.ID, completed, a.PerformanceScore))
	ae.emit(events.EventTypeActivityEnded, a, completed)
	return result
}

// SetPerformanceSample feeds the latest minigame score (0-100) for an
// activity. It is blended in per tick, not applied directly.
func (ae *ActivityEngine) SetPerformanceSample(id string, sample float64) {
	if _, exists := ae.activities[id]; !exists {
		return
	}
	ae.samples[id] = rules.Clamp(sample, 0, 100)
}

// Get returns the live activity or nil.
func (ae *ActivityEngine) Get(id string) *activity.Activity {
	return ae.activities[id]
}

// GetPerformance returns the current score, or 0 for unknown ids.
func (ae *ActivityEngine) GetPerformance(id string) float64 {
	a, exists := ae.activities[id]
	if !exists {
		return 0
	}
	return a.PerformanceScore
}

// ByOwner returns the owner's live activities in creation order.
func (ae *ActivityEngine) ByOwner(ownerID string) []*activity.Activity {
	var out []*activity.Activity
	for _, id := range ae.order {
		a := ae.activities[id]
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	return out
}

// Tick advances every live activity: elapsed time, phase transitions,
// performance blending, auto-completion, and one detection poll for
// risk-bearing activities not yet caught this run.
func (ae *ActivityEngine) Tick(deltaSeconds float64) {
	if deltaSeconds <= 0 {
		return
	}

	// Snapshot: auto-End mutates the order slice mid-iteration.
	ids := make([]string, len(ae.order))
	copy(ids, ae.order)

	for _, id := range ids {
		a, exists := ae.activities[id]
		if !exists || !a.IsLive() {
			continue
		}

		if a.State == activity.StateActive {
			a.State = activity.StateRunning
		}

		a.ElapsedSeconds += deltaSeconds

		if a.AdvancePhase() {
			ph := a.CurrentPhase()
			ae.logger.Event("ACTIVITY_PHASE", a.OwnerID, "id="+a.ID+" phase="+ph.Name)
			ae.emitPhase(a, ph.Name)
		}

		if a.ElapsedSeconds >= a.DurationSeconds {
			ae.End(a.ID)
			continue
		}

		if sample, ok := ae.samples[a.ID]; ok {
			// Exponential moving average: one outlier sample cannot swing
			// the score.
			a.PerformanceScore = a.PerformanceScore*(1-ae.sampleWeight) + sample*ae.sampleWeight
		}

		if a.IsRiskBearing() && !a.WasDetected {
			res := ae.detection.CheckDetection(a.OwnerID, a.RiskTag)
			if res.Detected {
				a.WasDetected = true
				a.PerformanceScore = rules.Clamp(a.PerformanceScore-ae.detectionPenalty, 0, 100)
				ae.logger.Event("CAUGHT", a.OwnerID, fmt.Sprintf("id=%s by=%s severity=%.2f", a.ID, res.ObserverID, res.Severity))
				ae.eventLog.Append(events.GameEvent{
					ID:        events.GenerateEventID(),
					Timestamp: time.Now(),
					Type:      events.EventTypeDetection,
					ActorID:   a.OwnerID,
					TargetID:  res.ObserverID,
					GameDay:   ae.clock.Day(),
					Payload: DetectionEventPayload{
						ActorID:    a.OwnerID,
						ActivityID: a.ID,
						RiskTag:    a.RiskTag,
						ObserverID: res.ObserverID,
						Severity:   res.Severity,
					},
				})
			}
		}
	}
}

func (ae *ActivityEngine) emit(eventType events.EventType, a *activity.Activity, completed bool) {
	ae.eventLog.Append(events.GameEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      eventType,
		ActorID:   a.OwnerID,
		TargetID:  a.ID,
		GameDay:   ae.clock.Day(),
		Payload: ActivityEventPayload{
			ActivityID:  a.ID,
			OwnerID:     a.OwnerID,
			Kind:        string(a.Kind),
			RiskTag:     a.RiskTag,
			Performance: a.PerformanceScore,
			Elapsed:     a.ElapsedSeconds,
			Completed:   completed,
		},
	})
}

func (ae *ActivityEngine) emitPhase(a *activity.Activity, phase string) {
	ae.eventLog.Append(events.GameEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeActivityPhaseChanged,
		ActorID:   a.OwnerID,
		TargetID:  a.ID,
		GameDay:   ae.clock.Day(),
		Payload: ActivityEventPayload{
			ActivityID:  a.ID,
			OwnerID:     a.OwnerID,
			Kind:        string(a.Kind),
			RiskTag:     a.RiskTag,
			Performance: a.PerformanceScore,
			Elapsed:     a.ElapsedSeconds,
			Phase:       phase,
		},
	})
}
