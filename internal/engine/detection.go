package engine

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/vidadoble/juego/server/internal/clock"
	"github.com/vidadoble/juego/server/internal/domain/observer"
	"github.com/vidadoble/juego/server/internal/domain/rules"
	"github.com/vidadoble/juego/server/internal/events"
	"github.com/vidadoble/juego/server/internal/platform/logger"
	"github.com/vidadoble/juego/server/internal/platform/metrics"
)

const distanceEpsilon = 1e-6

// Raycaster is the line-of-sight collaborator. Whatever spatial backend
// exists answers a single question: is the segment blocked by geometry.
type Raycaster interface {
	RaycastBlocked(from, to observer.Vec3) bool
}

// RaycasterFunc adapts a function to the Raycaster interface.
type RaycasterFunc func(from, to observer.Vec3) bool

func (f RaycasterFunc) RaycastBlocked(from, to observer.Vec3) bool {
	return f(from, to)
}

// RiskProfile describes how an activity tag reads to the outside world.
type RiskProfile struct {
	Illegal       bool    `json:"illegal"`
	VisualProfile float64 `json:"visual_profile"` // 0 = inherently undetectable
}

// DetectionResult is the answer to one CheckDetection query.
type DetectionResult struct {
	Detected   bool    `json:"detected"`
	ObserverID string  `json:"observer_id,omitempty"`
	Severity   float64 `json:"severity"` // 0-1
	Reason     string  `json:"reason"`
}

// Rejection stage reasons, reported on negative results for UI feedback.
const (
	ReasonNoObserver     = "no_observer"
	ReasonOutOfRange     = "out_of_range"
	ReasonSightBlocked   = "line_of_sight_blocked"
	ReasonOutsideCone    = "outside_vision_cone"
	ReasonIndifferent    = "indifferent_observer"
	ReasonUndetectable   = "undetectable"
	ReasonBelowThreshold = "below_notice_threshold"
	ReasonDetected       = "detected"
)

type actorPose struct {
	LocationID string
	Position   observer.Vec3
}

// DetectionEngine maintains the observer registry and the sensor model.
// It answers perception queries and walks patrol routes; its two global
// dials (patrol frequency, detection sensitivity) are written by the
// HeatEngine as suspicion escalates.
type DetectionEngine struct {
	eventLog *events.EventLog
	logger   *logger.Logger
	clock    *clock.GameClock
	raycast  Raycaster
	rng      *rand.Rand

	observers map[string]*observer.Observer
	order     []string // Registration order, for deterministic iteration
	actors    map[string]actorPose
	profiles  map[string]RiskProfile

	patrolFrequencyMult  float64
	sensitivityMult      float64
	patrolIntervalHours  float64
	defaultVisualProfile float64
}

// NewDetectionEngine creates the sensor model. A nil raycaster means an
// unobstructed world.
func NewDetectionEngine(eventLog *events.EventLog, log *logger.Logger, clk *clock.GameClock, raycast Raycaster) *DetectionEngine {
	return &DetectionEngine{
		eventLog:             eventLog,
		logger:               log,
		clock:                clk,
		raycast:              raycast,
		rng:                  rand.New(rand.NewSource(time.Now().UnixNano())),
		observers:            make(map[string]*observer.Observer),
		actors:               make(map[string]actorPose),
		profiles:             make(map[string]RiskProfile),
		patrolFrequencyMult:  1.0,
		sensitivityMult:      1.0,
		patrolIntervalHours:  1.0,
		defaultVisualProfile: 0.5,
	}
}

// SetRand replaces the jitter source. Test harnesses seed this for
// reproducible patrols.
func (de *DetectionEngine) SetRand(rng *rand.Rand) {
	de.rng = rng
}

// SetPatrolInterval overrides the base patrol step interval in game hours.
func (de *DetectionEngine) SetPatrolInterval(hours float64) {
	if hours > 0 {
		de.patrolIntervalHours = hours
	}
}

// SetDefaultVisualProfile overrides the profile assumed for unknown tags.
func (de *DetectionEngine) SetDefaultVisualProfile(p float64) {
	de.defaultVisualProfile = rules.Clamp(p, 0, 1)
}

// RegisterObserver adds an observer to the registry. Re-registering an
// id overwrites the previous entry in place.
func (de *DetectionEngine) RegisterObserver(o *observer.Observer) {
	if o == nil || o.ID == "" {
		return
	}
	if o.VisionRange <= 0 {
		de.logger.Warn("Observer " + o.ID + " registered with non-positive vision range; clamping to 1")
		o.VisionRange = 1
	}
	if o.VisionConeDegrees <= 0 || o.VisionConeDegrees > 360 {
		o.VisionConeDegrees = 360
	}
	if _, exists := de.observers[o.ID]; !exists {
		de.order = append(de.order, o.ID)
	}
	de.observers[o.ID] = o
	de.logger.Event("OBSERVER_REGISTERED", o.ID, "role="+string(o.Role)+" loc="+o.LocationID)
}

// UnregisterObserver removes an observer. Unknown ids are a no-op.
func (de *DetectionEngine) UnregisterObserver(id string) {
	if _, exists := de.observers[id]; !exists {
		return
	}
	delete(de.observers, id)
	for i, oid := range de.order {
		if oid == id {
			de.order = append(de.order[:i], de.order[i+1:]...)
			break
		}
	}
}

// GetObserver returns the registered observer or nil.
func (de *DetectionEngine) GetObserver(id string) *observer.Observer {
	return de.observers[id]
}

// Observers returns the registry in registration order.
func (de *DetectionEngine) Observers() []*observer.Observer {
	out := make([]*observer.Observer, 0, len(de.order))
	for _, id := range de.order {
		out = append(out, de.observers[id])
	}
	return out
}

// UpdateObserverPose moves an observer. Unknown ids are logged, not fatal;
// NPC movement drivers may race with unregistration.
func (de *DetectionEngine) UpdateObserverPose(id string, position, facing observer.Vec3) {
	o, exists := de.observers[id]
	if !exists {
		de.logger.Warn("UpdateObserverPose for unknown observer " + id)
		return
	}
	o.Position = position
	o.Facing = facing.Normalized()
}

// UpdateActorPose records where an actor is, for query-time joins.
func (de *DetectionEngine) UpdateActorPose(actorID, locationID string, position observer.Vec3) {
	de.actors[actorID] = actorPose{LocationID: locationID, Position: position}
}

// RegisterRiskProfile declares how an activity tag reads to observers.
func (de *DetectionEngine) RegisterRiskProfile(riskTag string, profile RiskProfile) {
	profile.VisualProfile = rules.Clamp(profile.VisualProfile, 0, 1)
	de.profiles[riskTag] = profile
}

// ProfileFor resolves a risk tag, defaulting conservatively for unknown
// tags (legal, moderately conspicuous).
func (de *DetectionEngine) ProfileFor(riskTag string) RiskProfile {
	if p, ok := de.profiles[riskTag]; ok {
		return p
	}
	return RiskProfile{Illegal: false, VisualProfile: de.defaultVisualProfile}
}

// CheckDetection answers "is this actor perceived doing riskTag right now".
// Observers are evaluated in registration order until the first hit; each
// candidate runs the rejection ladder: co-location, range, line of sight,
// vision cone, care filter, visual profile, awareness threshold.
// Detection itself is stateless; it is computed fresh per query.
func (de *DetectionEngine) CheckDetection(actorID, riskTag string) DetectionResult {
	pose, known := de.actors[actorID]
	if !known {
		metrics.Get().RecordDetectionCheck(false)
		return DetectionResult{Reason: ReasonNoObserver}
	}

	profile := de.ProfileFor(riskTag)
	result := DetectionResult{Reason: ReasonNoObserver}

	for _, id := range de.order {
		o := de.observers[id]
		if o.LocationID != pose.LocationID {
			continue
		}

		distance := o.Position.DistanceTo(pose.Position)
		if distance > o.VisionRange {
			result.Reason = ReasonOutOfRange
			continue
		}

		if de.raycast != nil && de.raycast.RaycastBlocked(o.Position, pose.Position) {
			result.Reason = ReasonSightBlocked
			continue
		}

		toActor := pose.Position.Sub(o.Position)
		if o.Facing.AngleDegreesTo(toActor) > o.VisionConeDegrees/2 {
			result.Reason = ReasonOutsideCone
			continue
		}

		// Legal slacking only registers with performance-minded observers;
		// crime only registers with legality-minded ones.
		if profile.Illegal && !o.CaresAboutLegality {
			result.Reason = ReasonIndifferent
			continue
		}
		if !profile.Illegal && !o.CaresAboutJobPerformance {
			result.Reason = ReasonIndifferent
			continue
		}

		if profile.VisualProfile == 0 {
			result.Reason = ReasonUndetectable
			continue
		}

		awareness := o.VisionRange / math.Max(distance, distanceEpsilon)
		if awareness*de.sensitivityMult < profile.VisualProfile {
			result.Reason = ReasonBelowThreshold
			continue
		}

		result = DetectionResult{
			Detected:   true,
			ObserverID: o.ID,
			Severity:   rules.DetectionSeverity(o, profile.Illegal),
			Reason:     ReasonDetected,
		}
		break
	}

	metrics.Get().RecordDetectionCheck(result.Detected)
	return result
}

// GetDetectionRisk is the cheap continuous estimate for UI feedback: the
// best co-located observer's proximity scaled by conspicuousness and the
// global sensitivity dial. It deliberately skips line-of-sight and cone
// checks, giving a conservative upper bound.
func (de *DetectionEngine) GetDetectionRisk(actorID, riskTag, locationID string) float64 {
	pose, known := de.actors[actorID]
	if !known {
		return 0
	}

	profile := de.ProfileFor(riskTag)
	risk := 0.0
	for _, id := range de.order {
		o := de.observers[id]
		if o.LocationID != locationID {
			continue
		}
		distance := o.Position.DistanceTo(pose.Position)
		if distance > o.VisionRange {
			continue
		}
		r := (1 - distance/o.VisionRange) * profile.VisualProfile * de.sensitivityMult
		if r > risk {
			risk = r
		}
	}
	return rules.Clamp(risk, 0, 1)
}

// SetPatrolFrequency multiplies the global patrol frequency dial.
// Repeated calls compose; they do not replace.
func (de *DetectionEngine) SetPatrolFrequency(multiplier float64) {
	if multiplier <= 0 {
		de.logger.Warn("Ignoring non-positive patrol frequency multiplier")
		return
	}
	de.patrolFrequencyMult *= multiplier
	de.logger.Event("PATROL_FREQUENCY", "SYSTEM", fmt.Sprintf("multiplier now %.2f", de.patrolFrequencyMult))
}

// SetDetectionSensitivity multiplies the global sensitivity dial.
func (de *DetectionEngine) SetDetectionSensitivity(multiplier float64) {
	if multiplier <= 0 {
		de.logger.Warn("Ignoring non-positive detection sensitivity multiplier")
		return
	}
	de.sensitivityMult *= multiplier
	de.logger.Event("DETECTION_SENSITIVITY", "SYSTEM", fmt.Sprintf("multiplier now %.2f", de.sensitivityMult))
}

// PatrolFrequency returns the current patrol frequency multiplier.
func (de *DetectionEngine) PatrolFrequency() float64 {
	return de.patrolFrequencyMult
}

// DetectionSensitivity returns the current sensitivity multiplier.
func (de *DetectionEngine) DetectionSensitivity() float64 {
	return de.sensitivityMult
}

// Tick walks patrol routes. An observer with waypoints steps to the next
// one when its timer elapses; the timer is the base interval divided by
// the frequency dial, with fresh ±10% jitter each step so a dial change
// only affects future steps.
func (de *DetectionEngine) Tick(deltaSeconds float64) {
	if deltaSeconds <= 0 {
		return
	}

	now := de.clock.NowHours()
	for _, id := range de.order {
		o := de.observers[id]
		if !o.HasPatrol() {
			continue
		}
		if o.NextPatrolHours == 0 {
			// First tick after registration: schedule, don't move.
			o.NextPatrolHours = now + de.nextPatrolDelay()
			continue
		}
		if now < o.NextPatrolHours {
			continue
		}

		o.CurrentWaypointIndex = (o.CurrentWaypointIndex + 1) % len(o.PatrolWaypoints)
		next := o.PatrolWaypoints[o.CurrentWaypointIndex]
		o.Facing = next.Sub(o.Position).Normalized()
		o.Position = next
		o.NextPatrolHours = now + de.nextPatrolDelay()
		metrics.Get().RecordPatrolStep()
	}
}

func (de *DetectionEngine) nextPatrolDelay() float64 {
	base := de.patrolIntervalHours / de.patrolFrequencyMult
	jitter := 0.9 + 0.2*de.rng.Float64()
	return base * jitter
}
