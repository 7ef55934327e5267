package engine

import (
	"fmt"
	"time"

	"github.com/vidadoble/juego/server/internal/clock"
	"github.com/vidadoble/juego/server/internal/domain/rules"
	"github.com/vidadoble/juego/server/internal/events"
	"github.com/vidadoble/juego/server/internal/platform/logger"
	"github.com/vidadoble/juego/server/internal/platform/metrics"
)

// HeatThresholds are the escalation trigger points, checked for upward
// crossings only. Dropping below a threshold re-arms it.
var HeatThresholds = []float64{30, 50, 70, 90}

// Investigation kinds.
const (
	InvestigationSurveillance = "SURVEILLANCE"
	InvestigationAudit        = "AUDIT"
	InvestigationRaid         = "RAID"
	InvestigationWarrant      = "WARRANT"
)

// EconomyProvider is the external economy collaborator. The heat engine
// only consumes legitimacy and balance and orders freezes/fines; the
// ledger itself lives elsewhere.
type EconomyProvider interface {
	LegitimateIncomeRatio(actorID string) float64
	Balance(actorID string) float64
	FreezeFunds(actorID string, amount float64)
	UnfreezeFunds(actorID string, amount float64)
	Fine(actorID string, amount float64)
}

// EvidenceProvider answers whether incriminating evidence exists for an
// actor, deciding Raid versus Arrest Warrant at the 90 threshold.
type EvidenceProvider interface {
	HasEvidence(actorID string) bool
}

// HeatModifier is a temporary or permanent contribution to an actor's heat.
type HeatModifier struct {
	Source      string  `json:"source"`
	Amount      float64 `json:"amount"`
	ExpiryHours float64 `json:"expiry_hours"` // 0 = permanent
}

// HeatEventPayload describes one AddHeat/ReduceHeat mutation.
type HeatEventPayload struct {
	ActorID  string  `json:"actor_id"`
	Cause    string  `json:"cause"`
	Amount   float64 `json:"amount"`
	NewLevel float64 `json:"new_level"`
}

// ThresholdEventPayload describes an upward threshold crossing.
type ThresholdEventPayload struct {
	ActorID   string  `json:"actor_id"`
	Threshold float64 `json:"threshold"`
	Level     float64 `json:"level"`
}

// InvestigationPayload describes an investigation opening or resolving.
type InvestigationPayload struct {
	ActorID         string  `json:"actor_id"`
	Kind            string  `json:"kind"`
	Detail          string  `json:"detail,omitempty"`
	FrozenAmount    float64 `json:"frozen_amount,omitempty"`
	Fine            float64 `json:"fine,omitempty"`
	ResolvesAtHours float64 `json:"resolves_at_hours,omitempty"`
}

// heatState is one actor's accumulator with provenance.
type heatState struct {
	level             float64
	sources           map[string]float64
	sourceOrder       []string // First-seen order; tie-breaks resolve here
	lastIncreaseHours float64
	modifiers         []HeatModifier

	surveillance      bool
	auditActive       bool
	auditDeadline     float64
	auditFrozen       float64
	heatDuringAudit   bool
	warrantActive     bool
}

// HeatSnapshot is the read-only view exposed to presentation and storage.
type HeatSnapshot struct {
	ActorID       string             `json:"actor_id"`
	Level         float64            `json:"level"`
	Sources       map[string]float64 `json:"sources"`
	Surveillance  bool               `json:"surveillance"`
	AuditActive   bool               `json:"audit_active"`
	AuditDeadline float64            `json:"audit_deadline_hours"`
	WarrantActive bool               `json:"warrant_active"`
}

// HeatEngine is the suspicion accumulator: per-cause provenance, tiered
// decay, and threshold-triggered investigations that feed back into the
// DetectionEngine's global dials.
type HeatEngine struct {
	eventLog  *events.EventLog
	logger    *logger.Logger
	clock     *clock.GameClock
	detection *DetectionEngine
	economy   EconomyProvider
	evidence  EvidenceProvider

	states map[string]*heatState

	decayPerHour        float64
	auditWindowHours    float64
	auditFreezeFraction float64
	auditFineRate       float64
}

// NewHeatEngine wires the accumulator to its collaborators. Economy and
// evidence may be nil: without an economy no audit ever opens, without
// evidence the 90 threshold always issues a warrant.
func NewHeatEngine(eventLog *events.EventLog, log *logger.Logger, clk *clock.GameClock, detection *DetectionEngine, economy EconomyProvider, evidence EvidenceProvider) *HeatEngine {
	return &HeatEngine{
		eventLog:            eventLog,
		logger:              log,
		clock:               clk,
		detection:           detection,
		economy:             economy,
		evidence:            evidence,
		states:              make(map[string]*heatState),
		decayPerHour:        1.0 / 24.0,
		auditWindowHours:    72,
		auditFreezeFraction: 0.5,
		auditFineRate:       0.25,
	}
}

// SetDecayRate overrides base decay in heat-points per game hour.
func (he *HeatEngine) SetDecayRate(perHour float64) {
	if perHour > 0 {
		he.decayPerHour = perHour
	}
}

// SetAuditTerms overrides the audit window, freeze fraction and fine rate.
func (he *HeatEngine) SetAuditTerms(windowHours, freezeFraction, fineRate float64) {
	if windowHours > 0 {
		he.auditWindowHours = windowHours
	}
	if freezeFraction >= 0 && freezeFraction <= 1 {
		he.auditFreezeFraction = freezeFraction
	}
	if fineRate >= 0 {
		he.auditFineRate = fineRate
	}
}

func (he *HeatEngine) state(actorID string) *heatState {
	s, exists := he.states[actorID]
	if !exists {
		s = &heatState{sources: make(map[string]float64)}
		he.states[actorID] = s
	}
	return s
}

// GetLevel returns the actor's current heat, 0-100. Unknown actors are 0.
func (he *HeatEngine) GetLevel(actorID string) float64 {
	if s, exists := he.states[actorID]; exists {
		return s.level
	}
	return 0
}

// ActorIDs lists every actor the engine has tracked heat for.
func (he *HeatEngine) ActorIDs() []string {
	ids := make([]string, 0, len(he.states))
	for id := range he.states {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot returns the actor's full heat view.
func (he *HeatEngine) Snapshot(actorID string) HeatSnapshot {
	s := he.state(actorID)
	sources := make(map[string]float64, len(s.sources))
	for k, v := range s.sources {
		sources[k] = v
	}
	return HeatSnapshot{
		ActorID:       actorID,
		Level:         s.level,
		Sources:       sources,
		Surveillance:  s.surveillance,
		AuditActive:   s.auditActive,
		AuditDeadline: s.auditDeadline,
		WarrantActive: s.warrantActive,
	}
}

// Restore loads a persisted snapshot, used at boot.
func (he *HeatEngine) Restore(snap HeatSnapshot) {
	s := he.state(snap.ActorID)
	s.level = rules.Clamp(snap.Level, 0, 100)
	s.sources = make(map[string]float64)
	s.sourceOrder = nil
	for cause, amount := range snap.Sources {
		if amount > 0 {
			s.sources[cause] = amount
			s.sourceOrder = append(s.sourceOrder, cause)
		}
	}
	s.surveillance = snap.Surveillance
	s.auditActive = snap.AuditActive
	s.auditDeadline = snap.AuditDeadline
	s.warrantActive = snap.WarrantActive
	s.lastIncreaseHours = he.clock.NowHours()
}

// AddHeat raises the actor's heat, attributes the delta to the cause
// bucket, resets the decay clock, and fires any thresholds crossed
// upward. Multiple thresholds crossed by one call all fire, in order.
func (he *HeatEngine) AddHeat(actorID string, amount float64, cause string) {
	if amount <= 0 {
		he.logger.Warn("AddHeat ignored non-positive amount for " + actorID)
		return
	}
	if cause == "" {
		cause = "unknown"
	}

	s := he.state(actorID)
	prev := s.level
	s.level = rules.Clamp(s.level+amount, 0, 100)
	delta := s.level - prev
	if delta > 0 {
		if _, seen := s.sources[cause]; !seen {
			s.sourceOrder = append(s.sourceOrder, cause)
		}
		s.sources[cause] += delta
	}
	s.lastIncreaseHours = he.clock.NowHours()
	if s.auditActive {
		s.heatDuringAudit = true
	}

	metrics.Get().RecordHeat(true)
	he.logger.Event("HEAT_ADDED", actorID, fmt.Sprintf("cause=%s amount=%.1f level=%.1f", cause, delta, s.level))
	he.emitHeat(events.EventTypeHeatAdded, actorID, cause, delta, s.level)

	for _, threshold := range HeatThresholds {
		if prev < threshold && s.level >= threshold {
			he.crossThreshold(actorID, s, threshold)
		}
	}
}

// ReduceHeat lowers the actor's heat. A named cause drains that bucket
// specifically; otherwise the largest bucket is paid down first, then the
// next largest, until the amount is spent. Ties resolve to the
// first-seen bucket.
func (he *HeatEngine) ReduceHeat(actorID string, amount float64, cause string) {
	if amount <= 0 {
		he.logger.Warn("ReduceHeat ignored non-positive amount for " + actorID)
		return
	}

	s := he.state(actorID)
	var drained float64

	if cause != "" {
		if bucket, exists := s.sources[cause]; exists {
			drained = amount
			if drained > bucket {
				drained = bucket
			}
			he.drainBucket(s, cause, drained)
		}
	} else {
		remaining := amount
		for remaining > 0 {
			target := he.largestBucket(s)
			if target == "" {
				break
			}
			d := remaining
			if d > s.sources[target] {
				d = s.sources[target]
			}
			he.drainBucket(s, target, d)
			drained += d
			remaining -= d
		}
	}

	if drained == 0 {
		return
	}

	s.level = rules.Clamp(s.level-drained, 0, 100)
	metrics.Get().RecordHeat(false)
	he.logger.Event("HEAT_REDUCED", actorID, fmt.Sprintf("cause=%s amount=%.1f level=%.1f", cause, drained, s.level))
	he.emitHeat(events.EventTypeHeatReduced, actorID, cause, drained, s.level)
}

// AddModifier applies a heat contribution that is withdrawn again when it
// expires. expiryHours is an absolute game-hour deadline; 0 is permanent.
func (he *HeatEngine) AddModifier(actorID, source string, amount, expiryHours float64) {
	if amount <= 0 {
		return
	}
	he.AddHeat(actorID, amount, source)
	s := he.state(actorID)
	s.modifiers = append(s.modifiers, HeatModifier{Source: source, Amount: amount, ExpiryHours: expiryHours})
}

// Reset clears the actor's heat back to zero. State is never destroyed.
func (he *HeatEngine) Reset(actorID string) {
	s := he.state(actorID)
	s.level = 0
	s.sources = make(map[string]float64)
	s.sourceOrder = nil
	s.modifiers = nil
}

// ResolveWarrant is the external resolution path for an arrest warrant.
// It clears the flag and undoes the warrant's patrol escalation.
func (he *HeatEngine) ResolveWarrant(actorID string) {
	s := he.state(actorID)
	if !s.warrantActive {
		return
	}
	s.warrantActive = false
	he.detection.SetPatrolFrequency(0.5)
	he.emitInvestigation(events.EventTypeInvestigationResolved, InvestigationPayload{
		ActorID: actorID,
		Kind:    InvestigationWarrant,
		Detail:  "warrant lifted",
	})
}

// ResolveSurveillance is the external resolution path for surveillance.
// It clears the flag and undoes the surveillance dial escalation.
func (he *HeatEngine) ResolveSurveillance(actorID string) {
	s := he.state(actorID)
	if !s.surveillance {
		return
	}
	s.surveillance = false
	he.detection.SetPatrolFrequency(1 / 1.5)
	he.detection.SetDetectionSensitivity(1 / 1.3)
	he.emitInvestigation(events.EventTypeInvestigationResolved, InvestigationPayload{
		ActorID: actorID,
		Kind:    InvestigationSurveillance,
		Detail:  "surveillance lifted",
	})
}

// Tick applies decay and lazily resolves expired modifiers and audit
// windows. deltaGameHours is in-game time since the previous call.
func (he *HeatEngine) Tick(deltaGameHours float64) {
	if deltaGameHours <= 0 {
		return
	}
	now := he.clock.NowHours()

	for actorID, s := range he.states {
		he.expireModifiers(actorID, s, now)

		if s.level > 0 {
			mult := rules.DecayMultiplier(now - s.lastIncreaseHours)
			decay := he.decayPerHour * mult * deltaGameHours
			if decay > s.level {
				decay = s.level
			}
			he.applyDecay(s, decay)
		}

		if s.auditActive && now >= s.auditDeadline {
			he.resolveAudit(actorID, s)
		}
	}
}

// applyDecay reduces the level and scales every bucket proportionally so
// provenance keeps summing to the level.
func (he *HeatEngine) applyDecay(s *heatState, decay float64) {
	if decay <= 0 || s.level <= 0 {
		return
	}
	factor := (s.level - decay) / s.level
	if factor < 0 {
		factor = 0
	}
	for cause := range s.sources {
		s.sources[cause] *= factor
	}
	s.level -= decay
	if s.level < 1e-9 {
		s.level = 0
		s.sources = make(map[string]float64)
		s.sourceOrder = nil
	}
}

func (he *HeatEngine) expireModifiers(actorID string, s *heatState, now float64) {
	if len(s.modifiers) == 0 {
		return
	}
	kept := s.modifiers[:0]
	for _, m := range s.modifiers {
		if m.ExpiryHours > 0 && now >= m.ExpiryHours {
			he.ReduceHeat(actorID, m.Amount, m.Source)
			continue
		}
		kept = append(kept, m)
	}
	s.modifiers = kept
}

// largestBucket returns the cause with the most accumulated heat,
// first-seen key winning ties. Empty string when no buckets remain.
func (he *HeatEngine) largestBucket(s *heatState) string {
	best := ""
	bestAmount := 0.0
	for _, cause := range s.sourceOrder {
		if amount := s.sources[cause]; amount > bestAmount {
			best = cause
			bestAmount = amount
		}
	}
	return best
}

func (he *HeatEngine) drainBucket(s *heatState, cause string, amount float64) {
	s.sources[cause] -= amount
	if s.sources[cause] <= 1e-9 {
		delete(s.sources, cause)
		for i, c := range s.sourceOrder {
			if c == cause {
				s.sourceOrder = append(s.sourceOrder[:i], s.sourceOrder[i+1:]...)
				break
			}
		}
	}
}

// crossThreshold fires the side effect for one upward crossing.
func (he *HeatEngine) crossThreshold(actorID string, s *heatState, threshold float64) {
	metrics.Get().RecordThresholdCrossing()
	he.logger.Event("HEAT_THRESHOLD", actorID, fmt.Sprintf("threshold=%.0f level=%.1f", threshold, s.level))
	he.eventLog.Append(events.GameEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeHeatThreshold,
		ActorID:   actorID,
		GameDay:   he.clock.Day(),
		Payload:   ThresholdEventPayload{ActorID: actorID, Threshold: threshold, Level: s.level},
	})

	switch threshold {
	case 30:
		he.detection.SetPatrolFrequency(1.2)

	case 50:
		if !s.surveillance {
			s.surveillance = true
			he.detection.SetPatrolFrequency(1.5)
			he.detection.SetDetectionSensitivity(1.3)
			metrics.Get().RecordInvestigation()
			he.emitInvestigation(events.EventTypeInvestigationOpened, InvestigationPayload{
				ActorID: actorID,
				Kind:    InvestigationSurveillance,
			})
		}

	case 70:
		he.maybeOpenAudit(actorID, s)

	case 90:
		he.raidOrWarrant(actorID, s)
	}
}

func (he *HeatEngine) maybeOpenAudit(actorID string, s *heatState) {
	if s.auditActive || he.economy == nil {
		return
	}
	if he.economy.LegitimateIncomeRatio(actorID) >= 0.6 {
		// Books look clean enough; no audit.
		return
	}

	frozen := he.economy.Balance(actorID) * he.auditFreezeFraction
	he.economy.FreezeFunds(actorID, frozen)
	s.auditActive = true
	s.auditFrozen = frozen
	s.auditDeadline = he.clock.NowHours() + he.auditWindowHours
	s.heatDuringAudit = false

	metrics.Get().RecordInvestigation()
	he.logger.Event("AUDIT_OPENED", actorID, fmt.Sprintf("frozen=%.0f deadline=%.0fh", frozen, s.auditDeadline))
	he.emitInvestigation(events.EventTypeInvestigationOpened, InvestigationPayload{
		ActorID:         actorID,
		Kind:            InvestigationAudit,
		FrozenAmount:    frozen,
		ResolvesAtHours: s.auditDeadline,
	})
}

// resolveAudit closes the window: a clean record unfreezes everything,
// a dirty one fines before unfreezing. An active audit can reach an
// engine with no economy through Restore; it resolves clean with no
// ledger calls.
func (he *HeatEngine) resolveAudit(actorID string, s *heatState) {
	fine := 0.0
	detail := "clean record"
	if he.economy != nil {
		if s.heatDuringAudit {
			fine = s.auditFrozen * he.auditFineRate
			he.economy.Fine(actorID, fine)
			detail = "suspicious conduct during audit"
		}
		he.economy.UnfreezeFunds(actorID, s.auditFrozen)
	}

	he.logger.Event("AUDIT_RESOLVED", actorID, fmt.Sprintf("%s fine=%.0f", detail, fine))
	he.emitInvestigation(events.EventTypeInvestigationResolved, InvestigationPayload{
		ActorID:      actorID,
		Kind:         InvestigationAudit,
		Detail:       detail,
		FrozenAmount: s.auditFrozen,
		Fine:         fine,
	})

	s.auditActive = false
	s.auditFrozen = 0
	s.heatDuringAudit = false
}

func (he *HeatEngine) raidOrWarrant(actorID string, s *heatState) {
	if he.evidence != nil && he.evidence.HasEvidence(actorID) {
		// The raid is the shock reset: heat is immediately halved.
		he.applyDecay(s, s.level/2)
		metrics.Get().RecordInvestigation()
		he.logger.Event("RAID", actorID, fmt.Sprintf("level after raid=%.1f", s.level))
		he.emitInvestigation(events.EventTypeInvestigationOpened, InvestigationPayload{
			ActorID: actorID,
			Kind:    InvestigationRaid,
		})
		return
	}

	if !s.warrantActive {
		s.warrantActive = true
		he.detection.SetPatrolFrequency(2.0)
		metrics.Get().RecordInvestigation()
		he.logger.Event("ARREST_WARRANT", actorID, "warrant issued")
		he.emitInvestigation(events.EventTypeInvestigationOpened, InvestigationPayload{
			ActorID: actorID,
			Kind:    InvestigationWarrant,
		})
	}
}

func (he *HeatEngine) emitHeat(eventType events.EventType, actorID, cause string, amount, newLevel float64) {
	he.eventLog.Append(events.GameEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      eventType,
		ActorID:   actorID,
		TargetID:  cause,
		GameDay:   he.clock.Day(),
		Payload:   HeatEventPayload{ActorID: actorID, Cause: cause, Amount: amount, NewLevel: newLevel},
	})
}

func (he *HeatEngine) emitInvestigation(eventType events.EventType, payload InvestigationPayload) {
	he.eventLog.Append(events.GameEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      eventType,
		ActorID:   payload.ActorID,
		GameDay:   he.clock.Day(),
		Payload:   payload,
	})
}
