package engine

import (
	"math"
	"testing"

	"github.com/vidadoble/juego/server/internal/clock"
	"github.com/vidadoble/juego/server/internal/events"
	"github.com/vidadoble/juego/server/internal/platform/logger"
)

type fakeEconomy struct {
	legitRatio float64
	balance    float64
	frozen     float64
	unfrozen   float64
	fined      float64
}

func (e *fakeEconomy) LegitimateIncomeRatio(actorID string) float64 { return e.legitRatio }
func (e *fakeEconomy) Balance(actorID string) float64               { return e.balance }
func (e *fakeEconomy) FreezeFunds(actorID string, amount float64)   { e.frozen += amount }
func (e *fakeEconomy) UnfreezeFunds(actorID string, amount float64) { e.unfrozen += amount }
func (e *fakeEconomy) Fine(actorID string, amount float64)          { e.fined += amount }

type fakeEvidence struct{ hasEvidence bool }

func (e *fakeEvidence) HasEvidence(actorID string) bool { return e.hasEvidence }

func newTestHeatStack(economy EconomyProvider, evidence EvidenceProvider) (*HeatEngine, *DetectionEngine, *events.EventLog, *clock.GameClock) {
	el := events.NewEventLog(nil)
	log := logger.NewLogger()
	clk := clock.New()
	de := NewDetectionEngine(el, log, clk, nil)
	he := NewHeatEngine(el, log, clk, de, economy, evidence)
	return he, de, el, clk
}

func TestAddHeatAttributesAndEscalatesPatrol(t *testing.T) {
	he, de, el, _ := newTestHeatStack(nil, nil)

	he.AddHeat("P1", 35, "drug_dealing")

	if got := he.GetLevel("P1"); got != 35 {
		t.Errorf("Expected level 35, got %v", got)
	}
	snap := he.Snapshot("P1")
	if snap.Sources["drug_dealing"] != 35 {
		t.Errorf("Expected the full delta attributed, got %v", snap.Sources)
	}

	// Crossing 30 escalates patrols by 1.2x.
	if got := de.PatrolFrequency(); got != 1.2 {
		t.Errorf("Expected patrol frequency 1.2, got %v", got)
	}
	if n := len(el.GetByType(events.EventTypeHeatThreshold)); n != 1 {
		t.Errorf("Expected one threshold event, got %d", n)
	}
}

func TestAddHeatClampsAtHundred(t *testing.T) {
	he, _, _, _ := newTestHeatStack(nil, nil)

	he.AddHeat("P1", 80, "burglary")
	he.AddHeat("P1", 50, "burglary")

	if got := he.GetLevel("P1"); got != 100 {
		t.Errorf("Expected level clamped at 100, got %v", got)
	}
	// Provenance tracks the clamped delta, not the request.
	if got := he.Snapshot("P1").Sources["burglary"]; got != 100 {
		t.Errorf("Expected bucket holding 100, got %v", got)
	}
}

func TestSurveillanceOpensOnceAndThresholdRearms(t *testing.T) {
	he, de, el, _ := newTestHeatStack(nil, nil)

	he.AddHeat("P1", 55, "hacking")

	snap := he.Snapshot("P1")
	if !snap.Surveillance {
		t.Fatal("Expected surveillance open above 50")
	}
	// 30 crossing (1.2x) then 50 crossing (1.5x) compose.
	if got := de.PatrolFrequency(); math.Abs(got-1.8) > 1e-9 {
		t.Errorf("Expected patrol frequency 1.8, got %v", got)
	}
	if got := de.DetectionSensitivity(); got != 1.3 {
		t.Errorf("Expected sensitivity 1.3, got %v", got)
	}

	// Drop below 50 and climb back: the threshold fires again but the
	// still-open surveillance is not doubled.
	he.ReduceHeat("P1", 10, "")
	he.AddHeat("P1", 10, "hacking")

	var fifties int
	for _, ev := range el.GetByType(events.EventTypeHeatThreshold) {
		if ev.Payload.(ThresholdEventPayload).Threshold == 50 {
			fifties++
		}
	}
	if fifties != 2 {
		t.Errorf("Expected the 50 threshold to re-arm, got %d crossings", fifties)
	}
	if n := len(el.GetByType(events.EventTypeInvestigationOpened)); n != 1 {
		t.Errorf("Expected a single surveillance investigation, got %d", n)
	}
	if got := de.DetectionSensitivity(); got != 1.3 {
		t.Errorf("Surveillance dials must not stack, got %v", got)
	}
}

func TestAuditOpensOnDirtyBooks(t *testing.T) {
	economy := &fakeEconomy{legitRatio: 0.3, balance: 1000}
	he, _, _, clk := newTestHeatStack(economy, nil)

	he.AddHeat("P1", 75, "money_laundering")

	snap := he.Snapshot("P1")
	if !snap.AuditActive {
		t.Fatal("Expected audit open above 70 with dirty books")
	}
	if economy.frozen != 500 {
		t.Errorf("Expected half the balance frozen, got %v", economy.frozen)
	}
	if got := snap.AuditDeadline; got != clk.NowHours()+72 {
		t.Errorf("Expected a 72 hour window, got deadline %v", got)
	}
}

func TestNoAuditOnCleanBooks(t *testing.T) {
	economy := &fakeEconomy{legitRatio: 0.9, balance: 1000}
	he, _, _, _ := newTestHeatStack(economy, nil)

	he.AddHeat("P1", 75, "money_laundering")

	if he.Snapshot("P1").AuditActive {
		t.Error("A mostly legitimate earner must not be audited")
	}
	if economy.frozen != 0 {
		t.Errorf("Expected no freeze, got %v", economy.frozen)
	}
}

func TestAuditCleanResolution(t *testing.T) {
	economy := &fakeEconomy{legitRatio: 0.3, balance: 1000}
	he, _, _, clk := newTestHeatStack(economy, nil)

	he.AddHeat("P1", 75, "money_laundering")

	// Quiet conduct through the whole window.
	clk.Advance(73 * 60)
	he.Tick(73)

	snap := he.Snapshot("P1")
	if snap.AuditActive {
		t.Error("Expected audit resolved after the deadline")
	}
	if economy.fined != 0 {
		t.Errorf("A clean record must not be fined, got %v", economy.fined)
	}
	if economy.unfrozen != 500 {
		t.Errorf("Expected the frozen funds returned, got %v", economy.unfrozen)
	}
}

func TestAuditDirtyResolutionFines(t *testing.T) {
	economy := &fakeEconomy{legitRatio: 0.3, balance: 1000}
	he, _, _, clk := newTestHeatStack(economy, nil)

	he.AddHeat("P1", 75, "money_laundering")

	// Any heat gained inside the window dirties the record.
	clk.Advance(10 * 60)
	he.AddHeat("P1", 3, "burglary")

	clk.Advance(70 * 60)
	he.Tick(70)

	if he.Snapshot("P1").AuditActive {
		t.Error("Expected audit resolved after the deadline")
	}
	if economy.fined != 125 {
		t.Errorf("Expected fine of 25%% of frozen funds (125), got %v", economy.fined)
	}
	if economy.unfrozen != 500 {
		t.Errorf("Expected the frozen funds returned after the fine, got %v", economy.unfrozen)
	}
}

func TestRestoredAuditResolvesWithoutEconomy(t *testing.T) {
	he, _, el, clk := newTestHeatStack(nil, nil)

	// A persisted snapshot can carry an open audit into an engine that
	// has no ledger wired.
	he.Restore(HeatSnapshot{
		ActorID:       "P1",
		Level:         75,
		Sources:       map[string]float64{"money_laundering": 75},
		AuditActive:   true,
		AuditDeadline: clk.NowHours() + 1,
	})

	clk.Advance(2 * 60)
	he.Tick(2)

	if he.Snapshot("P1").AuditActive {
		t.Error("Expected the restored audit resolved after the deadline")
	}
	if n := len(el.GetByType(events.EventTypeInvestigationResolved)); n != 1 {
		t.Errorf("Expected one resolution event, got %d", n)
	}
}

func TestRaidHalvesHeatWithEvidence(t *testing.T) {
	he, _, _, _ := newTestHeatStack(&fakeEconomy{legitRatio: 0.9}, &fakeEvidence{hasEvidence: true})

	he.AddHeat("P1", 95, "burglary")

	snap := he.Snapshot("P1")
	if snap.Level != 47.5 {
		t.Errorf("Expected the raid to halve heat to 47.5, got %v", snap.Level)
	}
	if snap.WarrantActive {
		t.Error("A raid must not also issue a warrant")
	}
	// Provenance scales with the level.
	if got := snap.Sources["burglary"]; math.Abs(got-47.5) > 1e-9 {
		t.Errorf("Expected bucket scaled to 47.5, got %v", got)
	}
}

func TestWarrantWithoutEvidence(t *testing.T) {
	he, de, _, _ := newTestHeatStack(&fakeEconomy{legitRatio: 0.9}, &fakeEvidence{})

	before := de.PatrolFrequency()
	he.AddHeat("P1", 95, "burglary")

	snap := he.Snapshot("P1")
	if !snap.WarrantActive {
		t.Fatal("Expected a warrant when no evidence supports a raid")
	}
	if got := de.PatrolFrequency(); math.Abs(got-before*1.2*1.5*2) > 1e-9 {
		t.Errorf("Expected warrant doubling patrols on top of earlier escalation, got %v", got)
	}

	he.ResolveWarrant("P1")
	if he.Snapshot("P1").WarrantActive {
		t.Error("Expected warrant cleared")
	}
	if got := de.PatrolFrequency(); math.Abs(got-before*1.2*1.5) > 1e-9 {
		t.Errorf("Expected the warrant escalation undone, got %v", got)
	}
}

func TestReduceHeatNamedBucket(t *testing.T) {
	he, _, _, _ := newTestHeatStack(nil, nil)

	he.AddHeat("P1", 20, "drug_dealing")
	he.AddHeat("P1", 15, "hacking")

	// A named reduction never spills into other buckets.
	he.ReduceHeat("P1", 40, "drug_dealing")

	snap := he.Snapshot("P1")
	if snap.Level != 15 {
		t.Errorf("Expected level 15, got %v", snap.Level)
	}
	if _, exists := snap.Sources["drug_dealing"]; exists {
		t.Error("Expected the named bucket emptied and removed")
	}
	if snap.Sources["hacking"] != 15 {
		t.Errorf("Expected the other bucket untouched, got %v", snap.Sources)
	}
}

func TestReduceHeatCascadesLargestFirst(t *testing.T) {
	he, _, _, _ := newTestHeatStack(nil, nil)

	he.AddHeat("P1", 25, "drug_dealing")
	he.AddHeat("P1", 15, "hacking")

	he.ReduceHeat("P1", 30, "")

	snap := he.Snapshot("P1")
	if snap.Level != 10 {
		t.Errorf("Expected level 10, got %v", snap.Level)
	}
	if _, exists := snap.Sources["drug_dealing"]; exists {
		t.Error("Expected the largest bucket drained first and removed")
	}
	if snap.Sources["hacking"] != 10 {
		t.Errorf("Expected the remainder taken from the next bucket, got %v", snap.Sources)
	}
}

func TestReduceHeatTieBreaksFirstSeen(t *testing.T) {
	he, _, _, _ := newTestHeatStack(nil, nil)

	he.AddHeat("P1", 20, "drug_dealing")
	he.AddHeat("P1", 20, "hacking")

	he.ReduceHeat("P1", 10, "")

	snap := he.Snapshot("P1")
	if snap.Sources["drug_dealing"] != 10 {
		t.Errorf("Expected the first-seen bucket drained on a tie, got %v", snap.Sources)
	}
	if snap.Sources["hacking"] != 20 {
		t.Errorf("Expected the later bucket untouched, got %v", snap.Sources)
	}
}

func TestDecayFreshResistsStaleFades(t *testing.T) {
	he, _, _, clk := newTestHeatStack(nil, nil)

	he.AddHeat("P1", 10, "burglary")

	// One hour later suspicion is fresh: half-rate decay.
	clk.Advance(60)
	he.Tick(1)
	freshLoss := 10 - he.GetLevel("P1")
	if math.Abs(freshLoss-(1.0/24.0)*0.5) > 1e-9 {
		t.Errorf("Expected fresh decay of 1/48 per hour, got %v", freshLoss)
	}

	// Two days of silence moves the state into the full-rate tier.
	clk.Advance(48 * 60)
	before := he.GetLevel("P1")
	he.Tick(1)
	staleLoss := before - he.GetLevel("P1")
	if math.Abs(staleLoss-(1.0/24.0)) > 1e-9 {
		t.Errorf("Expected full-rate decay of 1/24 per hour, got %v", staleLoss)
	}

	// Provenance always sums back to the level.
	snap := he.Snapshot("P1")
	var sum float64
	for _, v := range snap.Sources {
		sum += v
	}
	if math.Abs(sum-snap.Level) > 1e-9 {
		t.Errorf("Bucket sum %v diverged from level %v", sum, snap.Level)
	}
}

func TestModifierExpiryWithdrawsContribution(t *testing.T) {
	he, _, _, clk := newTestHeatStack(nil, nil)

	he.AddModifier("P1", "wanted_poster", 10, clk.NowHours()+2)
	if got := he.GetLevel("P1"); got != 10 {
		t.Fatalf("Expected modifier applied immediately, got %v", got)
	}

	clk.Advance(3 * 60)
	he.Tick(3)

	if got := he.GetLevel("P1"); got != 0 {
		t.Errorf("Expected the expired modifier withdrawn, got %v", got)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	he, _, _, _ := newTestHeatStack(nil, nil)

	he.AddHeat("P1", 40, "drug_dealing")
	he.AddHeat("P1", 20, "hacking")
	snap := he.Snapshot("P1")

	he2, _, _, _ := newTestHeatStack(nil, nil)
	he2.Restore(snap)

	if got := he2.GetLevel("P1"); got != 60 {
		t.Errorf("Expected restored level 60, got %v", got)
	}
	restored := he2.Snapshot("P1")
	if restored.Sources["drug_dealing"] != 40 || restored.Sources["hacking"] != 20 {
		t.Errorf("Expected provenance restored, got %v", restored.Sources)
	}
	if ids := he2.ActorIDs(); len(ids) != 1 || ids[0] != "P1" {
		t.Errorf("Expected one tracked actor, got %v", ids)
	}
}
