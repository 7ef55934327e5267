package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vidadoble/juego/server/internal/clock"
	"github.com/vidadoble/juego/server/internal/events"
	"github.com/vidadoble/juego/server/internal/platform/logger"
	"github.com/vidadoble/juego/server/internal/platform/metrics"
)

// TimeTickPayload is the data attached to each TimeTickEvent.
type TimeTickPayload struct {
	GameDay     int   `json:"game_day"`
	GameHour    int   `json:"game_hour"` // 0-23 in-game
	TickNumber  int64 `json:"tick_number"`
	IsNightTime bool  `json:"is_night_time"` // 22:00-06:00
}

// Ticker is the simulation heartbeat. Each tick advances the game clock
// and steps the engines in a fixed order: patrols move, activities
// advance (including their detection polls), then heat decays and
// resolves. A detection this step contributes heat this same step.
type Ticker struct {
	eventLog  *events.EventLog
	logger    *logger.Logger
	clock     *clock.GameClock
	detection *DetectionEngine
	activity  *ActivityEngine
	heat      *HeatEngine

	tickNumber         int64
	tickRate           time.Duration
	gameMinutesPerTick int
	stopChan           chan struct{}

	// mu, when set, serializes Step against the owning Engine's
	// command facade.
	mu *sync.Mutex
}

// NewTicker creates the heartbeat. Defaults: one real second advances
// two in-game minutes.
func NewTicker(eventLog *events.EventLog, log *logger.Logger, clk *clock.GameClock, detection *DetectionEngine, activity *ActivityEngine, heat *HeatEngine) *Ticker {
	return &Ticker{
		eventLog:           eventLog,
		logger:             log,
		clock:              clk,
		detection:          detection,
		activity:           activity,
		heat:               heat,
		tickRate:           1 * time.Second,
		gameMinutesPerTick: 2,
		stopChan:           make(chan struct{}),
	}
}

// SetCadence overrides the real-time rate and game-time step.
func (t *Ticker) SetCadence(rate time.Duration, gameMinutesPerTick int) {
	if rate > 0 {
		t.tickRate = rate
	}
	if gameMinutesPerTick > 0 {
		t.gameMinutesPerTick = gameMinutesPerTick
	}
}

// Start begins the simulation loop. Call in a goroutine.
func (t *Ticker) Start(ctx context.Context) {
	t.logger.Info("Simulation ticker started")

	ticker := time.NewTicker(t.tickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Simulation ticker stopped by context")
			return
		case <-t.stopChan:
			t.logger.Info("Simulation ticker stopped manually")
			return
		case <-ticker.C:
			t.Step()
		}
	}
}

// Stop gracefully stops the ticker.
func (t *Ticker) Stop() {
	close(t.stopChan)
}

// Step processes a single simulation step. Exposed so scenario drivers
// and tests can run the loop manually.
func (t *Ticker) Step() {
	if t.mu != nil {
		t.mu.Lock()
		defer t.mu.Unlock()
	}

	started := time.Now()
	t.tickNumber++

	t.clock.Advance(t.gameMinutesPerTick)
	deltaSeconds := float64(t.gameMinutesPerTick) * 60
	deltaHours := float64(t.gameMinutesPerTick) / 60

	t.detection.Tick(deltaSeconds)
	t.activity.Tick(deltaSeconds)
	t.heat.Tick(deltaHours)

	t.eventLog.Append(events.GameEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeTimeTick,
		ActorID:   "SYSTEM_CLOCK",
		GameDay:   t.clock.Day(),
		Payload: TimeTickPayload{
			GameDay:     t.clock.Day(),
			GameHour:    t.clock.Hour(),
			TickNumber:  t.tickNumber,
			IsNightTime: t.clock.IsNightTime(),
		},
	})

	metrics.Get().RecordTick(time.Since(started))
	if t.tickNumber%100 == 0 {
		t.logger.Event("TIME_TICK", "CLOCK", fmt.Sprintf("day=%d hour=%02d tick=%d", t.clock.Day(), t.clock.Hour(), t.tickNumber))
	}
}

// TickNumber returns the count of completed steps.
func (t *Ticker) TickNumber() int64 {
	return t.tickNumber
}

// OverrideTick restores the step counter after a reboot so tick numbers
// in the event log stay monotonic across restarts.
func (t *Ticker) OverrideTick(tickNumber int64) {
	if tickNumber > t.tickNumber {
		t.tickNumber = tickNumber
	}
}
