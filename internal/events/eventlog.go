// Package events provides the append-only event log for the simulation.
// Every consequential mutation in the engines is recorded here; the
// presentation layer, persistence and cross-engine reactions all hang
// off subscriptions rather than direct calls into UI code.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a game event.
type EventType string

const (
	EventTypeTimeTick              EventType = "TIME_TICK"
	EventTypeActivityStarted       EventType = "ACTIVITY_STARTED"
	EventTypeActivityPaused        EventType = "ACTIVITY_PAUSED"
	EventTypeActivityResumed       EventType = "ACTIVITY_RESUMED"
	EventTypeActivityEnded         EventType = "ACTIVITY_ENDED"
	EventTypeActivityPhaseChanged  EventType = "ACTIVITY_PHASE_CHANGED"
	EventTypeDetection             EventType = "DETECTION"
	EventTypeHeatAdded             EventType = "HEAT_ADDED"
	EventTypeHeatReduced           EventType = "HEAT_REDUCED"
	EventTypeHeatThreshold         EventType = "HEAT_THRESHOLD"
	EventTypeInvestigationOpened   EventType = "INVESTIGATION_OPENED"
	EventTypeInvestigationResolved EventType = "INVESTIGATION_RESOLVED"
)

// GameEvent represents an immutable record of something that happened
// in the simulation.
type GameEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	ActorID   string      `json:"actor_id"`  // Who performed or suffered the action
	TargetID  string      `json:"target_id"` // Secondary party (observer, cause), optional
	Payload   interface{} `json:"payload"`   // Event-specific data
	GameDay   int         `json:"game_day"`
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event GameEvent) error
}

// Handler is a subscriber callback. Handlers run synchronously after the
// event has been appended, never during the mutation that produced it.
type Handler func(event GameEvent)

// EventLog is the in-memory append-only log of game events with
// synchronous subscriber dispatch and optional write-through persistence.
type EventLog struct {
	mu          sync.RWMutex
	events      []GameEvent
	subscribers map[EventType][]Handler
	persister   EventPersister
}

// NewEventLog creates a new event log with an optional persister.
func NewEventLog(persister EventPersister) *EventLog {
	return &EventLog{
		events:      make([]GameEvent, 0),
		subscribers: make(map[EventType][]Handler),
		persister:   persister,
	}
}

// Subscribe registers a handler for one event type. Wiring happens at
// construction time, before the simulation starts appending.
func (el *EventLog) Subscribe(eventType EventType, handler Handler) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.subscribers[eventType] = append(el.subscribers[eventType], handler)
}

// Append adds a new event to the log, persists it, then notifies
// subscribers. Events are immutable once appended.
func (el *EventLog) Append(event GameEvent) {
	el.mu.Lock()
	el.events = append(el.events, event)
	handlers := el.subscribers[event.Type]
	el.mu.Unlock()

	if el.persister != nil {
		// Write through to persistent storage off the hot path.
		go func(e GameEvent) {
			_ = el.persister.Append(e)
		}(event)
	}

	for _, h := range handlers {
		h(event)
	}
}

// GetByActor returns all events performed by or against a specific actor.
func (el *EventLog) GetByActor(actorID string) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.ActorID == actorID || e.TargetID == actorID {
			result = append(result, e)
		}
	}
	return result
}

// GetByType returns all events of one category.
func (el *EventLog) GetByType(eventType EventType) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}

// GetByDay returns all events that occurred on a specific game day.
func (el *EventLog) GetByDay(day int) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.GameDay == day {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns the full history of events for state reconstruction.
func (el *EventLog) Replay() []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.events
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
