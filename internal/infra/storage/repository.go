// Package storage provides the persistence layer for the simulation.
// This package implements the repository pattern to keep the domain pure.
package storage

import (
	"context"
	"time"
)

// EventRecord mirrors the domain event structure for persistence.
// The domain package does NOT import this; adapters translate.
type EventRecord struct {
	ID        string                 `json:"id" db:"id"`
	GameID    string                 `json:"game_id" db:"game_id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	EventType string                 `json:"event_type" db:"event_type"`
	ActorID   string                 `json:"actor_id" db:"actor_id"`
	TargetID  string                 `json:"target_id" db:"target_id"`
	Payload   map[string]interface{} `json:"payload" db:"payload"`
	GameDay   int                    `json:"game_day" db:"game_day"`
}

// EventRepository defines the interface for event persistence.
type EventRepository interface {
	// Append adds a new event to the immutable ledger.
	Append(ctx context.Context, event EventRecord) error

	// GetByGameID retrieves all events for a specific game (for replay).
	GetByGameID(ctx context.Context, gameID string) ([]EventRecord, error)

	// GetByActorID retrieves all events performed by an actor.
	GetByActorID(ctx context.Context, gameID, actorID string) ([]EventRecord, error)

	// GetByEventType retrieves all events of a specific type.
	GetByEventType(ctx context.Context, gameID string, eventType string) ([]EventRecord, error)

	// GetByGameDay retrieves all events from a specific in-game day.
	GetByGameDay(ctx context.Context, gameID string, day int) ([]EventRecord, error)
}

// HeatSnapshot represents an actor's persisted suspicion state.
type HeatSnapshot struct {
	ActorID       string             `json:"actor_id" db:"actor_id"`
	GameID        string             `json:"game_id" db:"game_id"`
	Level         float64            `json:"level" db:"level"`
	Sources       map[string]float64 `json:"sources" db:"sources"`
	Surveillance  bool               `json:"surveillance" db:"surveillance"`
	AuditActive   bool               `json:"audit_active" db:"audit_active"`
	AuditDeadline float64            `json:"audit_deadline" db:"audit_deadline"`
	WarrantActive bool               `json:"warrant_active" db:"warrant_active"`
	LastUpdated   time.Time          `json:"last_updated" db:"last_updated"`
}

// HeatRepository defines the interface for heat state snapshots.
type HeatRepository interface {
	// Upsert updates or inserts an actor's heat snapshot.
	Upsert(ctx context.Context, snapshot HeatSnapshot) error

	// GetByActorID retrieves a specific actor's snapshot.
	GetByActorID(ctx context.Context, actorID string) (*HeatSnapshot, error)

	// GetByGameID retrieves all snapshots for a game.
	GetByGameID(ctx context.Context, gameID string) ([]HeatSnapshot, error)
}

// ObserverSnapshot represents a persisted observer for boot reconstruction.
type ObserverSnapshot struct {
	ObserverID  string    `json:"observer_id" db:"observer_id"`
	GameID      string    `json:"game_id" db:"game_id"`
	Role        string    `json:"role" db:"role"`
	LocationID  string    `json:"location_id" db:"location_id"`
	PoseJSON    string    `json:"pose_json" db:"pose_json"` // Position, facing, vision, patrol route
	LastUpdated time.Time `json:"last_updated" db:"last_updated"`
}

// ObserverRepository defines the interface for observer snapshots.
type ObserverRepository interface {
	Upsert(ctx context.Context, snapshot ObserverSnapshot) error
	GetByGameID(ctx context.Context, gameID string) ([]ObserverSnapshot, error)
	Delete(ctx context.Context, observerID string) error
}
