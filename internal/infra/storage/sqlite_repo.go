package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event EventRecord) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO events (id, game_id, timestamp, event_type, actor_id, target_id, payload, game_day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.GameID, event.Timestamp, event.EventType, event.ActorID,
		event.TargetID, string(payloadBytes), event.GameDay,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]EventRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		var payloadStr string
		err := rows.Scan(
			&e.ID, &e.GameID, &e.Timestamp, &e.EventType, &e.ActorID,
			&e.TargetID, &payloadStr, &e.GameDay,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payloadStr), &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

const eventColumns = `id, game_id, timestamp, event_type, actor_id, target_id, payload, game_day`

func (r *SQLiteEventRepository) GetByGameID(ctx context.Context, gameID string) ([]EventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE game_id = ? ORDER BY timestamp ASC`
	return r.getMany(ctx, query, gameID)
}

func (r *SQLiteEventRepository) GetByActorID(ctx context.Context, gameID, actorID string) ([]EventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE game_id = ? AND actor_id = ? ORDER BY timestamp ASC`
	return r.getMany(ctx, query, gameID, actorID)
}

func (r *SQLiteEventRepository) GetByEventType(ctx context.Context, gameID string, eventType string) ([]EventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE game_id = ? AND event_type = ? ORDER BY timestamp ASC`
	return r.getMany(ctx, query, gameID, eventType)
}

func (r *SQLiteEventRepository) GetByGameDay(ctx context.Context, gameID string, day int) ([]EventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE game_id = ? AND game_day = ? ORDER BY timestamp ASC`
	return r.getMany(ctx, query, gameID, day)
}

// ---------------------------------------------------------
// SQLiteHeatRepository
// ---------------------------------------------------------

type SQLiteHeatRepository struct {
	db *sql.DB
}

func NewSQLiteHeatRepository(db *sql.DB) *SQLiteHeatRepository {
	return &SQLiteHeatRepository{db: db}
}

func (r *SQLiteHeatRepository) Upsert(ctx context.Context, snapshot HeatSnapshot) error {
	sourcesBytes, err := json.Marshal(snapshot.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal heat sources: %w", err)
	}

	query := `
		INSERT INTO heat_states (actor_id, game_id, level, sources_json, surveillance, audit_active, audit_deadline, warrant_active, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(actor_id) DO UPDATE SET
			game_id=excluded.game_id,
			level=excluded.level,
			sources_json=excluded.sources_json,
			surveillance=excluded.surveillance,
			audit_active=excluded.audit_active,
			audit_deadline=excluded.audit_deadline,
			warrant_active=excluded.warrant_active,
			last_updated=excluded.last_updated
	`
	_, err = r.db.ExecContext(ctx, query,
		snapshot.ActorID, snapshot.GameID, snapshot.Level, string(sourcesBytes),
		snapshot.Surveillance, snapshot.AuditActive, snapshot.AuditDeadline,
		snapshot.WarrantActive, time.Now(),
	)
	return err
}

func (r *SQLiteHeatRepository) scanOne(row *sql.Row) (*HeatSnapshot, error) {
	var s HeatSnapshot
	var sourcesStr string
	err := row.Scan(
		&s.ActorID, &s.GameID, &s.Level, &sourcesStr,
		&s.Surveillance, &s.AuditActive, &s.AuditDeadline, &s.WarrantActive, &s.LastUpdated,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(sourcesStr), &s.Sources); err != nil {
		return nil, err
	}
	return &s, nil
}

const heatColumns = `actor_id, game_id, level, sources_json, surveillance, audit_active, audit_deadline, warrant_active, last_updated`

func (r *SQLiteHeatRepository) GetByActorID(ctx context.Context, actorID string) (*HeatSnapshot, error) {
	query := `SELECT ` + heatColumns + ` FROM heat_states WHERE actor_id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, actorID))
}

func (r *SQLiteHeatRepository) GetByGameID(ctx context.Context, gameID string) ([]HeatSnapshot, error) {
	query := `SELECT ` + heatColumns + ` FROM heat_states WHERE game_id = ?`
	rows, err := r.db.QueryContext(ctx, query, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []HeatSnapshot
	for rows.Next() {
		var s HeatSnapshot
		var sourcesStr string
		if err := rows.Scan(&s.ActorID, &s.GameID, &s.Level, &sourcesStr,
			&s.Surveillance, &s.AuditActive, &s.AuditDeadline, &s.WarrantActive, &s.LastUpdated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sourcesStr), &s.Sources); err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// ---------------------------------------------------------
// SQLiteObserverRepository
// ---------------------------------------------------------

type SQLiteObserverRepository struct {
	db *sql.DB
}

func NewSQLiteObserverRepository(db *sql.DB) *SQLiteObserverRepository {
	return &SQLiteObserverRepository{db: db}
}

func (r *SQLiteObserverRepository) Upsert(ctx context.Context, snapshot ObserverSnapshot) error {
	query := `
		INSERT INTO observers (observer_id, game_id, role, location_id, pose_json, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(observer_id) DO UPDATE SET
			game_id=excluded.game_id,
			role=excluded.role,
			location_id=excluded.location_id,
			pose_json=excluded.pose_json,
			last_updated=excluded.last_updated
	`
	_, err := r.db.ExecContext(ctx, query,
		snapshot.ObserverID, snapshot.GameID, snapshot.Role,
		snapshot.LocationID, snapshot.PoseJSON, time.Now(),
	)
	return err
}

func (r *SQLiteObserverRepository) GetByGameID(ctx context.Context, gameID string) ([]ObserverSnapshot, error) {
	query := `SELECT observer_id, game_id, role, location_id, pose_json, last_updated FROM observers WHERE game_id = ?`
	rows, err := r.db.QueryContext(ctx, query, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []ObserverSnapshot
	for rows.Next() {
		var s ObserverSnapshot
		if err := rows.Scan(&s.ObserverID, &s.GameID, &s.Role, &s.LocationID, &s.PoseJSON, &s.LastUpdated); err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

func (r *SQLiteObserverRepository) Delete(ctx context.Context, observerID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM observers WHERE observer_id = ?`, observerID)
	return err
}
