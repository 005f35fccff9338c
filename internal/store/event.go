package store

import (
	"database/sql"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/abhinaya/internal/gesture"
)

// DefaultEventLimit caps event listings when no limit is given.
const DefaultEventLimit = 100

// EventRepository stores committed gesture events.
type EventRepository struct {
	db *sql.DB
}

// Events returns the gesture event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Create appends an event to the log.
func (r *EventRepository) Create(e gesture.Event) error {
	_, err := r.db.Exec(
		`INSERT INTO gesture_events (type, entity, timestamp_ms, x, y, z, vx, vy, vz)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.Type), string(e.Entity), e.Timestamp.UnixMilli(),
		e.Position.X, e.Position.Y, e.Position.Z,
		e.Velocity.X, e.Velocity.Y, e.Velocity.Z,
	)
	return err
}

// List returns up to limit events, newest first. An empty entity matches
// every entity.
func (r *EventRepository) List(limit int, entity gesture.Entity) ([]gesture.Event, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if entity == "" {
		rows, err = r.db.Query(
			`SELECT type, entity, timestamp_ms, x, y, z, vx, vy, vz
			 FROM gesture_events ORDER BY timestamp_ms DESC, id DESC LIMIT ?`,
			limit,
		)
	} else {
		rows, err = r.db.Query(
			`SELECT type, entity, timestamp_ms, x, y, z, vx, vy, vz
			 FROM gesture_events WHERE entity = ? ORDER BY timestamp_ms DESC, id DESC LIMIT ?`,
			string(entity), limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []gesture.Event
	for rows.Next() {
		var (
			typ, ent string
			ms       int64
			p, v     r3.Vec
		)
		if err := rows.Scan(&typ, &ent, &ms, &p.X, &p.Y, &p.Z, &v.X, &v.Y, &v.Z); err != nil {
			return nil, err
		}
		events = append(events, gesture.Event{
			Type:      gesture.Type(typ),
			Entity:    gesture.Entity(ent),
			Timestamp: time.UnixMilli(ms),
			Position:  p,
			Velocity:  v,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// DeleteBefore removes events older than t and returns how many were removed.
func (r *EventRepository) DeleteBefore(t time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM gesture_events WHERE timestamp_ms < ?`, t.UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
