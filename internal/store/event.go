package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Event is one notification the cooldown gate allowed, with its delivery outcome.
type Event struct {
	ID           string
	StudentID    string
	Score        float64
	OccurredAt   time.Time
	Destinations int
	Delivered    int
	Failures     int
}

// EventRepository stores the notification log.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Record inserts e, assigning an ID when it has none.
func (r *EventRepository) Record(e *Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	_, err := r.db.Exec(
		`INSERT INTO notification_events (id, student_id, score, occurred_at, destinations, delivered, failures)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.StudentID, e.Score, e.OccurredAt, e.Destinations, e.Delivered, e.Failures,
	)
	return err
}

// Recent returns up to limit events, newest first.
func (r *EventRepository) Recent(limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(
		`SELECT id, student_id, score, occurred_at, destinations, delivered, failures
		 FROM notification_events ORDER BY occurred_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(&e.ID, &e.StudentID, &e.Score, &e.OccurredAt, &e.Destinations, &e.Delivered, &e.Failures); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}
