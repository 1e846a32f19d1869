package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// EventRepository mirrors attendance events into an insert-only table.
type EventRepository struct {
	pool *Pool
}

// NewEventRepository creates a new PostgreSQL attendance event repository.
func NewEventRepository(pool *Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// Append inserts one event.
func (r *EventRepository) Append(ctx context.Context, event database.AttendanceEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO attendance_events (name, occurred_at, direction)
		VALUES ($1, $2, $3)
	`, event.Name, event.Timestamp, string(event.Direction))
	if err != nil {
		return fmt.Errorf("insert attendance event: %w", err)
	}
	return nil
}

// Events returns all events in append order.
func (r *EventRepository) Events(ctx context.Context) ([]database.AttendanceEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT name, occurred_at, direction
		FROM attendance_events
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query attendance events: %w", err)
	}
	defer rows.Close()

	var events []database.AttendanceEvent
	for rows.Next() {
		var (
			e   database.AttendanceEvent
			dir string
		)
		if err := rows.Scan(&e.Name, &e.Timestamp, &dir); err != nil {
			return nil, fmt.Errorf("scan attendance event: %w", err)
		}
		e.Direction = database.Direction(dir)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance events: %w", err)
	}
	return events, nil
}
