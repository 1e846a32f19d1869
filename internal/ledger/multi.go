package ledger

import (
	"context"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// Log is an append-only event log that can be read back.
type Log interface {
	database.EventAppender
	database.EventReader
}

// Multi fans every event out to a primary log and any number of mirrors.
// Reads come from the primary. The primary is the record of truth: once it
// holds an event, a mirror failure is reported to OnMirrorError and the
// append still succeeds.
type Multi struct {
	primary       Log
	mirrors       []database.EventAppender
	onMirrorError func(mirror int, e database.AttendanceEvent, err error)
}

func NewMulti(primary Log, mirrors ...database.EventAppender) *Multi {
	return &Multi{primary: primary, mirrors: mirrors}
}

// OnMirrorError sets the callback for events a mirror failed to store.
func (m *Multi) OnMirrorError(fn func(mirror int, e database.AttendanceEvent, err error)) *Multi {
	m.onMirrorError = fn
	return m
}

// Record appends one event to every sink.
func (m *Multi) Record(ctx context.Context, name string, dir database.Direction, ts time.Time) error {
	return m.Append(ctx, database.AttendanceEvent{Name: name, Timestamp: ts, Direction: dir})
}

// Append writes to the primary first; if that fails no mirror is written and
// the error is returned. Every mirror is then attempted.
func (m *Multi) Append(ctx context.Context, e database.AttendanceEvent) error {
	if err := m.primary.Append(ctx, e); err != nil {
		return err
	}
	for i, mirror := range m.mirrors {
		if err := mirror.Append(ctx, e); err != nil && m.onMirrorError != nil {
			m.onMirrorError(i, e, err)
		}
	}
	return nil
}

func (m *Multi) Events(ctx context.Context) ([]database.AttendanceEvent, error) {
	return m.primary.Events(ctx)
}

// Verify delegates to the primary when it supports view checks.
func (m *Multi) Verify(ctx context.Context) error {
	if v, ok := m.primary.(interface{ Verify(context.Context) error }); ok {
		return v.Verify(ctx)
	}
	return nil
}
