package database

import (
	"context"
)

// IdentityReader provides read-only access to enrolled identities
type IdentityReader interface {
	// ListIdentities returns every enrolled identity, ordered by name
	ListIdentities(ctx context.Context) ([]Identity, error)
	// Contains reports whether an identity with exactly this name exists
	Contains(ctx context.Context, name string) (bool, error)
	// GetSnapshot returns the stored reference image, ErrNotFound if there is none
	GetSnapshot(ctx context.Context, name string) ([]byte, error)
}

// IdentityWriter provides write access to enrolled identities
type IdentityWriter interface {
	IdentityReader

	// Put persists a new identity together with its optional snapshot.
	// It returns ErrAlreadyExists if the name is taken; nothing is written in that case.
	Put(ctx context.Context, id Identity, snapshot []byte) error
}

// Revisioner is implemented by stores that can cheaply tell whether their
// contents changed, including writes made by other processes. Equal
// revisions mean the identity set is unchanged.
type Revisioner interface {
	Revision(ctx context.Context) (string, error)
}

// EventAppender appends attendance events to durable storage
type EventAppender interface {
	// Append writes one event; it must not return nil unless the event is durable
	Append(ctx context.Context, event AttendanceEvent) error
}

// EventReader reads attendance events back in append order
type EventReader interface {
	Events(ctx context.Context) ([]AttendanceEvent, error)
}
