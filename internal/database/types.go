package database

import (
	"errors"
	"fmt"
	"time"
)

// Record schema tag and the newest version this build can read.
const (
	IdentitySchema        = "face-attendance/identity"
	IdentitySchemaVersion = 1
)

var (
	// ErrAlreadyExists is returned by Put when the name is already enrolled.
	ErrAlreadyExists = errors.New("identity already exists")
	// ErrNotFound is returned when a name (or its snapshot) is not stored.
	ErrNotFound = errors.New("identity not found")
	// ErrUnsupportedRecord is returned for records with an unknown schema tag or a newer version.
	ErrUnsupportedRecord = errors.New("unsupported identity record")
)

// Identity is one enrolled person with its reference embedding.
type Identity struct {
	Name      string
	Embedding []float32
	Dim       int
	Model     string
	CreatedAt time.Time
}

// IdentityRecord is the persisted, versioned form of an Identity.
type IdentityRecord struct {
	Schema    string    `json:"schema"`
	Version   int       `json:"version"`
	Name      string    `json:"name"`
	Dim       int       `json:"dim"`
	Model     string    `json:"model,omitempty"`
	Embedding []float32 `json:"embedding"`
	CreatedAt time.Time `json:"created_at"`
}

// NewIdentityRecord builds a current-version record for an identity.
func NewIdentityRecord(id Identity) IdentityRecord {
	return IdentityRecord{
		Schema:    IdentitySchema,
		Version:   IdentitySchemaVersion,
		Name:      id.Name,
		Dim:       len(id.Embedding),
		Model:     id.Model,
		Embedding: id.Embedding,
		CreatedAt: id.CreatedAt,
	}
}

// Identity validates the record and converts it back into an Identity.
func (r IdentityRecord) Identity() (Identity, error) {
	if r.Schema != IdentitySchema {
		return Identity{}, fmt.Errorf("%w: schema %q", ErrUnsupportedRecord, r.Schema)
	}
	if r.Version < 1 || r.Version > IdentitySchemaVersion {
		return Identity{}, fmt.Errorf("%w: version %d", ErrUnsupportedRecord, r.Version)
	}
	if r.Name == "" {
		return Identity{}, fmt.Errorf("%w: empty name", ErrUnsupportedRecord)
	}
	if r.Dim != len(r.Embedding) {
		return Identity{}, fmt.Errorf("%w: dim %d does not match embedding length %d",
			ErrUnsupportedRecord, r.Dim, len(r.Embedding))
	}
	return Identity{
		Name:      r.Name,
		Embedding: r.Embedding,
		Dim:       r.Dim,
		Model:     r.Model,
		CreatedAt: r.CreatedAt,
	}, nil
}

// Direction is the attendance direction of an event.
type Direction string

// Attendance directions.
const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// ParseDirection parses "in" or "out".
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionIn, DirectionOut:
		return Direction(s), nil
	}
	return "", fmt.Errorf("invalid direction %q: must be \"in\" or \"out\"", s)
}

// AttendanceEvent is one immutable ledger entry.
type AttendanceEvent struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Direction Direction `json:"direction"`
}

// CopyVector returns a copy of v so callers never share a stored vector.
func CopyVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
