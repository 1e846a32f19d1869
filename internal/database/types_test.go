package database

import (
	"errors"
	"testing"
	"time"
)

func TestIdentityRecord_RoundTrip(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	rec := NewIdentityRecord(Identity{
		Name:      "alice",
		Embedding: []float32{0.1, 0.2, 0.3},
		Model:     "dlib",
		CreatedAt: created,
	})

	if rec.Schema != IdentitySchema || rec.Version != IdentitySchemaVersion {
		t.Fatalf("unexpected schema tag %q v%d", rec.Schema, rec.Version)
	}
	if rec.Dim != 3 {
		t.Errorf("Dim = %d, want 3", rec.Dim)
	}

	id, err := rec.Identity()
	if err != nil {
		t.Fatalf("Identity(): %v", err)
	}
	if id.Name != "alice" || id.Dim != 3 || !id.CreatedAt.Equal(created) {
		t.Errorf("unexpected identity: %+v", id)
	}
}

func TestIdentityRecord_Rejects(t *testing.T) {
	valid := NewIdentityRecord(Identity{Name: "alice", Embedding: []float32{1, 2}})

	tests := []struct {
		name   string
		mutate func(r *IdentityRecord)
	}{
		{"unknown schema", func(r *IdentityRecord) { r.Schema = "pickle" }},
		{"future version", func(r *IdentityRecord) { r.Version = IdentitySchemaVersion + 1 }},
		{"zero version", func(r *IdentityRecord) { r.Version = 0 }},
		{"empty name", func(r *IdentityRecord) { r.Name = "" }},
		{"dim mismatch", func(r *IdentityRecord) { r.Dim = 5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := valid
			tt.mutate(&rec)
			_, err := rec.Identity()
			if !errors.Is(err, ErrUnsupportedRecord) {
				t.Errorf("expected ErrUnsupportedRecord, got %v", err)
			}
		})
	}
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		input   string
		want    Direction
		wantErr bool
	}{
		{"in", DirectionIn, false},
		{"out", DirectionOut, false},
		{"IN", "", true},
		{"", "", true},
		{"sideways", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDirection(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDirection(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDirection(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCopyVector(t *testing.T) {
	orig := []float32{1, 2, 3}
	cp := CopyVector(orig)
	cp[0] = 42
	if orig[0] != 1 {
		t.Error("CopyVector shares backing array")
	}
	if CopyVector(nil) != nil {
		t.Error("CopyVector(nil) should be nil")
	}
}
