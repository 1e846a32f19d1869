package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/frame"
)

// EnrollResult describes a stored identity.
type EnrollResult struct {
	Name          string    `json:"name"`
	Dim           int       `json:"dim"`
	CreatedAt     time.Time `json:"created_at"`
	FacesDetected int       `json:"faces_detected"`
	// Lookalikes are existing names that differ only in case, diacritics or
	// dashes. Enrollment still succeeds; the shell should warn.
	Lookalikes []string `json:"lookalikes,omitempty"`
}

// Enroll stores the first face in f as the reference embedding for name.
func (s *Service) Enroll(ctx context.Context, name string, f frame.Frame) (EnrollResult, error) {
	res, err := s.enroll(ctx, name, f)
	s.metrics.EnrollmentOutcome(KindOf(err).String())
	return res, err
}

func (s *Service) enroll(ctx context.Context, rawName string, f frame.Frame) (EnrollResult, error) {
	name, err := facematch.ValidateName(rawName)
	if err != nil {
		return EnrollResult{}, wrap(ErrInvalidName, err)
	}
	log := s.log.With("name", name)

	exists, err := s.store.Contains(ctx, name)
	if err != nil {
		return EnrollResult{}, s.storageFailure("contains", err)
	}
	if exists {
		return EnrollResult{}, fmt.Errorf("%w: %q", ErrDuplicateIdentity, name)
	}

	faces, err := s.embed(ctx, f)
	if err != nil {
		return EnrollResult{}, err
	}
	if len(faces) == 0 {
		return EnrollResult{}, ErrNoFaceDetected
	}
	if len(faces) > 1 {
		log.Warn("multiple faces in enrollment frame, using the first detected", "faces", len(faces))
	}
	vec := faces[0].Embedding

	snapshot, err := frame.Snapshot(f, s.opts.SnapshotMaxSize)
	if err != nil {
		log.Warn("could not build snapshot, enrolling without it", "error", err)
		snapshot = nil
	}

	id := database.Identity{
		Name:      name,
		Embedding: database.CopyVector(vec),
		Dim:       len(vec),
		Model:     s.opts.Model,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Put(ctx, id, snapshot); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			return EnrollResult{}, fmt.Errorf("%w: %q", ErrDuplicateIdentity, name)
		}
		return EnrollResult{}, s.storageFailure("put", err)
	}

	result := EnrollResult{
		Name:          name,
		Dim:           id.Dim,
		CreatedAt:     id.CreatedAt,
		FacesDetected: len(faces),
		Lookalikes:    s.lookalikes(ctx, name),
	}
	if len(result.Lookalikes) > 0 {
		log.Warn("enrolled name resembles existing identities", "similar", result.Lookalikes)
	}
	log.Info("identity enrolled", "dim", id.Dim, "snapshot", snapshot != nil)
	return result, nil
}

// lookalikes is best effort; a failing list only loses the warning.
func (s *Service) lookalikes(ctx context.Context, name string) []string {
	ids, err := s.store.ListIdentities(ctx)
	if err != nil {
		return nil
	}
	s.metrics.SetIdentities(len(ids))
	key := facematch.FoldName(name)
	var out []string
	for _, id := range ids {
		if id.Name != name && facematch.FoldName(id.Name) == key {
			out = append(out, id.Name)
		}
	}
	return out
}
