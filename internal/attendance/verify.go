package attendance

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/frame"
)

// UnknownUserNotice is shown when a frame has unrecognised faces or none.
const UnknownUserNotice = "Unknown user. Please register new user or try again."

// Outcome is the result of one verification.
type Outcome struct {
	// Recognized holds each matched name once, in first-seen order.
	Recognized   []string `json:"recognized"`
	UnknownCount int      `json:"unknown_count"`
	NoFace       bool     `json:"no_face"`
}

// Err reports an outcome without any recognised face as an error.
func (o Outcome) Err() error {
	switch {
	case len(o.Recognized) > 0:
		return nil
	case o.NoFace:
		return ErrNoFaceDetected
	default:
		return ErrNoMatch
	}
}

// Notifications renders the messages shown to the person at the camera.
func (o Outcome) Notifications(dir database.Direction) []string {
	var msgs []string
	for _, name := range o.Recognized {
		if dir == database.DirectionOut {
			msgs = append(msgs, fmt.Sprintf("Goodbye, %s.", name))
		} else {
			msgs = append(msgs, fmt.Sprintf("Welcome, %s.", name))
		}
	}
	if o.UnknownCount > 0 || o.NoFace {
		msgs = append(msgs, UnknownUserNotice)
	}
	return msgs
}

// Verify matches every face in f and records dir for each recognised name.
// A ledger failure aborts with ErrStorageFailure. The returned Outcome then
// lists the names recorded for earlier faces, which stay in the log.
func (s *Service) Verify(ctx context.Context, f frame.Frame, dir database.Direction) (Outcome, error) {
	out, err := s.verify(ctx, f, dir)
	outcome := KindOf(err).String()
	if err == nil {
		switch {
		case out.NoFace:
			outcome = KindNoFace.String()
		case len(out.Recognized) == 0:
			outcome = KindNoMatch.String()
		default:
			outcome = "recognized"
		}
	}
	s.metrics.VerificationOutcome(string(dir), outcome)
	return out, err
}

func (s *Service) verify(ctx context.Context, f frame.Frame, dir database.Direction) (Outcome, error) {
	if _, err := database.ParseDirection(string(dir)); err != nil {
		return Outcome{}, err
	}

	faces, err := s.embed(ctx, f)
	if err != nil {
		return Outcome{}, err
	}
	if len(faces) == 0 {
		return Outcome{Recognized: []string{}, NoFace: true}, nil
	}

	all, err := s.store.ListIdentities(ctx)
	if err != nil {
		return Outcome{}, s.storageFailure("list identities", err)
	}
	s.metrics.SetIdentities(len(all))

	out := Outcome{Recognized: []string{}}
	for _, face := range faces {
		res := s.matcher.Match(face.Embedding, s.candidates(ctx, all, face.Embedding))
		if !math.IsInf(res.BestDistance, 1) {
			s.metrics.MatchDistance(res.BestDistance)
		}
		if res.Kind != facematch.Identified {
			s.log.Debug("face not recognised", "face", face.Index, "best_distance", res.BestDistance)
			s.metrics.Face("unknown")
			out.UnknownCount++
			continue
		}
		s.metrics.Face("recognized")
		if slices.Contains(out.Recognized, res.Name) {
			continue
		}

		event := database.AttendanceEvent{Name: res.Name, Timestamp: s.now(), Direction: dir}
		if err := s.ledger.Append(ctx, event); err != nil {
			s.metrics.LedgerFailure()
			return out, s.storageFailure("record attendance", err)
		}
		s.metrics.LedgerEvent(string(dir))
		s.log.Info("attendance recorded", "name", res.Name, "direction", dir, "distance", res.Distance)
		out.Recognized = append(out.Recognized, res.Name)
	}
	return out, nil
}
