// Package attendance enrolls identities from camera frames and records
// attendance for recognised faces.
package attendance

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/frame"
	"github.com/kozaktomas/face-attendance/internal/logger"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

// nearestCandidates is how many index neighbours the Matcher sees when
// narrowing is active.
const nearestCandidates = 8

// CandidateIndex narrows the candidate set for large stores.
type CandidateIndex interface {
	Nearest(ctx context.Context, query []float32, k int) ([]database.Identity, error)
}

// Deps are the collaborators of the service.
type Deps struct {
	Store    database.IdentityWriter
	Embedder embedder.Embedder
	Ledger   database.EventAppender
	// Index is optional. When set and the store holds at least
	// Options.IndexMin identities, matching only considers its neighbours.
	Index   CandidateIndex
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	Clock   func() time.Time
}

type Options struct {
	Threshold       float64
	IndexMin        int
	SnapshotMaxSize int
	Model           string
}

// Service implements enrollment and verification.
type Service struct {
	store    database.IdentityWriter
	embedder embedder.Embedder
	ledger   database.EventAppender
	index    CandidateIndex
	matcher  *facematch.Matcher
	log      *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	opts     Options
}

func NewService(d Deps, o Options) *Service {
	s := &Service{
		store:    d.Store,
		embedder: d.Embedder,
		ledger:   d.Ledger,
		index:    d.Index,
		matcher:  facematch.NewMatcher(o.Threshold),
		log:      d.Logger,
		metrics:  d.Metrics,
		now:      d.Clock,
		opts:     o,
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Threshold returns the acceptance threshold in use.
func (s *Service) Threshold() float64 {
	return s.matcher.Threshold()
}

// Identities lists enrolled identities in name order.
func (s *Service) Identities(ctx context.Context) ([]database.Identity, error) {
	ids, err := s.store.ListIdentities(ctx)
	if err != nil {
		return nil, s.storageFailure("list identities", err)
	}
	s.metrics.SetIdentities(len(ids))
	return ids, nil
}

// Snapshot returns the stored reference image for name.
func (s *Service) Snapshot(ctx context.Context, name string) ([]byte, error) {
	snap, err := s.store.GetSnapshot(ctx, facematch.NormalizeName(name))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
		return nil, s.storageFailure("get snapshot", err)
	}
	return snap, nil
}

func (s *Service) embed(ctx context.Context, f frame.Frame) ([]embedder.Face, error) {
	start := time.Now()
	faces, err := s.embedder.DetectAndEmbed(ctx, f)
	s.metrics.EmbedderDuration(time.Since(start).Seconds())
	if err != nil {
		s.log.Error("embedder request failed", "kind", KindEmbedder.String(), "error", err)
		return nil, wrap(ErrEmbedderFailure, err)
	}
	return faces, nil
}

// candidates returns the identities a face is compared against, in name order.
// Above IndexMin identities the set is narrowed through the HNSW index. Its
// recall is approximate: the exact nearest identity is usually but not
// always among the candidates, so a rare face may be reported unknown where
// a full scan would match it.
func (s *Service) candidates(ctx context.Context, all []database.Identity, query []float32) []database.Identity {
	if s.index == nil || s.opts.IndexMin <= 0 || len(all) < s.opts.IndexMin {
		return all
	}
	near, err := s.index.Nearest(ctx, query, nearestCandidates)
	if err != nil {
		s.log.Warn("candidate index unavailable, falling back to full scan", "error", err)
		return all
	}
	slices.SortFunc(near, func(a, b database.Identity) int {
		return strings.Compare(a.Name, b.Name)
	})
	return near
}

func (s *Service) storageFailure(op string, err error) error {
	s.log.Error("storage operation failed", "kind", KindStorage.String(), "op", op, "error", err)
	return wrap(ErrStorageFailure, err)
}
