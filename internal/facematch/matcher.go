// Package facematch decides whether a face embedding belongs to an enrolled
// identity and normalises the names identities are stored under.
package facematch

import (
	"math"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// DefaultThreshold is the calibrated tolerance of 128-d dlib embeddings.
const DefaultThreshold = 0.6

// ResultKind says which variant a MatchResult holds.
type ResultKind int

const (
	NoFaceDetected ResultKind = iota
	NoMatch
	Identified
)

func (k ResultKind) String() string {
	switch k {
	case Identified:
		return "identified"
	case NoMatch:
		return "no_match"
	default:
		return "no_face"
	}
}

// MatchResult is the outcome for one face. Name and Distance are set for
// Identified; BestDistance is the closest rejected distance for NoMatch and
// +Inf when no candidate was comparable.
type MatchResult struct {
	Kind         ResultKind
	Name         string
	Distance     float64
	BestDistance float64
}

// Matcher compares face embeddings against candidates by Euclidean distance.
type Matcher struct {
	threshold float64
}

// NewMatcher returns a Matcher accepting distances <= threshold.
// A non-positive threshold falls back to DefaultThreshold.
func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 || math.IsNaN(threshold) {
		threshold = DefaultThreshold
	}
	return &Matcher{threshold: threshold}
}

func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match picks the closest candidate within the threshold. Candidates are
// expected in store (name) order; on equal distance the earlier one wins.
// Candidates whose dimension differs from the query are skipped. A nil or
// empty query yields NoFaceDetected.
func (m *Matcher) Match(query []float32, candidates []database.Identity) MatchResult {
	if len(query) == 0 {
		return MatchResult{Kind: NoFaceDetected, BestDistance: math.Inf(1)}
	}

	best := -1
	bestDist := math.Inf(1)
	for i := range candidates {
		if len(candidates[i].Embedding) != len(query) {
			continue
		}
		d := database.EuclideanDistance(query, candidates[i].Embedding)
		if d < bestDist {
			best, bestDist = i, d
		}
	}

	if best < 0 || bestDist > m.threshold {
		return MatchResult{Kind: NoMatch, BestDistance: bestDist}
	}
	return MatchResult{
		Kind:         Identified,
		Name:         candidates[best].Name,
		Distance:     bestDist,
		BestDistance: bestDist,
	}
}
