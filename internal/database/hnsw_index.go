package database

import (
	"errors"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex wraps the HNSW graph for nearest-identity search.
type HNSWIndex struct {
	graph      *hnsw.Graph[string]
	dim        int
	idToEntity map[string]*Identity // Maps HNSW node key (identity name) to identity
	mu         sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		idToEntity: make(map[string]*Identity),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

// BuildFromIdentities builds the index from a slice of identities.
// Only vectors of length dim are indexed; the graph requires a single dimension.
func (h *HNSWIndex) BuildFromIdentities(ids []Identity, dim int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dim = dim
	h.idToEntity = make(map[string]*Identity, len(ids))
	h.graph = nil

	if len(ids) == 0 || dim <= 0 {
		return
	}

	g := newGraph()
	for i := range ids {
		id := &ids[i]
		if len(id.Embedding) != dim {
			continue
		}
		g.Add(hnsw.MakeNode(id.Name, id.Embedding))
		h.idToEntity[id.Name] = id
	}

	if len(h.idToEntity) > 0 {
		h.graph = g
	}
}

// Search finds the k nearest identities to the query embedding.
// Returns identities and their exact Euclidean distances.
func (h *HNSWIndex) Search(query []float32, k int) ([]Identity, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, nil, errors.New("index not initialized")
	}
	if len(query) != h.dim {
		return nil, nil, errors.New("query dimension does not match index")
	}

	neighbors := h.graph.Search(query, k)

	out := make([]Identity, 0, len(neighbors))
	distances := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		id, ok := h.idToEntity[n.Key]
		if !ok {
			continue
		}
		cp := *id
		cp.Embedding = CopyVector(id.Embedding)
		out = append(out, cp)
		distances = append(distances, EuclideanDistance(query, n.Value))
	}

	return out, distances, nil
}

// Count returns the number of indexed identities.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToEntity)
}

// IsEmpty returns true if the index has no graph.
func (h *HNSWIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil
}
