package database

// HNSW index parameters for face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// so the exact distance check still sees the true nearest neighbours.
	HNSWSearchMultiplier = 3

	// HNSWMinSearch is the minimum number of candidates requested from HNSW.
	HNSWMinSearch = 32
)
