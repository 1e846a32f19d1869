// Package mock provides an in-memory Embedder for tests.
package mock

import (
	"context"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/frame"
)

// MockEmbedder returns faces registered per frame payload.
type MockEmbedder struct {
	mu    sync.Mutex
	faces map[string][]embedder.Face

	// Error injection
	Err error

	Calls int
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{faces: make(map[string][]embedder.Face)}
}

// SetFaces registers the embeddings returned for a frame with this data.
func (m *MockEmbedder) SetFaces(data []byte, vectors ...[]float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	faces := make([]embedder.Face, len(vectors))
	for i, v := range vectors {
		faces[i] = embedder.Face{Index: i, Embedding: v, DetScore: 1}
	}
	m.faces[string(data)] = faces
}

func (m *MockEmbedder) DetectAndEmbed(_ context.Context, f frame.Frame) ([]embedder.Face, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.faces[string(f.Data)], nil
}
