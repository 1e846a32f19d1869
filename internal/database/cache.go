package database

import (
	"context"
	"fmt"
	"sync"
)

// CachedStore memoises ListIdentities of the wrapped store and keeps an HNSW
// index over the enrolled vectors. Every successful Put through the wrapper
// invalidates both. When the wrapped store is a Revisioner, every read
// compares its revision and reloads on change, so enrollments made by other
// processes are picked up; otherwise they are seen after Invalidate.
type CachedStore struct {
	IdentityWriter

	dim int

	mu    sync.RWMutex
	valid bool
	rev   string
	ids   []Identity
	index *HNSWIndex
}

// NewCachedStore wraps store. dim is the embedder's vector dimension.
func NewCachedStore(store IdentityWriter, dim int) *CachedStore {
	return &CachedStore{IdentityWriter: store, dim: dim, index: NewHNSWIndex()}
}

// ListIdentities returns the cached snapshot, loading it when stale.
func (c *CachedStore) ListIdentities(ctx context.Context) ([]Identity, error) {
	var out []Identity
	err := c.read(ctx, func() { out = cloneIdentities(c.ids) })
	if err != nil {
		return nil, err
	}
	return out, nil
}

// read runs fn under the read lock on a snapshot that is current as of the
// wrapped store's revision.
func (c *CachedStore) read(ctx context.Context, fn func()) error {
	rev, err := c.revision(ctx)
	if err != nil {
		return err
	}

	c.mu.RLock()
	if c.valid && c.rev == rev {
		fn()
		c.mu.RUnlock()
		return nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid || c.rev != rev {
		// The revision is read before the list, so a concurrent write only
		// causes one more reload later.
		ids, err := c.IdentityWriter.ListIdentities(ctx)
		if err != nil {
			return fmt.Errorf("loading identities: %w", err)
		}
		c.ids = ids
		c.index.BuildFromIdentities(cloneIdentities(ids), c.dim)
		c.rev = rev
		c.valid = true
	}
	fn()
	return nil
}

func (c *CachedStore) revision(ctx context.Context) (string, error) {
	r, ok := c.IdentityWriter.(Revisioner)
	if !ok {
		return "", nil
	}
	rev, err := r.Revision(ctx)
	if err != nil {
		return "", fmt.Errorf("checking identities revision: %w", err)
	}
	return rev, nil
}

// Put writes through to the wrapped store and invalidates the cache on success.
func (c *CachedStore) Put(ctx context.Context, id Identity, snapshot []byte) error {
	if err := c.IdentityWriter.Put(ctx, id, snapshot); err != nil {
		return err //nolint:wrapcheck // sentinel errors must pass through unchanged
	}
	c.Invalidate()
	return nil
}

// Invalidate drops the cached snapshot and index.
func (c *CachedStore) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
	c.ids = nil
}

// Nearest returns up to k identities closest to query using the HNSW index.
// It over-fetches so the caller's exact distance check still sees the best
// candidates in the usual case; HNSW recall is approximate, not guaranteed.
func (c *CachedStore) Nearest(ctx context.Context, query []float32, k int) ([]Identity, error) {
	searchK := max(k*HNSWSearchMultiplier, HNSWMinSearch)
	var (
		ids []Identity
		err error
	)
	if rerr := c.read(ctx, func() { ids, _, err = c.index.Search(query, searchK) }); rerr != nil {
		return nil, rerr
	}
	if err != nil {
		return nil, fmt.Errorf("HNSW search: %w", err)
	}
	return ids, nil
}

// Len returns the number of cached identities (loading if necessary).
func (c *CachedStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.read(ctx, func() { n = len(c.ids) }); err != nil {
		return 0, err
	}
	return n, nil
}

func cloneIdentities(ids []Identity) []Identity {
	out := make([]Identity, len(ids))
	for i, id := range ids {
		id.Embedding = CopyVector(id.Embedding)
		out[i] = id
	}
	return out
}
