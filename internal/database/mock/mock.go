// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// MockIdentityStore is an in-memory implementation of database.IdentityWriter
type MockIdentityStore struct {
	mu         sync.RWMutex
	identities map[string]database.Identity
	snapshots  map[string][]byte

	// Error injection
	ListError     error
	ContainsError error
	SnapshotError error
	PutError      error

	// PutCalls counts successful and failed Put invocations
	PutCalls int
}

// NewMockIdentityStore creates a new mock identity store
func NewMockIdentityStore() *MockIdentityStore {
	return &MockIdentityStore{
		identities: make(map[string]database.Identity),
		snapshots:  make(map[string][]byte),
	}
}

// AddIdentity adds an identity to the mock store, bypassing duplicate checks
func (m *MockIdentityStore) AddIdentity(id database.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id.Embedding = database.CopyVector(id.Embedding)
	id.Dim = len(id.Embedding)
	m.identities[id.Name] = id
}

// ListIdentities returns all identities ordered by name
func (m *MockIdentityStore) ListIdentities(ctx context.Context) ([]database.Identity, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.identities))
	for name := range m.identities {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]database.Identity, 0, len(names))
	for _, name := range names {
		id := m.identities[name]
		id.Embedding = database.CopyVector(id.Embedding)
		out = append(out, id)
	}
	return out, nil
}

// Contains checks if an identity exists
func (m *MockIdentityStore) Contains(ctx context.Context, name string) (bool, error) {
	if m.ContainsError != nil {
		return false, m.ContainsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.identities[name]
	return ok, nil
}

// GetSnapshot returns the stored snapshot
func (m *MockIdentityStore) GetSnapshot(ctx context.Context, name string) ([]byte, error) {
	if m.SnapshotError != nil {
		return nil, m.SnapshotError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[name]
	if !ok {
		return nil, database.ErrNotFound
	}
	return slices.Clone(snap), nil
}

// Put stores a new identity
func (m *MockIdentityStore) Put(ctx context.Context, id database.Identity, snapshot []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls++

	if m.PutError != nil {
		return m.PutError
	}
	if _, ok := m.identities[id.Name]; ok {
		return database.ErrAlreadyExists
	}

	id.Embedding = database.CopyVector(id.Embedding)
	id.Dim = len(id.Embedding)
	m.identities[id.Name] = id
	if len(snapshot) > 0 {
		m.snapshots[id.Name] = slices.Clone(snapshot)
	}
	return nil
}

// Get returns a stored identity for assertions
func (m *MockIdentityStore) Get(name string) (database.Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.identities[name]
	id.Embedding = database.CopyVector(id.Embedding)
	return id, ok
}

// Count returns the number of stored identities
func (m *MockIdentityStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.identities)
}

// MockLedger is an in-memory implementation of database.EventAppender and database.EventReader
type MockLedger struct {
	mu     sync.Mutex
	events []database.AttendanceEvent

	// Error injection. AppendError is returned once FailAfter events are stored.
	AppendError error
	FailAfter   int
	EventsError error
}

// NewMockLedger creates a new mock ledger
func NewMockLedger() *MockLedger {
	return &MockLedger{}
}

// Append records an event
func (m *MockLedger) Append(ctx context.Context, event database.AttendanceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendError != nil && len(m.events) >= m.FailAfter {
		return m.AppendError
	}
	m.events = append(m.events, event)
	return nil
}

// Events returns all recorded events in append order
func (m *MockLedger) Events(ctx context.Context) ([]database.AttendanceEvent, error) {
	if m.EventsError != nil {
		return nil, m.EventsError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events), nil
}

// Len returns the number of recorded events
func (m *MockLedger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
