// Package filestore implements the identity store as one directory per identity.
//
// Layout:
//
//	<root>/<escaped name>/identity.json   versioned IdentityRecord
//	<root>/<escaped name>/snapshot.png    optional reference image
//
// A record is staged in a hidden temp directory and published with a single
// directory rename, so readers see either the complete record or nothing.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/renameio"
	"github.com/kozaktomas/face-attendance/internal/database"
)

const (
	recordFile   = "identity.json"
	snapshotFile = "snapshot.png"
	stagingGlob  = ".staging-*"
)

// Store is a file-backed database.IdentityWriter.
type Store struct {
	root string
	mu   sync.Mutex // serialises Put within the process
}

// New returns a store rooted at dir. The directory is created on first Put.
func New(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) identityDir(name string) (string, error) {
	if name == "" {
		return "", errors.New("empty identity key")
	}
	escaped := url.PathEscape(name)
	// Leading dots are reserved for staging directories and "." / "..".
	if strings.HasPrefix(escaped, ".") {
		escaped = "%2E" + escaped[1:]
	}
	return filepath.Join(s.root, escaped), nil
}

// ListIdentities reads every record, ordered by name.
func (s *Store) ListIdentities(ctx context.Context) ([]database.Identity, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store directory: %w", err)
	}

	ids := make([]database.Identity, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("list identities: %w", err)
		}

		id, err := s.readRecord(filepath.Join(s.root, e.Name()))
		if errors.Is(err, os.ErrNotExist) {
			continue // directory without a record was not published by Put
		}
		if err != nil {
			return nil, err
		}

		if want, _ := url.PathUnescape(e.Name()); want != id.Name {
			return nil, fmt.Errorf("%w: record %q stored under %q", database.ErrUnsupportedRecord, id.Name, e.Name())
		}
		ids = append(ids, id)
	}

	slices.SortFunc(ids, func(a, b database.Identity) int { return strings.Compare(a.Name, b.Name) })
	return ids, nil
}

func (s *Store) readRecord(dir string) (database.Identity, error) {
	data, err := os.ReadFile(filepath.Join(dir, recordFile)) //nolint:gosec // path is built from the store root
	if err != nil {
		return database.Identity{}, fmt.Errorf("read identity record: %w", err)
	}

	var rec database.IdentityRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return database.Identity{}, fmt.Errorf("%w: %s: %v", database.ErrUnsupportedRecord, dir, err)
	}

	id, err := rec.Identity()
	if err != nil {
		return database.Identity{}, fmt.Errorf("%s: %w", dir, err)
	}
	return id, nil
}

// Contains reports whether a record with exactly this name exists.
func (s *Store) Contains(ctx context.Context, name string) (bool, error) {
	dir, err := s.identityDir(name)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(filepath.Join(dir, recordFile))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat identity record: %w", err)
	}
	return true, nil
}

// GetSnapshot returns the stored PNG snapshot.
func (s *Store) GetSnapshot(ctx context.Context, name string) ([]byte, error) {
	dir, err := s.identityDir(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, snapshotFile)) //nolint:gosec // path is built from the store root
	if errors.Is(err, os.ErrNotExist) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// Put stages the record and snapshot and publishes them with one rename.
func (s *Store) Put(ctx context.Context, id database.Identity, snapshot []byte) error {
	dir, err := s.identityDir(id.Name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.root, 0o750); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	switch _, err := os.Stat(dir); {
	case err == nil:
		if err := s.clearStale(dir); err != nil {
			return err
		}
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("stat identity directory: %w", err)
	}

	staging, err := os.MkdirTemp(s.root, stagingGlob)
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	published := false
	defer func() {
		if !published {
			_ = os.RemoveAll(staging)
		}
	}()

	data, err := json.MarshalIndent(database.NewIdentityRecord(id), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal identity record: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(staging, recordFile), data, 0o640); err != nil {
		return fmt.Errorf("write identity record: %w", err)
	}
	if len(snapshot) > 0 {
		if err := renameio.WriteFile(filepath.Join(staging, snapshotFile), snapshot, 0o640); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
	}

	// rename(2) refuses to replace a non-empty directory, which closes the
	// race with another process publishing the same name.
	if err := os.Rename(staging, dir); err != nil {
		if hasRecord(dir) {
			return database.ErrAlreadyExists
		}
		return fmt.Errorf("publish identity: %w", err)
	}
	published = true

	if err := syncDir(s.root); err != nil {
		return fmt.Errorf("sync store directory: %w", err)
	}
	return nil
}

func hasRecord(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, recordFile))
	return err == nil
}

// clearStale moves aside an identity directory that holds no record, as left
// by an interrupted copy or a manual cleanup. It returns ErrAlreadyExists if
// the directory holds a record, including one published concurrently.
func (s *Store) clearStale(dir string) error {
	if hasRecord(dir) {
		return database.ErrAlreadyExists
	}

	trash, err := os.MkdirTemp(s.root, stagingGlob)
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(trash) //nolint:errcheck

	moved := filepath.Join(trash, "stale")
	if err := os.Rename(dir, moved); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("move stale identity directory: %w", err)
	}
	if hasRecord(moved) {
		// Another process published between the check and the move.
		if err := os.Rename(moved, dir); err != nil {
			return fmt.Errorf("restore identity directory: %w", err)
		}
		return database.ErrAlreadyExists
	}
	return nil
}

// Revision combines the root modification time with the number of identity
// directories. Publishing or removing an identity changes both.
func (s *Store) Revision(ctx context.Context) (string, error) {
	info, err := os.Stat(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("stat store directory: %w", err)
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return "", fmt.Errorf("read store directory: %w", err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			n++
		}
	}
	return fmt.Sprintf("%d/%d", info.ModTime().UnixNano(), n), nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir) //nolint:gosec // store root from config
	if err != nil {
		return fmt.Errorf("open directory: %w", err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return fmt.Errorf("fsync directory: %w", err)
	}
	return nil
}
