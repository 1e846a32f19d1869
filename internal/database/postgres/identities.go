package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/pgvector/pgvector-go"
)

// IdentityRepository provides PostgreSQL-backed identity storage.
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new PostgreSQL identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// ListIdentities returns all identities ordered by name.
func (r *IdentityRepository) ListIdentities(ctx context.Context) ([]database.Identity, error) {
	// REPEATABLE READ gives a consistent snapshot while enrollments commit concurrently.
	tx, err := r.pool.DB().BeginTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT name, embedding, dim, model, schema_version, created_at
		FROM identities
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var ids []database.Identity
	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}

	return ids, nil
}

func scanIdentity(rows *sql.Rows) (database.Identity, error) {
	var (
		rec database.IdentityRecord
		vec pgvector.Vector
	)
	if err := rows.Scan(&rec.Name, &vec, &rec.Dim, &rec.Model, &rec.Version, &rec.CreatedAt); err != nil {
		return database.Identity{}, fmt.Errorf("scan identity: %w", err)
	}
	rec.Schema = database.IdentitySchema
	rec.Embedding = vec.Slice()

	id, err := rec.Identity()
	if err != nil {
		return database.Identity{}, fmt.Errorf("identity %q: %w", rec.Name, err)
	}
	return id, nil
}

// Contains checks if an identity with this exact name exists.
func (r *IdentityRepository) Contains(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM identities WHERE name = $1)", name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check identity exists: %w", err)
	}
	return exists, nil
}

// GetSnapshot returns the stored reference image.
func (r *IdentityRepository) GetSnapshot(ctx context.Context, name string) ([]byte, error) {
	var snapshot []byte
	err := r.pool.QueryRow(ctx, "SELECT snapshot FROM identities WHERE name = $1", name).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	if len(snapshot) == 0 {
		return nil, database.ErrNotFound
	}
	return snapshot, nil
}

// Put inserts a new identity. The primary key makes the duplicate check atomic:
// a conflicting insert affects no rows and nothing is changed.
func (r *IdentityRepository) Put(ctx context.Context, id database.Identity, snapshot []byte) error {
	rec := database.NewIdentityRecord(id)

	var snap any
	if len(snapshot) > 0 {
		snap = snapshot
	}

	result, err := r.pool.Exec(ctx, `
		INSERT INTO identities (name, embedding, dim, model, snapshot, schema_version, created_at)
		VALUES ($1, $2::vector, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO NOTHING
	`,
		rec.Name,
		pgvector.NewVector(rec.Embedding),
		rec.Dim,
		rec.Model,
		snap,
		rec.Version,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert identity rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrAlreadyExists
	}
	return nil
}

// Count returns the number of enrolled identities.
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// Revision returns the identity count and the newest enrollment time.
// Identities are never updated in place, so the pair changes on every insert.
func (r *IdentityRepository) Revision(ctx context.Context) (string, error) {
	var (
		count  int64
		newest sql.NullTime
	)
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*), MAX(created_at) FROM identities").Scan(&count, &newest)
	if err != nil {
		return "", fmt.Errorf("identities revision: %w", err)
	}
	if !newest.Valid {
		return fmt.Sprintf("%d", count), nil
	}
	return fmt.Sprintf("%d/%d", count, newest.Time.UnixNano()), nil
}
