package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ethanolivertroy/cve-watch/internal/models"
)

// PostgresStore implements Store on a shared PostgreSQL database, which
// lets schedulers on several hosts share one dedup history.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and creates the schema if absent
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS vulns (
			id TEXT PRIMARY KEY,
			published_at TIMESTAMPTZ NOT NULL,
			severity_score DOUBLE PRECISION NOT NULL,
			severity_vector TEXT NOT NULL,
			description TEXT NOT NULL,
			"references" TEXT NOT NULL,
			source TEXT NOT NULL
		)`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

// Exists reports whether id is stored
func (p *PostgresStore) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := p.pool.QueryRow(ctx, `SELECT 1 FROM vulns WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", id, err)
	}
	return true, nil
}

// Insert stores v unless its ID already exists
func (p *PostgresStore) Insert(ctx context.Context, v models.Vulnerability) (InsertResult, error) {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO vulns (id, published_at, severity_score, severity_vector, description, "references", source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, v.ID, v.PublishedAt.UTC(), v.Score, v.Vector, v.Description, joinReferences(v.References), v.Source)
	if err != nil {
		return AlreadyPresent, fmt.Errorf("failed to insert %s: %w", v.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return AlreadyPresent, nil
	}
	return Inserted, nil
}

// List retrieves stored records, newest publication first
func (p *PostgresStore) List(ctx context.Context, limit int) ([]models.Vulnerability, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, published_at, severity_score, severity_vector, description, "references", source
		FROM vulns ORDER BY published_at DESC, id LIMIT $1
	`, limitArg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.Vulnerability
	for rows.Next() {
		var v models.Vulnerability
		var refs string
		if err := rows.Scan(&v.ID, &v.PublishedAt, &v.Score, &v.Vector, &v.Description, &refs, &v.Source); err != nil {
			return nil, err
		}
		v.PublishedAt = v.PublishedAt.UTC()
		v.References = splitReferences(refs)
		results = append(results, v)
	}
	return results, rows.Err()
}
