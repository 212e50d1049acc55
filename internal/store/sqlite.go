package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/ethanolivertroy/cve-watch/internal/models"
)

// publishedLayout keeps microsecond precision at a fixed width so that text
// ordering matches time ordering
const publishedLayout = "2006-01-02T15:04:05.000000"

// publishedReadLayout also reads rows written with fewer fraction digits
const publishedReadLayout = "2006-01-02T15:04:05.999999"

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at path and creates the schema if absent
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS vulns (
		id TEXT PRIMARY KEY,
		published_at TEXT NOT NULL,
		severity_score REAL NOT NULL,
		severity_vector TEXT NOT NULL,
		description TEXT NOT NULL,
		"references" TEXT NOT NULL,
		source TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Exists reports whether id is stored
func (s *SQLiteStore) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM vulns WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", id, err)
	}
	return true, nil
}

// Insert stores v unless its ID already exists
func (s *SQLiteStore) Insert(ctx context.Context, v models.Vulnerability) (InsertResult, error) {
	query := `INSERT INTO vulns (id, published_at, severity_score, severity_vector, description, "references", source)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, query,
		v.ID, v.PublishedAt.UTC().Format(publishedLayout), v.Score, v.Vector,
		v.Description, joinReferences(v.References), v.Source)
	if err != nil {
		return AlreadyPresent, fmt.Errorf("failed to insert %s: %w", v.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return AlreadyPresent, fmt.Errorf("failed to insert %s: %w", v.ID, err)
	}
	if n == 0 {
		return AlreadyPresent, nil
	}
	return Inserted, nil
}

// List retrieves stored records, newest publication first
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]models.Vulnerability, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT id, published_at, severity_score, severity_vector, description, "references", source
	FROM vulns ORDER BY published_at DESC, id LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.Vulnerability
	for rows.Next() {
		var v models.Vulnerability
		var published, refs string
		if err := rows.Scan(&v.ID, &published, &v.Score, &v.Vector, &v.Description, &refs, &v.Source); err != nil {
			return nil, err
		}
		v.PublishedAt, _ = time.ParseInLocation(publishedReadLayout, published, time.UTC)
		v.References = splitReferences(refs)
		results = append(results, v)
	}
	return results, rows.Err()
}

func joinReferences(refs []string) string {
	return strings.Join(refs, "\n")
}

func splitReferences(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
