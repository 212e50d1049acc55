package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/timshannon/bolthold"
	bolt "go.etcd.io/bbolt"

	"github.com/ethanolivertroy/cve-watch/internal/models"
)

// BoltStore implements Store on a bbolt file through bolthold
type BoltStore struct {
	store *bolthold.Store
}

// NewBoltStore opens the bolt file at path. Another process holding the file
// makes the open fail after timeout instead of blocking.
func NewBoltStore(path string, timeout time.Duration) (*BoltStore, error) {
	s, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bolt.Options{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store: %w", err)
	}
	return &BoltStore{store: s}, nil
}

// Close closes the bolt file
func (b *BoltStore) Close() error {
	return b.store.Close()
}

// Exists reports whether id is stored
func (b *BoltStore) Exists(ctx context.Context, id string) (bool, error) {
	var v models.Vulnerability
	err := b.store.Get(id, &v)
	if errors.Is(err, bolthold.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", id, err)
	}
	return true, nil
}

// Insert stores v in a single write transaction unless the key exists
func (b *BoltStore) Insert(ctx context.Context, v models.Vulnerability) (InsertResult, error) {
	v.PublishedAt = v.PublishedAt.UTC()
	v.KEV = nil
	err := b.store.Insert(v.ID, v)
	if errors.Is(err, bolthold.ErrKeyExists) {
		return AlreadyPresent, nil
	}
	if err != nil {
		return AlreadyPresent, fmt.Errorf("failed to insert %s: %w", v.ID, err)
	}
	return Inserted, nil
}

// List retrieves stored records, newest publication first
func (b *BoltStore) List(ctx context.Context, limit int) ([]models.Vulnerability, error) {
	var results []models.Vulnerability
	if err := b.store.Find(&results, nil); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if !results[i].PublishedAt.Equal(results[j].PublishedAt) {
			return results[i].PublishedAt.After(results[j].PublishedAt)
		}
		return results[i].ID < results[j].ID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
