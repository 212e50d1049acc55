// Package store persists the vulnerabilities that have already been alerted.
// The store is append-only: a record is written once and never updated.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/ethanolivertroy/cve-watch/internal/models"
)

// ErrUnavailable wraps failures to reach the backing storage
var ErrUnavailable = errors.New("dedup store unavailable")

// InsertResult is the outcome of a compare-and-insert
type InsertResult int

const (
	Inserted InsertResult = iota
	AlreadyPresent
)

func (r InsertResult) String() string {
	if r == Inserted {
		return "inserted"
	}
	return "already-present"
}

// Store is a durable set of vulnerabilities keyed by ID
type Store interface {
	// Exists reports whether id has been stored before
	Exists(ctx context.Context, id string) (bool, error)

	// Insert stores v unless its ID is already present. A duplicate is
	// reported through the result, never as an error.
	Insert(ctx context.Context, v models.Vulnerability) (InsertResult, error)

	// List returns stored records, most recently published first.
	// A non-positive limit returns everything.
	List(ctx context.Context, limit int) ([]models.Vulnerability, error)

	Close() error
}

// Open connects to the configured backend, retrying briefly so that a
// locked file or a database that is still starting does not fail the run.
func Open(ctx context.Context, config *models.Config, logger *zap.Logger) (Store, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 2 * config.Timeout

	var s Store
	attempt := 0
	op := func() error {
		attempt++
		var err error
		s, err = open(ctx, config)
		if err != nil {
			logger.Warn("Store not ready", zap.String("driver", config.Store.Driver), zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	logger.Debug("Store opened", zap.String("driver", config.Store.Driver), zap.String("location", redact(config.Store)))
	return s, nil
}

func open(ctx context.Context, config *models.Config) (Store, error) {
	switch config.Store.Driver {
	case models.StoreSQLite:
		return NewSQLiteStore(config.Store.Path)
	case models.StoreBolt:
		return NewBoltStore(config.Store.Path, config.Timeout)
	case models.StorePostgres:
		return NewPostgresStore(ctx, config.Store.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", config.Store.Driver)
	}
}

// redact hides credentials embedded in connection URLs
func redact(c models.StoreConfig) string {
	if c.Driver == models.StorePostgres {
		return "postgres"
	}
	return c.Path
}
