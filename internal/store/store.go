// Package store holds the persistence backends for farms, prediction records and profiles.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/i474232898/crop-yield-service/internal/farm"
	"github.com/i474232898/crop-yield-service/internal/prediction"
	"github.com/i474232898/crop-yield-service/internal/profile"
)

// Store is the full persistence contract every backend satisfies.
type Store interface {
	farm.Store
	prediction.Store
	profile.Store

	// StalePending counts pending prediction records created before cutoff, across owners.
	StalePending(ctx context.Context, cutoff time.Time) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*GormStore)(nil)
)

// Open returns the backend selected by driver: memory, sqlite or postgres.
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite", "postgres":
		return OpenGorm(driver, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
