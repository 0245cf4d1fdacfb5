// Package store persists the signboard collection as a full snapshot.
//
// Every Save replaces the previous snapshot as a whole. Load never fails:
// a missing, unreadable or corrupt snapshot loads as an empty collection,
// and loaded records are sanitized before they are returned. Initialized
// tells a first-ever launch apart from a collection the user emptied.
package store

import (
	"context"
	"fmt"
	"log"

	"github.com/dyluth/signboard/internal/config"
	"github.com/dyluth/signboard/pkg/signboard"
)

// Store is the persistence contract used by the registry.
type Store interface {
	// Load returns the persisted collection in order, or an empty slice.
	Load(ctx context.Context) []signboard.Signboard

	// Initialized reports whether a snapshot was ever saved, even an empty one.
	Initialized(ctx context.Context) bool

	// Save atomically replaces the persisted collection and sets the marker.
	Save(ctx context.Context, items []signboard.Signboard) error

	// Close releases the backend.
	Close() error
}

// Open creates the store selected by cfg.Backend for session.
// cfg must have been validated.
func Open(cfg config.StoreConfig, session string) (Store, error) {
	switch cfg.Backend {
	case config.StoreFile:
		fs := NewFile(cfg.Path)
		log.Printf("[Store] Snapshot file: %s", fs.Path())
		return fs, nil
	case config.StoreRedis:
		return NewRedisFromURL(cfg.RedisURL, session)
	case config.StoreSQLite:
		return OpenSQLite(cfg.Path, session)
	case config.StoreMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}
