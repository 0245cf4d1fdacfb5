package store

import (
	"context"
	"sync"

	"github.com/dyluth/signboard/pkg/signboard"
)

// MemoryStore keeps the snapshot in process memory. It is used by tests and
// by hosts that do not need to survive a restart.
type MemoryStore struct {
	mu          sync.Mutex
	items       []signboard.Signboard
	initialized bool
	saves       int
}

// NewMemory returns an empty, uninitialized store.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) []signboard.Signboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return signboard.Sanitize(s.items)
}

func (s *MemoryStore) Initialized(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *MemoryStore) Save(ctx context.Context, items []signboard.Signboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]signboard.Signboard(nil), items...)
	s.initialized = true
	s.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *MemoryStore) Close() error {
	return nil
}
