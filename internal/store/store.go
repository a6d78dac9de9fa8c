// Package store holds the analysis snapshot currently under inspection.
package store

import (
	"errors"
	"sync/atomic"

	"partners/internal"
)

// Cache persists the single cached snapshot between runs.
type Cache interface {
	SaveSnapshot(snap *internal.Snapshot) error
	LoadSnapshot() (*internal.Snapshot, error)
	ClearSnapshot() error
}

// Store swaps whole snapshots. Readers get either the previous or the next
// snapshot, never a mix, and there is no way to edit a record in place.
type Store struct {
	current atomic.Pointer[internal.Snapshot]
	cache   Cache
}

// New returns an empty store. cache may be nil for a purely in-memory store.
func New(cache Cache) *Store {
	return &Store{cache: cache}
}

// Hydrate loads the cached snapshot, if any, into memory.
func (s *Store) Hydrate() error {
	if s.cache == nil {
		return nil
	}
	snap, err := s.cache.LoadSnapshot()
	if err != nil {
		return err
	}
	s.current.Store(snap)
	return nil
}

// Set replaces the current snapshot. The in-memory swap happens even when
// the cache write fails; the error is still returned.
func (s *Store) Set(snap *internal.Snapshot) error {
	if snap == nil {
		return errors.New("store: nil snapshot, use Clear")
	}
	s.current.Store(snap)
	if s.cache != nil {
		return s.cache.SaveSnapshot(snap)
	}
	return nil
}

func (s *Store) Get() (*internal.Snapshot, bool) {
	snap := s.current.Load()
	return snap, snap != nil
}

func (s *Store) Clear() error {
	s.current.Store(nil)
	if s.cache != nil {
		return s.cache.ClearSnapshot()
	}
	return nil
}
