// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package readyset implements the deduplicated set of expanded, not-yet-
// assigned work units.
package readyset

import (
	"sync"

	"github.com/kraklabs/hlid/pkg/workunit"
)

// Set is a concurrency-safe, unordered collection of work units keyed by
// their joint identity. Insertion of an already-present unit is a no-op.
type Set struct {
	mu    sync.Mutex
	units map[workunit.Key]workunit.Unit
}

// New returns an empty Set.
func New() *Set {
	return &Set{units: make(map[workunit.Key]workunit.Unit)}
}

// Insert adds u if not already present, reporting whether it was added.
func (s *Set) Insert(u workunit.Unit) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.units[u.Key()]; ok {
		return false
	}
	s.units[u.Key()] = u
	return true
}

// Remove deletes u if present, reporting whether it was present.
func (s *Set) Remove(u workunit.Unit) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.units[u.Key()]; !ok {
		return false
	}
	delete(s.units, u.Key())
	return true
}

// RemoveKey deletes the unit with the given key, if present.
func (s *Set) RemoveKey(k workunit.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.units[k]; !ok {
		return false
	}
	delete(s.units, k)
	return true
}

// Len returns the number of units currently held.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.units)
}

// Empty reports whether the set holds no units.
func (s *Set) Empty() bool {
	return s.Len() == 0
}

// Assign removes up to n units from the set and returns them, used to fill
// an assignment batch from the ready set. Order among returned units is
// unspecified (the set is unordered).
func (s *Set) Assign(n int) []workunit.Unit {
	if n <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]workunit.Unit, 0, n)
	for k, u := range s.units {
		if len(out) >= n {
			break
		}
		out = append(out, u)
		delete(s.units, k)
	}
	return out
}

// Clear discards all units, used on termination.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units = make(map[workunit.Key]workunit.Unit)
}

// Snapshot returns a copy of all units currently held, for observers.
func (s *Set) Snapshot() []workunit.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]workunit.Unit, 0, len(s.units))
	for _, u := range s.units {
		out = append(out, u)
	}
	return out
}
