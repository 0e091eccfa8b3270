// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package aborted implements the store of work units the engine failed on,
// bucketed by the memory cap at which they last failed.
package aborted

import (
	"sort"
	"sync"

	"github.com/kraklabs/hlid/pkg/workunit"
)

// Store is a mapping from memory cap (megabytes) to an ordered list of work
// units that failed at that cap. Buckets are held in a Go map; ExtractBelow
// and Summary visit caps in ascending order by sorting the keys on each
// call, while DrainAtOrAbove visits buckets in unspecified order.
type Store struct {
	mu    sync.Mutex
	byCap map[int][]workunit.Unit
	size  int
}

// New returns an empty Store.
func New() *Store {
	return &Store{byCap: make(map[int][]workunit.Unit)}
}

// Insert appends a unit to the bucket for the given memory cap, preserving
// arrival order within that bucket.
func (s *Store) Insert(u workunit.Unit, cap int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCap[cap] = append(s.byCap[cap], u)
	s.size++
}

// ExtractBelow removes and returns up to n work units whose failure cap was
// strictly less than cap, preserving FIFO within each bucket. Buckets are
// visited in ascending cap order, so the lowest-cap units are resurrected
// first.
func (s *Store) ExtractBelow(cap int, n int) []workunit.Unit {
	if n <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []workunit.Unit
	for _, c := range s.sortedCaps() {
		if len(result) >= n {
			break
		}
		if c >= cap {
			continue
		}
		bucket := s.byCap[c]
		take := n - len(result)
		if take > len(bucket) {
			take = len(bucket)
		}
		result = append(result, bucket[:take]...)
		remaining := bucket[take:]
		if len(remaining) == 0 {
			delete(s.byCap, c)
		} else {
			s.byCap[c] = remaining
		}
	}
	s.size -= len(result)
	return result
}

// DrainAtOrAbove removes and returns all work units whose failure cap was
// greater than or equal to cap. Used by the Giveup policy with
// cap = total_limit to select units that have exhausted every budget.
func (s *Store) DrainAtOrAbove(cap int) []workunit.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []workunit.Unit
	for c, bucket := range s.byCap {
		if c >= cap {
			result = append(result, bucket...)
			delete(s.byCap, c)
		}
	}
	s.size -= len(result)
	return result
}

// LowestNonemptyCap returns the smallest cap with a non-empty bucket, or
// zero if the store is empty.
func (s *Store) LowestNonemptyCap() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	lowest := 0
	for c, bucket := range s.byCap {
		if len(bucket) == 0 {
			continue
		}
		if lowest == 0 || c < lowest {
			lowest = c
		}
	}
	return lowest
}

// Summary returns the count of units at each non-empty cap, for observers.
func (s *Store) Summary() []CapCount {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CapCount
	for _, c := range s.sortedCaps() {
		if n := len(s.byCap[c]); n > 0 {
			out = append(out, CapCount{Cap: c, Count: n})
		}
	}
	return out
}

// CapCount pairs a memory cap with the number of aborted units at it.
type CapCount struct {
	Cap   int
	Count int
}

// Size returns the total number of units held across all buckets.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Empty reports whether the store holds no units.
func (s *Store) Empty() bool {
	return s.Size() == 0
}

// Clear discards all buckets, used on termination.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCap = make(map[int][]workunit.Unit)
	s.size = 0
}

// sortedCaps returns the store's cap keys in ascending order. Callers must
// hold mu.
func (s *Store) sortedCaps() []int {
	caps := make([]int, 0, len(s.byCap))
	for c := range s.byCap {
		caps = append(caps, c)
	}
	sort.Ints(caps)
	return caps
}
