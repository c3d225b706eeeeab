// Package schedule keeps the two time-ordered indices the lifecycle scheduler
// sweeps: auctions waiting to go live and auctions waiting to close.
package schedule

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// TimeIndex maps due time to auction id. Pops are atomic read-and-remove, so
// two sweepers never receive the same entry.
type TimeIndex interface {
	AddStart(ctx context.Context, at time.Time, auctionID string) error
	AddEnd(ctx context.Context, at time.Time, auctionID string) error
	PopDueStarts(ctx context.Context, now time.Time) ([]string, error)
	PopDueEnds(ctx context.Context, now time.Time) ([]string, error)
}

type entry struct {
	at        time.Time
	auctionID string
}

// sortedIndex holds entries ordered by (at, auctionID), one per auction.
type sortedIndex struct {
	entries []entry
	byID    map[string]time.Time
}

func newSortedIndex() *sortedIndex {
	return &sortedIndex{byID: make(map[string]time.Time)}
}

func less(a, b entry) bool {
	if a.at.Equal(b.at) {
		return a.auctionID < b.auctionID
	}
	return a.at.Before(b.at)
}

func (s *sortedIndex) search(e entry) int {
	return sort.Search(len(s.entries), func(i int) bool { return !less(s.entries[i], e) })
}

func (s *sortedIndex) add(at time.Time, auctionID string) {
	s.remove(auctionID)
	e := entry{at: at, auctionID: auctionID}
	s.entries = slices.Insert(s.entries, s.search(e), e)
	s.byID[auctionID] = at
}

func (s *sortedIndex) remove(auctionID string) bool {
	at, ok := s.byID[auctionID]
	if !ok {
		return false
	}
	i := s.search(entry{at: at, auctionID: auctionID})
	s.entries = slices.Delete(s.entries, i, i+1)
	delete(s.byID, auctionID)
	return true
}

// popDue removes and returns every entry with at <= now, earliest first.
func (s *sortedIndex) popDue(now time.Time) []string {
	n := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].at.After(now) })
	if n == 0 {
		return nil
	}
	ids := make([]string, n)
	for i, e := range s.entries[:n] {
		ids[i] = e.auctionID
		delete(s.byID, e.auctionID)
	}
	s.entries = slices.Delete(s.entries, 0, n)
	return ids
}

// MemoryIndex is an in-process TimeIndex
type MemoryIndex struct {
	mu     sync.Mutex
	starts *sortedIndex
	ends   *sortedIndex
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		starts: newSortedIndex(),
		ends:   newSortedIndex(),
	}
}

// AddStart registers (or moves) the go-live entry of an auction.
func (m *MemoryIndex) AddStart(_ context.Context, at time.Time, auctionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts.add(at, auctionID)
	return nil
}

// AddEnd registers (or moves) the closing entry of an auction.
func (m *MemoryIndex) AddEnd(_ context.Context, at time.Time, auctionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ends.add(at, auctionID)
	return nil
}

func (m *MemoryIndex) PopDueStarts(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts.popDue(now), nil
}

func (m *MemoryIndex) PopDueEnds(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ends.popDue(now), nil
}

// RemoveStart drops the start entry of an auction, reporting whether one existed.
func (m *MemoryIndex) RemoveStart(auctionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts.remove(auctionID)
}

// RemoveEnd drops the end entry of an auction, reporting whether one existed.
func (m *MemoryIndex) RemoveEnd(auctionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ends.remove(auctionID)
}

// Len returns the sizes of the start and end indices.
func (m *MemoryIndex) Len() (starts, ends int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.starts.entries), len(m.ends.entries)
}
