package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/wattboard/wattboard/pkg/meterpb"
)

// Sample is one past consumption value of a building.
type Sample struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// Entry is a building's latest reading, its recent history and the time the
// server last received data for it.
type Entry struct {
	Reading   *meterpb.Reading
	History   []Sample // oldest first, bounded by the store's history size
	UpdatedAt time.Time
}

// Store is a thread-safe in-memory reading store keyed by building ID.
// A background goroutine (Run) periodically evicts buildings that have not
// reported within the configured TTL.
type Store struct {
	mu      sync.RWMutex
	data    map[string]*Entry
	ttl     time.Duration
	history int
	now     func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL, keeping up to history past values
// per building.
func New(ttl time.Duration, history int) *Store {
	if history < 1 {
		history = 1
	}
	return &Store{
		data:    make(map[string]*Entry),
		ttl:     ttl,
		history: history,
		now:     time.Now,
	}
}

// Put records r as the latest reading for r.BuildingID and appends its value
// to the building's history. A reading older than the one already held is
// dropped and Put returns false. Callers must not modify r after Put.
func (s *Store) Put(r *meterpb.Reading) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[r.BuildingID]
	if !ok {
		e = &Entry{}
		s.data[r.BuildingID] = e
	} else if r.Timestamp.Before(e.Reading.Timestamp) {
		return false
	}

	e.Reading = r
	e.UpdatedAt = s.now()
	e.History = append(e.History, Sample{At: r.Timestamp, Value: r.Value})
	if over := len(e.History) - s.history; over > 0 {
		e.History = append([]Sample(nil), e.History[over:]...)
	}
	return true
}

// Get returns a copy of the Entry for buildingID and whether it was found.
// The entry may be stale if TTL has elapsed.
func (s *Store) Get(buildingID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[buildingID]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// List returns copies of all entries updated within the TTL, ordered by
// building ID. Stale entries that have not yet been evicted are excluded.
func (s *Store) List() []Entry {
	s.mu.RLock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]Entry, 0, len(s.data))
	for _, e := range s.data {
		if e.UpdatedAt.After(cutoff) {
			out = append(out, e.clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Reading.BuildingID < out[j].Reading.BuildingID
	})
	return out
}

// Count returns the total number of buildings currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes entries whose UpdatedAt is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, e := range s.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted silent buildings", "count", n)
			}
		}
	}
}

func (e *Entry) clone() Entry {
	return Entry{
		Reading:   e.Reading,
		History:   append([]Sample(nil), e.History...),
		UpdatedAt: e.UpdatedAt,
	}
}
