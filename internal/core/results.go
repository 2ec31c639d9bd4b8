package core

import (
	"sync"
	"time"
)

// DefaultResultEntries bounds a ResultStore built with maxEntries <= 0.
const DefaultResultEntries = 32

// ResultStore keeps finished conversions in memory until downloaded or
// expired. When full, Put evicts the oldest result.
type ResultStore struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.RWMutex
	results map[string]*ConversionResult
}

// NewResultStore returns a store that expires results after ttl and holds
// at most maxEntries of them.
func NewResultStore(ttl time.Duration, maxEntries int) *ResultStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = DefaultResultEntries
	}
	return &ResultStore{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		results:    make(map[string]*ConversionResult),
	}
}

// Put stores r under r.ID.
func (s *ResultStore) Put(r *ConversionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.results[r.ID]; !exists && len(s.results) >= s.maxEntries {
		s.evictOldestLocked()
	}
	s.results[r.ID] = r
}

func (s *ResultStore) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, r := range s.results {
		if oldestID == "" || r.CreatedAt.Before(oldest) {
			oldestID, oldest = id, r.CreatedAt
		}
	}
	if oldestID != "" {
		delete(s.results, oldestID)
	}
}

// Get returns the result for id or ErrResultNotFound.
func (s *ResultStore) Get(id string) (*ConversionResult, error) {
	s.mu.RLock()
	r, ok := s.results[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrResultNotFound
	}
	if s.now().Sub(r.CreatedAt) > s.ttl {
		s.Delete(id)
		return nil, ErrResultNotFound
	}
	return r, nil
}

// Delete drops id. Missing ids are ignored.
func (s *ResultStore) Delete(id string) {
	s.mu.Lock()
	delete(s.results, id)
	s.mu.Unlock()
}

// DeleteForUpload drops every result produced from uploadID.
func (s *ResultStore) DeleteForUpload(uploadID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, r := range s.results {
		if r.UploadID == uploadID {
			delete(s.results, id)
			n++
		}
	}
	return n
}

// Prune drops expired results and returns how many were removed.
func (s *ResultStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	now := s.now()
	for id, r := range s.results {
		if now.Sub(r.CreatedAt) > s.ttl {
			delete(s.results, id)
			n++
		}
	}
	return n
}

// Len returns the number of held results.
func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}
