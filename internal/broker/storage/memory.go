package storage

import (
	"context"
	"sync"
	"time"

	"github.com/nemanja-m/inferq/internal/broker/core"
)

type InMemoryResultStore struct {
	mu       sync.RWMutex
	results  map[string]storedResult
	reserved map[string]time.Time
	now      func() time.Time
}

type storedResult struct {
	result    core.Result
	expiresAt time.Time
}

func NewInMemoryResultStore() *InMemoryResultStore {
	return &InMemoryResultStore{
		results:  make(map[string]storedResult),
		reserved: make(map[string]time.Time),
		now:      time.Now,
	}
}

func (s *InMemoryResultStore) Reserve(_ context.Context, jobID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if expiresAt, exists := s.reserved[jobID]; exists && expiresAt.After(now) {
		return false, nil
	}
	s.reserved[jobID] = now.Add(ttl)
	return true, nil
}

func (s *InMemoryResultStore) Release(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, jobID)
	return nil
}

func (s *InMemoryResultStore) Publish(_ context.Context, result core.Result, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.JobID] = storedResult{result: result, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *InMemoryResultStore) Fetch(_ context.Context, jobID string) (core.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, exists := s.results[jobID]
	if !exists || !stored.expiresAt.After(s.now()) {
		return core.Result{}, core.ErrResultNotFound
	}
	return stored.result, nil
}

func (s *InMemoryResultStore) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, jobID)
	return nil
}

// PurgeExpired drops results and job ID reservations whose TTL elapsed before now.
func (s *InMemoryResultStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, stored := range s.results {
		if !stored.expiresAt.After(now) {
			delete(s.results, id)
			purged++
		}
	}
	for id, expiresAt := range s.reserved {
		if !expiresAt.After(now) {
			delete(s.reserved, id)
		}
	}
	return purged, nil
}

func (s *InMemoryResultStore) Close() error {
	return nil
}
