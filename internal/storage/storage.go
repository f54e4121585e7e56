package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/eugenenazirov/basic-auth/internal/credentials"
)

// Storage persists credential records and releases its resources on Close.
type Storage interface {
	credentials.Store
	Close() error
}

// MemoryStorage keeps credential records in-memory and guards access with a RWMutex.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string]credentials.Record
}

// NewMemoryStorage initialises an empty storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]credentials.Record),
	}
}

// Add stores rec unless the username is already taken.
func (s *MemoryStorage) Add(_ context.Context, rec credentials.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.Username]; ok {
		return credentials.ErrAlreadyExists
	}
	s.records[rec.Username] = rec
	return nil
}

// Get returns the record stored for username.
func (s *MemoryStorage) Get(_ context.Context, username string) (credentials.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[username]
	if !ok {
		return credentials.Record{}, credentials.ErrNotFound
	}
	return rec, nil
}

// List returns records created inside the window, ordered by username.
func (s *MemoryStorage) List(_ context.Context, opts credentials.ListOptions) ([]credentials.Record, error) {
	s.mu.RLock()
	out := make([]credentials.Record, 0, len(s.records))
	for _, rec := range s.records {
		if opts.Contains(rec.CreatedAt) {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// Update replaces an existing record.
func (s *MemoryStorage) Update(_ context.Context, rec credentials.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.Username]; !ok {
		return credentials.ErrNotFound
	}
	s.records[rec.Username] = rec
	return nil
}

// Remove deletes the record for username and reports whether one existed.
func (s *MemoryStorage) Remove(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[username]; !ok {
		return false, nil
	}
	delete(s.records, username)
	return true, nil
}

// Close is a no-op.
func (s *MemoryStorage) Close() error {
	return nil
}
