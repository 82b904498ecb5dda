package store

import (
	"context"
	"sort"
	"sync"

	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/model"
)

// MemoryStore is an in-memory DirectoryStore for a single process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]map[model.ParticipantID]model.DirectoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]map[model.ParticipantID]model.DirectoryEntry),
	}
}

func (s *MemoryStore) Put(ctx context.Context, e model.DirectoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scope, ok := s.entries[e.Scope]
	if !ok {
		scope = make(map[model.ParticipantID]model.DirectoryEntry)
		s.entries[e.Scope] = scope
	}
	scope[e.ParticipantID] = e
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, scope string, id model.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.entries[scope]
	if !ok {
		return ErrNotFound
	}
	if _, ok := entries[id]; !ok {
		return ErrNotFound
	}
	delete(entries, id)
	if len(entries) == 0 {
		delete(s.entries, scope)
	}
	return nil
}

func (s *MemoryStore) ListByRole(ctx context.Context, scope string, role model.Role) ([]model.DirectoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.DirectoryEntry
	for _, e := range s.entries[scope] {
		if e.Role == role {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (s *MemoryStore) List(ctx context.Context, scope string) ([]model.DirectoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.DirectoryEntry, 0, len(s.entries[scope]))
	for _, e := range s.entries[scope] {
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func sortEntries(entries []model.DirectoryEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ParticipantID < entries[j].ParticipantID
	})
}
