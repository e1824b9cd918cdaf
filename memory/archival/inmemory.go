package archival

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore keeps archival entries in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewInMemoryStore creates an empty in-memory archival store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]*Entry)}
}

// Insert stores a new entry.
func (s *InMemoryStore) Insert(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = copyEntry(entry)
	return nil
}

// Get returns the user's entry, or nil.
func (s *InMemoryStore) Get(_ context.Context, userID, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok || entry.UserID != userID {
		return nil, nil
	}
	return copyEntry(entry), nil
}

// ListByUser returns all entries of the user, oldest first.
func (s *InMemoryStore) ListByUser(_ context.Context, userID string) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Entry
	for _, entry := range s.entries {
		if entry.UserID == userID {
			result = append(result, copyEntry(entry))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Update overwrites an existing entry.
func (s *InMemoryStore) Update(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = copyEntry(entry)
	return nil
}

// Delete removes the user's entry, reporting whether it existed.
func (s *InMemoryStore) Delete(_ context.Context, userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok || entry.UserID != userID {
		return false, nil
	}
	delete(s.entries, id)
	return true, nil
}

// Close implements Store.
func (s *InMemoryStore) Close() error {
	return nil
}

func copyEntry(entry *Entry) *Entry {
	clone := *entry
	clone.Tags = append([]string(nil), entry.Tags...)
	clone.Embedding = append(Vector(nil), entry.Embedding...)
	return &clone
}
