package block

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type blockRecord struct {
	block   *Block
	history []*HistoryEntry
}

// InMemoryStore keeps blocks and history in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*blockRecord // keyed by userID + "\x00" + label
}

// NewInMemoryStore creates an empty in-memory block store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]*blockRecord),
	}
}

func recordKey(userID, label string) string {
	return userID + "\x00" + label
}

// Get returns the block, or nil if it does not exist.
func (s *InMemoryStore) Get(_ context.Context, userID, label string) (*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordKey(userID, label)]
	if !ok {
		return nil, nil
	}
	return copyBlock(rec.block), nil
}

// List returns all blocks of the user, sorted by label.
func (s *InMemoryStore) List(_ context.Context, userID string) ([]*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var blocks []*Block
	for _, rec := range s.records {
		if rec.block.UserID == userID {
			blocks = append(blocks, copyBlock(rec.block))
		}
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Label < blocks[j].Label })
	return blocks, nil
}

// Apply persists the mutation and its history row under one lock.
func (s *InMemoryStore) Apply(_ context.Context, m Mutation) (*Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey(m.UserID, m.Label)
	rec, exists := s.records[key]
	now := time.Now()

	if !exists {
		if m.Create == nil {
			return nil, fmt.Errorf("block %s/%s does not exist", m.UserID, m.Label)
		}
		created := copyBlock(m.Create)
		if created.ID == "" {
			created.ID = ulid.Make().String()
		}
		created.UserID = m.UserID
		created.Label = m.Label
		created.CreatedAt = now
		rec = &blockRecord{block: created}
		s.records[key] = rec
	}

	previous := rec.block.Value
	entry := &HistoryEntry{
		ID:            ulid.Make().String(),
		BlockID:       rec.block.ID,
		Event:         m.Event,
		PreviousValue: previous,
		NewValue:      m.NewValue,
		CreatedAt:     now,
	}
	rec.history = append(rec.history, entry)

	if m.Event == EventDelete {
		deleted := copyBlock(rec.block)
		delete(s.records, key)
		return deleted, nil
	}
	rec.block.Value = m.NewValue
	rec.block.UpdatedAt = now
	return copyBlock(rec.block), nil
}

// History returns the block's audit entries, most recent first.
func (s *InMemoryStore) History(_ context.Context, userID, label string, limit int) ([]*HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordKey(userID, label)]
	if !ok {
		return nil, nil
	}
	var result []*HistoryEntry
	for i := len(rec.history) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		entry := *rec.history[i]
		result = append(result, &entry)
	}
	return result, nil
}

// HistoryEntry returns a single audit entry of the block.
func (s *InMemoryStore) HistoryEntry(_ context.Context, userID, label, historyID string) (*HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordKey(userID, label)]
	if !ok {
		return nil, nil
	}
	for _, entry := range rec.history {
		if entry.ID == historyID {
			clone := *entry
			return &clone, nil
		}
	}
	return nil, nil
}

// Close implements Store.
func (s *InMemoryStore) Close() error {
	return nil
}

func copyBlock(b *Block) *Block {
	clone := *b
	return &clone
}
