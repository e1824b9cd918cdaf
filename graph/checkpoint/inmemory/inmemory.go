// Package inmemory provides a process-local checkpoint saver, primarily for
// tests and single-process deployments.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/winhok/QAchatBot-sub001/graph"
)

// Saver stores checkpoints in memory, grouped by lineage.
type Saver struct {
	mu       sync.RWMutex
	lineages map[string][]*graph.Checkpoint
}

// NewSaver creates an empty in-memory saver.
func NewSaver() *Saver {
	return &Saver{
		lineages: make(map[string][]*graph.Checkpoint),
	}
}

// Put stores a new checkpoint. State values are kept by reference; callers
// must not mutate a state map after handing it to Put.
func (s *Saver) Put(_ context.Context, req graph.PutRequest) (*graph.Checkpoint, error) {
	ckpt := &graph.Checkpoint{
		ID:             uuid.NewString(),
		LineageID:      req.LineageID,
		ParentID:       req.ParentID,
		State:          req.State.Clone(),
		NextNode:       req.NextNode,
		Step:           req.Step,
		Source:         req.Source,
		Interrupt:      req.Interrupt,
		CreatedAtNanos: time.Now().UnixNano(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lineages[req.LineageID] = append(s.lineages[req.LineageID], ckpt)
	return ckpt, nil
}

// Get returns the checkpoint with the given ID, or nil if not found.
func (s *Saver) Get(_ context.Context, lineageID, checkpointID string) (*graph.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ckpt := range s.lineages[lineageID] {
		if ckpt.ID == checkpointID {
			return copyCheckpoint(ckpt), nil
		}
	}
	return nil, nil
}

// Latest returns the most recently created checkpoint of the lineage.
// Checkpoints are appended in creation order, so the last entry wins; after
// a fork that is the fork's newest checkpoint, not the deepest checkpoint of
// the original branch.
func (s *Saver) Latest(_ context.Context, lineageID string) (*graph.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ckpts := s.lineages[lineageID]
	if len(ckpts) == 0 {
		return nil, nil
	}
	return copyCheckpoint(ckpts[len(ckpts)-1]), nil
}

// List returns the lineage's checkpoints, most recent first.
func (s *Saver) List(_ context.Context, lineageID string, limit int) ([]*graph.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ckpts := s.lineages[lineageID]
	result := make([]*graph.Checkpoint, 0, len(ckpts))
	for i := len(ckpts) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		result = append(result, copyCheckpoint(ckpts[i]))
	}
	return result, nil
}

// DeleteLineage removes all checkpoints of the lineage.
func (s *Saver) DeleteLineage(_ context.Context, lineageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lineages, lineageID)
	return nil
}

// Close implements graph.CheckpointSaver.
func (s *Saver) Close() error {
	return nil
}

func copyCheckpoint(ckpt *graph.Checkpoint) *graph.Checkpoint {
	clone := *ckpt
	clone.State = ckpt.State.Clone()
	return &clone
}
