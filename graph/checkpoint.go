package graph

import "context"

// Checkpoint source values recorded in checkpoint metadata.
const (
	// CheckpointSourceInput marks the checkpoint written for the initial input.
	CheckpointSourceInput = "input"
	// CheckpointSourceLoop marks a checkpoint written after a node executed.
	CheckpointSourceLoop = "loop"
	// CheckpointSourceInterrupt marks a checkpoint written at an interrupt.
	CheckpointSourceInterrupt = "interrupt"
)

// InterruptState records a pending interrupt inside a checkpoint.
type InterruptState struct {
	// NodeName is the node that raised the interrupt and will be re-executed
	// on resume.
	NodeName string `json:"node_name"`
	// Key identifies the interrupt point within the node.
	Key string `json:"key"`
	// Prompt is the payload surfaced to the caller, typically a question for
	// a human operator.
	Prompt any `json:"prompt,omitempty"`
}

// Checkpoint is a durable snapshot of graph state after a step.
type Checkpoint struct {
	// ID uniquely identifies the checkpoint.
	ID string `json:"id"`
	// LineageID groups the checkpoints of one logical execution thread.
	LineageID string `json:"lineage_id"`
	// ParentID is the checkpoint this one descends from. Empty for the first
	// checkpoint of a lineage. Forks reference an older checkpoint here.
	ParentID string `json:"parent_id,omitempty"`
	// State is the full graph state at this point.
	State State `json:"state"`
	// NextNode is the node to execute next. Empty when the graph finished.
	NextNode string `json:"next_node,omitempty"`
	// Step is the number of node executions completed so far.
	Step int `json:"step"`
	// Source records why the checkpoint was written.
	Source string `json:"source"`
	// Interrupt is set when execution stopped at an interrupt point.
	Interrupt *InterruptState `json:"interrupt,omitempty"`
	// CreatedAt is the wall-clock creation time, set by the saver.
	CreatedAtNanos int64 `json:"created_at"`
}

// PutRequest carries a checkpoint to a saver. The saver assigns the ID and
// creation time.
type PutRequest struct {
	LineageID string
	ParentID  string
	State     State
	NextNode  string
	Step      int
	Source    string
	Interrupt *InterruptState
}

// CheckpointSaver persists checkpoints. Implementations must order
// checkpoints by creation time so that Latest returns the most recently
// written one, which on a fork is the fork itself rather than the deepest
// node of the original branch.
type CheckpointSaver interface {
	// Put stores a new checkpoint and returns it with ID and creation time
	// assigned.
	Put(ctx context.Context, req PutRequest) (*Checkpoint, error)
	// Get returns the checkpoint with the given ID, or nil if not found.
	Get(ctx context.Context, lineageID, checkpointID string) (*Checkpoint, error)
	// Latest returns the most recently created checkpoint of the lineage, or
	// nil if the lineage has none.
	Latest(ctx context.Context, lineageID string) (*Checkpoint, error)
	// List returns the lineage's checkpoints, most recent first.
	List(ctx context.Context, lineageID string, limit int) ([]*Checkpoint, error)
	// DeleteLineage removes all checkpoints of the lineage.
	DeleteLineage(ctx context.Context, lineageID string) error
	// Close releases resources held by the saver.
	Close() error
}

// sanitizeForCheckpoint strips executor-internal keys so checkpoints contain
// only user-visible state.
func sanitizeForCheckpoint(state State) State {
	clean := make(State, len(state))
	for k, v := range state {
		switch k {
		case StateKeyExecContext, ResumeChannel, StateKeyResumeMap, StateKeyUsedInterrupts:
			continue
		}
		clean[k] = v
	}
	return clean
}
