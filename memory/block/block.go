// Package block implements per-user core memory blocks: small, size-bounded
// text documents the agent edits through tool calls, with an append-only
// change history.
package block

import "time"

// DefaultLimit is the value-size limit applied to blocks created implicitly
// by a rethink on a missing label.
const DefaultLimit = 2000

// History event types.
const (
	EventAppend  = "APPEND"
	EventReplace = "REPLACE"
	EventRethink = "RETHINK"
	EventDelete  = "DELETE"
)

// Block is a core memory document. Value never exceeds Limit after a
// successful mutation, and a readonly block rejects every mutation.
type Block struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	AgentID     string    `json:"agent_id,omitempty"`
	Label       string    `json:"label"`
	Value       string    `json:"value"`
	Limit       int       `json:"limit"`
	ReadOnly    bool      `json:"readonly"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HistoryEntry is one row of a block's append-only audit log. Rollback
// writes a new entry rather than mutating old ones.
type HistoryEntry struct {
	ID            string    `json:"id"`
	BlockID       string    `json:"block_id"`
	Event         string    `json:"event"`
	PreviousValue string    `json:"previous_value"`
	NewValue      string    `json:"new_value"`
	CreatedAt     time.Time `json:"created_at"`
}

// OpResult is the structured outcome of an agent-facing block operation.
// Expected failures (missing block, readonly, limit overflow, ambiguous
// replace) are reported here rather than as errors.
type OpResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Block   *Block `json:"block,omitempty"`
}

func failure(message string) *OpResult {
	return &OpResult{Success: false, Message: message}
}

func success(message string, b *Block) *OpResult {
	return &OpResult{Success: true, Message: message, Block: b}
}
