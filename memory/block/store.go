package block

import "context"

// Mutation describes one block write. The store persists the new value and
// the matching history row atomically.
type Mutation struct {
	UserID string
	Label  string
	Event  string
	// NewValue is the block value after the mutation. Ignored for
	// EventDelete.
	NewValue string
	// Create holds the block definition when the mutation may create the
	// block (rethink on a missing label, explicit initialization).
	Create *Block
}

// Store persists blocks and their history. Implementations must write the
// value update and its history row atomically; concurrency control per
// (user, label) is the Manager's responsibility.
type Store interface {
	// Get returns the block, or nil if it does not exist.
	Get(ctx context.Context, userID, label string) (*Block, error)
	// List returns all blocks of the user, sorted by label.
	List(ctx context.Context, userID string) ([]*Block, error)
	// Apply persists the mutation and returns the block after the write.
	// EventDelete returns the block as it was before deletion.
	Apply(ctx context.Context, m Mutation) (*Block, error)
	// History returns the block's audit entries, most recent first.
	History(ctx context.Context, userID, label string, limit int) ([]*HistoryEntry, error)
	// HistoryEntry returns a single audit entry of the block, or nil if not
	// found.
	HistoryEntry(ctx context.Context, userID, label, historyID string) (*HistoryEntry, error)
	// Close releases resources held by the store.
	Close() error
}
