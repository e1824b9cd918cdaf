package block

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Manager implements the agent-facing block operations on top of a Store.
// Mutations for one (user, label) pair are serialized so the check of the
// current value and the write of the new one cannot interleave.
type Manager struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a manager over the given store.
func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *Manager) blockLock(userID, label string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey(userID, label)
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	return lock
}

// Get returns the block, or a failure result if it does not exist.
func (m *Manager) Get(ctx context.Context, userID, label string) (*OpResult, error) {
	b, err := m.store.Get(ctx, userID, label)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return failure(fmt.Sprintf("memory block %q not found", label)), nil
	}
	return success("", b), nil
}

// List returns all blocks of the user, sorted by label.
func (m *Manager) List(ctx context.Context, userID string) ([]*Block, error) {
	return m.store.List(ctx, userID)
}

// Create explicitly initializes a block. It fails if the label already
// exists for the user.
func (m *Manager) Create(ctx context.Context, b *Block) (*OpResult, error) {
	lock := m.blockLock(b.UserID, b.Label)
	lock.Lock()
	defer lock.Unlock()

	existing, err := m.store.Get(ctx, b.UserID, b.Label)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return failure(fmt.Sprintf("memory block %q already exists", b.Label)), nil
	}
	if b.Limit <= 0 {
		b.Limit = DefaultLimit
	}
	if len(b.Value) > b.Limit {
		return failure(fmt.Sprintf("value exceeds limit of %d characters", b.Limit)), nil
	}
	created, err := m.store.Apply(ctx, Mutation{
		UserID:   b.UserID,
		Label:    b.Label,
		Event:    EventRethink,
		NewValue: b.Value,
		Create:   b,
	})
	if err != nil {
		return nil, err
	}
	return success(fmt.Sprintf("memory block %q created", b.Label), created), nil
}

// Append appends content to the block value, joined with a newline. It
// fails without mutating when the block is missing, readonly, or the result
// would exceed the limit.
func (m *Manager) Append(ctx context.Context, userID, label, content string) (*OpResult, error) {
	lock := m.blockLock(userID, label)
	lock.Lock()
	defer lock.Unlock()

	b, err := m.store.Get(ctx, userID, label)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return failure(fmt.Sprintf("memory block %q not found", label)), nil
	}
	if b.ReadOnly {
		return failure(fmt.Sprintf("memory block %q is read-only", label)), nil
	}
	newValue := content
	if b.Value != "" {
		newValue = b.Value + "\n" + content
	}
	if len(newValue) > b.Limit {
		return failure(fmt.Sprintf("append would exceed limit of %d characters (current %d, appending %d)",
			b.Limit, len(b.Value), len(content))), nil
	}
	updated, err := m.store.Apply(ctx, Mutation{
		UserID:   userID,
		Label:    label,
		Event:    EventAppend,
		NewValue: newValue,
	})
	if err != nil {
		return nil, err
	}
	return success(fmt.Sprintf("appended to memory block %q", label), updated), nil
}

// Replace substitutes oldContent with newContent. oldContent must occur
// exactly once verbatim; zero matches and ambiguous matches both fail
// without mutating.
func (m *Manager) Replace(ctx context.Context, userID, label, oldContent, newContent string) (*OpResult, error) {
	lock := m.blockLock(userID, label)
	lock.Lock()
	defer lock.Unlock()

	b, err := m.store.Get(ctx, userID, label)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return failure(fmt.Sprintf("memory block %q not found", label)), nil
	}
	if b.ReadOnly {
		return failure(fmt.Sprintf("memory block %q is read-only", label)), nil
	}
	switch count := strings.Count(b.Value, oldContent); {
	case oldContent == "":
		return failure("old content must not be empty"), nil
	case count == 0:
		return failure(fmt.Sprintf("old content not found in memory block %q", label)), nil
	case count > 1:
		return failure(fmt.Sprintf("old content occurs %d times in memory block %q, refusing ambiguous replace", count, label)), nil
	}
	newValue := strings.Replace(b.Value, oldContent, newContent, 1)
	if len(newValue) > b.Limit {
		return failure(fmt.Sprintf("replace would exceed limit of %d characters", b.Limit)), nil
	}
	updated, err := m.store.Apply(ctx, Mutation{
		UserID:   userID,
		Label:    label,
		Event:    EventReplace,
		NewValue: newValue,
	})
	if err != nil {
		return nil, err
	}
	return success(fmt.Sprintf("replaced content in memory block %q", label), updated), nil
}

// Rethink overwrites the block value entirely, creating the block if it
// does not exist. Only a readonly block rejects it.
func (m *Manager) Rethink(ctx context.Context, userID, label, newMemory string) (*OpResult, error) {
	lock := m.blockLock(userID, label)
	lock.Lock()
	defer lock.Unlock()

	b, err := m.store.Get(ctx, userID, label)
	if err != nil {
		return nil, err
	}
	var create *Block
	limit := DefaultLimit
	if b != nil {
		if b.ReadOnly {
			return failure(fmt.Sprintf("memory block %q is read-only", label)), nil
		}
		limit = b.Limit
	} else {
		create = &Block{UserID: userID, Label: label, Limit: DefaultLimit}
	}
	if len(newMemory) > limit {
		return failure(fmt.Sprintf("new value exceeds limit of %d characters", limit)), nil
	}
	updated, err := m.store.Apply(ctx, Mutation{
		UserID:   userID,
		Label:    label,
		Event:    EventRethink,
		NewValue: newMemory,
		Create:   create,
	})
	if err != nil {
		return nil, err
	}
	return success(fmt.Sprintf("rewrote memory block %q", label), updated), nil
}

// Delete removes the block, recording a DELETE history entry first.
func (m *Manager) Delete(ctx context.Context, userID, label string) (*OpResult, error) {
	lock := m.blockLock(userID, label)
	lock.Lock()
	defer lock.Unlock()

	b, err := m.store.Get(ctx, userID, label)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return failure(fmt.Sprintf("memory block %q not found", label)), nil
	}
	if b.ReadOnly {
		return failure(fmt.Sprintf("memory block %q is read-only", label)), nil
	}
	deleted, err := m.store.Apply(ctx, Mutation{
		UserID: userID,
		Label:  label,
		Event:  EventDelete,
	})
	if err != nil {
		return nil, err
	}
	return success(fmt.Sprintf("deleted memory block %q", label), deleted), nil
}

// GetHistory returns the block's audit entries, most recent first.
func (m *Manager) GetHistory(ctx context.Context, userID, label string, limit int) ([]*HistoryEntry, error) {
	return m.store.History(ctx, userID, label, limit)
}

// Rollback restores the previous value recorded in a specific history
// entry. The restore itself is logged as a new RETHINK entry; history is
// never rewritten.
func (m *Manager) Rollback(ctx context.Context, userID, label, historyID string) (*OpResult, error) {
	lock := m.blockLock(userID, label)
	lock.Lock()
	defer lock.Unlock()

	b, err := m.store.Get(ctx, userID, label)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return failure(fmt.Sprintf("memory block %q not found", label)), nil
	}
	if b.ReadOnly {
		return failure(fmt.Sprintf("memory block %q is read-only", label)), nil
	}
	entry, err := m.store.HistoryEntry(ctx, userID, label, historyID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return failure(fmt.Sprintf("history entry %q not found for memory block %q", historyID, label)), nil
	}
	if len(entry.PreviousValue) > b.Limit {
		return failure(fmt.Sprintf("rollback value exceeds limit of %d characters", b.Limit)), nil
	}
	updated, err := m.store.Apply(ctx, Mutation{
		UserID:   userID,
		Label:    label,
		Event:    EventRethink,
		NewValue: entry.PreviousValue,
	})
	if err != nil {
		return nil, err
	}
	return success(fmt.Sprintf("rolled back memory block %q to history entry %s", label, historyID), updated), nil
}

// CompilePrompt renders blocks into the deterministic text injected into a
// model prompt. Blocks are sorted by label; an empty list renders "".
func CompilePrompt(blocks []*Block) string {
	if len(blocks) == 0 {
		return ""
	}
	sorted := make([]*Block, len(blocks))
	copy(sorted, blocks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Label < sorted[j].Label })

	var sb strings.Builder
	for i, b := range sorted {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "<%s chars=\"%d/%d\"", b.Label, len(b.Value), b.Limit)
		if b.ReadOnly {
			sb.WriteString(" readonly=\"true\"")
		}
		sb.WriteString(">\n")
		if b.Description != "" {
			fmt.Fprintf(&sb, "description: %s\n", b.Description)
		}
		sb.WriteString(b.Value)
		fmt.Fprintf(&sb, "\n</%s>\n", b.Label)
	}
	return sb.String()
}

// CompileUserPrompt loads the user's blocks and renders them.
func (m *Manager) CompileUserPrompt(ctx context.Context, userID string) (string, error) {
	blocks, err := m.store.List(ctx, userID)
	if err != nil {
		return "", err
	}
	return CompilePrompt(blocks), nil
}
