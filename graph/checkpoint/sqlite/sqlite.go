// Package sqlite provides a SQLite-backed checkpoint saver using the pure-Go
// modernc.org/sqlite driver, so deployments need no cgo toolchain.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/winhok/QAchatBot-sub001/graph"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	checkpoint_id  TEXT PRIMARY KEY,
	lineage_id     TEXT NOT NULL,
	parent_id      TEXT NOT NULL DEFAULT '',
	next_node      TEXT NOT NULL DEFAULT '',
	step           INTEGER NOT NULL,
	source         TEXT NOT NULL,
	state_json     BLOB NOT NULL,
	interrupt_json BLOB,
	created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_lineage_created
	ON checkpoints (lineage_id, created_at DESC);
`

// Saver persists checkpoints in a SQLite database.
//
// State is stored as JSON, so values loaded from a checkpoint carry JSON
// types (maps and []any) rather than the original Go types.
type Saver struct {
	db *sql.DB
}

// NewSaver opens (or creates) the database at path and prepares the schema.
func NewSaver(path string) (*Saver, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open checkpoint database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init checkpoint schema: %w", err)
	}
	return &Saver{db: db}, nil
}

// Put stores a new checkpoint.
func (s *Saver) Put(ctx context.Context, req graph.PutRequest) (*graph.Checkpoint, error) {
	stateJSON, err := json.Marshal(req.State)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint state: %w", err)
	}
	var interruptJSON []byte
	if req.Interrupt != nil {
		if interruptJSON, err = json.Marshal(req.Interrupt); err != nil {
			return nil, fmt.Errorf("marshal checkpoint interrupt: %w", err)
		}
	}
	ckpt := &graph.Checkpoint{
		ID:             uuid.NewString(),
		LineageID:      req.LineageID,
		ParentID:       req.ParentID,
		State:          req.State,
		NextNode:       req.NextNode,
		Step:           req.Step,
		Source:         req.Source,
		Interrupt:      req.Interrupt,
		CreatedAtNanos: time.Now().UnixNano(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints
			(checkpoint_id, lineage_id, parent_id, next_node, step, source, state_json, interrupt_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ckpt.ID, ckpt.LineageID, ckpt.ParentID, ckpt.NextNode, ckpt.Step, ckpt.Source,
		stateJSON, interruptJSON, ckpt.CreatedAtNanos)
	if err != nil {
		return nil, fmt.Errorf("insert checkpoint: %w", err)
	}
	return ckpt, nil
}

// Get returns the checkpoint with the given ID, or nil if not found.
func (s *Saver) Get(ctx context.Context, lineageID, checkpointID string) (*graph.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT checkpoint_id, lineage_id, parent_id, next_node, step, source, state_json, interrupt_json, created_at
		 FROM checkpoints WHERE lineage_id = ? AND checkpoint_id = ?`,
		lineageID, checkpointID)
	return scanCheckpoint(row)
}

// Latest returns the most recently created checkpoint of the lineage, which
// after a fork is the fork's newest checkpoint.
func (s *Saver) Latest(ctx context.Context, lineageID string) (*graph.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT checkpoint_id, lineage_id, parent_id, next_node, step, source, state_json, interrupt_json, created_at
		 FROM checkpoints WHERE lineage_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		lineageID)
	return scanCheckpoint(row)
}

// List returns the lineage's checkpoints, most recent first.
func (s *Saver) List(ctx context.Context, lineageID string, limit int) ([]*graph.Checkpoint, error) {
	query := `SELECT checkpoint_id, lineage_id, parent_id, next_node, step, source, state_json, interrupt_json, created_at
		 FROM checkpoints WHERE lineage_id = ?
		 ORDER BY created_at DESC, rowid DESC`
	args := []any{lineageID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()
	var result []*graph.Checkpoint
	for rows.Next() {
		ckpt, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ckpt)
	}
	return result, rows.Err()
}

// DeleteLineage removes all checkpoints of the lineage.
func (s *Saver) DeleteLineage(ctx context.Context, lineageID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE lineage_id = ?`, lineageID); err != nil {
		return fmt.Errorf("delete lineage %s: %w", lineageID, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Saver) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*graph.Checkpoint, error) {
	var (
		ckpt          graph.Checkpoint
		stateJSON     []byte
		interruptJSON []byte
	)
	err := row.Scan(&ckpt.ID, &ckpt.LineageID, &ckpt.ParentID, &ckpt.NextNode, &ckpt.Step,
		&ckpt.Source, &stateJSON, &interruptJSON, &ckpt.CreatedAtNanos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}
	if err := json.Unmarshal(stateJSON, &ckpt.State); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint state: %w", err)
	}
	if len(interruptJSON) > 0 {
		ckpt.Interrupt = &graph.InterruptState{}
		if err := json.Unmarshal(interruptJSON, ckpt.Interrupt); err != nil {
			return nil, fmt.Errorf("unmarshal checkpoint interrupt: %w", err)
		}
	}
	return &ckpt, nil
}
