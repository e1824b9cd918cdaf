package block

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS memory_blocks (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	agent_id    TEXT NOT NULL DEFAULT '',
	label       TEXT NOT NULL,
	value       TEXT NOT NULL DEFAULT '',
	char_limit  INTEGER NOT NULL,
	readonly    INTEGER NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL,
	UNIQUE (user_id, label)
);
CREATE TABLE IF NOT EXISTS memory_block_history (
	id             TEXT PRIMARY KEY,
	block_id       TEXT NOT NULL,
	event          TEXT NOT NULL,
	previous_value TEXT NOT NULL,
	new_value      TEXT NOT NULL,
	created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_block_history_block
	ON memory_block_history (block_id, created_at DESC);
`

// SQLiteStore persists blocks and history in a SQLite database. Each
// mutation writes the history row and the value update in one transaction.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and prepares the
// schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open block database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init block schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get returns the block, or nil if it does not exist.
func (s *SQLiteStore) Get(ctx context.Context, userID, label string) (*Block, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, agent_id, label, value, char_limit, readonly, description, created_at, updated_at
		 FROM memory_blocks WHERE user_id = ? AND label = ?`, userID, label)
	return scanBlock(row)
}

// List returns all blocks of the user, sorted by label.
func (s *SQLiteStore) List(ctx context.Context, userID string) ([]*Block, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, agent_id, label, value, char_limit, readonly, description, created_at, updated_at
		 FROM memory_blocks WHERE user_id = ? ORDER BY label`, userID)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()
	var blocks []*Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// Apply persists the mutation and its history row in one transaction.
func (s *SQLiteStore) Apply(ctx context.Context, m Mutation) (*Block, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin block mutation: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, user_id, agent_id, label, value, char_limit, readonly, description, created_at, updated_at
		 FROM memory_blocks WHERE user_id = ? AND label = ?`, m.UserID, m.Label)
	b, err := scanBlock(row)
	if err != nil {
		return nil, err
	}
	now := time.Now()

	if b == nil {
		if m.Create == nil {
			return nil, fmt.Errorf("block %s/%s does not exist", m.UserID, m.Label)
		}
		b = copyBlock(m.Create)
		if b.ID == "" {
			b.ID = ulid.Make().String()
		}
		b.UserID = m.UserID
		b.Label = m.Label
		b.CreatedAt = now
		b.UpdatedAt = now
		_, err = tx.ExecContext(ctx,
			`INSERT INTO memory_blocks
				(id, user_id, agent_id, label, value, char_limit, readonly, description, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.UserID, b.AgentID, b.Label, b.Value, b.Limit, boolToInt(b.ReadOnly),
			b.Description, now.UnixNano(), now.UnixNano())
		if err != nil {
			return nil, fmt.Errorf("create block: %w", err)
		}
	}

	previous := b.Value
	_, err = tx.ExecContext(ctx,
		`INSERT INTO memory_block_history (id, block_id, event, previous_value, new_value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ulid.Make().String(), b.ID, m.Event, previous, m.NewValue, now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("write block history: %w", err)
	}

	if m.Event == EventDelete {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_blocks WHERE id = ?`, b.ID); err != nil {
			return nil, fmt.Errorf("delete block: %w", err)
		}
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE memory_blocks SET value = ?, updated_at = ? WHERE id = ?`,
			m.NewValue, now.UnixNano(), b.ID)
		if err != nil {
			return nil, fmt.Errorf("update block value: %w", err)
		}
		b.Value = m.NewValue
		b.UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit block mutation: %w", err)
	}
	return b, nil
}

// History returns the block's audit entries, most recent first.
func (s *SQLiteStore) History(ctx context.Context, userID, label string, limit int) ([]*HistoryEntry, error) {
	query := `SELECT h.id, h.block_id, h.event, h.previous_value, h.new_value, h.created_at
		 FROM memory_block_history h
		 JOIN memory_blocks b ON b.id = h.block_id
		 WHERE b.user_id = ? AND b.label = ?
		 ORDER BY h.created_at DESC, h.id DESC`
	args := []any{userID, label}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list block history: %w", err)
	}
	defer rows.Close()
	var entries []*HistoryEntry
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// HistoryEntry returns a single audit entry of the block.
func (s *SQLiteStore) HistoryEntry(ctx context.Context, userID, label, historyID string) (*HistoryEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT h.id, h.block_id, h.event, h.previous_value, h.new_value, h.created_at
		 FROM memory_block_history h
		 JOIN memory_blocks b ON b.id = h.block_id
		 WHERE b.user_id = ? AND b.label = ? AND h.id = ?`, userID, label, historyID)
	entry, err := scanHistory(row)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(row rowScanner) (*Block, error) {
	var (
		b                    Block
		readonly             int
		createdAt, updatedAt int64
	)
	err := row.Scan(&b.ID, &b.UserID, &b.AgentID, &b.Label, &b.Value, &b.Limit,
		&readonly, &b.Description, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan block: %w", err)
	}
	b.ReadOnly = readonly != 0
	b.CreatedAt = time.Unix(0, createdAt)
	b.UpdatedAt = time.Unix(0, updatedAt)
	return &b, nil
}

func scanHistory(row rowScanner) (*HistoryEntry, error) {
	var (
		entry     HistoryEntry
		createdAt int64
	)
	err := row.Scan(&entry.ID, &entry.BlockID, &entry.Event, &entry.PreviousValue,
		&entry.NewValue, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan block history: %w", err)
	}
	entry.CreatedAt = time.Unix(0, createdAt)
	return &entry, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
