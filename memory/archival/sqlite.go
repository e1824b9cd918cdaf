package archival

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS archival_entries (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	content        TEXT NOT NULL,
	context        TEXT NOT NULL DEFAULT '',
	tags_json      TEXT NOT NULL DEFAULT '[]',
	importance     REAL NOT NULL DEFAULT 0,
	embedding_json BLOB,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_archival_user ON archival_entries (user_id);
`

// SQLiteStore persists archival entries, embeddings included, in SQLite.
// Similarity ranking happens in memory; the database is the system of
// record the vectors are rebuilt from.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and prepares the
// schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open archival database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init archival schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Insert stores a new entry.
func (s *SQLiteStore) Insert(ctx context.Context, entry *Entry) error {
	tagsJSON, embeddingJSON, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO archival_entries
			(id, user_id, content, context, tags_json, importance, embedding_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Content, entry.Context, tagsJSON, entry.Importance,
		embeddingJSON, entry.CreatedAt.UnixNano(), entry.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert archival entry: %w", err)
	}
	return nil
}

// Get returns the user's entry, or nil.
func (s *SQLiteStore) Get(ctx context.Context, userID, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, content, context, tags_json, importance, embedding_json, created_at, updated_at
		 FROM archival_entries WHERE user_id = ? AND id = ?`, userID, id)
	return scanEntry(row)
}

// ListByUser returns all entries of the user, oldest first.
func (s *SQLiteStore) ListByUser(ctx context.Context, userID string) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, content, context, tags_json, importance, embedding_json, created_at, updated_at
		 FROM archival_entries WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list archival entries: %w", err)
	}
	defer rows.Close()
	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Update overwrites an existing entry.
func (s *SQLiteStore) Update(ctx context.Context, entry *Entry) error {
	tagsJSON, embeddingJSON, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE archival_entries
		 SET content = ?, context = ?, tags_json = ?, importance = ?, embedding_json = ?, updated_at = ?
		 WHERE user_id = ? AND id = ?`,
		entry.Content, entry.Context, tagsJSON, entry.Importance, embeddingJSON,
		entry.UpdatedAt.UnixNano(), entry.UserID, entry.ID)
	if err != nil {
		return fmt.Errorf("update archival entry: %w", err)
	}
	return nil
}

// Delete removes the user's entry, reporting whether it existed.
func (s *SQLiteStore) Delete(ctx context.Context, userID, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM archival_entries WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return false, fmt.Errorf("delete archival entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeEntry(entry *Entry) (tagsJSON, embeddingJSON []byte, err error) {
	tags := entry.Tags
	if tags == nil {
		tags = []string{}
	}
	if tagsJSON, err = json.Marshal(tags); err != nil {
		return nil, nil, fmt.Errorf("marshal tags: %w", err)
	}
	if embeddingJSON, err = json.Marshal(entry.Embedding); err != nil {
		return nil, nil, fmt.Errorf("marshal embedding: %w", err)
	}
	return tagsJSON, embeddingJSON, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		entry                    Entry
		tagsJSON, embeddingJSON    []byte
		createdNanos, updatedNanos int64
	)
	err := row.Scan(&entry.ID, &entry.UserID, &entry.Content, &entry.Context,
		&tagsJSON, &entry.Importance, &embeddingJSON, &createdNanos, &updatedNanos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan archival entry: %w", err)
	}
	if err := json.Unmarshal(tagsJSON, &entry.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if len(embeddingJSON) > 0 {
		if err := json.Unmarshal(embeddingJSON, &entry.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}
	entry.CreatedAt = time.Unix(0, createdNanos)
	entry.UpdatedAt = time.Unix(0, updatedNanos)
	return &entry, nil
}
