package archival

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
)

// Entry is one archival memory record.
type Entry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Content    string    `json:"content"`
	Context    string    `json:"context,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Importance float64   `json:"importance,omitempty"`
	Embedding  Vector    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SearchResult pairs an entry with its relevance score.
type SearchResult struct {
	Entry *Entry  `json:"entry"`
	Score float64 `json:"score"`
}

// OpResult is the structured outcome of an agent-facing archival operation.
// Not-found and validation failures are reported here, not as errors.
type OpResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Entry   *Entry `json:"entry,omitempty"`
}

// Store persists archival entries.
type Store interface {
	// Insert stores a new entry.
	Insert(ctx context.Context, entry *Entry) error
	// Get returns the user's entry, or nil if it does not exist or belongs
	// to another user.
	Get(ctx context.Context, userID, id string) (*Entry, error)
	// ListByUser returns all entries of the user.
	ListByUser(ctx context.Context, userID string) ([]*Entry, error)
	// Update overwrites an existing entry.
	Update(ctx context.Context, entry *Entry) error
	// Delete removes the user's entry, reporting whether it existed.
	Delete(ctx context.Context, userID, id string) (bool, error)
	// Close releases resources held by the store.
	Close() error
}

// Service implements user-scoped archival memory over a store and an
// embedder.
type Service struct {
	store    Store
	embedder Embedder
}

// NewService creates an archival memory service.
func NewService(store Store, embedder Embedder) *Service {
	return &Service{store: store, embedder: embedder}
}

// Insert embeds content and stores a new entry, returning it.
func (s *Service) Insert(ctx context.Context, userID, content, contextText string, tags []string, importance float64) (*Entry, error) {
	if content == "" {
		return nil, fmt.Errorf("content cannot be empty")
	}
	embedding, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	now := time.Now()
	entry := &Entry{
		ID:         ulid.Make().String(),
		UserID:     userID,
		Content:    content,
		Context:    contextText,
		Tags:       tags,
		Importance: importance,
		Embedding:  embedding,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert archival entry: %w", err)
	}
	return entry, nil
}

// Search returns the user's entries ranked by cosine similarity to the
// query. An empty store yields an empty, non-error result.
func (s *Service) Search(ctx context.Context, userID, query string, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 10
	}
	entries, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list archival entries: %w", err)
	}
	if len(entries) == 0 {
		return []SearchResult{}, nil
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results := make([]SearchResult, 0, len(entries))
	for _, entry := range entries {
		results = append(results, SearchResult{
			Entry: entry,
			Score: CosineSimilarity(queryVec, entry.Embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Update overwrites an entry's content (and optionally context),
// re-embedding it. An id not owned by the user is a not-found failure.
func (s *Service) Update(ctx context.Context, userID, id, newContent, newContext string) (*OpResult, error) {
	if newContent == "" {
		return &OpResult{Success: false, Message: "content cannot be empty"}, nil
	}
	entry, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return &OpResult{Success: false, Message: fmt.Sprintf("archival entry %q not found", id)}, nil
	}
	embedding, err := s.embedder.Embed(ctx, newContent)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	entry.Content = newContent
	if newContext != "" {
		entry.Context = newContext
	}
	entry.Embedding = embedding
	entry.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("update archival entry: %w", err)
	}
	return &OpResult{Success: true, Message: "archival entry updated", Entry: entry}, nil
}

// Delete removes an entry. Deleting an id that does not exist (or was
// already deleted) is a not-found failure result, not an error.
func (s *Service) Delete(ctx context.Context, userID, id string) (*OpResult, error) {
	existed, err := s.store.Delete(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("delete archival entry: %w", err)
	}
	if !existed {
		return &OpResult{Success: false, Message: fmt.Sprintf("archival entry %q not found", id)}, nil
	}
	return &OpResult{Success: true, Message: "archival entry deleted"}, nil
}

// Get returns the full entry for drill-down after a search hit.
func (s *Service) Get(ctx context.Context, userID, id string) (*OpResult, error) {
	entry, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return &OpResult{Success: false, Message: fmt.Sprintf("archival entry %q not found", id)}, nil
	}
	return &OpResult{Success: true, Entry: entry}, nil
}
