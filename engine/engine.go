// Package engine assembles the configured runtime: model, memory tiers,
// checkpoint store, and the built-in workflows.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/winhok/QAchatBot-sub001/graph"
	checkpointsqlite "github.com/winhok/QAchatBot-sub001/graph/checkpoint/sqlite"
	"github.com/winhok/QAchatBot-sub001/internal/config"
	"github.com/winhok/QAchatBot-sub001/log"
	"github.com/winhok/QAchatBot-sub001/memory/archival"
	"github.com/winhok/QAchatBot-sub001/memory/block"
	"github.com/winhok/QAchatBot-sub001/memory/summary"
	"github.com/winhok/QAchatBot-sub001/model"
	"github.com/winhok/QAchatBot-sub001/tool"
	"github.com/winhok/QAchatBot-sub001/workflow"
	"github.com/winhok/QAchatBot-sub001/workflow/qa"
	"github.com/winhok/QAchatBot-sub001/workflow/research"

	// Provider registration.
	_ "github.com/winhok/QAchatBot-sub001/model/openai"
)

// Engine owns the configured components and hands out per-user workflows.
type Engine struct {
	cfg      *config.Config
	model    model.Model
	saver    graph.CheckpointSaver
	blocks   *block.Manager
	archival *archival.Service
	summary  *summary.Engine

	blockStore    *block.SQLiteStore
	archivalStore *archival.SQLiteStore

	mu sync.Mutex
	// One workflow cache per user: compiled graphs capture the user's tool
	// binding, so they must not be shared across users.
	caches map[string]*workflow.Cache
}

// New builds an engine from the configuration. The sqlite path backs the
// checkpoint, block, and archival stores.
func New(cfg *config.Config) (*Engine, error) {
	log.SetLevel(cfg.LogLevel)

	m, err := model.NewFromProvider(model.Provider(cfg.ModelProvider), cfg.ModelName,
		model.WithAPIKey(cfg.APIKey), model.WithBaseURL(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("construct model: %w", err)
	}

	saver, err := checkpointsqlite.NewSaver(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	blockStore, err := block.NewSQLiteStore(cfg.SQLitePath)
	if err != nil {
		saver.Close()
		return nil, fmt.Errorf("open block store: %w", err)
	}
	archivalStore, err := archival.NewSQLiteStore(cfg.SQLitePath)
	if err != nil {
		saver.Close()
		blockStore.Close()
		return nil, fmt.Errorf("open archival store: %w", err)
	}

	embedder := archival.NewOpenAIEmbedder(
		archival.WithEmbedderAPIKey(cfg.APIKey),
		archival.WithEmbedderBaseURL(cfg.BaseURL),
		archival.WithEmbedderModel(cfg.EmbeddingModel),
		archival.WithEmbedderDimensions(cfg.EmbeddingDims),
	)
	archivalService := archival.NewService(archivalStore, embedder)

	summaryEngine, err := summary.NewEngine(m, archivalService)
	if err != nil {
		saver.Close()
		blockStore.Close()
		archivalStore.Close()
		return nil, err
	}

	return &Engine{
		cfg:           cfg,
		model:         m,
		saver:         saver,
		blocks:        block.NewManager(blockStore),
		archival:      archivalService,
		summary:       summaryEngine,
		blockStore:    blockStore,
		archivalStore: archivalStore,
		caches:        make(map[string]*workflow.Cache),
	}, nil
}

// Close releases the summarizer pool and the backing stores.
func (e *Engine) Close() error {
	e.summary.Close()
	var firstErr error
	for _, close := range []func() error{e.saver.Close, e.blockStore.Close, e.archivalStore.Close} {
		if err := close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Blocks returns the core memory block manager.
func (e *Engine) Blocks() *block.Manager { return e.blocks }

// Archival returns the archival memory service.
func (e *Engine) Archival() *archival.Service { return e.archival }

// Model returns the configured model.
func (e *Engine) Model() model.Model { return e.model }

// QA builds the QA workflow bound to the user's memory tools.
func (e *Engine) QA(userID string) (*qa.Workflow, error) {
	return qa.New(e.model, e.saver, e.userTools(userID),
		qa.WithMaxSteps(e.cfg.MaxSteps),
		qa.WithCache(e.userCache(userID)))
}

// Research builds the deep-research workflow bound to the user's memory
// tools.
func (e *Engine) Research(userID string) (*research.Workflow, error) {
	return research.New(e.model, e.saver, e.userTools(userID),
		research.WithMaxSteps(e.cfg.MaxSteps),
		research.WithCache(e.userCache(userID)))
}

// Compact applies the static-buffer eviction policy with the configured
// thresholds, archiving the evicted span in the background.
func (e *Engine) Compact(userID string, messages []model.Message) []model.Message {
	return e.summary.StaticBuffer(userID, messages, e.cfg.BufferLimit, e.cfg.BufferMin)
}

// Evict forces a partial eviction of the history, injecting a synchronous
// summary of the evicted span.
func (e *Engine) Evict(ctx context.Context, messages []model.Message, fraction float64) ([]model.Message, error) {
	return e.summary.PartialEvict(ctx, messages, fraction)
}

func (e *Engine) userTools(userID string) []tool.CallableTool {
	tools := block.Tools(e.blocks, userID)
	return append(tools, archival.Tools(e.archival, userID)...)
}

func (e *Engine) userCache(userID string) *workflow.Cache {
	e.mu.Lock()
	defer e.mu.Unlock()
	cache, ok := e.caches[userID]
	if !ok {
		cache = workflow.NewCache(0)
		e.caches[userID] = cache
	}
	return cache
}
