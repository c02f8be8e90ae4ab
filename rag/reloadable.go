package rag

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/switchboard/agent"
)

// LoadFunc returns the full set of articles to index.
type LoadFunc func(ctx context.Context) ([]Document, error)

// ReloadableKnowledgeBase serves searches from a KeywordKnowledgeBase that
// is rebuilt from scratch on Reload and swapped in atomically. Searches never
// see a half-built index, and articles removed from disk disappear.
type ReloadableKnowledgeBase struct {
	load   LoadFunc
	logger *zap.Logger

	mu       sync.Mutex // serializes reloads
	config   KeywordConfig
	current  atomic.Pointer[KeywordKnowledgeBase]
	onReload []func(docs int)
}

var _ agent.KnowledgeBase = (*ReloadableKnowledgeBase)(nil)

// NewReloadableKnowledgeBase creates an empty knowledge base; call Reload to
// populate it.
func NewReloadableKnowledgeBase(config KeywordConfig, load LoadFunc, logger *zap.Logger) *ReloadableKnowledgeBase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReloadableKnowledgeBase{
		load:   load,
		config: config,
		logger: logger.With(zap.String("component", "kb_reloader")),
	}
}

// OnReload registers fn to run after every successful swap.
func (r *ReloadableKnowledgeBase) OnReload(fn func(docs int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReload = append(r.onReload, fn)
}

// SetConfig changes the scoring parameters used by the next Reload.
func (r *ReloadableKnowledgeBase) SetConfig(config KeywordConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = config
}

// SetLoader replaces the article source used by the next Reload.
func (r *ReloadableKnowledgeBase) SetLoader(load LoadFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.load = load
}

// Reload loads every article and swaps in a fresh index. On error the
// previous index stays in service.
func (r *ReloadableKnowledgeBase) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	docs, err := r.load(ctx)
	if err != nil {
		return fmt.Errorf("load articles: %w", err)
	}
	kb := NewKeywordKnowledgeBase(r.config, r.logger)
	if err := kb.Index(docs...); err != nil {
		return fmt.Errorf("index articles: %w", err)
	}
	r.current.Store(kb)

	r.logger.Info("knowledge base reloaded",
		zap.Int("documents", kb.Len()),
		zap.Duration("duration", time.Since(start)),
	)
	for _, fn := range r.onReload {
		fn(kb.Len())
	}
	return nil
}

// Len returns the number of documents in the live index.
func (r *ReloadableKnowledgeBase) Len() int {
	if kb := r.current.Load(); kb != nil {
		return kb.Len()
	}
	return 0
}

// Search queries the live index. Before the first Reload it finds nothing.
func (r *ReloadableKnowledgeBase) Search(ctx context.Context, query, category string, limit int) ([]agent.KBResult, error) {
	kb := r.current.Load()
	if kb == nil {
		return []agent.KBResult{}, nil
	}
	return kb.Search(ctx, query, category, limit)
}
