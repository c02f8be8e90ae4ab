package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/switchboard/agent"
	"github.com/BaSui01/switchboard/internal/cache"
)

// CacheRecorder receives cache hit and miss notifications.
type CacheRecorder interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// CachedKnowledgeBase memoizes Search results in Redis. Cache failures are
// logged and the search falls through to the wrapped knowledge base.
// Concurrent misses for the same key share one underlying search.
type CachedKnowledgeBase struct {
	inner     agent.KnowledgeBase
	cache     *cache.Manager
	ttl       time.Duration
	keyPrefix string
	recorder  CacheRecorder
	epoch     atomic.Uint64
	inflight  singleflight.Group
	logger    *zap.Logger
}

// NewCachedKnowledgeBase wraps inner. A nil cache disables caching.
func NewCachedKnowledgeBase(inner agent.KnowledgeBase, c *cache.Manager, ttl time.Duration, logger *zap.Logger) *CachedKnowledgeBase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedKnowledgeBase{
		inner:     inner,
		cache:     c,
		ttl:       ttl,
		keyPrefix: "switchboard:kb:",
		logger:    logger.With(zap.String("component", "kb_cache")),
	}
}

// WithRecorder reports hits and misses to r.
func (c *CachedKnowledgeBase) WithRecorder(r CacheRecorder) *CachedKnowledgeBase {
	c.recorder = r
	return c
}

// Invalidate makes every entry cached so far unreachable. Call it after the
// wrapped knowledge base is re-indexed; old entries expire by TTL.
func (c *CachedKnowledgeBase) Invalidate() {
	c.epoch.Add(1)
}

func (c *CachedKnowledgeBase) key(query, category string, limit int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d|%s|%s|%d", c.epoch.Load(), query, category, limit))
	return c.keyPrefix + hex.EncodeToString(sum[:])
}

// Search returns the cached result for (query, category, limit) or asks the
// wrapped knowledge base and caches its answer.
func (c *CachedKnowledgeBase) Search(ctx context.Context, query, category string, limit int) ([]agent.KBResult, error) {
	if c.cache == nil {
		return c.inner.Search(ctx, query, category, limit)
	}

	key := c.key(query, category, limit)
	var cached []agent.KBResult
	err := c.cache.GetJSON(ctx, key, &cached)
	switch {
	case err == nil:
		c.record(true)
		if cached == nil {
			cached = []agent.KBResult{}
		}
		return cached, nil
	case !cache.IsCacheMiss(err):
		c.logger.Warn("kb cache read failed", zap.Error(err))
	}
	c.record(false)

	v, err, _ := c.inflight.Do(key, func() (any, error) {
		results, err := c.inner.Search(ctx, query, category, limit)
		if err != nil {
			return nil, err
		}
		if err := c.cache.SetJSON(ctx, key, results, c.ttl); err != nil {
			c.logger.Warn("kb cache write failed", zap.Error(err))
		}
		return results, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]agent.KBResult), nil
}

func (c *CachedKnowledgeBase) record(hit bool) {
	if c.recorder == nil {
		return
	}
	if hit {
		c.recorder.RecordCacheHit("knowledge_base")
	} else {
		c.recorder.RecordCacheMiss("knowledge_base")
	}
}
