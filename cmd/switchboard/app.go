package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/switchboard/agent"
	"github.com/BaSui01/switchboard/agent/conversation"
	"github.com/BaSui01/switchboard/agent/declarative"
	"github.com/BaSui01/switchboard/agent/hitl"
	"github.com/BaSui01/switchboard/agent/persistence"
	"github.com/BaSui01/switchboard/config"
	"github.com/BaSui01/switchboard/internal/cache"
	"github.com/BaSui01/switchboard/internal/database"
	"github.com/BaSui01/switchboard/internal/metrics"
	"github.com/BaSui01/switchboard/internal/migration"
	"github.com/BaSui01/switchboard/internal/telemetry"
	"github.com/BaSui01/switchboard/llm"
	"github.com/BaSui01/switchboard/llm/tokenizer"
	"github.com/BaSui01/switchboard/rag"
	"github.com/BaSui01/switchboard/rag/loader"
)

// slowQueryThreshold marks SQL statements logged at warn level.
const slowQueryThreshold = 200 * time.Millisecond

// App holds every collaborator of one Switchboard process. The serve and
// dispatch commands both build one.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry *telemetry.Providers
	collector *metrics.Collector

	cache *cache.Manager
	pool  *database.PoolManager

	store         persistence.ConversationStore
	queue         *hitl.Queue
	generator     llm.Generator
	kb            *rag.ReloadableKnowledgeBase
	kbCache       *rag.CachedKnowledgeBase
	orchestrator  *agent.Orchestrator
	conversations *conversation.Service

	// closers run in reverse order on Close.
	closers []func(ctx context.Context) error
}

// NewApp wires the application from cfg. observers receive every dispatch
// event in addition to the metrics collector. On error everything opened so
// far is closed again.
func NewApp(ctx context.Context, cfg *config.Config, collector *metrics.Collector, logger *zap.Logger, observers ...agent.Observer) (_ *App, err error) {
	a := &App{cfg: cfg, collector: collector, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	if providers, initErr := telemetry.Init(cfg.Telemetry, logger); initErr != nil {
		logger.Warn("failed to initialize telemetry, continuing without export", zap.Error(initErr))
	} else {
		a.telemetry = providers
	}
	a.closers = append(a.closers, a.telemetry.Shutdown)

	if err = a.initBackends(ctx); err != nil {
		return nil, err
	}
	if err = a.initQueue(); err != nil {
		return nil, err
	}

	counter := tokenizer.NewCounter(tokenizer.ForModel(cfg.LLM.Model), logger)
	if err = a.initGenerator(counter); err != nil {
		return nil, err
	}

	def, err := declarative.NewYAMLLoader().LoadFile(cfg.Responders.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("load responder manifest: %w", err)
	}
	registry, err := agent.Bootstrap(logger, declarative.NewResponderFactory(a.generator, logger).Manifest(def)...)
	if err != nil {
		return nil, fmt.Errorf("build responder registry: %w", err)
	}
	extractor, err := declarative.NewRegexpExtractor(def.Entities)
	if err != nil {
		return nil, fmt.Errorf("build entity extractor: %w", err)
	}

	otelObserver, err := telemetry.NewObserver(a.telemetry.Meter())
	if err != nil {
		return nil, fmt.Errorf("create telemetry observer: %w", err)
	}

	opts := cfg.Orchestrator.Options()
	if opts.EntryAgent == "" {
		opts.EntryAgent = def.EntryAgent
	}
	orchOpts := []agent.OrchestratorOption{
		agent.WithEscalationQueue(a.queue),
		agent.WithEntityExtractor(extractor),
		agent.WithTokenCounter(counter),
		agent.WithObserver(a.collector),
		agent.WithObserver(otelObserver),
		agent.WithTracer(a.telemetry.Tracer()),
		agent.WithLogger(logger),
	}
	for _, obs := range observers {
		orchOpts = append(orchOpts, agent.WithObserver(obs))
	}

	kb, err := a.initKnowledgeBase(ctx)
	if err != nil {
		return nil, err
	}
	if kb != nil {
		orchOpts = append(orchOpts, agent.WithKnowledgeBase(kb))
	}

	a.orchestrator = agent.NewOrchestrator(registry, opts, orchOpts...)
	a.conversations = conversation.NewService(a.orchestrator, a.store, cfg.Store.MaxTranscriptTurns, logger,
		conversation.WithHandoffTracker(a.queue))

	logger.Info("application initialized",
		zap.Strings("responders", registry.Names()),
		zap.String("entry_agent", opts.EntryAgent),
		zap.String("store", string(cfg.Store.Type)),
		zap.String("escalation_backend", cfg.Escalation.Backend),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("knowledge_base", kb != nil),
		zap.Bool("telemetry_export", a.telemetry.Enabled()),
	)
	return a, nil
}

func (a *App) needsRedis() bool {
	return a.cfg.Store.Type == persistence.StoreTypeRedis ||
		a.cfg.Escalation.Backend == "redis" ||
		(len(a.cfg.KnowledgeBase.Paths) > 0 && a.cfg.KnowledgeBase.CacheTTL > 0)
}

func (a *App) needsDatabase() bool {
	return a.cfg.Store.Type == persistence.StoreTypeDatabase || a.cfg.Escalation.Backend == "database"
}

// initBackends connects Redis and the database when a component needs them
// and opens the conversation store.
func (a *App) initBackends(ctx context.Context) error {
	backends := persistence.Backends{}

	if a.needsRedis() {
		mgr, err := cache.NewManager(a.cfg.Redis, a.logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.cache = mgr
		a.closers = append(a.closers, func(context.Context) error { return mgr.Close() })
		backends.Redis = mgr.Client()
	}

	if a.needsDatabase() {
		dbCfg := a.cfg.Database
		db, err := database.Open(dbCfg.Driver, dbCfg.DSN(), database.OpenOptions{
			SlowThreshold: slowQueryThreshold,
			Observer:      a.collector,
		}, a.logger)
		if err != nil {
			return err
		}

		poolCfg := database.DefaultPoolConfig()
		if dbCfg.MaxOpenConns > 0 {
			poolCfg.MaxOpenConns = dbCfg.MaxOpenConns
		}
		if dbCfg.MaxIdleConns > 0 {
			poolCfg.MaxIdleConns = min(dbCfg.MaxIdleConns, poolCfg.MaxOpenConns)
		}
		if dbCfg.ConnMaxLifetime > 0 {
			poolCfg.ConnMaxLifetime = dbCfg.ConnMaxLifetime
		}
		pool, err := database.NewPoolManager(db, poolCfg, a.logger, database.WithStatsRecorder(dbCfg.Driver, a.collector))
		if err != nil {
			return fmt.Errorf("configure connection pool: %w", err)
		}
		a.pool = pool
		a.closers = append(a.closers, func(context.Context) error { return pool.Close() })

		if dbCfg.AutoMigrate {
			if err := migrateUp(ctx, dbCfg, a.logger); err != nil {
				return err
			}
		}
		backends.DB = pool.DB()
	}

	store, err := persistence.NewConversationStore(a.cfg.Store, backends)
	if err != nil {
		return fmt.Errorf("create conversation store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	return nil
}

func migrateUp(ctx context.Context, dbCfg config.DatabaseConfig, logger *zap.Logger) error {
	m, err := migration.NewMigratorFromDatabaseConfig(dbCfg, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()
	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// initQueue builds the escalation queue on the configured backend. Every
// new ticket refreshes the pending-escalations gauge.
func (a *App) initQueue() error {
	var store hitl.TicketStore
	switch a.cfg.Escalation.Backend {
	case "redis":
		store = hitl.NewRedisTicketStore(a.cache.Client(), a.cfg.Escalation.KeyPrefix)
	case "database":
		store = hitl.NewGormTicketStore(a.pool.DB())
	case "memory", "":
		store = hitl.NewInMemoryTicketStore()
	default:
		return fmt.Errorf("unsupported escalation backend %q", a.cfg.Escalation.Backend)
	}

	a.queue = hitl.NewQueue(store, a.logger)
	a.queue.OnTicket(func(ctx context.Context, _ *hitl.Ticket) error {
		return a.refreshPendingGauge(ctx)
	})
	return nil
}

func (a *App) refreshPendingGauge(ctx context.Context) error {
	pending, err := a.queue.Pending(ctx, 0)
	if err != nil {
		return err
	}
	a.collector.SetPendingEscalations(len(pending))
	return nil
}

// initGenerator builds the reply generator: the configured provider behind
// a circuit breaker with the template fallback, instrumented for metrics.
func (a *App) initGenerator(counter agent.TokenCounter) error {
	cfg := a.cfg.LLM

	var fallback llm.Generator
	if cfg.FallbackTemplate != "" {
		tmpl, err := llm.NewTemplateGenerator(cfg.FallbackTemplate)
		if err != nil {
			return fmt.Errorf("fallback template: %w", err)
		}
		fallback = tmpl
	}

	var (
		gen      llm.Generator
		provider = cfg.Provider
	)
	switch cfg.Provider {
	case "openai":
		if cfg.ProviderName != "" {
			provider = cfg.ProviderName
		}
		gen = llm.NewResilientGenerator(llm.NewOpenAIGenerator(cfg.OpenAI(), a.logger), fallback, cfg.Resilience(), a.logger)
	case "template":
		if fallback == nil {
			tmpl, err := llm.NewTemplateGenerator("")
			if err != nil {
				return err
			}
			fallback = tmpl
		}
		gen = fallback
	default:
		return fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	a.generator = a.collector.InstrumentGenerator(gen, provider, cfg.Model, counter)
	return nil
}

// initKnowledgeBase indexes the configured article paths. It returns nil
// when no paths are configured.
func (a *App) initKnowledgeBase(ctx context.Context) (agent.KnowledgeBase, error) {
	kbCfg := a.cfg.KnowledgeBase
	if len(kbCfg.Paths) == 0 {
		return nil, nil
	}

	a.kb = rag.NewReloadableKnowledgeBase(kbCfg.Keyword(), articleLoader(kbCfg.Paths), a.logger)
	if err := a.kb.Reload(ctx); err != nil {
		return nil, fmt.Errorf("index knowledge base: %w", err)
	}

	if kbCfg.CacheTTL <= 0 || a.cache == nil {
		return a.kb, nil
	}
	a.kbCache = rag.NewCachedKnowledgeBase(a.kb, a.cache, kbCfg.CacheTTL, a.logger).WithRecorder(a.collector)
	a.kb.OnReload(func(int) { a.kbCache.Invalidate() })
	return a.kbCache, nil
}

func articleLoader(paths []string) rag.LoadFunc {
	registry := loader.NewLoaderRegistry()
	paths = slices.Clone(paths)
	return func(ctx context.Context) ([]rag.Document, error) {
		return registry.LoadAll(ctx, paths...)
	}
}

// ApplyConfig applies the hot-reloadable knowledge-base fields of next. It
// is registered as a reload callback; an error rolls the reload back.
func (a *App) ApplyConfig(ctx context.Context, prev, next *config.Config) error {
	if a.kb == nil {
		if len(next.KnowledgeBase.Paths) > 0 {
			a.logger.Warn("knowledge base paths added at runtime, restart to enable kb_search")
		}
		return nil
	}

	oldKB, newKB := prev.KnowledgeBase, next.KnowledgeBase
	pathsChanged := !slices.Equal(oldKB.Paths, newKB.Paths)
	scoringChanged := oldKB.K1 != newKB.K1 || oldKB.B != newKB.B || oldKB.MinScore != newKB.MinScore
	if !pathsChanged && !scoringChanged {
		return nil
	}
	if len(newKB.Paths) == 0 {
		return errors.New("knowledge_base.paths cannot be emptied at runtime")
	}

	a.kb.SetConfig(newKB.Keyword())
	if pathsChanged {
		a.kb.SetLoader(articleLoader(newKB.Paths))
	}
	if err := a.kb.Reload(ctx); err != nil {
		a.kb.SetConfig(oldKB.Keyword())
		a.kb.SetLoader(articleLoader(oldKB.Paths))
		return err
	}
	return nil
}

// HealthChecks returns a readiness probe for every connected backend.
func (a *App) HealthChecks() map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{
		"store": a.store.Ping,
	}
	if a.cache != nil {
		checks["redis"] = a.cache.Ping
	}
	if a.pool != nil {
		checks["database"] = a.pool.Ping
	}
	return checks
}

// Close releases everything in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
