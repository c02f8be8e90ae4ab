package config

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ConfigChange records one changed field.
type ConfigChange struct {
	Timestamp       time.Time `json:"timestamp"`
	Source          string    `json:"source"`
	Path            string    `json:"path"`
	OldValue        any       `json:"old_value,omitempty"`
	NewValue        any       `json:"new_value,omitempty"`
	RequiresRestart bool      `json:"requires_restart"`
	Applied         bool      `json:"applied"`
	Error           string    `json:"error,omitempty"`
}

// ReloadCallback reacts to a new configuration. An error rolls the reload back.
type ReloadCallback func(oldConfig, newConfig *Config) error

// HotReloadableField describes a field that takes effect without a restart.
type HotReloadableField struct {
	Path        string `json:"path"`
	Description string `json:"description"`
}

// hotReloadableFields lists the fields applied by reload callbacks. A change
// to any other field is recorded but needs a restart.
var hotReloadableFields = map[string]HotReloadableField{
	"Log.Level":              {Path: "Log.Level", Description: "Log level (debug, info, warn, error)"},
	"KnowledgeBase.Paths":    {Path: "KnowledgeBase.Paths", Description: "Article files and directories"},
	"KnowledgeBase.K1":       {Path: "KnowledgeBase.K1", Description: "BM25 term saturation"},
	"KnowledgeBase.B":        {Path: "KnowledgeBase.B", Description: "BM25 length normalization"},
	"KnowledgeBase.MinScore": {Path: "KnowledgeBase.MinScore", Description: "Minimum article score"},
}

// sensitiveFields are redacted in change records and in Sanitized.
var sensitiveFields = map[string]bool{
	"Redis.Password":    true,
	"Database.Password": true,
	"LLM.APIKey":        true,
	"Auth.JWTSecret":    true,
}

const redacted = "[REDACTED]"

// HotReloadManager holds the live configuration and reloads it from its file.
type HotReloadManager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
	envPrefix  string
	logger     *zap.Logger

	callbacks []ReloadCallback
	changeLog []ConfigChange

	watcher *FileWatcher
}

// HotReloadOption configures the HotReloadManager
type HotReloadOption func(*HotReloadManager)

// WithHotReloadLogger sets the logger.
func WithHotReloadLogger(logger *zap.Logger) HotReloadOption {
	return func(m *HotReloadManager) { m.logger = logger }
}

// WithConfigPath sets the file reloaded on change.
func WithConfigPath(path string) HotReloadOption {
	return func(m *HotReloadManager) { m.configPath = path }
}

// WithReloadEnvPrefix sets the environment prefix used when reloading.
func WithReloadEnvPrefix(prefix string) HotReloadOption {
	return func(m *HotReloadManager) { m.envPrefix = prefix }
}

// NewHotReloadManager creates a manager around the initial configuration.
func NewHotReloadManager(config *Config, opts ...HotReloadOption) *HotReloadManager {
	m := &HotReloadManager{
		config:    config,
		envPrefix: "SWITCHBOARD",
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "config_reload"))
	return m
}

// OnReload registers a callback run after each successful reload.
func (m *HotReloadManager) OnReload(callback ReloadCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// Start watches the config file until ctx is done or Stop is called.
func (m *HotReloadManager) Start(ctx context.Context, opts ...WatcherOption) error {
	if m.configPath == "" {
		return fmt.Errorf("no config path set")
	}
	watcher, err := NewFileWatcher([]string{m.configPath}, append([]WatcherOption{WithWatcherLogger(m.logger)}, opts...)...)
	if err != nil {
		return err
	}
	watcher.OnChange(func(evt FileEvent) {
		if evt.Op == FileOpRemove {
			m.logger.Warn("config file removed, keeping current config", zap.String("path", evt.Path))
			return
		}
		_ = m.ReloadFromFile()
	})
	if err := watcher.Start(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.watcher = watcher
	m.mu.Unlock()
	return nil
}

// Stop stops watching.
func (m *HotReloadManager) Stop() error {
	m.mu.Lock()
	w := m.watcher
	m.watcher = nil
	m.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Stop()
}

// ReloadFromFile loads and validates the file and applies it. An invalid
// file leaves the current configuration in place.
func (m *HotReloadManager) ReloadFromFile() error {
	if m.configPath == "" {
		return fmt.Errorf("no config path set")
	}
	newConfig, err := NewLoader().
		WithConfigPath(m.configPath).
		WithEnvPrefix(m.envPrefix).
		WithValidator((*Config).Validate).
		Load()
	if err != nil {
		m.logger.Error("failed to load config from file, keeping current config",
			zap.Error(err), zap.String("path", m.configPath))
		m.record(ConfigChange{Timestamp: time.Now(), Source: "file", Path: "(load)", Error: err.Error()})
		return fmt.Errorf("failed to load config: %w", err)
	}
	return m.ApplyConfig(newConfig, "file")
}

// ApplyConfig swaps in newConfig and runs the reload callbacks. If a callback
// fails, the previous configuration is restored and the callbacks that
// already ran are invoked again to revert.
func (m *HotReloadManager) ApplyConfig(newConfig *Config, source string) error {
	m.mu.Lock()
	oldConfig := m.config
	changes := detectChanges(oldConfig, newConfig)
	if len(changes) == 0 {
		m.mu.Unlock()
		return nil
	}

	now := time.Now()
	requiresRestart := false
	for i := range changes {
		changes[i].Timestamp = now
		changes[i].Source = source
		changes[i].Applied = true
		_, hot := hotReloadableFields[changes[i].Path]
		changes[i].RequiresRestart = !hot
		requiresRestart = requiresRestart || !hot
		m.logChange(changes[i])
	}
	m.config = newConfig
	callbacks := slices.Clone(m.callbacks)
	m.mu.Unlock()

	for i, cb := range callbacks {
		if err := safeCall(cb, oldConfig, newConfig); err != nil {
			m.logger.Error("reload callback failed, rolling back", zap.Error(err))
			for _, undo := range callbacks[:i] {
				if uerr := safeCall(undo, newConfig, oldConfig); uerr != nil {
					m.logger.Error("rollback callback failed", zap.Error(uerr))
				}
			}
			m.mu.Lock()
			if m.config == newConfig {
				m.config = oldConfig
			}
			for j := range changes {
				changes[j].Applied = false
				changes[j].Error = err.Error()
			}
			m.recordLocked(changes...)
			m.mu.Unlock()
			return fmt.Errorf("config reload rolled back: %w", err)
		}
	}

	m.record(changes...)
	if requiresRestart {
		m.logger.Warn("some configuration changes require a restart to take effect")
	}
	m.logger.Info("configuration reloaded",
		zap.Int("changes", len(changes)),
		zap.Bool("requires_restart", requiresRestart))
	return nil
}

func safeCall(cb ReloadCallback, oldConfig, newConfig *Config) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	return cb(oldConfig, newConfig)
}

func (m *HotReloadManager) record(changes ...ConfigChange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordLocked(changes...)
}

func (m *HotReloadManager) recordLocked(changes ...ConfigChange) {
	m.changeLog = append(m.changeLog, changes...)
	if len(m.changeLog) > 1000 {
		m.changeLog = m.changeLog[len(m.changeLog)-1000:]
	}
}

func (m *HotReloadManager) logChange(change ConfigChange) {
	m.logger.Info("configuration changed",
		zap.String("path", change.Path),
		zap.String("source", change.Source),
		zap.Bool("requires_restart", change.RequiresRestart),
		zap.Any("old_value", change.OldValue),
		zap.Any("new_value", change.NewValue),
	)
}

// GetConfig returns the live configuration. Callers must not mutate it.
func (m *HotReloadManager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetChangeLog returns up to limit most recent changes, oldest first. A
// limit <= 0 returns them all.
func (m *HotReloadManager) GetChangeLog(limit int) []ConfigChange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	log := m.changeLog
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	return slices.Clone(log)
}

// HotReloadableFields returns the fields applied without a restart.
func HotReloadableFields() []HotReloadableField {
	out := make([]HotReloadableField, 0, len(hotReloadableFields))
	for _, f := range hotReloadableFields {
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b HotReloadableField) int {
		if a.Path < b.Path {
			return -1
		}
		if a.Path > b.Path {
			return 1
		}
		return 0
	})
	return out
}

// Sanitized returns a copy of the live configuration with secrets redacted.
func (m *HotReloadManager) Sanitized() Config {
	cfg := *m.GetConfig()
	if cfg.Redis.Password != "" {
		cfg.Redis.Password = redacted
	}
	if cfg.Database.Password != "" {
		cfg.Database.Password = redacted
	}
	if cfg.LLM.APIKey != "" {
		cfg.LLM.APIKey = redacted
	}
	if cfg.Auth.JWTSecret != "" {
		cfg.Auth.JWTSecret = redacted
	}
	return cfg
}

// detectChanges compares exported fields recursively.
func detectChanges(oldConfig, newConfig *Config) []ConfigChange {
	var changes []ConfigChange
	compareStructs("", reflect.ValueOf(oldConfig).Elem(), reflect.ValueOf(newConfig).Elem(), &changes)
	return changes
}

func compareStructs(prefix string, oldVal, newVal reflect.Value, changes *[]ConfigChange) {
	t := oldVal.Type()
	for i := 0; i < oldVal.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		path := field.Name
		if prefix != "" {
			path = prefix + "." + field.Name
		}

		oldField, newField := oldVal.Field(i), newVal.Field(i)
		if oldField.Kind() == reflect.Struct {
			compareStructs(path, oldField, newField, changes)
			continue
		}
		if reflect.DeepEqual(oldField.Interface(), newField.Interface()) {
			continue
		}
		change := ConfigChange{Path: path, OldValue: oldField.Interface(), NewValue: newField.Interface()}
		if sensitiveFields[path] {
			change.OldValue, change.NewValue = redacted, redacted
		}
		*changes = append(*changes, change)
	}
}
