package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileWatcher polls files and directories and reports changes after a quiet
// period. A directory changes when any file below it is added, removed or
// modified.
type FileWatcher struct {
	mu sync.Mutex

	paths         []string
	pollInterval  time.Duration
	debounceDelay time.Duration

	running  bool
	stopChan chan struct{}
	done     chan struct{}

	callbacks []func(event FileEvent)
	logger    *zap.Logger

	fingerprints map[string]fingerprint
}

// FileEvent reports one changed path.
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// FileOp is the kind of change.
type FileOp int

const (
	FileOpCreate FileOp = iota
	FileOpWrite
	FileOpRemove
)

// String returns the string representation of FileOp
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

type fingerprint struct {
	modTime time.Time
	size    int64
	files   int
}

// WatcherOption configures the FileWatcher
type WatcherOption func(*FileWatcher)

// WithDebounceDelay sets how long a path must stay unchanged before its
// event is delivered.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.debounceDelay = d
	}
}

// WithPollInterval sets how often paths are checked.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.pollInterval = d
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		w.logger = logger
	}
}

// NewFileWatcher creates a watcher for paths. Paths that do not exist yet
// are watched for creation.
func NewFileWatcher(paths []string, opts ...WatcherOption) (*FileWatcher, error) {
	w := &FileWatcher{
		pollInterval:  time.Second,
		debounceDelay: 100 * time.Millisecond,
		logger:        zap.NewNop(),
		fingerprints:  make(map[string]fingerprint),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "file_watcher"))

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path %s: %w", p, err)
		}
		if _, err := os.Stat(abs); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to stat path %s: %w", abs, err)
			}
			w.logger.Warn("watched path does not exist, will watch for creation", zap.String("path", abs))
		}
		if !slices.Contains(w.paths, abs) {
			w.paths = append(w.paths, abs)
		}
	}
	return w, nil
}

// OnChange registers a callback for file change events. Callbacks run on the
// watcher goroutine, one event at a time.
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins watching. It returns immediately; the watcher runs until ctx
// is done or Stop is called.
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("watcher already running")
	}
	for _, p := range w.paths {
		if fp, ok := scan(p); ok {
			w.fingerprints[p] = fp
		}
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})
	go w.loop(ctx, w.stopChan, w.done)

	w.logger.Info("file watcher started",
		zap.Strings("paths", w.paths),
		zap.Duration("poll_interval", w.pollInterval),
		zap.Duration("debounce_delay", w.debounceDelay))
	return nil
}

// Stop stops the watcher and waits for an in-flight callback to return.
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopChan)
	done := w.done
	w.mu.Unlock()

	<-done
	w.logger.Info("file watcher stopped")
	return nil
}

func (w *FileWatcher) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	pending := make(map[string]FileEvent)
	lastChange := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case now := <-ticker.C:
			for _, evt := range w.checkPaths(now) {
				pending[evt.Path] = evt
				lastChange[evt.Path] = now
			}
			for path, evt := range pending {
				if now.Sub(lastChange[path]) < w.debounceDelay {
					continue
				}
				delete(pending, path)
				delete(lastChange, path)
				w.dispatch(evt)
			}
		}
	}
}

func (w *FileWatcher) checkPaths(now time.Time) []FileEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	var events []FileEvent
	for _, p := range w.paths {
		fp, exists := scan(p)
		prev, tracked := w.fingerprints[p]
		switch {
		case !exists && tracked:
			delete(w.fingerprints, p)
			events = append(events, FileEvent{Path: p, Op: FileOpRemove, Timestamp: now})
		case exists && !tracked:
			w.fingerprints[p] = fp
			events = append(events, FileEvent{Path: p, Op: FileOpCreate, Timestamp: now})
		case exists && fp != prev:
			w.fingerprints[p] = fp
			events = append(events, FileEvent{Path: p, Op: FileOpWrite, Timestamp: now})
		}
	}
	return events
}

func (w *FileWatcher) dispatch(evt FileEvent) {
	w.mu.Lock()
	callbacks := slices.Clone(w.callbacks)
	w.mu.Unlock()

	w.logger.Debug("dispatching file event",
		zap.String("path", evt.Path),
		zap.String("op", evt.Op.String()))
	for _, cb := range callbacks {
		cb(evt)
	}
}

// scan fingerprints a file, or every regular file below a directory.
func scan(path string) (fingerprint, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return fingerprint{}, false
	}
	if !info.IsDir() {
		return fingerprint{modTime: info.ModTime(), size: info.Size(), files: 1}, true
	}

	var fp fingerprint
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		fp.files++
		fp.size += fi.Size()
		if fi.ModTime().After(fp.modTime) {
			fp.modTime = fi.ModTime()
		}
		return nil
	})
	return fp, true
}

// Paths returns the list of watched paths
func (w *FileWatcher) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.paths)
}

// IsRunning returns whether the watcher is running
func (w *FileWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
