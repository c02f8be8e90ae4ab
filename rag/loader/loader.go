package loader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/switchboard/rag"
)

// DocumentLoader reads one file into knowledge-base articles.
type DocumentLoader interface {
	// Load reads the file at source and returns its documents.
	Load(ctx context.Context, source string) ([]rag.Document, error)

	// SupportedTypes returns the file extensions this loader handles (e.g. ".md").
	SupportedTypes() []string
}

// LoaderRegistry routes Load calls to the appropriate DocumentLoader based on file extension.
type LoaderRegistry struct {
	mu      sync.RWMutex
	loaders map[string]DocumentLoader // extension (lowercase, with dot) -> loader
}

// NewLoaderRegistry creates a registry pre-populated with the built-in loaders.
func NewLoaderRegistry() *LoaderRegistry {
	r := &LoaderRegistry{
		loaders: make(map[string]DocumentLoader),
	}

	builtins := []DocumentLoader{
		NewTextLoader(),
		NewMarkdownLoader(),
		NewCSVLoader(),
		NewJSONLoader(),
		NewYAMLLoader(),
	}
	for _, l := range builtins {
		for _, ext := range l.SupportedTypes() {
			r.loaders[strings.ToLower(ext)] = l
		}
	}

	return r
}

// Register adds or replaces a loader for the given file extension.
// ext should include the leading dot (e.g. ".html").
func (r *LoaderRegistry) Register(ext string, loader DocumentLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[strings.ToLower(ext)] = loader
}

func (r *LoaderRegistry) lookup(source string) (DocumentLoader, error) {
	ext := strings.ToLower(filepath.Ext(source))
	if ext == "" {
		return nil, fmt.Errorf("loader: cannot determine file type for %q (no extension)", source)
	}

	r.mu.RLock()
	l, ok := r.loaders[ext]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("loader: no loader registered for extension %q", ext)
	}
	return l, nil
}

// Load determines the loader from the source's file extension and delegates to it.
func (r *LoaderRegistry) Load(ctx context.Context, source string) ([]rag.Document, error) {
	l, err := r.lookup(source)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, source)
}

// LoadAll loads every path. Files are loaded with Load; directories are
// walked and files with unregistered extensions skipped. Inside a directory,
// documents without a category take the name of the first-level
// subdirectory they sit in, so kb/billing/refunds.md lands in "billing".
func (r *LoaderRegistry) LoadAll(ctx context.Context, paths ...string) ([]rag.Document, error) {
	var docs []rag.Document
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("loader: %w", err)
		}
		if !info.IsDir() {
			loaded, err := r.Load(ctx, p)
			if err != nil {
				return nil, err
			}
			docs = append(docs, loaded...)
			continue
		}

		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			l, lookupErr := r.lookup(path)
			if lookupErr != nil {
				return nil
			}
			loaded, err := l.Load(ctx, path)
			if err != nil {
				return err
			}
			category := categoryFromPath(p, path)
			for i := range loaded {
				if loaded[i].Category == "" {
					loaded[i].Category = category
				}
			}
			docs = append(docs, loaded...)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("loader: walking %s: %w", p, err)
		}
	}
	return docs, nil
}

func categoryFromPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

// SupportedTypes returns all registered extensions, sorted.
func (r *LoaderRegistry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func baseMetadata(source, contentType, loader string) map[string]any {
	return map[string]any{
		"source_file":  filepath.Base(source),
		"source_path":  source,
		"content_type": contentType,
		"loader":       loader,
	}
}

func stem(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
