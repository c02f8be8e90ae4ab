package loader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/BaSui01/switchboard/rag"
)

// TextLoader loads plain text files as a single Document titled after the
// file name.
type TextLoader struct{}

// NewTextLoader creates a TextLoader.
func NewTextLoader() *TextLoader {
	return &TextLoader{}
}

// Load reads a text file and returns it as a single Document. Blank files
// yield no documents.
func (l *TextLoader) Load(ctx context.Context, source string) ([]rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("text loader: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return []rag.Document{}, nil
	}

	return []rag.Document{{
		ID:       source,
		Title:    strings.ReplaceAll(stem(source), "_", " "),
		Content:  content,
		Metadata: baseMetadata(source, "text/plain", "text"),
	}}, nil
}

// SupportedTypes returns the extensions handled by TextLoader.
func (l *TextLoader) SupportedTypes() []string {
	return []string{".txt"}
}
