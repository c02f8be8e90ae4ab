package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/switchboard/rag"
)

// YAMLLoader loads articles from YAML. The file is either a list of
// articles or a mapping with a "documents" list.
type YAMLLoader struct{}

// NewYAMLLoader creates a YAMLLoader.
func NewYAMLLoader() *YAMLLoader {
	return &YAMLLoader{}
}

// Load reads a YAML file and returns Documents.
func (l *YAMLLoader) Load(ctx context.Context, source string) ([]rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("yaml loader: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []rag.Document{}, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("yaml loader: parsing %s: %w", source, err)
	}

	var items []article
	node := &root
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	switch node.Kind {
	case yaml.SequenceNode:
		err = node.Decode(&items)
	case yaml.MappingNode:
		var wrapper struct {
			Documents []article `yaml:"documents"`
		}
		err = node.Decode(&wrapper)
		items = wrapper.Documents
	default:
		err = errors.New("expected a list or a documents mapping")
	}
	if err != nil {
		return nil, fmt.Errorf("yaml loader: decoding %s: %w", source, err)
	}

	return articlesToDocs(source, "application/yaml", "yaml", items)
}

// SupportedTypes returns the extensions handled by YAMLLoader.
func (l *YAMLLoader) SupportedTypes() []string {
	return []string{".yaml", ".yml"}
}
