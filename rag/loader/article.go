package loader

import (
	"fmt"
	"strings"

	"github.com/BaSui01/switchboard/rag"
)

// article is the record shape shared by the structured formats.
type article struct {
	ID       string         `json:"id" yaml:"id"`
	Title    string         `json:"title" yaml:"title"`
	Content  string         `json:"content" yaml:"content"`
	Category string         `json:"category" yaml:"category"`
	Tags     []string       `json:"tags" yaml:"tags"`
	Metadata map[string]any `json:"metadata" yaml:"metadata"`
}

// articlesToDocs validates records and converts them to Documents. Records
// without an id get "<source>#<index>".
func articlesToDocs(source, contentType, loader string, items []article) ([]rag.Document, error) {
	docs := make([]rag.Document, 0, len(items))
	for i, a := range items {
		if strings.TrimSpace(a.Content) == "" {
			return nil, fmt.Errorf("%s loader: record %d in %s has no content", loader, i, source)
		}
		id := a.ID
		if id == "" {
			id = fmt.Sprintf("%s#%d", source, i)
		}

		meta := baseMetadata(source, contentType, loader)
		meta["index"] = i
		for k, v := range a.Metadata {
			meta[k] = v
		}

		docs = append(docs, rag.Document{
			ID:       id,
			Title:    a.Title,
			Content:  strings.TrimSpace(a.Content),
			Category: a.Category,
			Tags:     a.Tags,
			Metadata: meta,
		})
	}
	return docs, nil
}
