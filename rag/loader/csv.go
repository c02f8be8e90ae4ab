package loader

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/BaSui01/switchboard/rag"
)

// CSVLoader loads CSV files whose header names the article columns: id,
// title, content, category and tags (separated by ';'). A content column is
// required; unknown columns are kept as metadata.
type CSVLoader struct {
	// Delimiter is the field separator. Defaults to ','.
	Delimiter rune
}

// NewCSVLoader creates a comma-separated CSVLoader.
func NewCSVLoader() *CSVLoader {
	return &CSVLoader{Delimiter: ','}
}

// Load reads a CSV file and returns one Document per row.
func (l *CSVLoader) Load(ctx context.Context, source string) ([]rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("csv loader: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if l.Delimiter != 0 {
		reader.Comma = l.Delimiter
	}
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv loader: parsing %s: %w", source, err)
	}
	if len(records) < 2 {
		return []rag.Document{}, nil
	}

	header := make([]string, len(records[0]))
	hasContent := false
	for i, h := range records[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
		hasContent = hasContent || header[i] == "content"
	}
	if !hasContent {
		return nil, fmt.Errorf("csv loader: %s has no content column", source)
	}

	items := make([]article, 0, len(records)-1)
	for _, row := range records[1:] {
		var a article
		for i, col := range header {
			if i >= len(row) {
				break
			}
			val := strings.TrimSpace(row[i])
			switch col {
			case "id":
				a.ID = val
			case "title":
				a.Title = val
			case "content":
				a.Content = val
			case "category":
				a.Category = val
			case "tags":
				for _, tag := range strings.Split(val, ";") {
					if tag = strings.TrimSpace(tag); tag != "" {
						a.Tags = append(a.Tags, tag)
					}
				}
			default:
				if a.Metadata == nil {
					a.Metadata = make(map[string]any)
				}
				a.Metadata[col] = val
			}
		}
		items = append(items, a)
	}

	return articlesToDocs(source, "text/csv", "csv", items)
}

// SupportedTypes returns the extensions handled by CSVLoader.
func (l *CSVLoader) SupportedTypes() []string {
	return []string{".csv"}
}
