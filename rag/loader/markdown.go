package loader

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/BaSui01/switchboard/rag"
)

// MarkdownLoader loads Markdown files, one Document per heading section.
// The heading becomes the title; text before the first heading is titled
// after the file.
type MarkdownLoader struct{}

// NewMarkdownLoader creates a MarkdownLoader.
func NewMarkdownLoader() *MarkdownLoader {
	return &MarkdownLoader{}
}

// Load reads a Markdown file and splits it into Documents by heading.
// Sections without body text are skipped.
func (l *MarkdownLoader) Load(ctx context.Context, source string) ([]rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("markdown loader: %w", err)
	}
	defer f.Close()

	type section struct {
		heading string
		level   int
		lines   []string
	}

	var sections []section
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if heading, level := parseHeading(line); heading != "" {
			sections = append(sections, section{heading: heading, level: level})
			continue
		}
		if len(sections) == 0 {
			sections = append(sections, section{})
		}
		sections[len(sections)-1].lines = append(sections[len(sections)-1].lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("markdown loader: reading %s: %w", source, err)
	}

	docs := make([]rag.Document, 0, len(sections))
	for i, sec := range sections {
		content := strings.TrimSpace(strings.Join(sec.lines, "\n"))
		if content == "" {
			continue
		}

		meta := baseMetadata(source, "text/markdown", "markdown")
		meta["section"] = i
		title := sec.heading
		if title == "" {
			title = stem(source)
		} else {
			meta["heading_level"] = sec.level
		}

		docs = append(docs, rag.Document{
			ID:       fmt.Sprintf("%s#%d", source, i),
			Title:    title,
			Content:  content,
			Metadata: meta,
		})
	}

	return docs, nil
}

// parseHeading detects ATX-style headings (# Heading).
// Returns the heading text and level (1-6), or ("", 0) if not a heading.
func parseHeading(line string) (heading string, level int) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return "", 0
	}
	for _, ch := range trimmed {
		if ch != '#' {
			break
		}
		level++
	}
	if level > 6 {
		return "", 0
	}
	heading = strings.TrimSpace(trimmed[level:])
	if heading == "" {
		return "", 0
	}
	return heading, level
}

// SupportedTypes returns the extensions handled by MarkdownLoader.
func (l *MarkdownLoader) SupportedTypes() []string {
	return []string{".md", ".markdown"}
}
