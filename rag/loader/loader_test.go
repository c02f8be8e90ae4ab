package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/switchboard/rag"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// ============================================================
// LoaderRegistry Tests
// ============================================================

func TestNewLoaderRegistry_HasBuiltinLoaders(t *testing.T) {
	t.Parallel()

	types := NewLoaderRegistry().SupportedTypes()
	for _, ext := range []string{".txt", ".md", ".markdown", ".csv", ".json", ".jsonl", ".yaml", ".yml"} {
		assert.Contains(t, types, ext)
	}
}

func TestLoaderRegistry_Register_CustomLoader(t *testing.T) {
	t.Parallel()

	r := NewLoaderRegistry()
	r.Register(".XML", NewTextLoader())
	assert.Contains(t, r.SupportedTypes(), ".xml")
}

func TestLoaderRegistry_Load_Errors(t *testing.T) {
	t.Parallel()

	r := NewLoaderRegistry()
	_, err := r.Load(context.Background(), "noextension")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no extension")

	_, err = r.Load(context.Background(), "file.xyz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no loader registered")
}

func TestLoaderRegistry_Load_CaseInsensitive(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "opening_hours.TXT", "hello")
	docs, err := NewLoaderRegistry().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "hello", docs[0].Content)
	assert.Equal(t, "opening hours", docs[0].Title)
}

func TestLoaderRegistry_LoadAll(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "general.md", "# Support hours\nAlways open.\n")
	writeFile(t, dir, "billing/refunds.md", "# Refunds\nFive business days.\n")
	writeFile(t, dir, "billing/deep/invoices.yaml", "- title: Invoices\n  content: From the billing page.\n")
	writeFile(t, dir, "technical/faq.json", `[{"title":"Reset","content":"Use the link.","category":"account"}]`)
	writeFile(t, dir, "technical/notes.bin", "ignored")
	single := writeFile(t, t.TempDir(), "extra.txt", "Extra article")

	docs, err := NewLoaderRegistry().LoadAll(context.Background(), dir, single)
	require.NoError(t, err)

	byTitle := make(map[string]rag.Document)
	for _, d := range docs {
		byTitle[d.Title] = d
	}
	require.Len(t, byTitle, 5)
	assert.Equal(t, "", byTitle["Support hours"].Category)
	assert.Equal(t, "billing", byTitle["Refunds"].Category)
	assert.Equal(t, "billing", byTitle["Invoices"].Category)
	assert.Equal(t, "account", byTitle["Reset"].Category, "explicit category wins")
	assert.Equal(t, "", byTitle["extra"].Category)
}

func TestLoaderRegistry_LoadAll_Errors(t *testing.T) {
	t.Parallel()

	r := NewLoaderRegistry()
	_, err := r.LoadAll(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	dir := t.TempDir()
	writeFile(t, dir, "bad.json", "{not json")
	_, err = r.LoadAll(context.Background(), dir)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	writeFile(t, dir, "ok.txt", "fine")
	_, err = r.LoadAll(ctx, dir)
	assert.Error(t, err)
}

// ============================================================
// Text / Markdown
// ============================================================

func TestTextLoader_Load(t *testing.T) {
	t.Parallel()

	l := NewTextLoader()
	_, err := l.Load(context.Background(), "/nonexistent/file.txt")
	assert.Error(t, err)

	blank := writeFile(t, t.TempDir(), "blank.txt", "  \n")
	docs, err := l.Load(context.Background(), blank)
	require.NoError(t, err)
	assert.Empty(t, docs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Load(ctx, blank)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMarkdownLoader_Load_WithHeadings(t *testing.T) {
	t.Parallel()

	content := "Intro text\n\n# Refunds\nFive business days.\n\n## Partial refunds\nPro-rated.\n\n# Empty\n"
	path := writeFile(t, t.TempDir(), "billing.md", content)

	docs, err := NewMarkdownLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "billing", docs[0].Title)
	assert.Equal(t, "Intro text", docs[0].Content)
	assert.Equal(t, "Refunds", docs[1].Title)
	assert.Equal(t, "Five business days.", docs[1].Content)
	assert.Equal(t, 1, docs[1].Metadata["heading_level"])
	assert.Equal(t, "Partial refunds", docs[2].Title)
	assert.Equal(t, 2, docs[2].Metadata["heading_level"])
	assert.Equal(t, "markdown", docs[2].Metadata["loader"])
}

func TestMarkdownLoader_Load_EmptyFile(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "empty.md", "")
	docs, err := NewMarkdownLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestParseHeading(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line    string
		heading string
		level   int
	}{
		{"# Title", "Title", 1},
		{"### Sub", "Sub", 3},
		{"  ## Indented  ", "Indented", 2},
		{"####### Too deep", "", 0},
		{"#", "", 0},
		{"plain", "", 0},
	}
	for _, tt := range tests {
		heading, level := parseHeading(tt.line)
		assert.Equal(t, tt.heading, heading, tt.line)
		assert.Equal(t, tt.level, level, tt.line)
	}
}

// ============================================================
// Structured formats
// ============================================================

func TestCSVLoader_Load(t *testing.T) {
	t.Parallel()

	content := "id,title,content,category,tags,owner\n" +
		"r1,Refunds,Five business days.,billing,refund; money,finance\n" +
		",Hours,Always open.,,,\n"
	path := writeFile(t, t.TempDir(), "kb.csv", content)

	docs, err := NewCSVLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "r1", docs[0].ID)
	assert.Equal(t, "billing", docs[0].Category)
	assert.Equal(t, []string{"refund", "money"}, docs[0].Tags)
	assert.Equal(t, "finance", docs[0].Metadata["owner"])
	assert.Equal(t, path+"#1", docs[1].ID)
}

func TestCSVLoader_Load_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	noContent := writeFile(t, dir, "a.csv", "title\nx\n")
	_, err := NewCSVLoader().Load(context.Background(), noContent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no content column")

	headerOnly := writeFile(t, dir, "b.csv", "title,content\n")
	docs, err := NewCSVLoader().Load(context.Background(), headerOnly)
	require.NoError(t, err)
	assert.Empty(t, docs)

	semicolon := writeFile(t, dir, "c.csv", "title;content\nT;Body\n")
	docs, err = (&CSVLoader{Delimiter: ';'}).Load(context.Background(), semicolon)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Body", docs[0].Content)
}

func TestJSONLoader_Load(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l := NewJSONLoader()

	array := writeFile(t, dir, "a.json", `[{"id":"r1","title":"Refunds","content":"Five days","category":"billing","tags":["refund"]},{"title":"Hours","content":"Always"}]`)
	docs, err := l.Load(context.Background(), array)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "r1", docs[0].ID)
	assert.Equal(t, []string{"refund"}, docs[0].Tags)
	assert.Equal(t, array+"#1", docs[1].ID)

	object := writeFile(t, dir, "o.json", `{"title":"One","content":"Single","metadata":{"lang":"en"}}`)
	docs, err = l.Load(context.Background(), object)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "en", docs[0].Metadata["lang"])

	lines := writeFile(t, dir, "l.jsonl", "{\"title\":\"A\",\"content\":\"a\"}\n\n{\"title\":\"B\",\"content\":\"b\"}\n")
	docs, err = l.Load(context.Background(), lines)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	empty := writeFile(t, dir, "e.json", "  ")
	docs, err = l.Load(context.Background(), empty)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestJSONLoader_Load_Invalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l := NewJSONLoader()

	_, err := l.Load(context.Background(), writeFile(t, dir, "bad.json", "{oops"))
	assert.Error(t, err)

	_, err = l.Load(context.Background(), writeFile(t, dir, "bad.jsonl", "{\"content\":\"ok\"}\nnope\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, err = l.Load(context.Background(), writeFile(t, dir, "nocontent.json", `[{"title":"x"}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no content")
}

func TestYAMLLoader_Load(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l := NewYAMLLoader()

	list := writeFile(t, dir, "list.yaml", "- id: r1\n  title: Refunds\n  content: Five days\n  category: billing\n  tags: [refund]\n")
	docs, err := l.Load(context.Background(), list)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "r1", docs[0].ID)
	assert.Equal(t, "billing", docs[0].Category)
	assert.Equal(t, "yaml", docs[0].Metadata["loader"])

	wrapped := writeFile(t, dir, "wrapped.yml", "documents:\n  - title: A\n    content: a\n  - title: B\n    content: b\n")
	docs, err = l.Load(context.Background(), wrapped)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	_, err = l.Load(context.Background(), writeFile(t, dir, "scalar.yaml", "just text"))
	assert.Error(t, err)

	_, err = l.Load(context.Background(), writeFile(t, dir, "broken.yaml", "- title: [unclosed"))
	assert.Error(t, err)

	docs, err = l.Load(context.Background(), writeFile(t, dir, "empty.yaml", "\n"))
	require.NoError(t, err)
	assert.Empty(t, docs)
}
