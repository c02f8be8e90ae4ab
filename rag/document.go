package rag

import "strings"

// Document is one knowledge-base article.
//
// An empty Category makes the article visible to every responder category.
type Document struct {
	ID       string         `json:"id" yaml:"id"`
	Title    string         `json:"title" yaml:"title"`
	Content  string         `json:"content" yaml:"content"`
	Category string         `json:"category,omitempty" yaml:"category,omitempty"`
	Tags     []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// InCategory reports whether the document is visible to category. An empty
// query category sees every document.
func (d Document) InCategory(category string) bool {
	return category == "" || d.Category == "" || strings.EqualFold(d.Category, category)
}

// text is the indexed body: title, tags and content.
func (d Document) text() string {
	var b strings.Builder
	b.WriteString(d.Title)
	for _, tag := range d.Tags {
		b.WriteByte(' ')
		b.WriteString(tag)
	}
	b.WriteByte(' ')
	b.WriteString(d.Content)
	return b.String()
}
