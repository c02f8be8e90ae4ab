// Package loader reads knowledge-base articles from disk into rag.Document.
//
// Supported formats out of the box:
//   - Plain text (.txt): one article per file
//   - Markdown (.md, .markdown): one article per heading section
//   - CSV (.csv): one article per row, columns id/title/content/category/tags
//   - JSON / JSONL (.json, .jsonl): article objects
//   - YAML (.yaml, .yml): a list of articles or a "documents" mapping
//
// Use LoaderRegistry to route loading by file extension, or LoadAll to read
// whole directories:
//
//	registry := loader.NewLoaderRegistry()
//	docs, err := registry.LoadAll(ctx, "/srv/kb")
//
// Custom loaders can be registered for any extension:
//
//	registry.Register(".html", myHTMLLoader)
package loader
