package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/BaSui01/switchboard/agent"
)

// KeywordConfig tunes BM25 scoring.
type KeywordConfig struct {
	K1 float64 `yaml:"k1" json:"k1"`
	B  float64 `yaml:"b" json:"b"`

	// MinScore drops hits scoring at or below it.
	MinScore float64 `yaml:"min_score" json:"min_score"`

	// DefaultLimit applies when Search is called with limit <= 0.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`
}

// DefaultKeywordConfig returns the standard BM25 parameters.
func DefaultKeywordConfig() KeywordConfig {
	return KeywordConfig{K1: 1.2, B: 0.75, DefaultLimit: 3}
}

type indexedDoc struct {
	doc    Document
	terms  map[string]int
	length int
}

// KeywordKnowledgeBase is an in-memory BM25 index over Documents. It
// implements agent.KnowledgeBase and is safe for concurrent use.
type KeywordKnowledgeBase struct {
	config KeywordConfig
	logger *zap.Logger

	mu       sync.RWMutex
	docs     []*indexedDoc
	byID     map[string]int
	docFreq  map[string]int
	totalLen int
}

// NewKeywordKnowledgeBase creates an empty index.
func NewKeywordKnowledgeBase(config KeywordConfig, logger *zap.Logger) *KeywordKnowledgeBase {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultKeywordConfig()
	if config.K1 <= 0 {
		config.K1 = def.K1
	}
	if config.B < 0 || config.B > 1 {
		config.B = def.B
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = def.DefaultLimit
	}
	return &KeywordKnowledgeBase{
		config:  config,
		logger:  logger.With(zap.String("component", "keyword_kb")),
		byID:    make(map[string]int),
		docFreq: make(map[string]int),
	}
}

// Index adds documents, replacing any with the same ID. Documents without
// an ID get one derived from their position; documents with no content are
// rejected.
func (kb *KeywordKnowledgeBase) Index(docs ...Document) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	for i, doc := range docs {
		if strings.TrimSpace(doc.Content) == "" {
			return fmt.Errorf("document %d (%q) has no content", i, doc.ID)
		}
		if doc.ID == "" {
			doc.ID = fmt.Sprintf("doc-%d", len(kb.docs))
		}

		terms := termFrequencies(tokenize(doc.text()))
		entry := &indexedDoc{doc: doc, terms: terms}
		for _, n := range terms {
			entry.length += n
		}

		if pos, ok := kb.byID[doc.ID]; ok {
			kb.forget(kb.docs[pos])
			kb.docs[pos] = entry
		} else {
			kb.byID[doc.ID] = len(kb.docs)
			kb.docs = append(kb.docs, entry)
		}
		for term := range terms {
			kb.docFreq[term]++
		}
		kb.totalLen += entry.length
	}

	kb.logger.Debug("documents indexed",
		zap.Int("added", len(docs)),
		zap.Int("total", len(kb.docs)),
	)
	return nil
}

func (kb *KeywordKnowledgeBase) forget(old *indexedDoc) {
	for term := range old.terms {
		if kb.docFreq[term]--; kb.docFreq[term] <= 0 {
			delete(kb.docFreq, term)
		}
	}
	kb.totalLen -= old.length
}

// Len returns the number of indexed documents.
func (kb *KeywordKnowledgeBase) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.docs)
}

// Search ranks the documents visible to category against query. An empty
// result is a valid answer.
func (kb *KeywordKnowledgeBase) Search(ctx context.Context, query, category string, limit int) ([]agent.KBResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = kb.config.DefaultLimit
	}

	queryTerms := termFrequencies(tokenize(query))
	if len(queryTerms) == 0 {
		return []agent.KBResult{}, nil
	}

	kb.mu.RLock()
	defer kb.mu.RUnlock()

	if len(kb.docs) == 0 {
		return []agent.KBResult{}, nil
	}

	n := float64(len(kb.docs))
	avgLen := float64(kb.totalLen) / n

	type hit struct {
		doc   *indexedDoc
		score float64
	}
	var hits []hit
	for _, d := range kb.docs {
		if !d.doc.InCategory(category) {
			continue
		}
		score := 0.0
		for term := range queryTerms {
			tf := float64(d.terms[term])
			if tf == 0 {
				continue
			}
			df := float64(kb.docFreq[term])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := kb.config.K1 * (1 - kb.config.B + kb.config.B*float64(d.length)/avgLen)
			score += idf * tf * (kb.config.K1 + 1) / (tf + norm)
		}
		if score > kb.config.MinScore {
			hits = append(hits, hit{doc: d, score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].doc.doc.ID < hits[j].doc.doc.ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]agent.KBResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, agent.KBResult{Title: h.doc.doc.Title, Content: h.doc.doc.Content})
	}
	return results, nil
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "do": true,
	"does": true, "did": true, "i": true, "you": true, "it": true,
	"we": true, "my": true, "me": true, "your": true, "this": true,
	"that": true, "to": true, "of": true, "in": true, "for": true,
	"on": true, "with": true, "at": true, "by": true, "from": true,
	"as": true, "and": true, "or": true, "but": true, "if": true,
	"how": true, "what": true, "can": true, "please": true, "want": true,
}

// tokenize lowercases text and splits it on anything that is not a letter
// or digit, dropping stop words.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopWords[f] {
			out = append(out, f)
		}
	}
	return out
}

func termFrequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}
