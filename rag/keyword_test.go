package rag

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleDocs() []Document {
	return []Document{
		{ID: "refund", Title: "Refund policy", Content: "Refunds are issued within 5 business days to the original payment method.", Category: "billing", Tags: []string{"refund", "payment"}},
		{ID: "invoice", Title: "Downloading invoices", Content: "Invoices are available from the billing page of your account.", Category: "billing"},
		{ID: "reset", Title: "Password reset", Content: "Use the forgot password link to reset your password.", Category: "technical"},
		{ID: "hours", Title: "Support hours", Content: "Our support team is available around the clock."},
	}
}

func newIndexedKB(t *testing.T) *KeywordKnowledgeBase {
	t.Helper()
	kb := NewKeywordKnowledgeBase(DefaultKeywordConfig(), zap.NewNop())
	require.NoError(t, kb.Index(sampleDocs()...))
	return kb
}

func TestKeywordKnowledgeBase_Search(t *testing.T) {
	kb := newIndexedKB(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		query     string
		category  string
		wantFirst string
		wantNone  bool
	}{
		{name: "refund in billing", query: "I want a refund", category: "billing", wantFirst: "Refund policy"},
		{name: "category case-insensitive", query: "invoice billing page", category: "BILLING", wantFirst: "Downloading invoices"},
		{name: "other category hidden", query: "refund", category: "technical", wantNone: true},
		{name: "uncategorized visible everywhere", query: "support hours", category: "technical", wantFirst: "Support hours"},
		{name: "empty category sees all", query: "password reset", category: "", wantFirst: "Password reset"},
		{name: "stop words only", query: "what is the", category: "billing", wantNone: true},
		{name: "no overlap", query: "shipping label", category: "billing", wantNone: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := kb.Search(ctx, tt.query, tt.category, 3)
			require.NoError(t, err)
			require.NotNil(t, got)
			if tt.wantNone {
				assert.Empty(t, got)
				return
			}
			require.NotEmpty(t, got)
			assert.Equal(t, tt.wantFirst, got[0].Title)
		})
	}
}

func TestKeywordKnowledgeBase_Limit(t *testing.T) {
	kb := newIndexedKB(t)
	got, err := kb.Search(context.Background(), "billing refund invoices payment", "billing", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = kb.Search(context.Background(), "billing refund invoices payment", "billing", 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got), DefaultKeywordConfig().DefaultLimit)
}

func TestKeywordKnowledgeBase_ReplaceByID(t *testing.T) {
	kb := newIndexedKB(t)
	require.NoError(t, kb.Index(Document{ID: "refund", Title: "Returns", Content: "Returns are accepted for 30 days.", Category: "billing"}))
	assert.Equal(t, 4, kb.Len())

	got, err := kb.Search(context.Background(), "refund", "billing", 3)
	require.NoError(t, err)
	for _, r := range got {
		assert.NotEqual(t, "Refund policy", r.Title)
	}

	got, err = kb.Search(context.Background(), "returns", "billing", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Returns", got[0].Title)
}

func TestKeywordKnowledgeBase_IndexValidation(t *testing.T) {
	kb := NewKeywordKnowledgeBase(KeywordConfig{}, nil)
	err := kb.Index(Document{ID: "empty", Content: "   "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no content")

	require.NoError(t, kb.Index(Document{Content: "anonymous article"}))
	assert.Equal(t, 1, kb.Len())
}

func TestKeywordKnowledgeBase_EmptyIndexAndCancelledContext(t *testing.T) {
	kb := NewKeywordKnowledgeBase(DefaultKeywordConfig(), nil)
	got, err := kb.Search(context.Background(), "refund", "billing", 3)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = kb.Search(ctx, "refund", "billing", 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKeywordKnowledgeBase_ConcurrentIndexAndSearch(t *testing.T) {
	kb := newIndexedKB(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = kb.Search(context.Background(), "refund payment", "billing", 3)
		}()
		go func() {
			defer wg.Done()
			_ = kb.Index(Document{ID: "hours", Title: "Support hours", Content: "Always open."})
		}()
	}
	wg.Wait()
	assert.Equal(t, 4, kb.Len())
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"refund", "order", "42"}, tokenize("A refund, for order #42!"))
	assert.Empty(t, tokenize("the of and"))
}
