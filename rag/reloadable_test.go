package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestReloadableKnowledgeBase_EmptyBeforeReload(t *testing.T) {
	kb := NewReloadableKnowledgeBase(DefaultKeywordConfig(), func(context.Context) ([]Document, error) {
		return sampleDocs(), nil
	}, nil)

	res, err := kb.Search(context.Background(), "refund", "billing", 3)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Equal(t, 0, kb.Len())
}

func TestReloadableKnowledgeBase_ReloadSwapsIndex(t *testing.T) {
	docs := sampleDocs()
	kb := NewReloadableKnowledgeBase(DefaultKeywordConfig(), func(context.Context) ([]Document, error) {
		return docs, nil
	}, zaptest.NewLogger(t))

	var reloads []int
	kb.OnReload(func(n int) { reloads = append(reloads, n) })
	ctx := context.Background()

	require.NoError(t, kb.Reload(ctx))
	res, err := kb.Search(ctx, "refund", "billing", 3)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "Refund policy", res[0].Title)

	// the refund article is deleted from disk
	docs = docs[1:]
	require.NoError(t, kb.Reload(ctx))
	res, err = kb.Search(ctx, "refund", "billing", 3)
	require.NoError(t, err)
	for _, r := range res {
		assert.NotEqual(t, "Refund policy", r.Title)
	}
	assert.Equal(t, []int{4, 3}, reloads)
}

func TestReloadableKnowledgeBase_FailedReloadKeepsIndex(t *testing.T) {
	fail := false
	kb := NewReloadableKnowledgeBase(DefaultKeywordConfig(), func(context.Context) ([]Document, error) {
		if fail {
			return nil, errors.New("disk gone")
		}
		return sampleDocs(), nil
	}, nil)
	ctx := context.Background()
	require.NoError(t, kb.Reload(ctx))

	fail = true
	err := kb.Reload(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
	assert.Equal(t, 4, kb.Len())

	kb.SetLoader(func(context.Context) ([]Document, error) {
		return []Document{{ID: "blank", Content: "  "}}, nil
	})
	require.Error(t, kb.Reload(ctx), "an article without content is rejected")
	assert.Equal(t, 4, kb.Len())
}

func TestReloadableKnowledgeBase_SetConfig(t *testing.T) {
	kb := NewReloadableKnowledgeBase(DefaultKeywordConfig(), func(context.Context) ([]Document, error) {
		return sampleDocs(), nil
	}, nil)
	ctx := context.Background()
	require.NoError(t, kb.Reload(ctx))

	res, err := kb.Search(ctx, "refund", "billing", 3)
	require.NoError(t, err)
	require.NotEmpty(t, res)

	cfg := DefaultKeywordConfig()
	cfg.MinScore = 1e9
	kb.SetConfig(cfg)
	require.NoError(t, kb.Reload(ctx))

	res, err = kb.Search(ctx, "refund", "billing", 3)
	require.NoError(t, err)
	assert.Empty(t, res)
}
