// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package rag provides the knowledge base responders search while handling a
conversation.

# Types

  - Document: one article with title, content, category and tags.
  - KeywordKnowledgeBase: in-memory BM25 index implementing
    agent.KnowledgeBase. Articles with an empty category are visible to
    every responder category.
  - CachedKnowledgeBase: Redis-backed memoization of Search results through
    internal/cache.Manager.

Articles are read from disk by the loader subpackage:

	docs, err := loader.NewLoaderRegistry().LoadAll(ctx, "kb/")
	kb := rag.NewKeywordKnowledgeBase(rag.DefaultKeywordConfig(), logger)
	err = kb.Index(docs...)
*/
package rag
