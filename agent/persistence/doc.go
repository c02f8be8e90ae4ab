// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package persistence stores conversation records between inbound messages.

# Model

One record per conversation: the terminal state of its latest dispatch cycle,
transcript included. The next message for the same conversation is resumed
from that record with agent.ResumeState.

# Backends

  - Memory: development and tests, lost on restart.
  - Redis: JSON value per conversation with the retention as TTL, plus a
    sorted-set index for listing.
  - Database: gorm over the "conversations" table created by the migrations
    (postgres, mysql or sqlite).

Use NewConversationStore to pick one from configuration:

	store, err := persistence.NewConversationStore(cfg, persistence.Backends{Redis: rdb, DB: db})
*/
package persistence
