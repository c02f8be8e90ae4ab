// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package conversation ties the dispatch loop to persistence for multi-message
conversations.

Each conversation owns one stored record: the terminal state of its latest
dispatch cycle. An inbound message for a known conversation builds a fresh
ACTIVE state from that record with agent.ResumeState, so the previous
exchange joins the transcript while the routing history starts empty. The
terminal state is stored again, its transcript capped at the configured
number of turns.

Messages for the same conversation are serialized inside one process.
Across processes the last writer wins.
*/
package conversation
