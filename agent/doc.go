// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package agent implements the conversation orchestration engine: the responder
registry, the conversation state record and the dispatch loop that routes an
inbound message through specialist responders until it is resolved, escalated
to a human or failed.

# Architecture

	┌──────────────────────────────────────────────────────────────┐
	│                        Orchestrator                          │
	│  lookup → loop guard → enrich → invoke → merge → arbitrate   │
	├──────────────────────────────────────────────────────────────┤
	│  ┌──────────────┐  ┌──────────────┐  ┌────────────────────┐  │
	│  │   Registry   │  │  LoopGuard   │  │  EscalationPolicy  │  │
	│  │   (frozen)   │  │              │  │                    │  │
	│  └──────────────┘  └──────────────┘  └────────────────────┘  │
	├──────────────────────────────────────────────────────────────┤
	│  KnowledgeBase · EscalationQueue · EntityExtractor · Observer │
	└──────────────────────────────────────────────────────────────┘

# Registry

Responders are registered through a start-up manifest and the registry is
frozen before the first dispatch:

	reg, err := agent.Bootstrap(logger,
	    agent.Entry("triage", triage, agent.TierFrontline, "routing"),
	    agent.Entry("billing", billing, agent.TierSpecialist, "billing", agent.CapKBSearch),
	)

A duplicate name overwrites the earlier entry and is logged as a conflict.
Lookups on the frozen Registry take no locks.

# State machine

A ConversationState starts ACTIVE. RESOLVED, ESCALATED and FAILED are
terminal; no transition leaves them. Only the Orchestrator changes Status.
TurnCount always equals len(AgentHistory).

# Dispatch

Dispatch never returns an error. Unknown responders and tripped loop guards
escalate; responder errors, panics and timeouts fail the conversation with
the cause recorded in TerminalDetail. Every terminal state carries a
human-readable AgentResponse.
*/
package agent
