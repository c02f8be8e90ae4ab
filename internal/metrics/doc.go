// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package metrics exports Prometheus metrics for the switchboard service.

# Overview

Collector registers every metric through promauto on the default registry,
scoped by a namespace. Labels stay low-cardinality: responder names,
statuses, terminal reasons and route templates, never conversation IDs.

# Coverage

  - HTTP: request count, latency and body sizes by method/path/status class.
  - Dispatch: cycles by status and terminal reason, hops per cycle, hop
    latency and confidence by responder, escalations by reason, in-flight
    dispatches and the pending escalation backlog. Collector implements
    agent.Observer for these.
  - LLM: request count, latency and token usage by provider/model, recorded
    by wrapping a generator with InstrumentGenerator.
  - Cache: hits and misses by cache type.
  - Database: open/idle connections and query latency.
*/
package metrics
