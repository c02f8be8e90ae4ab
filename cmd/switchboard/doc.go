// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main is the Switchboard service binary.

# Overview

cmd/switchboard wires the responder registry, the orchestrator, the
conversation store and the escalation queue into an HTTP service, and
offers the same engine in-process for one-off dispatches.

# Commands

  - serve: HTTP API, websocket event stream, /metrics and config hot reload
  - dispatch: one message or a JSON batch, dispatched without a server
  - migrate: golang-migrate subcommands against the configured database
  - health, version

# Usage

	switchboard serve                          # start the HTTP service
	switchboard serve --config config.yaml     # with a config file
	switchboard dispatch --message "refund"    # dispatch one message in-process
	switchboard dispatch --batch requests.json # dispatch a batch concurrently
	switchboard migrate up                     # apply database migrations
	switchboard health                         # probe a running server
	switchboard version                        # print build information

# Middleware

Requests pass Recovery, RequestID, SecurityHeaders, OTelTracing,
MetricsMiddleware, RequestLogger, CORS, RateLimiter and JWTAuth, in that
order. Probes and /metrics skip authentication.

# Shutdown

SIGINT or SIGTERM stops accepting connections, closes event streams,
drains in-flight requests and then releases the store, the database pool,
Redis and the telemetry exporters.
*/
package main
