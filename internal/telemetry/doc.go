// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

// Package telemetry wires OpenTelemetry for switchboard: OTLP/gRPC export
// of the dispatch and hop spans, and an agent.Observer that records dispatch
// metrics through the OTel metric API. When disabled, the global noop
// providers stay in place and nothing is exported.
package telemetry
