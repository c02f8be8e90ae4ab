// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package handlers implements the Switchboard HTTP API.

# Endpoints

  - ConversationHandler: POST /v1/messages dispatches a customer message;
    GET, LIST and DELETE on /v1/conversations manage stored records.
  - EscalationHandler: lists escalation tickets and lets a human claim,
    resolve or cancel them under /v1/escalations.
  - StreamHub: GET /v1/stream pushes hop, dispatch and escalation events
    over a websocket. The hub is an agent.Observer.
  - ConfigHandler: admin endpoints under /v1/admin/config.
  - HealthHandler: /health, /ready and /version.

Every JSON response uses the api.Response envelope. Errors carrying a
*types.Error map their code onto an HTTP status; any other error is
reported as INTERNAL_ERROR.
*/
package handlers
