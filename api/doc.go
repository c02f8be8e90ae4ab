// Package api defines the wire types of the Switchboard HTTP API.
//
// # API Overview
//
// Switchboard exposes a small JSON API:
//   - POST /v1/messages dispatches one customer message
//   - /v1/conversations lists, reads and forgets stored conversations
//   - /v1/escalations lets humans claim, resolve or cancel escalated tickets
//   - GET /v1/stream streams dispatch progress over a websocket
//   - /v1/admin/config exposes the live configuration (admin only)
//   - /health, /ready, /version and /metrics for operations
//
// Every JSON response uses the Response envelope.
//
// # Authentication
//
// When auth is enabled, /v1 endpoints require a bearer token:
//
//	Authorization: Bearer <jwt>
//
// The token subject is recorded as the caller, e.g. as the default assignee
// of a claimed escalation.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
package api
