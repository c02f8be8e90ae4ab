package api

import (
	"time"

	"github.com/BaSui01/switchboard/agent"
)

// Response is the envelope of every JSON API response.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo describes a failed request.
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	HTTPStatus int    `json:"-"`
}

// MessageRequest is the body of POST /v1/messages.
type MessageRequest struct {
	// ConversationID continues an existing conversation; empty starts one.
	ConversationID   string         `json:"conversation_id,omitempty"`
	Message          string         `json:"message"`
	CustomerMetadata map[string]any `json:"customer_metadata,omitempty"`
	Entities         map[string]any `json:"entities,omitempty"`
	EntryAgent       string         `json:"entry_agent,omitempty"`
}

// DispatchRequest converts the body into an engine request.
func (r MessageRequest) DispatchRequest() agent.DispatchRequest {
	return agent.DispatchRequest{
		ConversationID:   r.ConversationID,
		CurrentMessage:   r.Message,
		CustomerMetadata: r.CustomerMetadata,
		Entities:         r.Entities,
		EntryAgent:       r.EntryAgent,
	}
}

// MessageResponse is the data of a successful POST /v1/messages. Persisted
// is false when the reply was produced but the conversation record could not
// be stored; the next message then starts from the previous record.
type MessageResponse struct {
	agent.DispatchResult
	Persisted bool `json:"persisted"`
}

// ConversationSummary is one entry of GET /v1/conversations.
type ConversationSummary struct {
	ConversationID string               `json:"conversation_id"`
	Status         agent.Status         `json:"status"`
	TerminalReason agent.TerminalReason `json:"terminal_reason,omitempty"`
	LastResponder  string               `json:"last_responder,omitempty"`
	TurnCount      int                  `json:"turn_count"`
	Messages       int                  `json:"messages"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// SummarizeConversation builds the list entry of a stored state.
func SummarizeConversation(s *agent.ConversationState) ConversationSummary {
	return ConversationSummary{
		ConversationID: s.ConversationID,
		Status:         s.Status,
		TerminalReason: s.TerminalReason,
		LastResponder:  s.LastResponder(),
		TurnCount:      s.TurnCount,
		Messages:       len(s.Transcript),
		UpdatedAt:      s.UpdatedAt,
	}
}

// ClaimRequest is the body of POST /v1/escalations/{id}/claim. An empty
// assignee claims the ticket for the authenticated caller.
type ClaimRequest struct {
	Assignee string `json:"assignee,omitempty"`
}

// ResolveRequest is the body of POST /v1/escalations/{id}/resolve.
type ResolveRequest struct {
	Reply      string `json:"reply"`
	Comment    string `json:"comment,omitempty"`
	ResolvedBy string `json:"resolved_by,omitempty"`
}

// StreamEvent is one frame sent on GET /v1/stream.
type StreamEvent struct {
	// Type: hop, dispatch or escalation
	Type           string               `json:"type"`
	ConversationID string               `json:"conversation_id"`
	Responder      string               `json:"responder,omitempty"`
	Hop            int                  `json:"hop,omitempty"`
	Status         agent.Status         `json:"status,omitempty"`
	NextAgent      string               `json:"next_agent,omitempty"`
	Reason         agent.TerminalReason `json:"reason,omitempty"`
	Confidence     float64              `json:"confidence,omitempty"`
	DurationMs     int64                `json:"duration_ms,omitempty"`
	Error          string               `json:"error,omitempty"`
	Timestamp      time.Time            `json:"timestamp"`
}
