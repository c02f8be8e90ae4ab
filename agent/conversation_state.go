package agent

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/switchboard/types"
)

// KBResult is one knowledge-base hit attached to the state.
type KBResult struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Turn is one persisted exchange from an earlier inbound message.
type Turn struct {
	Role      string    `json:"role"` // "customer" or "agent"
	Agent     string    `json:"agent,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationState is the record threaded through every hop of a single
// conversation. The orchestrator owns AgentHistory, TurnCount and Status;
// responders own the rest of the reply-related fields.
type ConversationState struct {
	ConversationID     string         `json:"conversation_id"`
	CurrentMessage     string         `json:"current_message"`
	TurnCount          int            `json:"turn_count"`
	AgentHistory       []string       `json:"agent_history"`
	CurrentAgent       string         `json:"current_agent,omitempty"`
	NextAgent          string         `json:"next_agent,omitempty"`
	Status             Status         `json:"status"`
	ResponseConfidence float64        `json:"response_confidence"`
	NeedsEscalation    bool           `json:"needs_escalation,omitempty"`
	CustomerMetadata   map[string]any `json:"customer_metadata,omitempty"`
	Entities           map[string]any `json:"entities,omitempty"`
	KBResults          []KBResult     `json:"kb_results,omitempty"`
	HistorySummary     string         `json:"history_summary,omitempty"`
	AgentResponse      string         `json:"agent_response"`

	// Extensions carries responder-specific payloads the engine never reads.
	Extensions map[string]any `json:"extensions,omitempty"`

	// Transcript holds earlier turns reloaded by persistence.
	Transcript []Turn `json:"transcript,omitempty"`

	TerminalReason TerminalReason `json:"terminal_reason,omitempty"`
	TerminalDetail string         `json:"terminal_detail,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// DispatchRequest is what a caller supplies to start a dispatch cycle.
type DispatchRequest struct {
	ConversationID   string         `json:"conversation_id,omitempty"`
	CurrentMessage   string         `json:"current_message"`
	CustomerMetadata map[string]any `json:"customer_metadata,omitempty"`
	Entities         map[string]any `json:"entities,omitempty"`
	// EntryAgent overrides the configured entry responder.
	EntryAgent string `json:"entry_agent,omitempty"`
}

// DispatchResult is what a caller always receives back.
type DispatchResult struct {
	ConversationID     string         `json:"conversation_id"`
	AgentResponse      string         `json:"agent_response"`
	Status             Status         `json:"status"`
	ResponseConfidence float64        `json:"response_confidence"`
	AgentHistory       []string       `json:"agent_history"`
	NextAgent          string         `json:"next_agent,omitempty"`
	TurnCount          int            `json:"turn_count"`
	TerminalReason     TerminalReason `json:"terminal_reason,omitempty"`
}

// NewConversationState builds a fresh ACTIVE state for one inbound message.
func NewConversationState(req DispatchRequest) *ConversationState {
	id := req.ConversationID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	return &ConversationState{
		ConversationID:   id,
		CurrentMessage:   req.CurrentMessage,
		AgentHistory:     []string{},
		NextAgent:        req.EntryAgent,
		Status:           StatusActive,
		CustomerMetadata: cloneMap(req.CustomerMetadata),
		Entities:         cloneMap(req.Entities),
		Extensions:       map[string]any{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ResumeState starts a new dispatch cycle for a conversation that already has
// a persisted record. Opaque maps and the transcript carry over; the routing
// fields start fresh so the per-cycle invariants hold.
func ResumeState(prev *ConversationState, req DispatchRequest) *ConversationState {
	if prev == nil {
		return NewConversationState(req)
	}
	next := NewConversationState(DispatchRequest{
		ConversationID:   prev.ConversationID,
		CurrentMessage:   req.CurrentMessage,
		CustomerMetadata: prev.CustomerMetadata,
		Entities:         prev.Entities,
		EntryAgent:       req.EntryAgent,
	})
	maps.Copy(next.CustomerMetadata, req.CustomerMetadata)
	maps.Copy(next.Entities, req.Entities)
	next.Transcript = slices.Clone(prev.Transcript)
	if prev.CurrentMessage != "" {
		next.Transcript = append(next.Transcript, Turn{Role: "customer", Content: prev.CurrentMessage, CreatedAt: prev.CreatedAt})
	}
	if prev.AgentResponse != "" {
		next.Transcript = append(next.Transcript, Turn{Role: "agent", Agent: prev.CurrentAgent, Content: prev.AgentResponse, CreatedAt: prev.UpdatedAt})
	}
	next.CreatedAt = prev.CreatedAt
	return next
}

// Clone returns a deep copy. Map values are copied one level deep.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	c := *s
	c.AgentHistory = slices.Clone(s.AgentHistory)
	c.KBResults = slices.Clone(s.KBResults)
	c.Transcript = slices.Clone(s.Transcript)
	c.CustomerMetadata = cloneMap(s.CustomerMetadata)
	c.Entities = cloneMap(s.Entities)
	c.Extensions = cloneMap(s.Extensions)
	return &c
}

// Transition moves the state to a new status if the move is legal.
func (s *ConversationState) Transition(to Status) error {
	if !CanTransition(s.Status, to) {
		return ErrInvalidTransition{From: s.Status, To: to}
	}
	s.Status = to
	return nil
}

// SetExtension stores a responder-specific payload.
func (s *ConversationState) SetExtension(key string, value any) {
	if s.Extensions == nil {
		s.Extensions = map[string]any{}
	}
	s.Extensions[key] = value
}

// Extension returns a responder-specific payload.
func (s *ConversationState) Extension(key string) (any, bool) {
	v, ok := s.Extensions[key]
	return v, ok
}

// LastResponder returns the most recent responder that completed a hop.
func (s *ConversationState) LastResponder() string {
	if n := len(s.AgentHistory); n > 0 {
		return s.AgentHistory[n-1]
	}
	return s.CurrentAgent
}

// Validate checks the core invariants and returns a ValidationFailure error
// describing the first violation.
func (s *ConversationState) Validate() error {
	if s.ConversationID == "" {
		return types.NewError(types.ErrValidationFailure, "conversation_id is required")
	}
	if !s.Status.IsValid() {
		return types.Errorf(types.ErrValidationFailure, "unknown status %q", s.Status)
	}
	if s.TurnCount < 0 {
		return types.Errorf(types.ErrValidationFailure, "turn_count %d is negative", s.TurnCount)
	}
	if s.TurnCount != len(s.AgentHistory) {
		return types.Errorf(types.ErrValidationFailure,
			"turn_count %d does not match agent_history length %d", s.TurnCount, len(s.AgentHistory))
	}
	if _, ok := ClampConfidence(s.ResponseConfidence); !ok {
		return types.Errorf(types.ErrValidationFailure,
			"response_confidence %v outside [0,1]", s.ResponseConfidence)
	}
	return nil
}

// Result projects the state onto the caller-facing exit contract.
func (s *ConversationState) Result() DispatchResult {
	return DispatchResult{
		ConversationID:     s.ConversationID,
		AgentResponse:      s.AgentResponse,
		Status:             s.Status,
		ResponseConfidence: s.ResponseConfidence,
		AgentHistory:       slices.Clone(s.AgentHistory),
		NextAgent:          s.NextAgent,
		TurnCount:          s.TurnCount,
		TerminalReason:     s.TerminalReason,
	}
}

func (s *ConversationState) String() string {
	return fmt.Sprintf("conversation %s [%s] hops=%v", s.ConversationID, s.Status, s.AgentHistory)
}

// ClampConfidence forces c into [0,1]. ok is false when c had to change.
// NaN clamps to 0.
func ClampConfidence(c float64) (clamped float64, ok bool) {
	switch {
	case math.IsNaN(c):
		return 0, false
	case c < 0:
		return 0, false
	case c > 1:
		return 1, false
	default:
		return c, true
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	maps.Copy(out, m)
	return out
}
