package agent

import "context"

// Responder is the single contract every specialist implements. Process
// receives its own copy of the state and returns the updated copy. It may
// set AgentResponse, ResponseConfidence, NextAgent, NeedsEscalation, Status,
// Entities and Extensions; the orchestrator owns AgentHistory and TurnCount.
type Responder interface {
	Process(ctx context.Context, state *ConversationState) (*ConversationState, error)
}

// ResponderFunc adapts a plain function to Responder.
type ResponderFunc func(ctx context.Context, state *ConversationState) (*ConversationState, error)

// Process calls f(ctx, state).
func (f ResponderFunc) Process(ctx context.Context, state *ConversationState) (*ConversationState, error) {
	return f(ctx, state)
}
