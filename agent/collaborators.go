package agent

import (
	"context"
	"time"
)

// KnowledgeBase is the knowledge-base search collaborator. An empty result
// is a valid answer, not an error.
type KnowledgeBase interface {
	Search(ctx context.Context, query, category string, limit int) ([]KBResult, error)
}

// EscalationQueue receives conversations handed off to a human.
type EscalationQueue interface {
	Enqueue(ctx context.Context, rec EscalationRecord) error
}

// EntityExtractor pulls domain facts out of a message for responders that
// declare entity_extraction.
type EntityExtractor interface {
	Extract(ctx context.Context, message string) (map[string]any, error)
}

// TokenCounter measures text for the history budget.
type TokenCounter interface {
	CountTokens(text string) int
}

// HopEvent describes one finished hop.
type HopEvent struct {
	ConversationID string
	Responder      string
	Category       string
	Hop            int
	Status         Status
	NextAgent      string
	Confidence     float64
	Duration       time.Duration
	Err            error
}

// DispatchEvent describes one finished dispatch cycle.
type DispatchEvent struct {
	ConversationID string
	Status         Status
	Reason         TerminalReason
	Hops           int
	Duration       time.Duration
}

// Observer is notified as a dispatch cycle progresses. Implementations must
// be safe for concurrent use because independent conversations dispatch in
// parallel.
type Observer interface {
	OnHop(ctx context.Context, ev HopEvent)
	OnDispatch(ctx context.Context, ev DispatchEvent)
	OnEscalation(ctx context.Context, rec EscalationRecord)
}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) OnHop(ctx context.Context, ev HopEvent) {
	for _, obs := range o {
		obs.OnHop(ctx, ev)
	}
}

func (o Observers) OnDispatch(ctx context.Context, ev DispatchEvent) {
	for _, obs := range o {
		obs.OnDispatch(ctx, ev)
	}
}

func (o Observers) OnEscalation(ctx context.Context, rec EscalationRecord) {
	for _, obs := range o {
		obs.OnEscalation(ctx, rec)
	}
}

// ObserverFuncs builds an Observer from optional callbacks.
type ObserverFuncs struct {
	Hop        func(ctx context.Context, ev HopEvent)
	Dispatch   func(ctx context.Context, ev DispatchEvent)
	Escalation func(ctx context.Context, rec EscalationRecord)
}

func (f ObserverFuncs) OnHop(ctx context.Context, ev HopEvent) {
	if f.Hop != nil {
		f.Hop(ctx, ev)
	}
}

func (f ObserverFuncs) OnDispatch(ctx context.Context, ev DispatchEvent) {
	if f.Dispatch != nil {
		f.Dispatch(ctx, ev)
	}
}

func (f ObserverFuncs) OnEscalation(ctx context.Context, rec EscalationRecord) {
	if f.Escalation != nil {
		f.Escalation(ctx, rec)
	}
}
