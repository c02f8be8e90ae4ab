package agent

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Options tunes the dispatch loop and the escalation policy.
type Options struct {
	// ConfidenceFloor is the minimum confidence for an automated resolution.
	// Zero selects the default; NoConfidenceFloor disables the check.
	ConfidenceFloor float64
	// RepeatBound is how many times in a row the same responder (or the same
	// responder cycle) may run before the loop guard trips.
	RepeatBound int
	// MaxHops caps agent_history length within one dispatch cycle.
	MaxHops int
	// HopTimeout bounds one responder invocation including enrichment.
	HopTimeout time.Duration
	// KBTimeout bounds one knowledge-base search.
	KBTimeout time.Duration
	// KBResultLimit is the limit passed to the knowledge base.
	KBResultLimit int
	// HistoryTokenBudget bounds the rendered history summary. Zero disables the bound.
	HistoryTokenBudget int
	// StrictValidation turns clamping of invalid responder output into a
	// ValidationFailure.
	StrictValidation bool
	// MaxConcurrentDispatches bounds DispatchAll.
	MaxConcurrentDispatches int
	// EntryAgent is used when a fresh state names no next agent.
	EntryAgent string
	// Fallbacks are the human-readable replies used when a terminal state
	// carries no responder text.
	Fallbacks FallbackMessages
}

// FallbackMessages holds the canned replies per terminal path.
type FallbackMessages struct {
	Escalated string
	Failed    string
	Resolved  string
}

// NoConfidenceFloor disables the confidence floor. Reported confidence is
// clamped into [0,1], so no resolution falls below it.
const NoConfidenceFloor = -1.0

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		ConfidenceFloor:         0.60,
		RepeatBound:             2,
		MaxHops:                 10,
		HopTimeout:              60 * time.Second,
		KBTimeout:               5 * time.Second,
		KBResultLimit:           5,
		HistoryTokenBudget:      1024,
		MaxConcurrentDispatches: 16,
		Fallbacks:               DefaultFallbacks(),
	}
}

// DefaultFallbacks returns the built-in canned replies.
func DefaultFallbacks() FallbackMessages {
	return FallbackMessages{
		Escalated: "I'm connecting you with a member of our team who can help further.",
		Failed:    "Sorry, something went wrong while handling your request. Please try again shortly.",
		Resolved:  "Thanks for reaching out. Your request has been handled.",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ConfidenceFloor != NoConfidenceFloor && (o.ConfidenceFloor <= 0 || o.ConfidenceFloor > 1) {
		o.ConfidenceFloor = d.ConfidenceFloor
	}
	if o.RepeatBound <= 0 {
		o.RepeatBound = d.RepeatBound
	}
	if o.MaxHops <= 0 {
		o.MaxHops = d.MaxHops
	}
	if o.HopTimeout <= 0 {
		o.HopTimeout = d.HopTimeout
	}
	if o.KBTimeout <= 0 {
		o.KBTimeout = d.KBTimeout
	}
	if o.KBResultLimit <= 0 {
		o.KBResultLimit = d.KBResultLimit
	}
	if o.MaxConcurrentDispatches <= 0 {
		o.MaxConcurrentDispatches = d.MaxConcurrentDispatches
	}
	if o.Fallbacks.Escalated == "" {
		o.Fallbacks.Escalated = d.Fallbacks.Escalated
	}
	if o.Fallbacks.Failed == "" {
		o.Fallbacks.Failed = d.Fallbacks.Failed
	}
	if o.Fallbacks.Resolved == "" {
		o.Fallbacks.Resolved = d.Fallbacks.Resolved
	}
	return o
}

// OrchestratorOption configures optional collaborators.
type OrchestratorOption func(*Orchestrator)

// WithKnowledgeBase sets the KB search collaborator.
func WithKnowledgeBase(kb KnowledgeBase) OrchestratorOption {
	return func(o *Orchestrator) { o.kb = kb }
}

// WithEscalationQueue sets the human-escalation queue.
func WithEscalationQueue(q EscalationQueue) OrchestratorOption {
	return func(o *Orchestrator) { o.queue = q }
}

// WithEntityExtractor sets the entity extractor.
func WithEntityExtractor(x EntityExtractor) OrchestratorOption {
	return func(o *Orchestrator) { o.extractor = x }
}

// WithTokenCounter sets the counter used for the history budget.
func WithTokenCounter(c TokenCounter) OrchestratorOption {
	return func(o *Orchestrator) { o.history.counter = c }
}

// WithObserver adds an observer. May be given more than once.
func WithObserver(obs Observer) OrchestratorOption {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithTracer overrides the tracer used for dispatch and hop spans.
func WithTracer(t trace.Tracer) OrchestratorOption {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}
