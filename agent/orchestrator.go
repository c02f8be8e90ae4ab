package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/switchboard/types"
)

const instrumentationName = "github.com/BaSui01/switchboard/agent"

// enqueueTimeout bounds handing an escalation record to the queue.
const enqueueTimeout = 5 * time.Second

// Orchestrator drives a conversation from ACTIVE to a terminal status one
// responder hop at a time. It is safe for concurrent use across independent
// conversations; a single state must only be dispatched by one caller.
type Orchestrator struct {
	registry *Registry
	opts     Options
	guard    LoopGuard
	policy   EscalationPolicy
	history  historyRenderer

	kb        KnowledgeBase
	queue     EscalationQueue
	extractor EntityExtractor
	observers Observers

	tracer trace.Tracer
	logger *zap.Logger
}

// NewOrchestrator creates an orchestrator over a frozen registry.
func NewOrchestrator(registry *Registry, opts Options, options ...OrchestratorOption) *Orchestrator {
	opts = opts.withDefaults()
	o := &Orchestrator{
		registry: registry,
		opts:     opts,
		guard:    NewLoopGuard(opts),
		policy:   NewEscalationPolicy(opts),
		history:  historyRenderer{counter: estimateCounter{}, budget: opts.HistoryTokenBudget},
		logger:   zap.NewNop(),
	}
	for _, opt := range options {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.history.counter == nil {
		o.history.counter = estimateCounter{}
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(instrumentationName)
	}
	o.logger = o.logger.With(zap.String("component", "orchestrator"))
	return o
}

// Registry returns the registry the orchestrator dispatches against.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Options returns the effective options.
func (o *Orchestrator) Options() Options { return o.opts }

// Handle builds a fresh state for req, dispatches it and returns the exit
// contract.
func (o *Orchestrator) Handle(ctx context.Context, req DispatchRequest) DispatchResult {
	return o.Dispatch(ctx, NewConversationState(req)).Result()
}

// Dispatch runs the dispatch loop until the state is terminal. It never
// returns an error: every failure is folded into the returned state, which
// always carries a terminal status and a human-readable AgentResponse.
// A state that is already terminal is returned unchanged; otherwise the input
// is not modified.
func (o *Orchestrator) Dispatch(ctx context.Context, state *ConversationState) *ConversationState {
	if state == nil {
		s := NewConversationState(DispatchRequest{})
		o.fail(s, ReasonValidationFailure, types.NewError(types.ErrValidationFailure, "nil conversation state"))
		o.finalize(s)
		return s
	}
	if state.Status.IsTerminal() {
		return state
	}

	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "switchboard.dispatch",
		trace.WithAttributes(attribute.String("conversation.id", state.ConversationID)))
	defer span.End()

	s := state.Clone()
	if err := o.admit(s); err != nil {
		o.fail(s, ReasonValidationFailure, err)
	}

	if s.Status == StatusActive && s.NextAgent == "" && len(s.AgentHistory) == 0 {
		if o.opts.EntryAgent == "" {
			o.escalate(ctx, s, ReasonLookupFailure, "no responder named and no entry responder configured")
		} else {
			s.NextAgent = o.opts.EntryAgent
		}
	}

	for s.Status == StatusActive && s.NextAgent != "" {
		if err := ctx.Err(); err != nil {
			o.escalate(ctx, s, ReasonCancelled, fmt.Sprintf("dispatch cancelled: %v", err))
			break
		}

		name := s.NextAgent
		reg, ok := o.registry.Lookup(name)
		if !ok {
			o.escalate(ctx, s, ReasonLookupFailure, fmt.Sprintf("responder %q is not registered", name))
			break
		}

		if tripped, detail := o.guard.Check(s.AgentHistory, name); tripped {
			o.escalate(ctx, s, ReasonLoopGuardTripped, detail)
			break
		}

		next, reported, err := o.hop(ctx, s, reg)
		if err != nil {
			o.fail(s, reasonForError(err), err)
			break
		}
		s = next
		o.apply(ctx, s, o.policy.Arbitrate(s, reported))
	}

	// ACTIVE with nowhere to go is an implicit resolution, still subject to
	// the confidence floor.
	if s.Status == StatusActive {
		o.apply(ctx, s, o.policy.Arbitrate(s, StatusActive))
	}
	o.finalize(s)

	elapsed := time.Since(start)
	span.SetAttributes(
		attribute.String("conversation.status", string(s.Status)),
		attribute.String("conversation.terminal_reason", string(s.TerminalReason)),
		attribute.Int("conversation.hops", s.TurnCount),
	)
	if s.Status == StatusFailed {
		span.SetStatus(codes.Error, s.TerminalDetail)
	}
	o.observers.OnDispatch(ctx, DispatchEvent{
		ConversationID: s.ConversationID,
		Status:         s.Status,
		Reason:         s.TerminalReason,
		Hops:           s.TurnCount,
		Duration:       elapsed,
	})
	o.logger.Info("dispatch finished",
		zap.String("conversation_id", s.ConversationID),
		zap.String("status", string(s.Status)),
		zap.String("reason", string(s.TerminalReason)),
		zap.Strings("agent_history", s.AgentHistory),
		zap.Float64("confidence", s.ResponseConfidence),
		zap.Duration("duration", elapsed),
	)
	return s
}

// admit checks the invariants of an incoming state. In strict mode a
// violation is returned; otherwise the state is repaired in place.
func (o *Orchestrator) admit(s *ConversationState) error {
	err := s.Validate()
	if err == nil {
		return nil
	}
	if o.opts.StrictValidation {
		// an unknown status has no transition to FAILED
		if !s.Status.IsValid() {
			s.Status = StatusActive
		}
		return err
	}
	o.logger.Warn("repairing invalid conversation state", zap.Error(err))
	if s.ConversationID == "" {
		s.ConversationID = uuid.NewString()
	}
	if !s.Status.IsValid() {
		s.Status = StatusActive
	}
	s.TurnCount = len(s.AgentHistory)
	s.ResponseConfidence, _ = ClampConfidence(s.ResponseConfidence)
	return nil
}

// hop runs one responder against a private copy of s and returns the merged
// state plus the status the responder asked for. The hop is detached from
// caller cancellation and bounded by HopTimeout, so it either applies fully
// or not at all.
func (o *Orchestrator) hop(ctx context.Context, s *ConversationState, reg Registration) (*ConversationState, Status, error) {
	hopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.HopTimeout)
	defer cancel()
	hopCtx, span := o.tracer.Start(hopCtx, "switchboard.hop", trace.WithAttributes(
		attribute.String("responder.name", reg.Name),
		attribute.String("responder.category", reg.Category),
		attribute.Int("hop", len(s.AgentHistory)+1),
	))
	defer span.End()

	started := time.Now()
	in := s.Clone()
	in.CurrentAgent = reg.Name
	in.NextAgent = ""

	var (
		merged   *ConversationState
		reported Status
	)
	err := o.enrich(hopCtx, in, reg)
	if err == nil {
		var out *ConversationState
		out, err = o.invoke(hopCtx, reg, in)
		if err == nil {
			merged, reported, err = o.merge(s, out, reg)
		}
	}

	ev := HopEvent{
		ConversationID: s.ConversationID,
		Responder:      reg.Name,
		Category:       reg.Category,
		Hop:            len(s.AgentHistory) + 1,
		Duration:       time.Since(started),
		Err:            err,
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		ev.Status = StatusFailed
		o.logger.Warn("hop failed",
			zap.String("conversation_id", s.ConversationID),
			zap.String("responder", reg.Name),
			zap.Error(err),
		)
	} else {
		ev.Status = reported
		ev.NextAgent = merged.NextAgent
		ev.Confidence = merged.ResponseConfidence
		span.SetAttributes(
			attribute.String("responder.status", string(reported)),
			attribute.Float64("responder.confidence", merged.ResponseConfidence),
		)
		o.logger.Debug("hop completed",
			zap.String("conversation_id", s.ConversationID),
			zap.String("responder", reg.Name),
			zap.String("reported_status", string(reported)),
			zap.String("next_agent", merged.NextAgent),
			zap.Float64("confidence", merged.ResponseConfidence),
		)
	}
	o.observers.OnHop(hopCtx, ev)
	return merged, reported, err
}

type invocation struct {
	out *ConversationState
	err error
}

// invoke calls the responder in its own goroutine so a responder that ignores
// its context cannot hold the loop past the hop deadline. A late result is
// discarded; it only ever touched its private copy.
func (o *Orchestrator) invoke(ctx context.Context, reg Registration, in *ConversationState) (*ConversationState, error) {
	ch := make(chan invocation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- invocation{err: types.Errorf(types.ErrGenerationFailure, "responder %s panicked: %v", reg.Name, r)}
			}
		}()
		out, err := reg.Responder.Process(ctx, in)
		ch <- invocation{out: out, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			if _, ok := types.AsError(res.err); ok {
				return nil, res.err
			}
			code := types.ErrGenerationFailure
			if errors.Is(res.err, context.DeadlineExceeded) {
				code = types.ErrTimeout
			}
			return nil, types.Errorf(code, "responder %s failed", reg.Name).WithCause(res.err)
		}
		if res.out == nil {
			return nil, types.Errorf(types.ErrValidationFailure, "responder %s returned no state", reg.Name)
		}
		return res.out, nil
	case <-ctx.Done():
		return nil, types.Errorf(types.ErrTimeout, "responder %s exceeded hop timeout %s", reg.Name, o.opts.HopTimeout).
			WithCause(ctx.Err()).WithRetryable(true)
	}
}

// merge folds a responder's output into the engine-owned record. The engine
// keeps identity, history and transcript; the responder owns the reply.
func (o *Orchestrator) merge(prev, out *ConversationState, reg Registration) (*ConversationState, Status, error) {
	if out.ConversationID != prev.ConversationID {
		return nil, "", types.Errorf(types.ErrValidationFailure,
			"responder %s changed conversation_id %q to %q", reg.Name, prev.ConversationID, out.ConversationID)
	}
	if out.TurnCount != prev.TurnCount || !slices.Equal(out.AgentHistory, prev.AgentHistory) {
		return nil, "", types.Errorf(types.ErrValidationFailure, "responder %s rewrote agent_history", reg.Name)
	}

	reported := out.Status
	if !reported.IsValid() {
		if o.opts.StrictValidation {
			return nil, "", types.Errorf(types.ErrValidationFailure,
				"responder %s reported unknown status %q", reg.Name, reported)
		}
		o.logger.Warn("responder reported unknown status, treating as ACTIVE",
			zap.String("responder", reg.Name), zap.String("status", string(reported)))
		reported = StatusActive
	}

	confidence, ok := ClampConfidence(out.ResponseConfidence)
	if !ok {
		if o.opts.StrictValidation {
			return nil, "", types.Errorf(types.ErrValidationFailure,
				"responder %s reported response_confidence %v outside [0,1]", reg.Name, out.ResponseConfidence)
		}
		o.logger.Warn("clamping response confidence",
			zap.String("responder", reg.Name),
			zap.Float64("reported", out.ResponseConfidence),
			zap.Float64("clamped", confidence),
		)
	}

	m := out.Clone()
	m.ConversationID = prev.ConversationID
	m.CurrentMessage = prev.CurrentMessage
	m.Transcript = slices.Clone(prev.Transcript)
	m.CreatedAt = prev.CreatedAt
	m.AgentHistory = append(slices.Clone(prev.AgentHistory), reg.Name)
	m.TurnCount = prev.TurnCount + 1
	m.CurrentAgent = reg.Name
	m.Status = StatusActive
	m.ResponseConfidence = confidence
	m.TerminalReason = ReasonNone
	m.TerminalDetail = ""
	m.UpdatedAt = time.Now()
	return m, reported, nil
}

// apply carries out an arbitration verdict.
func (o *Orchestrator) apply(ctx context.Context, s *ConversationState, v Verdict) {
	switch v.Status {
	case StatusResolved:
		s.NextAgent = ""
		if err := s.Transition(StatusResolved); err != nil {
			o.logger.Error("unexpected transition", zap.Error(err))
			return
		}
		s.TerminalReason = ReasonResolved
	case StatusEscalated:
		o.escalate(ctx, s, v.Reason, v.Detail)
	case StatusFailed:
		o.fail(s, v.Reason, errors.New(v.Detail))
	}
}

// escalate moves s to ESCALATED and hands a record to the queue. A queue
// failure is logged and never changes the outcome.
func (o *Orchestrator) escalate(ctx context.Context, s *ConversationState, reason TerminalReason, detail string) {
	if err := s.Transition(StatusEscalated); err != nil {
		o.logger.Error("unexpected transition", zap.Error(err))
		return
	}
	s.TerminalReason = reason
	s.TerminalDetail = detail

	confidence, _ := ClampConfidence(s.ResponseConfidence)
	rec := EscalationRecord{
		ID:             uuid.NewString(),
		ConversationID: s.ConversationID,
		Reason:         reason,
		LastResponder:  s.LastResponder(),
		Confidence:     confidence,
		Message:        s.CurrentMessage,
		Detail:         detail,
		CreatedAt:      time.Now(),
	}
	o.logger.Warn("conversation escalated",
		zap.String("conversation_id", s.ConversationID),
		zap.String("reason", string(reason)),
		zap.String("last_responder", rec.LastResponder),
		zap.String("detail", detail),
	)

	if o.queue != nil {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
		defer cancel()
		if err := o.queue.Enqueue(qctx, rec); err != nil {
			o.logger.Error("failed to enqueue escalation",
				zap.String("conversation_id", s.ConversationID),
				zap.String("escalation_id", rec.ID),
				zap.Error(err),
			)
		}
	}
	o.observers.OnEscalation(ctx, rec)
}

// fail moves s to FAILED and records the cause.
func (o *Orchestrator) fail(s *ConversationState, reason TerminalReason, cause error) {
	if err := s.Transition(StatusFailed); err != nil {
		o.logger.Error("unexpected transition", zap.Error(err))
		return
	}
	s.TerminalReason = reason
	if cause != nil {
		s.TerminalDetail = cause.Error()
	}
	o.logger.Error("conversation failed",
		zap.String("conversation_id", s.ConversationID),
		zap.String("reason", string(reason)),
		zap.Error(cause),
	)
}

// finalize guarantees a clamped confidence and a human-readable reply.
func (o *Orchestrator) finalize(s *ConversationState) {
	s.ResponseConfidence, _ = ClampConfidence(s.ResponseConfidence)
	switch s.Status {
	case StatusEscalated:
		if s.TerminalReason != ReasonExplicitFlag || s.AgentResponse == "" {
			s.AgentResponse = o.opts.Fallbacks.Escalated
		}
	case StatusFailed:
		s.AgentResponse = o.opts.Fallbacks.Failed
	case StatusResolved:
		if s.AgentResponse == "" {
			s.AgentResponse = o.opts.Fallbacks.Resolved
		}
	}
	s.UpdatedAt = time.Now()
}
