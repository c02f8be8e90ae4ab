package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/switchboard/agent"
	"github.com/BaSui01/switchboard/agent/persistence"
	"github.com/BaSui01/switchboard/types"
)

// Dispatcher runs one dispatch cycle. *agent.Orchestrator implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, state *agent.ConversationState) *agent.ConversationState
}

// HandoffTracker reports whether a human currently owns a conversation.
// *hitl.Queue implements it.
type HandoffTracker interface {
	HasOpenTicket(ctx context.Context, conversationID string) (bool, error)
}

// DefaultHoldReply answers follow-ups while a human owns the conversation.
const DefaultHoldReply = "A member of our team has your conversation and will reply here shortly."

// Service handles inbound messages for persisted conversations: it resumes
// the stored record, dispatches, and stores the terminal state.
type Service struct {
	dispatcher    Dispatcher
	store         persistence.ConversationStore
	handoffs      HandoffTracker
	holdReply     string
	maxTranscript int
	logger        *zap.Logger
	locks         *keyedMutex
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithHandoffTracker keeps escalated conversations with their human while
// the tracker reports an open ticket. Follow-ups are recorded in the
// transcript instead of being dispatched.
func WithHandoffTracker(t HandoffTracker) ServiceOption {
	return func(s *Service) { s.handoffs = t }
}

// WithHoldReply sets the reply sent while a human owns the conversation.
func WithHoldReply(text string) ServiceOption {
	return func(s *Service) {
		if text != "" {
			s.holdReply = text
		}
	}
}

// NewService creates a Service. maxTranscript caps the turns carried between
// messages; zero or less keeps them all.
func NewService(dispatcher Dispatcher, store persistence.ConversationStore, maxTranscript int, logger *zap.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		dispatcher:    dispatcher,
		store:         store,
		holdReply:     DefaultHoldReply,
		maxTranscript: maxTranscript,
		logger:        logger.With(zap.String("component", "conversation")),
		locks:         newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleMessage dispatches one inbound message. Messages for the same
// conversation are processed one at a time. The result is always populated
// once dispatch ran; a non-nil error then reports that persisting it failed.
func (s *Service) HandleMessage(ctx context.Context, req agent.DispatchRequest) (agent.DispatchResult, error) {
	if req.CurrentMessage == "" {
		return agent.DispatchResult{}, types.NewError(types.ErrInvalidRequest, "message is required")
	}

	var state *agent.ConversationState
	if req.ConversationID == "" {
		state = agent.NewConversationState(req)
	}
	unlock := s.locks.Lock(firstNonEmpty(req.ConversationID, stateID(state)))
	defer unlock()

	var prev *agent.ConversationState
	var held bool
	if state == nil {
		var err error
		prev, err = s.store.Load(ctx, req.ConversationID)
		switch {
		case errors.Is(err, persistence.ErrNotFound):
			state = agent.NewConversationState(req)
		case err != nil:
			return agent.DispatchResult{}, types.NewError(types.ErrStoreUnavailable, "load conversation").
				WithCause(err).WithRetryable(true)
		default:
			state = agent.ResumeState(prev, req)
			if held, err = s.withHuman(ctx, prev); err != nil {
				return agent.DispatchResult{}, types.NewError(types.ErrServiceUnavailable, "check escalation tickets").
					WithCause(err).WithRetryable(true)
			}
		}
	}

	var final *agent.ConversationState
	if held {
		final = s.hold(state, prev)
	} else {
		final = s.dispatcher.Dispatch(ctx, state)
	}
	final.Transcript = trimTranscript(final.Transcript, s.maxTranscript)

	// the reply is already decided; store it even if the caller went away
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.Save(saveCtx, final); err != nil {
		s.logger.Error("failed to persist conversation",
			zap.String("conversation_id", final.ConversationID),
			zap.Error(err))
		return final.Result(), types.NewError(types.ErrStoreUnavailable, "save conversation").
			WithCause(err).WithRetryable(true)
	}

	s.logger.Debug("message handled",
		zap.String("conversation_id", final.ConversationID),
		zap.String("status", string(final.Status)),
		zap.Int("transcript_turns", len(final.Transcript)))
	return final.Result(), nil
}

// withHuman reports whether prev was escalated and its ticket is still open.
func (s *Service) withHuman(ctx context.Context, prev *agent.ConversationState) (bool, error) {
	if s.handoffs == nil || prev.Status != agent.StatusEscalated {
		return false, nil
	}
	return s.handoffs.HasOpenTicket(ctx, prev.ConversationID)
}

// hold records a follow-up for the human who owns the conversation without
// running any responder.
func (s *Service) hold(state, prev *agent.ConversationState) *agent.ConversationState {
	_ = state.Transition(agent.StatusEscalated)
	state.TerminalReason = prev.TerminalReason
	state.TerminalDetail = "awaiting human on open escalation"
	state.AgentResponse = s.holdReply
	state.UpdatedAt = time.Now()
	s.logger.Info("follow-up held for human",
		zap.String("conversation_id", state.ConversationID),
		zap.String("reason", string(prev.TerminalReason)))
	return state
}

// Get returns the stored record of a conversation.
func (s *Service) Get(ctx context.Context, conversationID string) (*agent.ConversationState, error) {
	state, err := s.store.Load(ctx, conversationID)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, types.Errorf(types.ErrNotFound, "conversation %s not found", conversationID).WithCause(err)
	}
	return state, err
}

// List returns recently updated conversations, newest first.
func (s *Service) List(ctx context.Context, filter persistence.ListFilter) ([]*agent.ConversationState, error) {
	return s.store.List(ctx, filter)
}

// Forget deletes a conversation's record.
func (s *Service) Forget(ctx context.Context, conversationID string) error {
	unlock := s.locks.Lock(conversationID)
	defer unlock()
	return s.store.Delete(ctx, conversationID)
}

func trimTranscript(turns []agent.Turn, limit int) []agent.Turn {
	if limit <= 0 || len(turns) <= limit {
		return turns
	}
	return append([]agent.Turn(nil), turns[len(turns)-limit:]...)
}

func stateID(s *agent.ConversationState) string {
	if s == nil {
		return ""
	}
	return s.ConversationID
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// keyedMutex serializes work per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
