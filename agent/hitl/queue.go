package hitl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/switchboard/agent"
)

// TicketStatus is the lifecycle status of an escalation ticket.
type TicketStatus string

const (
	TicketStatusPending  TicketStatus = "pending"
	TicketStatusClaimed  TicketStatus = "claimed"
	TicketStatusResolved TicketStatus = "resolved"
	TicketStatusCanceled TicketStatus = "canceled"
)

// IsOpen reports whether a human still has to act on the ticket.
func (s TicketStatus) IsOpen() bool {
	return s == TicketStatusPending || s == TicketStatusClaimed
}

var (
	ErrTicketNotFound     = errors.New("escalation ticket not found")
	ErrTicketClosed       = errors.New("escalation ticket is already closed")
	ErrTicketAlreadyTaken = errors.New("escalation ticket is claimed by someone else")
)

// Ticket is an escalated conversation waiting for a human.
type Ticket struct {
	ID             string               `json:"id"`
	ConversationID string               `json:"conversation_id"`
	Reason         agent.TerminalReason `json:"reason"`
	LastResponder  string               `json:"last_responder,omitempty"`
	Confidence     float64              `json:"confidence"`
	Message        string               `json:"message,omitempty"`
	Detail         string               `json:"detail,omitempty"`
	Status         TicketStatus         `json:"status"`
	Assignee       string               `json:"assignee,omitempty"`
	Resolution     *Resolution          `json:"resolution,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	ClaimedAt      *time.Time           `json:"claimed_at,omitempty"`
	ClosedAt       *time.Time           `json:"closed_at,omitempty"`
	Metadata       map[string]any       `json:"metadata,omitempty"`
}

// Resolution is the human's answer to a ticket.
type Resolution struct {
	Reply      string    `json:"reply"`
	Comment    string    `json:"comment,omitempty"`
	ResolvedBy string    `json:"resolved_by,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	ConversationID string
	Status         TicketStatus
	Limit          int
}

func (f ListFilter) matches(t *Ticket) bool {
	return (f.ConversationID == "" || t.ConversationID == f.ConversationID) &&
		(f.Status == "" || t.Status == f.Status)
}

// TicketStore persists tickets.
type TicketStore interface {
	Save(ctx context.Context, t *Ticket) error
	Load(ctx context.Context, id string) (*Ticket, error)
	// List returns matching tickets, oldest first.
	List(ctx context.Context, filter ListFilter) ([]*Ticket, error)
	Update(ctx context.Context, t *Ticket) error
}

// TicketHandler is notified of every new ticket, e.g. to page an on-call agent.
type TicketHandler func(ctx context.Context, t *Ticket) error

// Queue is the human-escalation queue. It satisfies agent.EscalationQueue.
type Queue struct {
	store    TicketStore
	logger   *zap.Logger
	handlers []TicketHandler
	mu       sync.RWMutex
	// guards read-modify-write on a single ticket within this process
	writeMu sync.Mutex
}

var _ agent.EscalationQueue = (*Queue)(nil)

// NewQueue creates a queue over store.
func NewQueue(store TicketStore, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		store:  store,
		logger: logger.With(zap.String("component", "escalation_queue")),
	}
}

// OnTicket registers a handler for new tickets.
func (q *Queue) OnTicket(h TicketHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, h)
}

// Enqueue turns an escalation record into a pending ticket.
func (q *Queue) Enqueue(ctx context.Context, rec agent.EscalationRecord) error {
	t := &Ticket{
		ID:             rec.ID,
		ConversationID: rec.ConversationID,
		Reason:         rec.Reason,
		LastResponder:  rec.LastResponder,
		Confidence:     rec.Confidence,
		Message:        rec.Message,
		Detail:         rec.Detail,
		Status:         TicketStatusPending,
		CreatedAt:      rec.CreatedAt,
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	if err := q.store.Save(ctx, t); err != nil {
		return fmt.Errorf("failed to save ticket: %w", err)
	}
	q.logger.Info("escalation ticket created",
		zap.String("id", t.ID),
		zap.String("conversation_id", t.ConversationID),
		zap.String("reason", string(t.Reason)),
	)
	q.notifyHandlers(ctx, t)
	return nil
}

// Get loads one ticket.
func (q *Queue) Get(ctx context.Context, id string) (*Ticket, error) {
	return q.store.Load(ctx, id)
}

// List returns tickets matching filter.
func (q *Queue) List(ctx context.Context, filter ListFilter) ([]*Ticket, error) {
	return q.store.List(ctx, filter)
}

// Pending returns the open tickets, oldest first.
func (q *Queue) Pending(ctx context.Context, limit int) ([]*Ticket, error) {
	all, err := q.store.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	var out []*Ticket
	for _, t := range all {
		if t.Status.IsOpen() {
			out = append(out, t)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// HasOpenTicket reports whether a human still owns conversationID.
func (q *Queue) HasOpenTicket(ctx context.Context, conversationID string) (bool, error) {
	tickets, err := q.store.List(ctx, ListFilter{ConversationID: conversationID})
	if err != nil {
		return false, err
	}
	for _, t := range tickets {
		if t.Status.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

// Claim assigns a pending ticket to a human. Claiming your own ticket again
// is a no-op.
func (q *Queue) Claim(ctx context.Context, id, assignee string) (*Ticket, error) {
	return q.mutate(ctx, id, func(t *Ticket) error {
		switch {
		case !t.Status.IsOpen():
			return ErrTicketClosed
		case t.Status == TicketStatusClaimed && t.Assignee != assignee:
			return ErrTicketAlreadyTaken
		}
		if t.Status == TicketStatusPending {
			now := time.Now()
			t.ClaimedAt = &now
		}
		t.Status = TicketStatusClaimed
		t.Assignee = assignee
		return nil
	})
}

// Resolve closes an open ticket with a human reply.
func (q *Queue) Resolve(ctx context.Context, id string, res Resolution) (*Ticket, error) {
	return q.mutate(ctx, id, func(t *Ticket) error {
		if !t.Status.IsOpen() {
			return ErrTicketClosed
		}
		now := time.Now()
		res.Timestamp = now
		if res.ResolvedBy == "" {
			res.ResolvedBy = t.Assignee
		}
		t.Resolution = &res
		t.Status = TicketStatusResolved
		t.ClosedAt = &now
		return nil
	})
}

// Cancel closes an open ticket without a reply.
func (q *Queue) Cancel(ctx context.Context, id string) (*Ticket, error) {
	return q.mutate(ctx, id, func(t *Ticket) error {
		if !t.Status.IsOpen() {
			return ErrTicketClosed
		}
		now := time.Now()
		t.Status = TicketStatusCanceled
		t.ClosedAt = &now
		return nil
	})
}

func (q *Queue) mutate(ctx context.Context, id string, fn func(*Ticket) error) (*Ticket, error) {
	q.writeMu.Lock()
	defer q.writeMu.Unlock()

	t, err := q.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(t); err != nil {
		return nil, fmt.Errorf("%w: %s", err, id)
	}
	if err := q.store.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to update ticket: %w", err)
	}
	q.logger.Info("escalation ticket updated",
		zap.String("id", t.ID),
		zap.String("status", string(t.Status)),
		zap.String("assignee", t.Assignee),
	)
	return t, nil
}

func (q *Queue) notifyHandlers(ctx context.Context, t *Ticket) {
	q.mu.RLock()
	handlers := append([]TicketHandler(nil), q.handlers...)
	q.mu.RUnlock()

	for _, h := range handlers {
		snapshot := *t
		go func(h TicketHandler) {
			if err := h(context.WithoutCancel(ctx), &snapshot); err != nil {
				q.logger.Error("ticket handler error", zap.String("id", snapshot.ID), zap.Error(err))
			}
		}(h)
	}
}
