package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/switchboard/agent/hitl"
	"github.com/BaSui01/switchboard/api"
	"github.com/BaSui01/switchboard/internal/ctxkeys"
	"github.com/BaSui01/switchboard/types"
)

// EscalationQueue is what the escalation endpoints need. *hitl.Queue
// implements it.
type EscalationQueue interface {
	Get(ctx context.Context, id string) (*hitl.Ticket, error)
	List(ctx context.Context, filter hitl.ListFilter) ([]*hitl.Ticket, error)
	Claim(ctx context.Context, id, assignee string) (*hitl.Ticket, error)
	Resolve(ctx context.Context, id string, res hitl.Resolution) (*hitl.Ticket, error)
	Cancel(ctx context.Context, id string) (*hitl.Ticket, error)
}

// EscalationHandler lets humans work the escalation queue.
type EscalationHandler struct {
	queue  EscalationQueue
	logger *zap.Logger
}

// NewEscalationHandler creates a handler over queue.
func NewEscalationHandler(queue EscalationQueue, logger *zap.Logger) *EscalationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationHandler{
		queue:  queue,
		logger: logger.With(zap.String("component", "escalation_handler")),
	}
}

// RegisterRoutes mounts the endpoints on mux.
func (h *EscalationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/escalations", h.HandleList)
	mux.HandleFunc("GET /v1/escalations/{id}", h.HandleGet)
	mux.HandleFunc("POST /v1/escalations/{id}/claim", h.HandleClaim)
	mux.HandleFunc("POST /v1/escalations/{id}/resolve", h.HandleResolve)
	mux.HandleFunc("POST /v1/escalations/{id}/cancel", h.HandleCancel)
}

// HandleList returns tickets, oldest first. Without a status filter only
// open tickets are listed; status=all lists every ticket.
//
//	GET /v1/escalations?status=pending&conversation_id=...&limit=50
func (h *EscalationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 100, 1000)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	q := r.URL.Query()
	filter := hitl.ListFilter{ConversationID: q.Get("conversation_id")}

	status := strings.ToLower(q.Get("status"))
	openOnly := status == ""
	switch hitl.TicketStatus(status) {
	case "", "all":
	case hitl.TicketStatusPending, hitl.TicketStatusClaimed, hitl.TicketStatusResolved, hitl.TicketStatusCanceled:
		filter.Status = hitl.TicketStatus(status)
	default:
		WriteError(w, r, types.Errorf(types.ErrInvalidRequest, "unknown ticket status %q", status), h.logger)
		return
	}
	if !openOnly {
		filter.Limit = limit
	}

	tickets, err := h.queue.List(r.Context(), filter)
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrStoreUnavailable, "list escalations").WithCause(err), h.logger)
		return
	}

	out := make([]*hitl.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if openOnly && !t.Status.IsOpen() {
			continue
		}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	WriteSuccess(w, r, out)
}

// HandleGet returns one ticket.
//
//	GET /v1/escalations/{id}
func (h *EscalationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	t, err := h.queue.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, ticketError(err), h.logger)
		return
	}
	WriteSuccess(w, r, t)
}

// HandleClaim assigns a ticket. The assignee defaults to the authenticated
// caller.
//
//	POST /v1/escalations/{id}/claim
func (h *EscalationHandler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	var req api.ClaimRequest
	if r.ContentLength != 0 {
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
	}
	assignee := strings.TrimSpace(req.Assignee)
	if assignee == "" {
		assignee, _ = ctxkeys.Principal(r.Context())
	}
	if assignee == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "assignee is required"), h.logger)
		return
	}

	t, err := h.queue.Claim(r.Context(), r.PathValue("id"), assignee)
	if err != nil {
		WriteError(w, r, ticketError(err), h.logger)
		return
	}
	WriteSuccess(w, r, t)
}

// HandleResolve closes a ticket with the human's reply.
//
//	POST /v1/escalations/{id}/resolve
func (h *EscalationHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	var req api.ResolveRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Reply) == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "reply is required"), h.logger)
		return
	}
	resolvedBy := req.ResolvedBy
	if resolvedBy == "" {
		resolvedBy, _ = ctxkeys.Principal(r.Context())
	}

	t, err := h.queue.Resolve(r.Context(), r.PathValue("id"), hitl.Resolution{
		Reply:      req.Reply,
		Comment:    req.Comment,
		ResolvedBy: resolvedBy,
	})
	if err != nil {
		WriteError(w, r, ticketError(err), h.logger)
		return
	}
	WriteSuccess(w, r, t)
}

// HandleCancel closes a ticket without a reply.
//
//	POST /v1/escalations/{id}/cancel
func (h *EscalationHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	t, err := h.queue.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, ticketError(err), h.logger)
		return
	}
	WriteSuccess(w, r, t)
}

func ticketError(err error) error {
	switch {
	case errors.Is(err, hitl.ErrTicketNotFound):
		return types.NewError(types.ErrNotFound, "escalation ticket not found").WithCause(err)
	case errors.Is(err, hitl.ErrTicketClosed):
		return types.NewError(types.ErrConflict, "escalation ticket is already closed").WithCause(err)
	case errors.Is(err, hitl.ErrTicketAlreadyTaken):
		return types.NewError(types.ErrConflict, "escalation ticket is claimed by someone else").WithCause(err)
	default:
		return types.NewError(types.ErrStoreUnavailable, "escalation queue unavailable").WithCause(err).WithRetryable(true)
	}
}
