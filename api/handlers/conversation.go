package handlers

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/switchboard/agent"
	"github.com/BaSui01/switchboard/agent/persistence"
	"github.com/BaSui01/switchboard/api"
	"github.com/BaSui01/switchboard/internal/ctxkeys"
	"github.com/BaSui01/switchboard/types"
)

// maxMessageRunes bounds one inbound customer message.
const maxMessageRunes = 8000

// ConversationService is what the conversation endpoints need.
// *conversation.Service implements it.
type ConversationService interface {
	HandleMessage(ctx context.Context, req agent.DispatchRequest) (agent.DispatchResult, error)
	Get(ctx context.Context, conversationID string) (*agent.ConversationState, error)
	List(ctx context.Context, filter persistence.ListFilter) ([]*agent.ConversationState, error)
	Forget(ctx context.Context, conversationID string) error
}

// ConversationHandler serves inbound messages and stored conversations.
type ConversationHandler struct {
	service ConversationService
	logger  *zap.Logger
}

// NewConversationHandler creates a handler over service.
func NewConversationHandler(service ConversationService, logger *zap.Logger) *ConversationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationHandler{
		service: service,
		logger:  logger.With(zap.String("component", "conversation_handler")),
	}
}

// RegisterRoutes mounts the endpoints on mux.
func (h *ConversationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/messages", h.HandleMessage)
	mux.HandleFunc("GET /v1/conversations", h.HandleList)
	mux.HandleFunc("GET /v1/conversations/{id}", h.HandleGet)
	mux.HandleFunc("DELETE /v1/conversations/{id}", h.HandleDelete)
}

// HandleMessage dispatches one customer message.
//
//	POST /v1/messages
func (h *ConversationHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.MessageRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := validateMessageRequest(&req); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	ctx := r.Context()
	if req.ConversationID != "" {
		ctx = ctxkeys.WithConversationID(ctx, req.ConversationID)
	}

	result, err := h.service.HandleMessage(ctx, req.DispatchRequest())
	if err != nil && result.ConversationID == "" {
		WriteError(w, r, err, h.logger)
		return
	}
	if err != nil {
		// the reply exists; only storing it failed
		h.logger.Warn("reply delivered without persistence",
			zap.String("conversation_id", result.ConversationID),
			zap.Error(err))
	}

	WriteSuccess(w, r, api.MessageResponse{
		DispatchResult: result,
		Persisted:      err == nil,
	})
}

func validateMessageRequest(req *api.MessageRequest) error {
	req.Message = strings.TrimSpace(req.Message)
	switch {
	case req.Message == "":
		return types.NewError(types.ErrInvalidRequest, "message is required")
	case utf8.RuneCountInString(req.Message) > maxMessageRunes:
		return types.Errorf(types.ErrInvalidRequest, "message exceeds %d characters", maxMessageRunes)
	case len(req.ConversationID) > 64:
		return types.NewError(types.ErrInvalidRequest, "conversation_id exceeds 64 characters")
	}
	return nil
}

// HandleGet returns the stored record of one conversation.
//
//	GET /v1/conversations/{id}
func (h *ConversationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, state)
}

// HandleList returns recently updated conversations, newest first.
//
//	GET /v1/conversations?status=ESCALATED&limit=20
func (h *ConversationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 50, 500)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	filter := persistence.ListFilter{Limit: limit}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := agent.ParseStatus(raw)
		if err != nil {
			WriteError(w, r, types.NewError(types.ErrInvalidRequest, err.Error()), h.logger)
			return
		}
		filter.Status = status
	}

	states, err := h.service.List(r.Context(), filter)
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrStoreUnavailable, "list conversations").WithCause(err), h.logger)
		return
	}
	out := make([]api.ConversationSummary, 0, len(states))
	for _, s := range states {
		out = append(out, api.SummarizeConversation(s))
	}
	WriteSuccess(w, r, out)
}

// HandleDelete forgets a conversation.
//
//	DELETE /v1/conversations/{id}
func (h *ConversationHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.service.Forget(r.Context(), id); err != nil {
		WriteError(w, r, types.NewError(types.ErrStoreUnavailable, "delete conversation").WithCause(err), h.logger)
		return
	}
	h.logger.Info("conversation deleted", zap.String("conversation_id", id))
	w.WriteHeader(http.StatusNoContent)
}
