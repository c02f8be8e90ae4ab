package handlers

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/switchboard/agent"
	"github.com/BaSui01/switchboard/api"
	"github.com/BaSui01/switchboard/types"
)

const (
	streamWriteTimeout = 5 * time.Second
	streamPingInterval = 30 * time.Second
)

// StreamHub fans dispatch progress out to websocket subscribers. It
// implements agent.Observer. Slow subscribers lose events rather than
// slowing dispatch down.
type StreamHub struct {
	mu             sync.RWMutex
	subs           map[*subscriber]struct{}
	buffer         int
	originPatterns []string
	logger         *zap.Logger
	done           chan struct{}
	closeOnce      sync.Once
}

type subscriber struct {
	conversationID string
	events         chan api.StreamEvent
	dropped        atomic.Int64
}

var _ agent.Observer = (*StreamHub)(nil)

// NewStreamHub creates a hub. buffer is the per-subscriber queue length;
// originPatterns are the cross-origin hosts allowed to connect.
func NewStreamHub(buffer int, originPatterns []string, logger *zap.Logger) *StreamHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &StreamHub{
		subs:           make(map[*subscriber]struct{}),
		buffer:         buffer,
		originPatterns: originPatterns,
		logger:         logger.With(zap.String("component", "stream_hub")),
		done:           make(chan struct{}),
	}
}

// RegisterRoutes mounts the websocket endpoint on mux.
func (h *StreamHub) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/stream", h.HandleStream)
}

func (h *StreamHub) OnHop(_ context.Context, ev agent.HopEvent) {
	out := api.StreamEvent{
		Type:           "hop",
		ConversationID: ev.ConversationID,
		Responder:      ev.Responder,
		Hop:            ev.Hop,
		Status:         ev.Status,
		NextAgent:      ev.NextAgent,
		Confidence:     ev.Confidence,
		DurationMs:     ev.Duration.Milliseconds(),
		Timestamp:      time.Now(),
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	h.publish(out)
}

func (h *StreamHub) OnDispatch(_ context.Context, ev agent.DispatchEvent) {
	h.publish(api.StreamEvent{
		Type:           "dispatch",
		ConversationID: ev.ConversationID,
		Hop:            ev.Hops,
		Status:         ev.Status,
		Reason:         ev.Reason,
		DurationMs:     ev.Duration.Milliseconds(),
		Timestamp:      time.Now(),
	})
}

func (h *StreamHub) OnEscalation(_ context.Context, rec agent.EscalationRecord) {
	h.publish(api.StreamEvent{
		Type:           "escalation",
		ConversationID: rec.ConversationID,
		Responder:      rec.LastResponder,
		Status:         agent.StatusEscalated,
		Reason:         rec.Reason,
		Confidence:     rec.Confidence,
		Timestamp:      rec.CreatedAt,
	})
}

func (h *StreamHub) publish(ev api.StreamEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if s.conversationID != "" && s.conversationID != ev.ConversationID {
			continue
		}
		select {
		case s.events <- ev:
		default:
			if s.dropped.Add(1) == 1 {
				h.logger.Warn("stream subscriber too slow, dropping events",
					zap.String("conversation_id", s.conversationID))
			}
		}
	}
}

// Subscribe registers a subscriber for one conversation, or for all of them
// when conversationID is empty. The returned cancel func must be called.
func (h *StreamHub) Subscribe(conversationID string) (<-chan api.StreamEvent, func()) {
	s := &subscriber{
		conversationID: conversationID,
		events:         make(chan api.StreamEvent, h.buffer),
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.events, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, s)
			h.mu.Unlock()
		})
	}
}

// Subscribers returns the number of connected subscribers.
func (h *StreamHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every stream. http.Server.Shutdown does not track
// upgraded connections, so the server calls this on shutdown.
func (h *StreamHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// HandleStream upgrades to a websocket and streams events until the client
// leaves or the hub closes.
//
//	GET /v1/stream?conversation_id=...
func (h *StreamHub) HandleStream(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		WriteErrorMessage(w, r, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "server is shutting down", h.logger)
		return
	default:
	}

	// the server's read and write timeouts would cut a long-lived stream
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	conversationID := r.URL.Query().Get("conversation_id")
	events, cancel := h.Subscribe(conversationID)
	defer cancel()

	// clients only listen; CloseRead handles control frames and
	// cancels ctx when the peer goes away
	ctx := conn.CloseRead(r.Context())
	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	h.logger.Debug("stream subscriber connected", zap.String("conversation_id", conversationID))
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				return
			}
		case ev := <-events:
			wctx, wcancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(wctx, conn, ev)
			wcancel()
			if err != nil {
				h.logger.Debug("stream write failed", zap.Error(err))
				return
			}
		}
	}
}
