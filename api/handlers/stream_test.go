package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/switchboard/agent"
	"github.com/BaSui01/switchboard/api"
)

func TestStreamHub_SubscribeFiltersByConversation(t *testing.T) {
	hub := NewStreamHub(4, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	all, cancelAll := hub.Subscribe("")
	defer cancelAll()
	one, cancelOne := hub.Subscribe("c1")
	defer cancelOne()
	assert.Equal(t, 2, hub.Subscribers())

	hub.OnHop(ctx, agent.HopEvent{ConversationID: "c1", Responder: "triage", Hop: 1, Status: agent.StatusActive, NextAgent: "billing"})
	hub.OnHop(ctx, agent.HopEvent{ConversationID: "c2", Responder: "triage", Hop: 1, Err: errors.New("boom")})
	hub.OnEscalation(ctx, agent.EscalationRecord{ConversationID: "c1", Reason: agent.ReasonLoopGuardTripped, LastResponder: "billing"})

	require.Len(t, all, 3)
	require.Len(t, one, 2)

	ev := <-one
	assert.Equal(t, "hop", ev.Type)
	assert.Equal(t, "billing", ev.NextAgent)
	ev = <-one
	assert.Equal(t, "escalation", ev.Type)
	assert.Equal(t, agent.StatusEscalated, ev.Status)
	assert.Equal(t, agent.ReasonLoopGuardTripped, ev.Reason)

	<-all
	ev = <-all
	assert.Equal(t, "c2", ev.ConversationID)
	assert.Equal(t, "boom", ev.Error)
}

func TestStreamHub_DropsWhenSubscriberIsSlow(t *testing.T) {
	hub := NewStreamHub(2, nil, nil)
	events, cancel := hub.Subscribe("")

	for i := 0; i < 5; i++ {
		hub.OnDispatch(context.Background(), agent.DispatchEvent{ConversationID: "c1", Hops: i})
	}
	assert.Len(t, events, 2, "publish never blocks")

	cancel()
	cancel()
	assert.Equal(t, 0, hub.Subscribers())
}

func startStreamServer(t *testing.T, hub *StreamHub) string {
	t.Helper()
	mux := http.NewServeMux()
	hub.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream"
}

func TestStreamHub_HandleStream(t *testing.T) {
	hub := NewStreamHub(8, nil, zaptest.NewLogger(t))
	url := startStreamServer(t, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url+"?conversation_id=c1", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.OnHop(ctx, agent.HopEvent{ConversationID: "other", Responder: "triage", Hop: 1})
	hub.OnHop(ctx, agent.HopEvent{ConversationID: "c1", Responder: "orders", Hop: 2, Confidence: 0.8, Duration: 25 * time.Millisecond})

	var ev api.StreamEvent
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, "c1", ev.ConversationID)
	assert.Equal(t, "orders", ev.Responder)
	assert.Equal(t, 2, ev.Hop)
	assert.Equal(t, int64(25), ev.DurationMs)

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStreamHub_CloseDisconnects(t *testing.T) {
	hub := NewStreamHub(8, nil, zaptest.NewLogger(t))
	url := startStreamServer(t, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))

	// new connections are refused once closed
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
