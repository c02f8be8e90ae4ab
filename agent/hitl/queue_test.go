package hitl

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/switchboard/agent"
)

func storesUnderTest(t *testing.T) map[string]TicketStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&TicketRecord{}))

	return map[string]TicketStore{
		"memory":   NewInMemoryTicketStore(),
		"redis":    NewRedisTicketStore(client, "test:"),
		"database": NewGormTicketStore(db),
	}
}

func record(id, conv string, at time.Time) agent.EscalationRecord {
	return agent.EscalationRecord{
		ID:             id,
		ConversationID: conv,
		Reason:         agent.ReasonLowConfidence,
		LastResponder:  "billing",
		Confidence:     0.4,
		Message:        "I want a refund",
		CreatedAt:      at,
	}
}

func TestQueue_Lifecycle(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			q := NewQueue(store, zap.NewNop())
			base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

			require.NoError(t, q.Enqueue(ctx, record("t1", "c1", base)))
			require.NoError(t, q.Enqueue(ctx, record("t2", "c2", base.Add(time.Second))))

			got, err := q.Get(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, TicketStatusPending, got.Status)
			assert.Equal(t, agent.ReasonLowConfidence, got.Reason)
			assert.Equal(t, "billing", got.LastResponder)

			pending, err := q.Pending(ctx, 0)
			require.NoError(t, err)
			require.Len(t, pending, 2)
			assert.Equal(t, "t1", pending[0].ID, "oldest first")

			open, err := q.HasOpenTicket(ctx, "c1")
			require.NoError(t, err)
			assert.True(t, open)
			open, err = q.HasOpenTicket(ctx, "c3")
			require.NoError(t, err)
			assert.False(t, open)

			claimed, err := q.Claim(ctx, "t1", "alice")
			require.NoError(t, err)
			assert.Equal(t, TicketStatusClaimed, claimed.Status)
			assert.NotNil(t, claimed.ClaimedAt)

			_, err = q.Claim(ctx, "t1", "alice")
			assert.NoError(t, err, "re-claiming your own ticket is fine")
			_, err = q.Claim(ctx, "t1", "bob")
			assert.ErrorIs(t, err, ErrTicketAlreadyTaken)

			resolved, err := q.Resolve(ctx, "t1", Resolution{Reply: "Refund issued."})
			require.NoError(t, err)
			assert.Equal(t, TicketStatusResolved, resolved.Status)
			require.NotNil(t, resolved.Resolution)
			assert.Equal(t, "alice", resolved.Resolution.ResolvedBy)
			assert.NotNil(t, resolved.ClosedAt)

			_, err = q.Resolve(ctx, "t1", Resolution{Reply: "again"})
			assert.ErrorIs(t, err, ErrTicketClosed)

			canceled, err := q.Cancel(ctx, "t2")
			require.NoError(t, err)
			assert.Equal(t, TicketStatusCanceled, canceled.Status)

			pending, err = q.Pending(ctx, 0)
			require.NoError(t, err)
			assert.Empty(t, pending)

			open, err = q.HasOpenTicket(ctx, "c1")
			require.NoError(t, err)
			assert.False(t, open, "resolved tickets release the conversation")

			list, err := q.List(ctx, ListFilter{ConversationID: "c1"})
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, TicketStatusResolved, list[0].Status)

			list, err = q.List(ctx, ListFilter{Status: TicketStatusCanceled})
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "t2", list[0].ID)

			_, err = q.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrTicketNotFound)
			_, err = q.Claim(ctx, "missing", "alice")
			assert.ErrorIs(t, err, ErrTicketNotFound)
		})
	}
}

func TestQueue_ListLimit(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			q := NewQueue(store, nil)
			base := time.Now()
			for i, id := range []string{"a", "b", "c"} {
				require.NoError(t, q.Enqueue(ctx, record(id, "c", base.Add(time.Duration(i)*time.Millisecond))))
			}
			list, err := q.List(ctx, ListFilter{Limit: 2})
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "a", list[0].ID)
			assert.Equal(t, "b", list[1].ID)

			pending, err := q.Pending(ctx, 1)
			require.NoError(t, err)
			assert.Len(t, pending, 1)
		})
	}
}

func TestQueue_EnqueueFillsDefaults(t *testing.T) {
	store := NewInMemoryTicketStore()
	q := NewQueue(store, nil)
	require.NoError(t, q.Enqueue(context.Background(), agent.EscalationRecord{ConversationID: "c"}))

	list, err := store.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotEmpty(t, list[0].ID)
	assert.False(t, list[0].CreatedAt.IsZero())
}

type failingStore struct{ InMemoryTicketStore }

func (failingStore) Save(context.Context, *Ticket) error { return errors.New("disk full") }

func TestQueue_EnqueueStoreError(t *testing.T) {
	q := NewQueue(&failingStore{}, nil)
	err := q.Enqueue(context.Background(), record("x", "c", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestQueue_HandlersNotified(t *testing.T) {
	q := NewQueue(NewInMemoryTicketStore(), nil)
	var calls atomic.Int32
	done := make(chan string, 2)
	q.OnTicket(func(_ context.Context, tk *Ticket) error {
		calls.Add(1)
		done <- tk.ID
		return nil
	})
	q.OnTicket(func(_ context.Context, tk *Ticket) error {
		calls.Add(1)
		done <- tk.ID
		return errors.New("pager offline")
	})

	require.NoError(t, q.Enqueue(context.Background(), record("t1", "c1", time.Now())))
	for i := 0; i < 2; i++ {
		select {
		case id := <-done:
			assert.Equal(t, "t1", id)
		case <-time.After(2 * time.Second):
			t.Fatal("handler not called")
		}
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestQueue_IsAnEscalationQueueForTheOrchestrator(t *testing.T) {
	store := NewInMemoryTicketStore()
	q := NewQueue(store, nil)

	reg, err := agent.Bootstrap(nil, agent.Entry("billing",
		agent.ResponderFunc(func(_ context.Context, s *agent.ConversationState) (*agent.ConversationState, error) {
			s.Status = agent.StatusResolved
			s.ResponseConfidence = 0.2
			return s, nil
		}), agent.TierSpecialist, "billing"))
	require.NoError(t, err)

	o := agent.NewOrchestrator(reg, agent.DefaultOptions(), agent.WithEscalationQueue(q))
	res := o.Handle(context.Background(), agent.DispatchRequest{ConversationID: "c9", CurrentMessage: "refund", EntryAgent: "billing"})
	require.Equal(t, agent.StatusEscalated, res.Status)

	list, err := q.List(context.Background(), ListFilter{ConversationID: "c9"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, agent.ReasonLowConfidence, list[0].Reason)
	assert.Equal(t, "refund", list[0].Message)
}
