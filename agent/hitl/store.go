package hitl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/redis/go-redis/v9"
)

// InMemoryTicketStore keeps tickets in process memory.
type InMemoryTicketStore struct {
	tickets map[string]*Ticket
	mu      sync.RWMutex
}

// NewInMemoryTicketStore creates an empty in-memory store.
func NewInMemoryTicketStore() *InMemoryTicketStore {
	return &InMemoryTicketStore{tickets: make(map[string]*Ticket)}
}

func (s *InMemoryTicketStore) Save(_ context.Context, t *Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tickets[t.ID] = &cp
	return nil
}

func (s *InMemoryTicketStore) Load(_ context.Context, id string) (*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTicketNotFound, id)
	}
	cp := *t
	return &cp, nil
}

func (s *InMemoryTicketStore) List(_ context.Context, filter ListFilter) ([]*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Ticket
	for _, t := range s.tickets {
		if filter.matches(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sortTickets(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *InMemoryTicketStore) Update(_ context.Context, t *Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[t.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrTicketNotFound, t.ID)
	}
	cp := *t
	s.tickets[t.ID] = &cp
	return nil
}

func sortTickets(ts []*Ticket) {
	slices.SortFunc(ts, func(a, b *Ticket) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}

// RedisTicketStore keeps tickets in Redis: one JSON value per ticket plus a
// sorted-set index scored by creation time.
type RedisTicketStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisTicketStore creates a store on an existing client.
func NewRedisTicketStore(client redis.UniversalClient, keyPrefix string) *RedisTicketStore {
	if keyPrefix == "" {
		keyPrefix = "switchboard:"
	}
	return &RedisTicketStore{client: client, keyPrefix: keyPrefix + "escalation:"}
}

func (s *RedisTicketStore) ticketKey(id string) string { return s.keyPrefix + "ticket:" + id }
func (s *RedisTicketStore) indexKey() string { return s.keyPrefix + "index" }

func (s *RedisTicketStore) Save(ctx context.Context, t *Ticket) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal ticket: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.ticketKey(t.ID), data, 0)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(t.CreatedAt.UnixNano()), Member: t.ID})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisTicketStore) Load(ctx context.Context, id string) (*Ticket, error) {
	data, err := s.client.Get(ctx, s.ticketKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrTicketNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var t Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ticket %s: %w", id, err)
	}
	return &t, nil
}

func (s *RedisTicketStore) List(ctx context.Context, filter ListFilter) ([]*Ticket, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.ticketKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var out []*Ticket
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var t Ticket
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ticket: %w", err)
		}
		if !filter.matches(&t) {
			continue
		}
		out = append(out, &t)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *RedisTicketStore) Update(ctx context.Context, t *Ticket) error {
	n, err := s.client.Exists(ctx, s.ticketKey(t.ID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTicketNotFound, t.ID)
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal ticket: %w", err)
	}
	return s.client.Set(ctx, s.ticketKey(t.ID), data, 0).Err()
}
