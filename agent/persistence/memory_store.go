package persistence

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/BaSui01/switchboard/agent"
)

// MemoryConversationStore is an in-memory implementation of ConversationStore.
// Suitable for development and testing.
type MemoryConversationStore struct {
	records map[string]*memoryRecord
	config  StoreConfig
	closed  bool
	mu      sync.RWMutex
	now     func() time.Time
}

type memoryRecord struct {
	state   *agent.ConversationState
	expires time.Time
}

// NewMemoryConversationStore creates a new in-memory store
func NewMemoryConversationStore(config StoreConfig) *MemoryConversationStore {
	return &MemoryConversationStore{
		records: make(map[string]*memoryRecord),
		config:  config,
		now:     time.Now,
	}
}

// Close closes the store
func (s *MemoryConversationStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks if the store is healthy
func (s *MemoryConversationStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemoryConversationStore) Load(_ context.Context, id string) (*agent.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	rec, ok := s.records[id]
	if !ok || s.expired(rec) {
		return nil, ErrNotFound
	}
	return rec.state.Clone(), nil
}

func (s *MemoryConversationStore) Save(_ context.Context, state *agent.ConversationState) error {
	if err := validate(state); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	rec := &memoryRecord{state: state.Clone()}
	if s.config.Retention > 0 {
		rec.expires = s.now().Add(s.config.Retention)
	}
	s.records[state.ConversationID] = rec
	return nil
}

func (s *MemoryConversationStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryConversationStore) List(_ context.Context, filter ListFilter) ([]*agent.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	var out []*agent.ConversationState
	for _, rec := range s.records {
		if s.expired(rec) || (filter.Status != "" && rec.state.Status != filter.Status) {
			continue
		}
		out = append(out, rec.state.Clone())
	}
	slices.SortFunc(out, func(a, b *agent.ConversationState) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	if len(out) > filter.limit() {
		out = out[:filter.limit()]
	}
	return out, nil
}

func (s *MemoryConversationStore) expired(rec *memoryRecord) bool {
	return !rec.expires.IsZero() && s.now().After(rec.expires)
}
