package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/switchboard/agent"
)

// RedisConversationStore is a Redis-based implementation of ConversationStore.
// Suitable for distributed production deployments. Each record is a JSON
// value with the retention as TTL; a sorted set scored by update time backs
// List.
type RedisConversationStore struct {
	client    redis.UniversalClient
	keyPrefix string
	config    StoreConfig
}

// NewRedisConversationStore creates a store on an existing client.
func NewRedisConversationStore(client redis.UniversalClient, config StoreConfig) *RedisConversationStore {
	keyPrefix := config.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "switchboard:"
	}
	return &RedisConversationStore{
		client:    client,
		keyPrefix: keyPrefix + "conv:",
		config:    config,
	}
}

// Close is a no-op; the client is owned by the caller.
func (s *RedisConversationStore) Close() error { return nil }

// Ping checks if the store is healthy
func (s *RedisConversationStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisConversationStore) dataKey(id string) string { return s.keyPrefix + "data:" + id }

func (s *RedisConversationStore) indexKey() string { return s.keyPrefix + "index" }

func (s *RedisConversationStore) Load(ctx context.Context, id string) (*agent.ConversationState, error) {
	data, err := s.client.Get(ctx, s.dataKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var state agent.ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation %s: %w", id, err)
	}
	return &state, nil
}

func (s *RedisConversationStore) Save(ctx context.Context, state *agent.ConversationState) error {
	if err := validate(state); err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.dataKey(state.ConversationID), data, s.config.Retention)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(state.UpdatedAt.UnixNano()),
		Member: state.ConversationID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisConversationStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.dataKey(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisConversationStore) List(ctx context.Context, filter ListFilter) ([]*agent.ConversationState, error) {
	ids, err := s.client.ZRevRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	var (
		out   []*agent.ConversationState
		stale []any
	)
	for _, id := range ids {
		state, err := s.Load(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// expired by TTL, drop it from the index
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if filter.Status != "" && state.Status != filter.Status {
			continue
		}
		out = append(out, state)
		if len(out) == filter.limit() {
			break
		}
	}
	if len(stale) > 0 {
		_ = s.client.ZRem(ctx, s.indexKey(), stale...).Err()
	}
	return out, nil
}

// Count returns the number of indexed conversations.
func (s *RedisConversationStore) Count(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return n, nil
}
