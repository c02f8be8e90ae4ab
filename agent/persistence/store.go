package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/switchboard/agent"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeRedis    StoreType = "redis"
	StoreTypeDatabase StoreType = "database"
)

// StoreConfig configures the conversation store.
type StoreConfig struct {
	// Type is the storage backend type
	Type StoreType `json:"type" yaml:"type" env:"TYPE"`

	// KeyPrefix is the prefix for all Redis keys
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" env:"KEY_PREFIX"`

	// Retention is how long an idle conversation is kept. Zero keeps it forever.
	Retention time.Duration `json:"retention" yaml:"retention" env:"RETENTION"`

	// MaxTranscriptTurns caps the transcript carried between messages.
	MaxTranscriptTurns int `json:"max_transcript_turns" yaml:"max_transcript_turns" env:"MAX_TRANSCRIPT_TURNS"`
}

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:               StoreTypeMemory,
		KeyPrefix:          "switchboard:",
		Retention:          7 * 24 * time.Hour,
		MaxTranscriptTurns: 40,
	}
}

// Store is the base interface for all persistent stores
type Store interface {
	// Close closes the store and releases resources
	Close() error

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error
}

// ConversationStore keeps one record per conversation: the terminal state of
// its latest dispatch cycle, including the transcript of earlier messages.
type ConversationStore interface {
	Store

	// Load returns the stored state or ErrNotFound.
	Load(ctx context.Context, conversationID string) (*agent.ConversationState, error)

	// Save inserts or replaces the record.
	Save(ctx context.Context, state *agent.ConversationState) error

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, conversationID string) error

	// List returns the most recently updated records, newest first.
	List(ctx context.Context, filter ListFilter) ([]*agent.ConversationState, error)
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	Status agent.Status
	Limit  int
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

func validate(state *agent.ConversationState) error {
	if state == nil || state.ConversationID == "" {
		return ErrInvalidInput
	}
	return nil
}
