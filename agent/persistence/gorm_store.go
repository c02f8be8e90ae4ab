package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/switchboard/agent"
)

// ConversationRecord is the SQL row for one conversation. The queryable
// columns duplicate fields of the JSON payload.
type ConversationRecord struct {
	ID             string    `gorm:"column:id;primaryKey;size:64"`
	Status         string    `gorm:"column:status;size:16;index"`
	TerminalReason string    `gorm:"column:terminal_reason;size:32"`
	CurrentAgent   string    `gorm:"column:current_agent;size:128"`
	TurnCount      int       `gorm:"column:turn_count"`
	Confidence     float64   `gorm:"column:confidence"`
	State          string    `gorm:"column:state;type:text"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at;index"`
}

// TableName pins the table created by the migrations.
func (ConversationRecord) TableName() string { return "conversations" }

// GormConversationStore is a SQL implementation of ConversationStore on gorm.
// The schema is owned by the migrations; the *gorm.DB is owned by the caller.
type GormConversationStore struct {
	db *gorm.DB
}

// NewGormConversationStore creates a store on an open database.
func NewGormConversationStore(db *gorm.DB) *GormConversationStore {
	return &GormConversationStore{db: db}
}

// Close is a no-op; the pool is closed by its owner.
func (s *GormConversationStore) Close() error { return nil }

// Ping checks if the store is healthy
func (s *GormConversationStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormConversationStore) Load(ctx context.Context, id string) (*agent.ConversationState, error) {
	var rec ConversationRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	return decodeRecord(&rec)
}

func (s *GormConversationStore) Save(ctx context.Context, state *agent.ConversationState) error {
	if err := validate(state); err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	rec := ConversationRecord{
		ID:             state.ConversationID,
		Status:         string(state.Status),
		TerminalReason: string(state.TerminalReason),
		CurrentAgent:   state.CurrentAgent,
		TurnCount:      state.TurnCount,
		Confidence:     state.ResponseConfidence,
		State:          string(data),
		CreatedAt:      state.CreatedAt,
		UpdatedAt:      state.UpdatedAt,
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "terminal_reason", "current_agent", "turn_count", "confidence", "state", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save conversation %s: %w", state.ConversationID, err)
	}
	return nil
}

func (s *GormConversationStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&ConversationRecord{}).Error
}

func (s *GormConversationStore) List(ctx context.Context, filter ListFilter) ([]*agent.ConversationState, error) {
	q := s.db.WithContext(ctx).Order("updated_at DESC").Limit(filter.limit())
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	var recs []ConversationRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	out := make([]*agent.ConversationState, 0, len(recs))
	for i := range recs {
		state, err := decodeRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, nil
}

// Purge deletes records not updated since before.
func (s *GormConversationStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("updated_at < ?", before).Delete(&ConversationRecord{})
	return res.RowsAffected, res.Error
}

func decodeRecord(rec *ConversationRecord) (*agent.ConversationState, error) {
	var state agent.ConversationState
	if err := json.Unmarshal([]byte(rec.State), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation %s: %w", rec.ID, err)
	}
	return &state, nil
}
