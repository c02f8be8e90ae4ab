package hitl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/BaSui01/switchboard/internal/database"
)

// TicketRecord is the SQL row for one escalation ticket. The queryable
// columns duplicate fields of the JSON payload.
type TicketRecord struct {
	ID             string    `gorm:"column:id;primaryKey;size:64"`
	ConversationID string    `gorm:"column:conversation_id;size:64;index"`
	Reason         string    `gorm:"column:reason;size:32"`
	Status         string    `gorm:"column:status;size:16;index"`
	Assignee       string    `gorm:"column:assignee;size:128"`
	Ticket         string    `gorm:"column:ticket;type:text"`
	CreatedAt      time.Time `gorm:"column:created_at;index"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

// TableName pins the table created by the migrations.
func (TicketRecord) TableName() string { return "escalation_tickets" }

// GormTicketStore keeps tickets in SQL. Updates run in a retried
// transaction so concurrent claims on the same ticket serialize.
type GormTicketStore struct {
	db *gorm.DB
}

// NewGormTicketStore creates a store on an open database.
func NewGormTicketStore(db *gorm.DB) *GormTicketStore {
	return &GormTicketStore{db: db}
}

func (s *GormTicketStore) Save(ctx context.Context, t *Ticket) error {
	rec, err := toRecord(t)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("save ticket %s: %w", t.ID, err)
	}
	return nil
}

func (s *GormTicketStore) Load(ctx context.Context, id string) (*Ticket, error) {
	var rec TicketRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTicketNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load ticket %s: %w", id, err)
	}
	return fromRecord(&rec)
}

func (s *GormTicketStore) List(ctx context.Context, filter ListFilter) ([]*Ticket, error) {
	q := s.db.WithContext(ctx).Order("created_at ASC").Order("id ASC")
	if filter.ConversationID != "" {
		q = q.Where("conversation_id = ?", filter.ConversationID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var recs []TicketRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	out := make([]*Ticket, 0, len(recs))
	for i := range recs {
		t, err := fromRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *GormTicketStore) Update(ctx context.Context, t *Ticket) error {
	rec, err := toRecord(t)
	if err != nil {
		return err
	}
	return database.TransactionRetry(ctx, s.db, 3, nil, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&TicketRecord{}).Where("id = ?", t.ID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrTicketNotFound, t.ID)
		}
		return tx.Model(&TicketRecord{}).Where("id = ?", t.ID).Updates(map[string]any{
			"status":     rec.Status,
			"assignee":   rec.Assignee,
			"ticket":     rec.Ticket,
			"updated_at": rec.UpdatedAt,
		}).Error
	})
}

func toRecord(t *Ticket) (*TicketRecord, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ticket: %w", err)
	}
	return &TicketRecord{
		ID:             t.ID,
		ConversationID: t.ConversationID,
		Reason:         string(t.Reason),
		Status:         string(t.Status),
		Assignee:       t.Assignee,
		Ticket:         string(data),
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      time.Now(),
	}, nil
}

func fromRecord(rec *TicketRecord) (*Ticket, error) {
	var t Ticket
	if err := json.Unmarshal([]byte(rec.Ticket), &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ticket %s: %w", rec.ID, err)
	}
	return &t, nil
}
