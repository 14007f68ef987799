package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/personaforge/backend/internal/logger"
	"github.com/personaforge/backend/internal/types"
)

type TimelineQuery struct {
	StartDate *time.Time
	EndDate   *time.Time
	EventType string
	Category  string
	Limit     int
}

type TimelineEventRepo interface {
	Create(ctx context.Context, tx *gorm.DB, events []*types.TimelineEvent) ([]*types.TimelineEvent, error)
	GetByPersonaID(ctx context.Context, tx *gorm.DB, personaID uuid.UUID, q TimelineQuery) ([]*types.TimelineEvent, error)
}

type timelineEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTimelineEventRepo(db *gorm.DB, baseLog *logger.Logger) TimelineEventRepo {
	return &timelineEventRepo{db: db, log: baseLog.With("repo", "TimelineEventRepo")}
}

func (r *timelineEventRepo) Create(ctx context.Context, tx *gorm.DB, events []*types.TimelineEvent) ([]*types.TimelineEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(events) == 0 {
		return []*types.TimelineEvent{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *timelineEventRepo) GetByPersonaID(ctx context.Context, tx *gorm.DB, personaID uuid.UUID, q TimelineQuery) ([]*types.TimelineEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	query := transaction.WithContext(ctx).
		Where("persona_id = ?", personaID)
	if q.StartDate != nil {
		query = query.Where("event_date >= ?", *q.StartDate)
	}
	if q.EndDate != nil {
		query = query.Where("event_date <= ?", *q.EndDate)
	}
	if q.EventType != "" {
		query = query.Where("event_type = ?", q.EventType)
	}
	if q.Category != "" {
		query = query.Where("category = ?", q.Category)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	var results []*types.TimelineEvent
	if err := query.
		Order("event_date DESC, importance DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
