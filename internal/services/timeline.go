package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/personaforge/backend/internal/logger"
	"github.com/personaforge/backend/internal/repos"
	"github.com/personaforge/backend/internal/types"
)

// TimelineService is the append-only recorder of notable persona events.
// Entries are immutable once written; RefID is stored opaquely.
type TimelineService interface {
	Record(ctx context.Context, tx *gorm.DB, input TimelineEventInput) (*types.TimelineEvent, error)
	Query(ctx context.Context, userID uuid.UUID, personaID uuid.UUID, q repos.TimelineQuery) ([]*types.TimelineEvent, error)
}

type TimelineEventInput struct {
	PersonaID   uuid.UUID
	Title       string
	Description string
	EventType   string
	EventDate   time.Time
	Importance  int
	Category    string
	RefID       *uuid.UUID
	Metadata    datatypes.JSON
	SourceID    string
}

type timelineService struct {
	db           *gorm.DB
	log          *logger.Logger
	personaRepo  repos.PersonaRepo
	timelineRepo repos.TimelineEventRepo
}

func NewTimelineService(db *gorm.DB, baseLog *logger.Logger, personaRepo repos.PersonaRepo, timelineRepo repos.TimelineEventRepo) TimelineService {
	return &timelineService{
		db:           db,
		log:          baseLog.With("service", "TimelineService"),
		personaRepo:  personaRepo,
		timelineRepo: timelineRepo,
	}
}

func (ts *timelineService) Record(ctx context.Context, tx *gorm.DB, input TimelineEventInput) (*types.TimelineEvent, error) {
	if input.PersonaID == uuid.Nil {
		return nil, fmt.Errorf("persona id required")
	}
	if input.Title == "" {
		return nil, fmt.Errorf("title required")
	}
	if input.EventDate.IsZero() {
		input.EventDate = time.Now()
	}
	if input.Importance <= 0 {
		input.Importance = types.ImportanceMedium
	}

	event := &types.TimelineEvent{
		ID:          uuid.New(),
		PersonaID:   input.PersonaID,
		Title:       input.Title,
		Description: input.Description,
		EventType:   input.EventType,
		EventDate:   input.EventDate,
		Importance:  input.Importance,
		Category:    input.Category,
		RefID:       input.RefID,
		Metadata:    input.Metadata,
		SourceID:    input.SourceID,
		CreatedAt:   time.Now(),
	}
	if _, err := ts.timelineRepo.Create(ctx, tx, []*types.TimelineEvent{event}); err != nil {
		ts.log.Error("Record timeline event failed", "error", err, "event_type", input.EventType)
		return nil, fmt.Errorf("record timeline event: %w", err)
	}
	return event, nil
}

func (ts *timelineService) Query(ctx context.Context, userID uuid.UUID, personaID uuid.UUID, q repos.TimelineQuery) ([]*types.TimelineEvent, error) {
	if _, err := ownedPersona(ctx, ts.personaRepo, userID, personaID); err != nil {
		return nil, err
	}
	events, err := ts.timelineRepo.GetByPersonaID(ctx, nil, personaID, q)
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	return events, nil
}
