package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/personaforge/backend/internal/logger"
	"github.com/personaforge/backend/internal/types"
)

type InteractionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, interactions []*types.Interaction) ([]*types.Interaction, error)
	GetByPersonaID(ctx context.Context, tx *gorm.DB, personaID uuid.UUID) ([]*types.Interaction, error)
}

type interactionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInteractionRepo(db *gorm.DB, baseLog *logger.Logger) InteractionRepo {
	return &interactionRepo{db: db, log: baseLog.With("repo", "InteractionRepo")}
}

func (r *interactionRepo) Create(ctx context.Context, tx *gorm.DB, interactions []*types.Interaction) ([]*types.Interaction, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(interactions) == 0 {
		return []*types.Interaction{}, nil
	}

	// Transcript rows can be long; keep insert batches bounded.
	const batchSize = 100

	if err := transaction.WithContext(ctx).CreateInBatches(interactions, batchSize).Error; err != nil {
		return nil, err
	}
	return interactions, nil
}

func (r *interactionRepo) GetByPersonaID(ctx context.Context, tx *gorm.DB, personaID uuid.UUID) ([]*types.Interaction, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Interaction
	if err := transaction.WithContext(ctx).
		Where("persona_id = ?", personaID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
