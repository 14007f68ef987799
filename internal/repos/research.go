package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/personaforge/backend/internal/logger"
	"github.com/personaforge/backend/internal/types"
)

type ResearchItemRepo interface {
	Create(ctx context.Context, tx *gorm.DB, items []*types.ResearchItem) ([]*types.ResearchItem, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ResearchItem, error)
	GetByPersonaID(ctx context.Context, tx *gorm.DB, personaID uuid.UUID) ([]*types.ResearchItem, error)
	Update(ctx context.Context, tx *gorm.DB, item *types.ResearchItem) error
}

type researchItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResearchItemRepo(db *gorm.DB, baseLog *logger.Logger) ResearchItemRepo {
	return &researchItemRepo{db: db, log: baseLog.With("repo", "ResearchItemRepo")}
}

func (r *researchItemRepo) Create(ctx context.Context, tx *gorm.DB, items []*types.ResearchItem) ([]*types.ResearchItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(items) == 0 {
		return []*types.ResearchItem{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *researchItemRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ResearchItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.ResearchItem
	if err := transaction.WithContext(ctx).
		Preload("Files").
		Where("id = ?", id).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (r *researchItemRepo) GetByPersonaID(ctx context.Context, tx *gorm.DB, personaID uuid.UUID) ([]*types.ResearchItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ResearchItem
	if err := transaction.WithContext(ctx).
		Preload("Files").
		Where("persona_id = ?", personaID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *researchItemRepo) Update(ctx context.Context, tx *gorm.DB, item *types.ResearchItem) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Save(item).Error
}

type ResearchFileRepo interface {
	Create(ctx context.Context, tx *gorm.DB, files []*types.ResearchFile) ([]*types.ResearchFile, error)
	GetByResearchItemIDs(ctx context.Context, tx *gorm.DB, itemIDs []uuid.UUID) ([]*types.ResearchFile, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error
}

type researchFileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResearchFileRepo(db *gorm.DB, baseLog *logger.Logger) ResearchFileRepo {
	return &researchFileRepo{db: db, log: baseLog.With("repo", "ResearchFileRepo")}
}

func (r *researchFileRepo) Create(ctx context.Context, tx *gorm.DB, files []*types.ResearchFile) ([]*types.ResearchFile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(files) == 0 {
		return []*types.ResearchFile{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

func (r *researchFileRepo) GetByResearchItemIDs(ctx context.Context, tx *gorm.DB, itemIDs []uuid.UUID) ([]*types.ResearchFile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ResearchFile
	if len(itemIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("research_item_id IN ?", itemIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *researchFileRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.ResearchFile{}).
		Where("id = ?", id).
		Update("status", status).Error
}
