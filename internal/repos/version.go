package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/personaforge/backend/internal/logger"
	"github.com/personaforge/backend/internal/types"
)

type PersonaVersionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, versions []*types.PersonaVersion) ([]*types.PersonaVersion, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.PersonaVersion, error)
	GetByPersonaID(ctx context.Context, tx *gorm.DB, personaID uuid.UUID) ([]*types.PersonaVersion, error)
	CountByPersonaID(ctx context.Context, tx *gorm.DB, personaID uuid.UUID) (int64, error)
	DeactivateAll(ctx context.Context, tx *gorm.DB, personaID uuid.UUID) error
	Activate(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	SetParent(ctx context.Context, tx *gorm.DB, id uuid.UUID, parentID *uuid.UUID) error
}

type personaVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPersonaVersionRepo(db *gorm.DB, baseLog *logger.Logger) PersonaVersionRepo {
	return &personaVersionRepo{db: db, log: baseLog.With("repo", "PersonaVersionRepo")}
}

func (r *personaVersionRepo) Create(ctx context.Context, tx *gorm.DB, versions []*types.PersonaVersion) ([]*types.PersonaVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(versions) == 0 {
		return []*types.PersonaVersion{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

func (r *personaVersionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.PersonaVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.PersonaVersion
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (r *personaVersionRepo) GetByPersonaID(ctx context.Context, tx *gorm.DB, personaID uuid.UUID) ([]*types.PersonaVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.PersonaVersion
	if err := transaction.WithContext(ctx).
		Where("persona_id = ?", personaID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *personaVersionRepo) CountByPersonaID(ctx context.Context, tx *gorm.DB, personaID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.PersonaVersion{}).
		Where("persona_id = ?", personaID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *personaVersionRepo) DeactivateAll(ctx context.Context, tx *gorm.DB, personaID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.PersonaVersion{}).
		Where("persona_id = ? AND is_active = ?", personaID, true).
		Update("is_active", false).Error
}

func (r *personaVersionRepo) Activate(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.PersonaVersion{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_active": true, "is_draft": false}).Error
}

func (r *personaVersionRepo) SetParent(ctx context.Context, tx *gorm.DB, id uuid.UUID, parentID *uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.PersonaVersion{}).
		Where("id = ?", id).
		Update("parent_version_id", parentID).Error
}
