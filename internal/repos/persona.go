package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/personaforge/backend/internal/logger"
	"github.com/personaforge/backend/internal/types"
)

var ErrNotFound = errors.New("record not found")

type PersonaRepo interface {
	Create(ctx context.Context, tx *gorm.DB, personas []*types.Persona) ([]*types.Persona, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Persona, error)
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Persona, error)
	GetByUserAndSourceID(ctx context.Context, tx *gorm.DB, userID uuid.UUID, sourceID string) (*types.Persona, error)
	Update(ctx context.Context, tx *gorm.DB, persona *types.Persona) error
	UpdateFieldsCAS(ctx context.Context, tx *gorm.DB, id uuid.UUID, lockVersion int, fields map[string]any) (bool, error)
}

type personaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPersonaRepo(db *gorm.DB, baseLog *logger.Logger) PersonaRepo {
	return &personaRepo{db: db, log: baseLog.With("repo", "PersonaRepo")}
}

func (r *personaRepo) Create(ctx context.Context, tx *gorm.DB, personas []*types.Persona) ([]*types.Persona, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(personas) == 0 {
		return []*types.Persona{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&personas).Error; err != nil {
		return nil, err
	}
	return personas, nil
}

func (r *personaRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Persona, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.Persona
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

func (r *personaRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Persona, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Persona
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *personaRepo) GetByUserAndSourceID(ctx context.Context, tx *gorm.DB, userID uuid.UUID, sourceID string) (*types.Persona, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if sourceID == "" {
		return nil, ErrNotFound
	}
	var result types.Persona
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND source_id = ?", userID, sourceID).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (r *personaRepo) Update(ctx context.Context, tx *gorm.DB, persona *types.Persona) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Save(persona).Error
}

// UpdateFieldsCAS applies fields only if the persona's lock_version still
// matches, bumping it in the same statement. Returns false on a lost race.
func (r *personaRepo) UpdateFieldsCAS(ctx context.Context, tx *gorm.DB, id uuid.UUID, lockVersion int, fields map[string]any) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	fields["lock_version"] = lockVersion + 1
	res := transaction.WithContext(ctx).
		Model(&types.Persona{}).
		Where("id = ? AND lock_version = ?", id, lockVersion).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
