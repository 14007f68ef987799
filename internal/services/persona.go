package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/personaforge/backend/internal/logger"
	"github.com/personaforge/backend/internal/repos"
	"github.com/personaforge/backend/internal/types"
)

type CreatePersonaInput struct {
	Name         string
	Age          int
	Occupation   string
	Location     string
	Introduction string
	Traits       []string
	Interests    []string
	Attributes   map[string]any
}

// PersonaService covers persona lifecycle outside of versioned edits:
// creation, listing, avatar upload, and interaction transcripts. Edits to
// the profile fields themselves go through VersionService.Publish.
type PersonaService interface {
	Create(ctx context.Context, userID uuid.UUID, input CreatePersonaInput) (*types.Persona, error)
	List(ctx context.Context, userID uuid.UUID) ([]*types.Persona, error)
	Get(ctx context.Context, userID uuid.UUID, personaID uuid.UUID) (*types.Persona, error)
	UploadImage(ctx context.Context, userID uuid.UUID, personaID uuid.UUID, filename string, data []byte) (*types.Persona, error)
	RecordInteraction(ctx context.Context, userID uuid.UUID, personaID uuid.UUID, role, content string) (*types.Interaction, error)
	ListInteractions(ctx context.Context, personaID uuid.UUID) ([]*types.Interaction, error)
}

type personaService struct {
	db              *gorm.DB
	log             *logger.Logger
	personaRepo     repos.PersonaRepo
	interactionRepo repos.InteractionRepo
	bucket          BucketService
	timeline        TimelineService
}

func NewPersonaService(
	db *gorm.DB,
	baseLog *logger.Logger,
	personaRepo repos.PersonaRepo,
	interactionRepo repos.InteractionRepo,
	bucket BucketService,
	timeline TimelineService,
) PersonaService {
	return &personaService{
		db:              db,
		log:             baseLog.With("service", "PersonaService"),
		personaRepo:     personaRepo,
		interactionRepo: interactionRepo,
		bucket:          bucket,
		timeline:        timeline,
	}
}

func (ps *personaService) Create(ctx context.Context, userID uuid.UUID, input CreatePersonaInput) (*types.Persona, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("persona name is required")
	}

	traits, err := json.Marshal(input.Traits)
	if err != nil {
		return nil, fmt.Errorf("marshal traits: %w", err)
	}
	interests, err := json.Marshal(input.Interests)
	if err != nil {
		return nil, fmt.Errorf("marshal interests: %w", err)
	}
	attributes, err := json.Marshal(input.Attributes)
	if err != nil {
		return nil, fmt.Errorf("marshal attributes: %w", err)
	}

	persona := &types.Persona{
		ID:           uuid.New(),
		UserID:       userID,
		Name:         name,
		Age:          input.Age,
		Occupation:   input.Occupation,
		Location:     input.Location,
		Introduction: input.Introduction,
		Traits:       datatypes.JSON(traits),
		Interests:    datatypes.JSON(interests),
		Attributes:   datatypes.JSON(attributes),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if _, err := ps.personaRepo.Create(ctx, nil, []*types.Persona{persona}); err != nil {
		return nil, fmt.Errorf("create persona: %w", err)
	}

	if _, err := ps.timeline.Record(ctx, nil, TimelineEventInput{
		PersonaID:  persona.ID,
		Title:      fmt.Sprintf("Persona %s created", persona.Name),
		EventType:  types.TimelineEventPersonaCreated,
		Importance: types.ImportanceHigh,
		Category:   "persona",
		RefID:      &persona.ID,
	}); err != nil {
		ps.log.Warn("Persona timeline event failed", "error", err, "persona_id", persona.ID)
	}

	return persona, nil
}

func (ps *personaService) List(ctx context.Context, userID uuid.UUID) ([]*types.Persona, error) {
	personas, err := ps.personaRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}
	return personas, nil
}

func (ps *personaService) Get(ctx context.Context, userID uuid.UUID, personaID uuid.UUID) (*types.Persona, error) {
	return ownedPersona(ctx, ps.personaRepo, userID, personaID)
}

// ownedPersona loads a persona and enforces that it belongs to userID.
// A foreign persona is indistinguishable from a missing one.
func ownedPersona(ctx context.Context, personaRepo repos.PersonaRepo, userID uuid.UUID, personaID uuid.UUID) (*types.Persona, error) {
	persona, err := personaRepo.GetByID(ctx, nil, personaID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if persona.UserID != userID {
		return nil, ErrNotFound
	}
	return persona, nil
}

func (ps *personaService) UploadImage(ctx context.Context, userID uuid.UUID, personaID uuid.UUID, filename string, data []byte) (*types.Persona, error) {
	persona, err := ps.Get(ctx, userID, personaID)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image payload is empty")
	}

	key := fmt.Sprintf("personas/%s/avatar/%s", personaID, filename)
	if err := ps.bucket.UploadFile(ctx, key, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}

	persona.AvatarBucketKey = key
	persona.AvatarURL = ps.bucket.GetPublicURL(key)
	persona.UpdatedAt = time.Now()
	if err := ps.personaRepo.Update(ctx, nil, persona); err != nil {
		return nil, fmt.Errorf("save avatar reference: %w", err)
	}
	return persona, nil
}

func (ps *personaService) RecordInteraction(ctx context.Context, userID uuid.UUID, personaID uuid.UUID, role, content string) (*types.Interaction, error) {
	if role != types.InteractionRoleUser && role != types.InteractionRolePersona {
		return nil, fmt.Errorf("unknown interaction role %q", role)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("interaction content is empty")
	}
	if _, err := ps.personaRepo.GetByID(ctx, nil, personaID); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	interaction := &types.Interaction{
		ID:        uuid.New(),
		PersonaID: personaID,
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if _, err := ps.interactionRepo.Create(ctx, nil, []*types.Interaction{interaction}); err != nil {
		return nil, fmt.Errorf("record interaction: %w", err)
	}
	return interaction, nil
}

func (ps *personaService) ListInteractions(ctx context.Context, personaID uuid.UUID) ([]*types.Interaction, error) {
	interactions, err := ps.interactionRepo.GetByPersonaID(ctx, nil, personaID)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	return interactions, nil
}
