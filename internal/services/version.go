package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/personaforge/backend/internal/logger"
	"github.com/personaforge/backend/internal/repos"
	"github.com/personaforge/backend/internal/types"
)

// VersionService manages the persona version state machine. Versions start
// as drafts; Publish is the only transition to active and the only writer
// of the live persona's editable fields. Versions are never deleted.
type VersionService interface {
	List(ctx context.Context, personaID uuid.UUID, actor uuid.UUID) ([]*types.PersonaVersion, error)
	Create(ctx context.Context, personaID uuid.UUID, input CreateVersionInput) (*types.PersonaVersion, error)
	Publish(ctx context.Context, personaID uuid.UUID, versionID uuid.UUID, actor uuid.UUID) (*types.PersonaVersion, error)
	Lineage(ctx context.Context, versionID uuid.UUID, actor uuid.UUID) ([]*types.PersonaVersion, error)
}

type CreateVersionInput struct {
	Label           string
	Name            string
	Snapshot        types.VersionSnapshot
	ParentVersionID *uuid.UUID
	Notes           string
	CreatedBy       uuid.UUID
}

type versionService struct {
	db          *gorm.DB
	log         *logger.Logger
	personaRepo repos.PersonaRepo
	versionRepo repos.PersonaVersionRepo
	timeline    TimelineService
}

func NewVersionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	personaRepo repos.PersonaRepo,
	versionRepo repos.PersonaVersionRepo,
	timeline TimelineService,
) VersionService {
	return &versionService{
		db:          db,
		log:         baseLog.With("service", "VersionService"),
		personaRepo: personaRepo,
		versionRepo: versionRepo,
		timeline:    timeline,
	}
}

// List returns the persona's versions, lazily materializing an initial
// active version from the live persona fields when none exist yet.
func (vs *versionService) List(ctx context.Context, personaID uuid.UUID, actor uuid.UUID) ([]*types.PersonaVersion, error) {
	if _, err := ownedPersona(ctx, vs.personaRepo, actor, personaID); err != nil {
		return nil, err
	}
	count, err := vs.versionRepo.CountByPersonaID(ctx, nil, personaID)
	if err != nil {
		return nil, fmt.Errorf("count versions: %w", err)
	}
	if count == 0 {
		if err := vs.bootstrapInitialVersion(ctx, personaID, actor); err != nil {
			return nil, err
		}
	}
	versions, err := vs.versionRepo.GetByPersonaID(ctx, nil, personaID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return versions, nil
}

func (vs *versionService) bootstrapInitialVersion(ctx context.Context, personaID uuid.UUID, actor uuid.UUID) error {
	return vs.db.Transaction(func(tx *gorm.DB) error {
		persona, err := vs.personaRepo.GetByID(ctx, tx, personaID)
		if err != nil {
			if errors.Is(err, repos.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}

		// Re-check under the transaction; another request may have won.
		count, err := vs.versionRepo.CountByPersonaID(ctx, tx, personaID)
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		snapshot := SnapshotFromPersona(persona)
		raw, err := json.Marshal(snapshot)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}

		version := &types.PersonaVersion{
			ID:        uuid.New(),
			PersonaID: personaID,
			Label:     "1.0",
			Name:      "Initial Version",
			Snapshot:  datatypes.JSON(raw),
			IsActive:  true,
			IsDraft:   false,
			CreatedBy: actor,
			CreatedAt: time.Now(),
		}
		if _, err := vs.versionRepo.Create(ctx, tx, []*types.PersonaVersion{version}); err != nil {
			return fmt.Errorf("create initial version: %w", err)
		}

		ok, err := vs.personaRepo.UpdateFieldsCAS(ctx, tx, personaID, persona.LockVersion, map[string]any{
			"current_version_id":    version.ID,
			"current_version_label": version.Label,
			"updated_at":            time.Now(),
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrPublishConflict
		}
		return nil
	})
}

func (vs *versionService) Create(ctx context.Context, personaID uuid.UUID, input CreateVersionInput) (*types.PersonaVersion, error) {
	if _, err := ownedPersona(ctx, vs.personaRepo, input.CreatedBy, personaID); err != nil {
		return nil, err
	}

	if input.ParentVersionID != nil {
		parent, err := vs.versionRepo.GetByID(ctx, nil, *input.ParentVersionID)
		if err != nil {
			if errors.Is(err, repos.ErrNotFound) {
				return nil, fmt.Errorf("parent version: %w", ErrNotFound)
			}
			return nil, err
		}
		if parent.PersonaID != personaID {
			return nil, fmt.Errorf("parent version belongs to another persona: %w", ErrNotFound)
		}
	}

	label := strings.TrimSpace(input.Label)
	if label == "" {
		existing, err := vs.versionRepo.GetByPersonaID(ctx, nil, personaID)
		if err != nil {
			return nil, fmt.Errorf("list versions: %w", err)
		}
		label = nextVersionLabel(existing)
	}

	raw, err := json.Marshal(input.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = input.Snapshot.Name
	}

	version := &types.PersonaVersion{
		ID:              uuid.New(),
		PersonaID:       personaID,
		Label:           label,
		Name:            name,
		Snapshot:        datatypes.JSON(raw),
		ParentVersionID: input.ParentVersionID,
		IsActive:        false,
		IsDraft:         true,
		Notes:           input.Notes,
		CreatedBy:       input.CreatedBy,
		CreatedAt:       time.Now(),
	}
	if _, err := vs.versionRepo.Create(ctx, nil, []*types.PersonaVersion{version}); err != nil {
		return nil, fmt.Errorf("create version: %w", err)
	}

	if _, err := vs.timeline.Record(ctx, nil, TimelineEventInput{
		PersonaID:  personaID,
		Title:      fmt.Sprintf("Version %s created", version.Label),
		EventType:  types.TimelineEventVersionCreated,
		Importance: types.ImportanceMediumHigh,
		Category:   "versions",
		RefID:      &version.ID,
	}); err != nil {
		vs.log.Warn("Version timeline event failed", "error", err, "version_id", version.ID)
	}

	return version, nil
}

// Publish atomically makes versionID the persona's single active version:
// every sibling is deactivated, the target becomes active and non-draft,
// its snapshot is copied onto the live persona, and the current-version
// pointer moves. A lock-version CAS on the persona row rejects racing
// publishers with ErrPublishConflict.
func (vs *versionService) Publish(ctx context.Context, personaID uuid.UUID, versionID uuid.UUID, actor uuid.UUID) (*types.PersonaVersion, error) {
	var published *types.PersonaVersion

	err := vs.db.Transaction(func(tx *gorm.DB) error {
		version, err := vs.versionRepo.GetByID(ctx, tx, versionID)
		if err != nil {
			if errors.Is(err, repos.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if version.PersonaID != personaID {
			return ErrNotFound
		}

		persona, err := vs.personaRepo.GetByID(ctx, tx, personaID)
		if err != nil {
			if errors.Is(err, repos.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if persona.UserID != actor {
			return ErrNotFound
		}

		var snapshot types.VersionSnapshot
		if err := json.Unmarshal(version.Snapshot, &snapshot); err != nil {
			return fmt.Errorf("unmarshal snapshot: %w", err)
		}

		if err := vs.versionRepo.DeactivateAll(ctx, tx, personaID); err != nil {
			return fmt.Errorf("deactivate versions: %w", err)
		}
		if err := vs.versionRepo.Activate(ctx, tx, versionID); err != nil {
			return fmt.Errorf("activate version: %w", err)
		}

		fields, err := snapshotFields(snapshot)
		if err != nil {
			return err
		}
		fields["current_version_id"] = version.ID
		fields["current_version_label"] = version.Label
		fields["updated_at"] = time.Now()

		ok, err := vs.personaRepo.UpdateFieldsCAS(ctx, tx, personaID, persona.LockVersion, fields)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPublishConflict
		}

		version.IsActive = true
		version.IsDraft = false
		published = version
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := vs.timeline.Record(ctx, nil, TimelineEventInput{
		PersonaID:  personaID,
		Title:      fmt.Sprintf("Version %s published", published.Label),
		EventType:  types.TimelineEventVersionPublish,
		Importance: types.ImportanceMediumHigh,
		Category:   "versions",
		RefID:      &published.ID,
	}); err != nil {
		vs.log.Warn("Publish timeline event failed", "error", err, "version_id", published.ID)
	}

	return published, nil
}

// Lineage walks parent edges from the given version back to its root,
// returning the chain ordered version-first.
func (vs *versionService) Lineage(ctx context.Context, versionID uuid.UUID, actor uuid.UUID) ([]*types.PersonaVersion, error) {
	start, err := vs.versionRepo.GetByID(ctx, nil, versionID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if _, err := ownedPersona(ctx, vs.personaRepo, actor, start.PersonaID); err != nil {
		return nil, err
	}

	var chain []*types.PersonaVersion
	seen := map[uuid.UUID]bool{}

	current := &versionID
	for current != nil {
		if seen[*current] {
			return nil, fmt.Errorf("version lineage contains a cycle at %s", *current)
		}
		seen[*current] = true

		version, err := vs.versionRepo.GetByID(ctx, nil, *current)
		if err != nil {
			if errors.Is(err, repos.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		chain = append(chain, version)
		current = version.ParentVersionID
	}
	return chain, nil
}

// SnapshotFromPersona captures the persona's editable fields.
func SnapshotFromPersona(p *types.Persona) types.VersionSnapshot {
	snapshot := types.VersionSnapshot{
		Name:         p.Name,
		Age:          p.Age,
		Occupation:   p.Occupation,
		Location:     p.Location,
		Introduction: p.Introduction,
	}
	if len(p.Traits) > 0 {
		_ = json.Unmarshal(p.Traits, &snapshot.Traits)
	}
	if len(p.Interests) > 0 {
		_ = json.Unmarshal(p.Interests, &snapshot.Interests)
	}
	if len(p.Attributes) > 0 {
		_ = json.Unmarshal(p.Attributes, &snapshot.Attributes)
	}
	return snapshot
}

func snapshotFields(s types.VersionSnapshot) (map[string]any, error) {
	traits, err := json.Marshal(s.Traits)
	if err != nil {
		return nil, fmt.Errorf("marshal traits: %w", err)
	}
	interests, err := json.Marshal(s.Interests)
	if err != nil {
		return nil, fmt.Errorf("marshal interests: %w", err)
	}
	attributes, err := json.Marshal(s.Attributes)
	if err != nil {
		return nil, fmt.Errorf("marshal attributes: %w", err)
	}
	return map[string]any{
		"name":         s.Name,
		"age":          s.Age,
		"occupation":   s.Occupation,
		"location":     s.Location,
		"introduction": s.Introduction,
		"traits":       datatypes.JSON(traits),
		"interests":    datatypes.JSON(interests),
		"attributes":   datatypes.JSON(attributes),
	}, nil
}

// nextVersionLabel bumps the minor component of the highest existing
// "major.minor" label; unparsable labels are ignored.
func nextVersionLabel(existing []*types.PersonaVersion) string {
	bestMajor, bestMinor := 1, 0
	found := false
	for _, v := range existing {
		parts := strings.SplitN(strings.TrimSpace(v.Label), ".", 2)
		if len(parts) != 2 {
			continue
		}
		major, errA := strconv.Atoi(parts[0])
		minor, errB := strconv.Atoi(parts[1])
		if errA != nil || errB != nil {
			continue
		}
		if !found || major > bestMajor || (major == bestMajor && minor > bestMinor) {
			bestMajor, bestMinor = major, minor
			found = true
		}
	}
	if !found {
		return "1.0"
	}
	return fmt.Sprintf("%d.%d", bestMajor, bestMinor+1)
}
