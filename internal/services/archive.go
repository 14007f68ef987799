package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/personaforge/backend/internal/logger"
	"github.com/personaforge/backend/internal/repos"
	"github.com/personaforge/backend/internal/types"
)

// ArchiveFormatVersion tags every export. Import rejects any other value
// before touching persisted state.
const ArchiveFormatVersion = 1

const (
	entryManifest     = "manifest.json"
	entryPersona      = "persona.json"
	entryResearch     = "research/metadata.json"
	entryTimeline     = "timeline.json"
	entryVersions     = "versions.json"
	entryInteractions = "interactions.json"
	researchFilePfx   = "research/files/"
	assetPfx          = "assets/"
)

type ArchiveManifest struct {
	FormatVersion int          `json:"format_version"`
	ExportedAt    time.Time    `json:"exported_at"`
	ExportedBy    uuid.UUID    `json:"exported_by"`
	ContentFlags  ContentFlags `json:"content_flags"`
	Counts        EntityCounts `json:"counts"`
}

type ContentFlags struct {
	HasInteractions  bool `json:"has_interactions"`
	HasResearchFiles bool `json:"has_research_files"`
	HasImages        bool `json:"has_images"`
}

type EntityCounts struct {
	Research       int `json:"research"`
	Versions       int `json:"versions"`
	TimelineEvents int `json:"timeline_events"`
}

type ExportOptions struct {
	IncludeInteractions bool
	IncludeFiles        bool
	IncludeImages       bool
}

type ImportOptions struct {
	PreserveID         bool
	ImportFiles        bool
	ImportInteractions bool
}

// ImportCounts reports what was actually written. Best-effort sections
// (files in particular) may land below the archive's own counts.
type ImportCounts struct {
	Research     int `json:"research"`
	Versions     int `json:"versions"`
	Timeline     int `json:"timeline"`
	Interactions int `json:"interactions"`
	Files        int `json:"files"`
}

type ImportResult struct {
	NewPersonaID uuid.UUID    `json:"new_persona_id"`
	Counts       ImportCounts `json:"counts"`
}

// ArchiveService serializes a persona and its satellite records into a
// single zip container and imports such containers back, remapping every
// id and keeping the original as a provenance field.
type ArchiveService interface {
	Export(ctx context.Context, userID uuid.UUID, personaID uuid.UUID, opts ExportOptions) ([]byte, error)
	Import(ctx context.Context, userID uuid.UUID, data []byte, opts ImportOptions) (*ImportResult, error)
}

type archiveService struct {
	db              *gorm.DB
	log             *logger.Logger
	personaRepo     repos.PersonaRepo
	versionRepo     repos.PersonaVersionRepo
	researchRepo    repos.ResearchItemRepo
	fileRepo        repos.ResearchFileRepo
	timelineRepo    repos.TimelineEventRepo
	interactionRepo repos.InteractionRepo
	bucket          BucketService
	timeline        TimelineService
}

func NewArchiveService(
	db *gorm.DB,
	baseLog *logger.Logger,
	personaRepo repos.PersonaRepo,
	versionRepo repos.PersonaVersionRepo,
	researchRepo repos.ResearchItemRepo,
	fileRepo repos.ResearchFileRepo,
	timelineRepo repos.TimelineEventRepo,
	interactionRepo repos.InteractionRepo,
	bucket BucketService,
	timeline TimelineService,
) ArchiveService {
	return &archiveService{
		db:              db,
		log:             baseLog.With("service", "ArchiveService"),
		personaRepo:     personaRepo,
		versionRepo:     versionRepo,
		researchRepo:    researchRepo,
		fileRepo:        fileRepo,
		timelineRepo:    timelineRepo,
		interactionRepo: interactionRepo,
		bucket:          bucket,
		timeline:        timeline,
	}
}

func (as *archiveService) Export(ctx context.Context, userID uuid.UUID, personaID uuid.UUID, opts ExportOptions) ([]byte, error) {
	persona, err := as.personaRepo.GetByID(ctx, nil, personaID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if persona.UserID != userID {
		return nil, ErrNotFound
	}

	research, err := as.researchRepo.GetByPersonaID(ctx, nil, personaID)
	if err != nil {
		return nil, fmt.Errorf("load research: %w", err)
	}
	versions, err := as.versionRepo.GetByPersonaID(ctx, nil, personaID)
	if err != nil {
		return nil, fmt.Errorf("load versions: %w", err)
	}
	events, err := as.timelineRepo.GetByPersonaID(ctx, nil, personaID, repos.TimelineQuery{})
	if err != nil {
		return nil, fmt.Errorf("load timeline: %w", err)
	}

	var interactions []*types.Interaction
	if opts.IncludeInteractions {
		interactions, err = as.interactionRepo.GetByPersonaID(ctx, nil, personaID)
		if err != nil {
			return nil, fmt.Errorf("load interactions: %w", err)
		}
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	manifest := ArchiveManifest{
		FormatVersion: ArchiveFormatVersion,
		ExportedAt:    time.Now().UTC(),
		ExportedBy:    userID,
		ContentFlags: ContentFlags{
			HasInteractions:  opts.IncludeInteractions && len(interactions) > 0,
			HasResearchFiles: opts.IncludeFiles && hasFiles(research),
			HasImages:        opts.IncludeImages && persona.AvatarBucketKey != "",
		},
		Counts: EntityCounts{
			Research:       len(research),
			Versions:       len(versions),
			TimelineEvents: len(events),
		},
	}

	if err := writeJSONEntry(zw, entryManifest, manifest); err != nil {
		return nil, err
	}
	if err := writeJSONEntry(zw, entryPersona, persona); err != nil {
		return nil, err
	}
	if err := writeJSONEntry(zw, entryResearch, research); err != nil {
		return nil, err
	}
	if err := writeJSONEntry(zw, entryTimeline, events); err != nil {
		return nil, err
	}
	if err := writeJSONEntry(zw, entryVersions, versions); err != nil {
		return nil, err
	}
	if opts.IncludeInteractions {
		if err := writeJSONEntry(zw, entryInteractions, interactions); err != nil {
			return nil, err
		}
	}

	if opts.IncludeFiles {
		for _, item := range research {
			for _, file := range item.Files {
				data, err := as.bucket.ReadFile(ctx, file.StorageKey)
				if err != nil {
					as.log.Warn("Skipping unreadable research file", "error", err, "file_id", file.ID)
					continue
				}
				name := fmt.Sprintf("%s%s/%s", researchFilePfx, item.ID, file.OriginalName)
				if err := writeRawEntry(zw, name, data); err != nil {
					return nil, err
				}
			}
		}
	}

	if opts.IncludeImages && persona.AvatarBucketKey != "" {
		data, err := as.bucket.ReadFile(ctx, persona.AvatarBucketKey)
		if err != nil {
			as.log.Warn("Skipping unreadable avatar", "error", err, "persona_id", personaID)
		} else {
			name := assetPfx + path.Base(persona.AvatarBucketKey)
			if err := writeRawEntry(zw, name, data); err != nil {
				return nil, err
			}
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

// parsedArchive is the fully decoded container, built before any write.
type parsedArchive struct {
	Manifest     ArchiveManifest
	Persona      types.Persona
	Research     []*types.ResearchItem
	Timeline     []*types.TimelineEvent
	Versions     []*types.PersonaVersion
	Interactions []*types.Interaction
	// research file payloads keyed by original item id, then file name
	Files  map[string]map[string][]byte
	Assets map[string][]byte
}

func (as *archiveService) Import(ctx context.Context, userID uuid.UUID, data []byte, opts ImportOptions) (*ImportResult, error) {
	archive, err := parseArchive(data)
	if err != nil {
		return nil, err
	}

	persona, err := as.resolveTargetPersona(ctx, userID, archive, opts)
	if err != nil {
		return nil, err
	}

	counts := ImportCounts{}

	idMap := map[string]uuid.UUID{}
	for _, item := range archive.Research {
		originalID := item.ID
		fresh := &types.ResearchItem{
			ID:           uuid.New(),
			PersonaID:    persona.ID,
			Title:        item.Title,
			Description:  item.Description,
			Content:      item.Content,
			Category:     item.Category,
			Source:       item.Source,
			Tags:         item.Tags,
			RelevantDate: item.RelevantDate,
			SourceID:     originalID.String(),
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}
		if _, err := as.researchRepo.Create(ctx, nil, []*types.ResearchItem{fresh}); err != nil {
			as.log.Warn("Research item import failed", "error", err, "source_id", originalID)
			continue
		}
		idMap[originalID.String()] = fresh.ID
		counts.Research++

		if opts.ImportFiles {
			counts.Files += as.importItemFiles(ctx, persona.ID, fresh.ID, archive.Files[originalID.String()])
		}
	}

	// When the target persona already has versions, archived versions come
	// in as history only so the active-version invariant holds. The same
	// invariant caps a fresh import at one active version even when a
	// tampered archive flags several.
	existingVersions, err := as.versionRepo.CountByPersonaID(ctx, nil, persona.ID)
	if err != nil {
		return nil, fmt.Errorf("count versions: %w", err)
	}
	versionIDMap := map[string]uuid.UUID{}
	var activeVersion *types.PersonaVersion
	for _, version := range archive.Versions {
		active := version.IsActive && existingVersions == 0 && activeVersion == nil
		fresh := &types.PersonaVersion{
			ID:        uuid.New(),
			PersonaID: persona.ID,
			Label:     version.Label,
			Name:      version.Name,
			Snapshot:  version.Snapshot,
			IsActive:  active,
			IsDraft:   version.IsDraft,
			Notes:     version.Notes,
			CreatedBy: userID,
			SourceID:  version.ID.String(),
			CreatedAt: time.Now(),
		}
		if _, err := as.versionRepo.Create(ctx, nil, []*types.PersonaVersion{fresh}); err != nil {
			as.log.Warn("Version import failed", "error", err, "source_id", version.ID)
			continue
		}
		versionIDMap[version.ID.String()] = fresh.ID
		if active {
			activeVersion = fresh
		}
		counts.Versions++
	}

	// Second pass: relink parent edges once every surviving version has
	// its fresh id. Edges to versions that failed to import are dropped.
	for _, version := range archive.Versions {
		if version.ParentVersionID == nil {
			continue
		}
		freshID, ok := versionIDMap[version.ID.String()]
		if !ok {
			continue
		}
		parentID, ok := versionIDMap[version.ParentVersionID.String()]
		if !ok {
			continue
		}
		if err := as.versionRepo.SetParent(ctx, nil, freshID, &parentID); err != nil {
			as.log.Warn("Version parent relink failed", "error", err, "version_id", freshID)
		}
	}

	if activeVersion != nil {
		persona.CurrentVersionID = &activeVersion.ID
		persona.CurrentVersionLabel = activeVersion.Label
		persona.UpdatedAt = time.Now()
		if err := as.personaRepo.Update(ctx, nil, persona); err != nil {
			as.log.Warn("Current-version pointer update failed", "error", err, "persona_id", persona.ID)
		}
	}

	for _, event := range archive.Timeline {
		fresh := &types.TimelineEvent{
			ID:          uuid.New(),
			PersonaID:   persona.ID,
			Title:       event.Title,
			Description: event.Description,
			EventType:   event.EventType,
			EventDate:   event.EventDate,
			Importance:  event.Importance,
			Category:    event.Category,
			Metadata:    event.Metadata,
			SourceID:    event.ID.String(),
			CreatedAt:   time.Now(),
		}
		if event.RefID != nil {
			if mapped, ok := idMap[event.RefID.String()]; ok {
				fresh.RefID = &mapped
			} else if mapped, ok := versionIDMap[event.RefID.String()]; ok {
				fresh.RefID = &mapped
			}
		}
		if _, err := as.timelineRepo.Create(ctx, nil, []*types.TimelineEvent{fresh}); err != nil {
			as.log.Warn("Timeline event import failed", "error", err, "source_id", event.ID)
			continue
		}
		counts.Timeline++
	}

	if opts.ImportInteractions {
		replay := make([]*types.Interaction, 0, len(archive.Interactions))
		for _, interaction := range archive.Interactions {
			replay = append(replay, &types.Interaction{
				ID:        uuid.New(),
				PersonaID: persona.ID,
				UserID:    userID,
				Role:      interaction.Role,
				Content:   interaction.Content,
				SourceID:  interaction.ID.String(),
				CreatedAt: time.Now(),
			})
		}
		if len(replay) > 0 {
			if _, err := as.interactionRepo.Create(ctx, nil, replay); err != nil {
				as.log.Warn("Interaction import failed", "error", err)
			} else {
				counts.Interactions = len(replay)
			}
		}
	}

	exportedAt := archive.Manifest.ExportedAt
	metadata, _ := json.Marshal(map[string]any{"exported_at": exportedAt})
	if _, err := as.timeline.Record(ctx, nil, TimelineEventInput{
		PersonaID:  persona.ID,
		Title:      "Persona Imported",
		EventType:  types.TimelineEventPersonaImported,
		Importance: types.ImportanceHigh,
		Category:   "persona",
		Metadata:   datatypes.JSON(metadata),
	}); err != nil {
		as.log.Warn("Import timeline event failed", "error", err, "persona_id", persona.ID)
	}

	return &ImportResult{NewPersonaID: persona.ID, Counts: counts}, nil
}

func (as *archiveService) resolveTargetPersona(ctx context.Context, userID uuid.UUID, archive *parsedArchive, opts ImportOptions) (*types.Persona, error) {
	originalID := archive.Persona.ID

	if opts.PreserveID {
		existing, err := as.personaRepo.GetByUserAndSourceID(ctx, nil, userID, originalID.String())
		if err != nil && !errors.Is(err, repos.ErrNotFound) {
			return nil, err
		}
		if existing == nil {
			candidate, err := as.personaRepo.GetByID(ctx, nil, originalID)
			if err == nil && candidate.UserID == userID {
				existing = candidate
			} else if err != nil && !errors.Is(err, repos.ErrNotFound) {
				return nil, err
			}
		}
		if existing != nil {
			existing.Name = archive.Persona.Name
			existing.Age = archive.Persona.Age
			existing.Occupation = archive.Persona.Occupation
			existing.Location = archive.Persona.Location
			existing.Introduction = archive.Persona.Introduction
			existing.Traits = archive.Persona.Traits
			existing.Interests = archive.Persona.Interests
			existing.Attributes = archive.Persona.Attributes
			existing.UpdatedAt = time.Now()
			if err := as.personaRepo.Update(ctx, nil, existing); err != nil {
				return nil, fmt.Errorf("update persona in place: %w", err)
			}
			return existing, nil
		}
	}

	persona := &types.Persona{
		ID:           uuid.New(),
		UserID:       userID,
		Name:         archive.Persona.Name + " (Imported)",
		Age:          archive.Persona.Age,
		Occupation:   archive.Persona.Occupation,
		Location:     archive.Persona.Location,
		Introduction: archive.Persona.Introduction,
		Traits:       archive.Persona.Traits,
		Interests:    archive.Persona.Interests,
		Attributes:   archive.Persona.Attributes,
		SourceID:     originalID.String(),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if _, err := as.personaRepo.Create(ctx, nil, []*types.Persona{persona}); err != nil {
		return nil, fmt.Errorf("create imported persona: %w", err)
	}
	return persona, nil
}

func (as *archiveService) importItemFiles(ctx context.Context, personaID, itemID uuid.UUID, payloads map[string][]byte) int {
	imported := 0
	for name, data := range payloads {
		fileID := uuid.New()
		key := fmt.Sprintf("research/%s/%s/%s", personaID, fileID, name)
		if err := as.bucket.UploadFile(ctx, key, bytes.NewReader(data)); err != nil {
			as.log.Warn("Skipping archived file copy", "error", err, "file", name)
			continue
		}
		record := &types.ResearchFile{
			ID:             fileID,
			ResearchItemID: itemID,
			OriginalName:   name,
			SizeBytes:      int64(len(data)),
			StorageKey:     key,
			FileURL:        as.bucket.GetPublicURL(key),
			Status:         FileStatusUploaded,
			CreatedAt:      time.Now(),
			UpdatedAt:      time.Now(),
		}
		if _, err := as.fileRepo.Create(ctx, nil, []*types.ResearchFile{record}); err != nil {
			as.log.Warn("Archived file record failed", "error", err, "file", name)
			continue
		}
		imported++
	}
	return imported
}

// parseArchive decodes the whole container up front. Manifest and persona
// sections gate the import; everything else decodes permissively.
func parseArchive(data []byte) (*parsedArchive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}

	entries := map[string][]byte{}
	archive := &parsedArchive{
		Files:  map[string]map[string][]byte{},
		Assets: map[string][]byte{},
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", ErrCorruptArchive, f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrCorruptArchive, f.Name, err)
		}

		switch {
		case strings.HasPrefix(f.Name, researchFilePfx):
			rest := strings.TrimPrefix(f.Name, researchFilePfx)
			parts := strings.SplitN(rest, "/", 2)
			if len(parts) != 2 {
				continue
			}
			if archive.Files[parts[0]] == nil {
				archive.Files[parts[0]] = map[string][]byte{}
			}
			archive.Files[parts[0]][parts[1]] = content
		case strings.HasPrefix(f.Name, assetPfx):
			archive.Assets[strings.TrimPrefix(f.Name, assetPfx)] = content
		default:
			entries[f.Name] = content
		}
	}

	manifestRaw, ok := entries[entryManifest]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingArchiveSection, entryManifest)
	}
	if err := json.Unmarshal(manifestRaw, &archive.Manifest); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrCorruptArchive, err)
	}
	if archive.Manifest.FormatVersion != ArchiveFormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedArchiveVersion, archive.Manifest.FormatVersion)
	}

	personaRaw, ok := entries[entryPersona]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingArchiveSection, entryPersona)
	}
	if err := json.Unmarshal(personaRaw, &archive.Persona); err != nil {
		return nil, fmt.Errorf("%w: persona: %v", ErrCorruptArchive, err)
	}

	if raw, ok := entries[entryResearch]; ok {
		if err := json.Unmarshal(raw, &archive.Research); err != nil {
			return nil, fmt.Errorf("%w: research metadata: %v", ErrCorruptArchive, err)
		}
	}
	if raw, ok := entries[entryTimeline]; ok {
		if err := json.Unmarshal(raw, &archive.Timeline); err != nil {
			return nil, fmt.Errorf("%w: timeline: %v", ErrCorruptArchive, err)
		}
	}
	if raw, ok := entries[entryVersions]; ok {
		if err := json.Unmarshal(raw, &archive.Versions); err != nil {
			return nil, fmt.Errorf("%w: versions: %v", ErrCorruptArchive, err)
		}
	}
	if raw, ok := entries[entryInteractions]; ok {
		if err := json.Unmarshal(raw, &archive.Interactions); err != nil {
			return nil, fmt.Errorf("%w: interactions: %v", ErrCorruptArchive, err)
		}
	}

	return archive, nil
}

func writeJSONEntry(zw *zip.Writer, name string, v any) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create archive entry %s: %w", name, err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode archive entry %s: %w", name, err)
	}
	return nil
}

func writeRawEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create archive entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write archive entry %s: %w", name, err)
	}
	return nil
}

func hasFiles(items []*types.ResearchItem) bool {
	for _, item := range items {
		if len(item.Files) > 0 {
			return true
		}
	}
	return false
}
