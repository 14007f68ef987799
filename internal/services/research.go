package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/personaforge/backend/internal/logger"
	"github.com/personaforge/backend/internal/repos"
	"github.com/personaforge/backend/internal/types"
)

const (
	FileStatusUploaded    = "uploaded"
	FileStatusIndexed     = "indexed"
	FileStatusUnsupported = "unsupported"
	FileStatusFailed      = "failed"
)

// extraction fan-out cap per ingestion call
const maxExtractWorkers = 4

type ResearchUpload struct {
	OriginalName string
	MimeType     string
	Data         []byte
}

type CreateResearchInput struct {
	Title        string
	Description  string
	Content      string
	Category     string
	Source       string
	Tags         []string
	RelevantDate *time.Time
	Files        []ResearchUpload
}

// ResearchService owns the ingestion pipeline: persist the item, upload its
// files, extract text from each, chunk and index everything under the
// persona's scope. A file that cannot be extracted is marked and skipped;
// it never fails the item or its sibling files.
type ResearchService interface {
	CreateItem(ctx context.Context, userID uuid.UUID, personaID uuid.UUID, input CreateResearchInput) (*types.ResearchItem, error)
	AddNote(ctx context.Context, userID uuid.UUID, personaID uuid.UUID, title, text string) (*types.ResearchItem, error)
	ListItems(ctx context.Context, userID uuid.UUID, personaID uuid.UUID) ([]*types.ResearchItem, error)
	GetItem(ctx context.Context, userID uuid.UUID, personaID uuid.UUID, itemID uuid.UUID) (*types.ResearchItem, error)
	Search(ctx context.Context, userID uuid.UUID, personaID uuid.UUID, query string, topK int) ([]string, error)
}

type researchService struct {
	db           *gorm.DB
	log          *logger.Logger
	personaRepo  repos.PersonaRepo
	researchRepo repos.ResearchItemRepo
	fileRepo     repos.ResearchFileRepo
	bucket       BucketService
	knowledge    KnowledgeService
	timeline     TimelineService
}

func NewResearchService(
	db *gorm.DB,
	baseLog *logger.Logger,
	personaRepo repos.PersonaRepo,
	researchRepo repos.ResearchItemRepo,
	fileRepo repos.ResearchFileRepo,
	bucket BucketService,
	knowledge KnowledgeService,
	timeline TimelineService,
) ResearchService {
	return &researchService{
		db:           db,
		log:          baseLog.With("service", "ResearchService"),
		personaRepo:  personaRepo,
		researchRepo: researchRepo,
		fileRepo:     fileRepo,
		bucket:       bucket,
		knowledge:    knowledge,
		timeline:     timeline,
	}
}

func (rs *researchService) CreateItem(ctx context.Context, userID uuid.UUID, personaID uuid.UUID, input CreateResearchInput) (*types.ResearchItem, error) {
	if _, err := ownedPersona(ctx, rs.personaRepo, userID, personaID); err != nil {
		return nil, err
	}

	tags, err := json.Marshal(input.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}

	item := &types.ResearchItem{
		ID:           uuid.New(),
		PersonaID:    personaID,
		Title:        strings.TrimSpace(input.Title),
		Description:  input.Description,
		Content:      input.Content,
		Category:     input.Category,
		Source:       input.Source,
		Tags:         datatypes.JSON(tags),
		RelevantDate: input.RelevantDate,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if item.Title == "" {
		item.Title = "Untitled research"
	}
	if _, err := rs.researchRepo.Create(ctx, nil, []*types.ResearchItem{item}); err != nil {
		return nil, fmt.Errorf("create research item: %w", err)
	}

	if strings.TrimSpace(item.Content) != "" {
		if _, err := rs.knowledge.IndexText(ctx, personaID, item.ID.String(), "manual", item.Content); err != nil {
			rs.log.Warn("Inline content indexing failed", "error", err, "item_id", item.ID)
		}
	}

	item.Files = rs.ingestFiles(ctx, personaID, item.ID, input.Files)

	if _, err := rs.timeline.Record(ctx, nil, TimelineEventInput{
		PersonaID:  personaID,
		Title:      fmt.Sprintf("Research added: %s", item.Title),
		EventType:  types.TimelineEventResearchUpload,
		Importance: types.ImportanceMedium,
		Category:   "research",
		RefID:      &item.ID,
	}); err != nil {
		rs.log.Warn("Research timeline event failed", "error", err, "item_id", item.ID)
	}

	return item, nil
}

// ingestFiles uploads each payload to the bucket, extracts its text, and
// indexes the chunks. Extraction runs concurrently; every failure mode
// degrades to a per-file status rather than an error.
func (rs *researchService) ingestFiles(ctx context.Context, personaID, itemID uuid.UUID, uploads []ResearchUpload) []*types.ResearchFile {
	if len(uploads) == 0 {
		return nil
	}

	files := make([]*types.ResearchFile, 0, len(uploads))
	payloads := map[uuid.UUID][]byte{}
	for _, upload := range uploads {
		fileID := uuid.New()
		record := &types.ResearchFile{
			ID:             fileID,
			ResearchItemID: itemID,
			OriginalName:   upload.OriginalName,
			MimeType:       upload.MimeType,
			SizeBytes:      int64(len(upload.Data)),
			StorageKey:     fmt.Sprintf("research/%s/%s/%s", personaID, fileID, upload.OriginalName),
			Status:         FileStatusUploaded,
			CreatedAt:      time.Now(),
			UpdatedAt:      time.Now(),
		}
		if err := rs.bucket.UploadFile(ctx, record.StorageKey, bytes.NewReader(upload.Data)); err != nil {
			rs.log.Warn("File upload failed", "error", err, "file", upload.OriginalName)
			record.Status = FileStatusFailed
		} else {
			record.FileURL = rs.bucket.GetPublicURL(record.StorageKey)
			payloads[fileID] = upload.Data
		}
		files = append(files, record)
	}

	if _, err := rs.fileRepo.Create(ctx, nil, files); err != nil {
		rs.log.Error("Research file records failed", "error", err, "item_id", itemID)
		return files
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxExtractWorkers)
	for _, file := range files {
		data, ok := payloads[file.ID]
		if !ok {
			continue
		}
		group.Go(func() error {
			status := rs.ingestOne(groupCtx, personaID, file, data)
			mu.Lock()
			file.Status = status
			mu.Unlock()
			if err := rs.fileRepo.UpdateStatus(groupCtx, nil, file.ID, status); err != nil {
				rs.log.Warn("File status update failed", "error", err, "file_id", file.ID)
			}
			return nil
		})
	}
	// workers never return errors; failures land in per-file status
	_ = group.Wait()

	return files
}

func (rs *researchService) ingestOne(ctx context.Context, personaID uuid.UUID, file *types.ResearchFile, data []byte) string {
	text, err := ExtractText(file.OriginalName, file.MimeType, data)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) {
			rs.log.Info("Skipping unsupported file", "file", file.OriginalName, "mime_type", file.MimeType)
			return FileStatusUnsupported
		}
		rs.log.Warn("Text extraction failed", "error", err, "file", file.OriginalName)
		return FileStatusFailed
	}
	if strings.TrimSpace(text) == "" {
		return FileStatusUnsupported
	}
	if _, err := rs.knowledge.IndexText(ctx, personaID, file.ID.String(), "upload", text); err != nil {
		rs.log.Warn("File indexing failed", "error", err, "file_id", file.ID)
		return FileStatusFailed
	}
	return FileStatusIndexed
}

// AddNote records free-form text as a research item and indexes it with
// manual origin.
func (rs *researchService) AddNote(ctx context.Context, userID uuid.UUID, personaID uuid.UUID, title, text string) (*types.ResearchItem, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("note text is empty")
	}
	if title == "" {
		title = "Manual note"
	}
	return rs.CreateItem(ctx, userID, personaID, CreateResearchInput{
		Title:    title,
		Content:  text,
		Category: "notes",
		Source:   "manual",
	})
}

func (rs *researchService) ListItems(ctx context.Context, userID uuid.UUID, personaID uuid.UUID) ([]*types.ResearchItem, error) {
	if _, err := ownedPersona(ctx, rs.personaRepo, userID, personaID); err != nil {
		return nil, err
	}
	items, err := rs.researchRepo.GetByPersonaID(ctx, nil, personaID)
	if err != nil {
		return nil, fmt.Errorf("list research items: %w", err)
	}
	return items, nil
}

func (rs *researchService) GetItem(ctx context.Context, userID uuid.UUID, personaID uuid.UUID, itemID uuid.UUID) (*types.ResearchItem, error) {
	if _, err := ownedPersona(ctx, rs.personaRepo, userID, personaID); err != nil {
		return nil, err
	}
	item, err := rs.researchRepo.GetByID(ctx, nil, itemID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if item.PersonaID != personaID {
		return nil, ErrNotFound
	}
	return item, nil
}

func (rs *researchService) Search(ctx context.Context, userID uuid.UUID, personaID uuid.UUID, query string, topK int) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query is empty")
	}
	if _, err := ownedPersona(ctx, rs.personaRepo, userID, personaID); err != nil {
		return nil, err
	}
	return rs.knowledge.Search(ctx, personaID, query, topK)
}
