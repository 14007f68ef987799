package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/personaforge/backend/internal/repos"
	"github.com/personaforge/backend/internal/repos/testutil"
	"github.com/personaforge/backend/internal/types"
)

type researchEnv struct {
	service   ResearchService
	knowledge *fakeKnowledge
	bucket    *fakeBucket
	fileRepo  repos.ResearchFileRepo
	persona   *types.Persona
	userID    uuid.UUID
}

func newResearchEnv(t *testing.T) *researchEnv {
	t.Helper()
	log := testutil.Logger(t)
	gdb := testutil.DB(t)

	personaRepo := repos.NewPersonaRepo(gdb, log)
	researchRepo := repos.NewResearchItemRepo(gdb, log)
	fileRepo := repos.NewResearchFileRepo(gdb, log)
	timelineRepo := repos.NewTimelineEventRepo(gdb, log)
	timelineService := NewTimelineService(gdb, log, personaRepo, timelineRepo)

	knowledge := &fakeKnowledge{}
	bucket := newFakeBucket()

	userID := uuid.New()
	persona, err := seedPersona(context.Background(), personaRepo, userID, "Nils")
	require.NoError(t, err)

	return &researchEnv{
		service:   NewResearchService(gdb, log, personaRepo, researchRepo, fileRepo, bucket, knowledge, timelineService),
		knowledge: knowledge,
		bucket:    bucket,
		fileRepo:  fileRepo,
		persona:   persona,
		userID:    userID,
	}
}

func textPayload(n int) []byte {
	return []byte(strings.Repeat("A plain sentence with enough length to index. ", n))
}

func TestCreateItem_IngestsSupportedFiles(t *testing.T) {
	env := newResearchEnv(t)
	ctx := context.Background()

	item, err := env.service.CreateItem(ctx, env.userID, env.persona.ID, CreateResearchInput{
		Title:    "Field notes",
		Category: "interviews",
		Tags:     []string{"north", "2026"},
		Files: []ResearchUpload{
			{OriginalName: "notes.txt", MimeType: "text/plain", Data: textPayload(5)},
			{OriginalName: "blob.bin", MimeType: "application/octet-stream", Data: []byte{0x00, 0x01, 0xff}},
		},
	})
	require.NoError(t, err)
	require.Len(t, item.Files, 2)

	statuses := map[string]string{}
	for _, f := range item.Files {
		statuses[f.OriginalName] = f.Status
	}
	require.Equal(t, FileStatusIndexed, statuses["notes.txt"])
	require.Equal(t, FileStatusUnsupported, statuses["blob.bin"])

	// Only the supported file reached the indexer, under upload origin.
	require.NotEmpty(t, env.knowledge.indexed)
	for _, ch := range env.knowledge.indexed {
		require.Equal(t, env.persona.ID, ch.PersonaID)
		require.Equal(t, "upload", ch.Origin)
	}

	// Both payloads were stored regardless of extraction outcome.
	require.Len(t, env.bucket.objects, 2)
}

func TestCreateItem_UploadFailureMarksFile(t *testing.T) {
	env := newResearchEnv(t)
	env.bucket.failAll = true

	item, err := env.service.CreateItem(context.Background(), env.userID, env.persona.ID, CreateResearchInput{
		Title: "Unstorable",
		Files: []ResearchUpload{{OriginalName: "notes.txt", MimeType: "text/plain", Data: textPayload(3)}},
	})
	require.NoError(t, err)
	require.Len(t, item.Files, 1)
	require.Equal(t, FileStatusFailed, item.Files[0].Status)
	require.Empty(t, env.knowledge.indexed)
}

func TestCreateItem_IndexerFailureDoesNotFailItem(t *testing.T) {
	env := newResearchEnv(t)
	env.knowledge.fail = true

	item, err := env.service.CreateItem(context.Background(), env.userID, env.persona.ID, CreateResearchInput{
		Title: "Unindexable",
		Files: []ResearchUpload{{OriginalName: "notes.txt", MimeType: "text/plain", Data: textPayload(3)}},
	})
	require.NoError(t, err)
	require.Equal(t, FileStatusFailed, item.Files[0].Status)
}

func TestCreateItem_UnknownPersona(t *testing.T) {
	env := newResearchEnv(t)
	_, err := env.service.CreateItem(context.Background(), env.userID, uuid.New(), CreateResearchInput{Title: "x"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAddNote_IndexedAsManual(t *testing.T) {
	env := newResearchEnv(t)
	ctx := context.Background()

	note := strings.Repeat("An observation recorded by hand during the visit. ", 3)
	item, err := env.service.AddNote(ctx, env.userID, env.persona.ID, "Visit notes", note)
	require.NoError(t, err)
	require.Equal(t, "Visit notes", item.Title)

	require.Len(t, env.knowledge.indexed, 1)
	require.Equal(t, "manual", env.knowledge.indexed[0].Origin)
	require.Equal(t, item.ID.String(), env.knowledge.indexed[0].SourceName)

	_, err = env.service.AddNote(ctx, env.userID, env.persona.ID, "", "   ")
	require.Error(t, err)
}

func TestGetItem_ScopedToPersona(t *testing.T) {
	env := newResearchEnv(t)
	ctx := context.Background()

	item, err := env.service.CreateItem(ctx, env.userID, env.persona.ID, CreateResearchInput{Title: "Scoped"})
	require.NoError(t, err)

	got, err := env.service.GetItem(ctx, env.userID, env.persona.ID, item.ID)
	require.NoError(t, err)
	require.Equal(t, item.ID, got.ID)

	_, err = env.service.GetItem(ctx, env.userID, uuid.New(), item.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResearch_ScopedToOwner(t *testing.T) {
	env := newResearchEnv(t)
	ctx := context.Background()

	item, err := env.service.CreateItem(ctx, env.userID, env.persona.ID, CreateResearchInput{Title: "Private"})
	require.NoError(t, err)

	stranger := uuid.New()
	_, err = env.service.ListItems(ctx, stranger, env.persona.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = env.service.GetItem(ctx, stranger, env.persona.ID, item.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = env.service.Search(ctx, stranger, env.persona.ID, "anything", 5)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = env.service.CreateItem(ctx, stranger, env.persona.ID, CreateResearchInput{Title: "x"})
	require.ErrorIs(t, err, ErrNotFound)

	items, err := env.service.ListItems(ctx, env.userID, env.persona.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
}
