package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/personaforge/backend/internal/clients/pinecone"
	"github.com/personaforge/backend/internal/repos/testutil"
	"github.com/personaforge/backend/internal/types"
)

func TestIndexText_TwoDocumentsOneBatch(t *testing.T) {
	log := testutil.Logger(t)
	embedder := &fakeEmbedder{}
	store := newFakeVectorStore()
	ks := NewKnowledgeService(log, embedder, store)

	personaID := uuid.New()
	docA := strings.Repeat("A sentence about harbors and tides, of moderate length. ", 11)[:600]
	docB := strings.Repeat("A longer passage describing the city archive in detail. ", 25)[:1400]

	countA, err := ks.IndexText(context.Background(), personaID, "doc-a", "upload", docA)
	require.NoError(t, err)
	countB, err := ks.IndexText(context.Background(), personaID, "doc-b", "upload", docB)
	require.NoError(t, err)
	require.GreaterOrEqual(t, countA+countB, 2)

	// Each document fits in one embedding batch.
	require.Equal(t, 2, store.upserts)
	for _, call := range embedder.calls {
		require.LessOrEqual(t, len(call), 100)
	}
	for _, v := range store.vectors {
		text := v.Metadata["text"].(string)
		require.LessOrEqual(t, len([]rune(text)), 1000)
	}
}

func TestIndexChunks_DeterministicVectorIDs(t *testing.T) {
	log := testutil.Logger(t)
	embedder := &fakeEmbedder{}
	store := newFakeVectorStore()
	ks := NewKnowledgeService(log, embedder, store)

	personaID := uuid.New()
	chunk := types.Chunk{
		PersonaID:  personaID,
		SourceName: "doc-a",
		Index:      3,
		Text:       strings.Repeat("same text ", 10),
		Origin:     "upload",
	}

	_, err := ks.IndexChunks(context.Background(), []types.Chunk{chunk})
	require.NoError(t, err)
	_, err = ks.IndexChunks(context.Background(), []types.Chunk{chunk})
	require.NoError(t, err)

	// Re-indexing upserts over the same id instead of appending.
	require.Len(t, store.vectors, 1)
	wantID := fmt.Sprintf("persona:%s:doc-a:3", personaID)
	_, ok := store.vectors[wantID]
	require.True(t, ok)
}

func TestIndexChunks_BatchFailureKeepsPriorBatches(t *testing.T) {
	log := testutil.Logger(t)
	embedder := &fakeEmbedder{}
	store := newFakeVectorStore()
	ks := NewKnowledgeService(log, embedder, store)

	chunks := make([]types.Chunk, 150)
	personaID := uuid.New()
	for i := range chunks {
		chunks[i] = types.Chunk{PersonaID: personaID, SourceName: "big", Index: i, Text: fmt.Sprintf("chunk %d", i)}
	}

	// First batch of 100 succeeds, then the embedder goes down.
	indexed, err := ks.IndexChunks(context.Background(), chunks[:100])
	require.NoError(t, err)
	require.Equal(t, 100, indexed)

	embedder.fail = true
	indexed, err = ks.IndexChunks(context.Background(), chunks[100:])
	require.Error(t, err)
	require.Equal(t, 0, indexed)

	require.Len(t, store.vectors, 100)
}

func TestSearch_FiltersThresholdAndForeignPersona(t *testing.T) {
	log := testutil.Logger(t)
	embedder := &fakeEmbedder{}
	store := newFakeVectorStore()
	ks := NewKnowledgeService(log, embedder, store)

	personaID := uuid.New()
	store.matches = []pinecone.QueryMatch{
		{ID: "low", Score: 0.42, Metadata: map[string]any{"persona_id": personaID.String(), "text": "too dissimilar"}},
		{ID: "good", Score: 0.91, Metadata: map[string]any{"persona_id": personaID.String(), "text": "relevant passage"}},
		{ID: "foreign", Score: 0.99, Metadata: map[string]any{"persona_id": uuid.NewString(), "text": "someone else's chunk"}},
		{ID: "ok", Score: 0.74, Metadata: map[string]any{"persona_id": personaID.String(), "text": "second passage"}},
	}

	results, err := ks.Search(context.Background(), personaID, "archives", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"relevant passage", "second passage"}, results)
}

func TestSearch_EmptyIndex(t *testing.T) {
	log := testutil.Logger(t)
	ks := NewKnowledgeService(log, &fakeEmbedder{}, newFakeVectorStore())
	results, err := ks.Search(context.Background(), uuid.New(), "anything", 0)
	require.NoError(t, err)
	require.Empty(t, results)
}
