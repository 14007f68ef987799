package services

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/personaforge/backend/internal/clients/pinecone"
	"github.com/personaforge/backend/internal/repos"
	"github.com/personaforge/backend/internal/types"
)

// fakeEmbedder returns a fixed-dimension vector derived from the input
// length, so identical inputs embed identically.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls [][]string
	fail  bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, fmt.Errorf("embedder unavailable")
	}
	f.calls = append(f.calls, inputs)
	out := make([][]float32, len(inputs))
	for i, input := range inputs {
		out[i] = []float32{float32(len(input)), 1, 0}
	}
	return out, nil
}

type fakeVectorStore struct {
	mu      sync.Mutex
	vectors map[string]pinecone.Vector
	matches []pinecone.QueryMatch
	upserts int
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{vectors: map[string]pinecone.Vector{}}
}

func (f *fakeVectorStore) Upsert(ctx context.Context, namespace string, vectors []pinecone.Vector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	for _, v := range vectors {
		f.vectors[v.ID] = v
	}
	return nil
}

func (f *fakeVectorStore) QueryMatches(ctx context.Context, namespace string, query []float32, topK int, filter map[string]any) ([]pinecone.QueryMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.matches, nil
}

func (f *fakeVectorStore) DeleteByFilter(ctx context.Context, namespace string, filter map[string]any) error {
	return nil
}

// fakeBucket keeps payloads in memory; keys listed in failKeys refuse writes.
type fakeBucket struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failKeys map[string]bool
	failAll  bool
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}, failKeys: map[string]bool{}}
}

func (f *fakeBucket) UploadFile(ctx context.Context, key string, r io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll || f.failKeys[key] {
		return fmt.Errorf("upload refused for %s", key)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeBucket) ReadFile(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object at %s", key)
	}
	return data, nil
}

func (f *fakeBucket) DeleteFile(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeBucket) GetPublicURL(key string) string {
	return "https://cdn.test/" + key
}

// fakeKnowledge records what was indexed without touching any vector store.
type fakeKnowledge struct {
	mu      sync.Mutex
	indexed []types.Chunk
	fail    bool
	results []string
}

func (f *fakeKnowledge) IndexChunks(ctx context.Context, chunks []types.Chunk) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, fmt.Errorf("indexer unavailable")
	}
	f.indexed = append(f.indexed, chunks...)
	return len(chunks), nil
}

func (f *fakeKnowledge) IndexText(ctx context.Context, personaID uuid.UUID, sourceName, origin, text string) (int, error) {
	return f.IndexChunks(ctx, []types.Chunk{{
		PersonaID:  personaID,
		SourceName: sourceName,
		Index:      0,
		Text:       text,
		Origin:     origin,
	}})
}

func (f *fakeKnowledge) Search(ctx context.Context, personaID uuid.UUID, query string, topK int) ([]string, error) {
	return f.results, nil
}

func (f *fakeKnowledge) RemoveSource(ctx context.Context, personaID uuid.UUID, sourceName string) error {
	return nil
}

func seedPersona(ctx context.Context, personaRepo repos.PersonaRepo, userID uuid.UUID, name string) (*types.Persona, error) {
	persona := &types.Persona{
		ID:           uuid.New(),
		UserID:       userID,
		Name:         name,
		Age:          34,
		Occupation:   "researcher",
		Location:     "Lisbon",
		Introduction: "A careful reader.",
		Traits:       []byte(`["curious","patient"]`),
		Interests:    []byte(`["archives","maps"]`),
		Attributes:   []byte(`{"tone":"dry"}`),
	}
	created, err := personaRepo.Create(ctx, nil, []*types.Persona{persona})
	if err != nil {
		return nil, err
	}
	return created[0], nil
}
