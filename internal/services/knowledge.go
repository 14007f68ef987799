package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/personaforge/backend/internal/clients/pinecone"
	"github.com/personaforge/backend/internal/ingestion/chunker"
	"github.com/personaforge/backend/internal/logger"
	"github.com/personaforge/backend/internal/types"
	"github.com/personaforge/backend/internal/utils"
)

// Embedder is the embedding provider surface; satisfied by the OpenAI client.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// KnowledgeService turns chunks into vectors scoped per persona and answers
// similarity queries against them. Chunks are derived data; re-indexing the
// same persona+source+index upserts over the prior vector.
type KnowledgeService interface {
	IndexChunks(ctx context.Context, chunks []types.Chunk) (int, error)
	IndexText(ctx context.Context, personaID uuid.UUID, sourceName, origin, text string) (int, error)
	Search(ctx context.Context, personaID uuid.UUID, query string, topK int) ([]string, error)
	RemoveSource(ctx context.Context, personaID uuid.UUID, sourceName string) error
}

// Upsert batches stay under vector-store request size limits.
const indexBatchSize = 100

type knowledgeService struct {
	log            *logger.Logger
	embedder       Embedder
	vectorStore    pinecone.VectorStore
	namespace      string
	maxChunkSize   int
	scoreThreshold float64
}

func NewKnowledgeService(baseLog *logger.Logger, embedder Embedder, vectorStore pinecone.VectorStore) KnowledgeService {
	serviceLog := baseLog.With("service", "KnowledgeService")
	return &knowledgeService{
		log:            serviceLog,
		embedder:       embedder,
		vectorStore:    vectorStore,
		namespace:      utils.GetEnv("KNOWLEDGE_NAMESPACE", "research", nil),
		maxChunkSize:   utils.GetEnvAsInt("KNOWLEDGE_MAX_CHUNK_SIZE", chunker.DefaultMaxChunkSize, nil),
		scoreThreshold: utils.GetEnvAsFloat("KNOWLEDGE_SCORE_THRESHOLD", 0.7, nil),
	}
}

func (ks *knowledgeService) IndexText(ctx context.Context, personaID uuid.UUID, sourceName, origin, text string) (int, error) {
	pieces := chunker.Chunk(text, ks.maxChunkSize)
	chunks := make([]types.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = types.Chunk{
			PersonaID:  personaID,
			SourceName: sourceName,
			Index:      i,
			Text:       piece,
			Origin:     origin,
		}
	}
	return ks.IndexChunks(ctx, chunks)
}

func (ks *knowledgeService) IndexChunks(ctx context.Context, chunks []types.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	indexed := 0
	for start := 0; start < len(chunks); start += indexBatchSize {
		end := start + indexBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		inputs := make([]string, len(batch))
		for i, ch := range batch {
			inputs[i] = ch.Text
		}
		vecs, err := ks.embedder.Embed(ctx, inputs)
		if err != nil {
			// Prior batches stay indexed; only this and later ones are lost.
			return indexed, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		if len(vecs) != len(batch) {
			return indexed, fmt.Errorf("embed batch [%d:%d]: got %d vectors for %d inputs", start, end, len(vecs), len(batch))
		}

		vectors := make([]pinecone.Vector, len(batch))
		for i, ch := range batch {
			vectors[i] = pinecone.Vector{
				ID:     chunkVectorID(ch),
				Values: vecs[i],
				Metadata: map[string]any{
					"persona_id":  ch.PersonaID.String(),
					"source_name": ch.SourceName,
					"chunk_index": ch.Index,
					"origin":      ch.Origin,
					"text":        ch.Text,
				},
			}
		}
		if err := ks.vectorStore.Upsert(ctx, ks.namespace, vectors); err != nil {
			return indexed, fmt.Errorf("upsert batch [%d:%d]: %w", start, end, err)
		}
		indexed += len(batch)
	}

	ks.log.Debug("Indexed chunks", "count", indexed)
	return indexed, nil
}

func (ks *knowledgeService) Search(ctx context.Context, personaID uuid.UUID, query string, topK int) ([]string, error) {
	if topK <= 0 {
		topK = 5
	}
	vecs, err := ks.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}

	filter := map[string]any{
		"persona_id": map[string]any{"$eq": personaID.String()},
	}
	matches, err := ks.vectorStore.QueryMatches(ctx, ks.namespace, vecs[0], topK, filter)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Score < ks.scoreThreshold {
			continue
		}
		// Never return another persona's chunk, whatever the index said.
		if pid, _ := m.Metadata["persona_id"].(string); pid != personaID.String() {
			continue
		}
		if text, _ := m.Metadata["text"].(string); text != "" {
			out = append(out, text)
		}
	}
	return out, nil
}

func (ks *knowledgeService) RemoveSource(ctx context.Context, personaID uuid.UUID, sourceName string) error {
	filter := map[string]any{
		"persona_id":  map[string]any{"$eq": personaID.String()},
		"source_name": map[string]any{"$eq": sourceName},
	}
	return ks.vectorStore.DeleteByFilter(ctx, ks.namespace, filter)
}

func chunkVectorID(ch types.Chunk) string {
	return fmt.Sprintf("persona:%s:%s:%d", ch.PersonaID, ch.SourceName, ch.Index)
}
