package vector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/homexhq/catalog-merge/internal/catalog"
	"github.com/homexhq/catalog-merge/internal/common"
	"github.com/homexhq/catalog-merge/internal/gemini"
	"github.com/homexhq/catalog-merge/internal/model"
	"github.com/homexhq/catalog-merge/internal/service"
)

// Embedder turns catalog items into semantic-similarity vectors.
type Embedder interface {
	EmbedItems(ctx context.Context, items []*catalog.Item) ([][]float32, error)
}

// Store backs the relevance filter with precomputed item embeddings held in
// Qdrant.
type Store struct {
	client   *QdrantClient
	embedder Embedder
}

// NewStore creates a store over an existing collection.
func NewStore(client *QdrantClient, embedder Embedder) *Store {
	return &Store{client: client, embedder: embedder}
}

// EnsureCollection creates the backing collection when it does not exist yet.
func (s *Store) EnsureCollection(ctx context.Context) error {
	return s.client.EnsureCollection(ctx, gemini.EmbeddingVectorSize)
}

// FetchEmbedding loads the stored vector for one item. Embeddings are
// ingested ahead of a run; a missing one is a hard error, not a trigger to
// regenerate.
func (s *Store) FetchEmbedding(ctx context.Context, ref model.ItemReference) ([]float32, error) {
	points, err := s.client.Scroll(ctx, refFilter(ref), 1, true)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("embedding for %s: %w", ref, common.ErrNotFound)
	}
	if len(points[0].Vector) == 0 {
		return nil, fmt.Errorf("embedding record for %s has no vector", ref)
	}
	return points[0].Vector, nil
}

// RelevantItems returns up to limit candidate references ranked by descending
// semantic similarity to the query item, restricted to the disjunction of
// scope terms.
func (s *Store) RelevantItems(ctx context.Context, query model.ItemReference, scopes []service.Scope, limit int) ([]model.ItemReference, error) {
	embedding, err := s.FetchEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}

	should := make([]any, 0, len(scopes))
	for _, scope := range scopes {
		if scope.Ref != nil {
			should = append(should, refFilter(*scope.Ref))
			continue
		}
		should = append(should, filter{Must: []any{matchField("provider", string(scope.Provider))}})
	}

	points, err := s.client.Search(ctx, embedding, filter{Should: should}, limit)
	if err != nil {
		return nil, err
	}

	refs := make([]model.ItemReference, 0, len(points))
	for _, point := range points {
		ref, refErr := payloadToRef(point.Payload)
		if refErr != nil {
			return nil, refErr
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// EnsureEmbeddings ingests embeddings for every item of every provider that
// does not have one stored yet. Chunked at the embedding service's batch cap;
// already-stored items are skipped so re-runs are cheap.
func (s *Store) EnsureEmbeddings(ctx context.Context, set *catalog.Set, showProgress bool) error {
	for _, provider := range model.Providers() {
		wb := set.Workbook(provider)
		refs := wb.Refs()
		slog.Info("Ingesting embeddings", "provider", provider, "items", len(refs))

		var bar *progressbar.ProgressBar
		if showProgress {
			bar = progressbar.NewOptions(len(refs),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription(fmt.Sprintf("Embedding %s...", provider)),
			)
		}

		for start := 0; start < len(refs); start += gemini.MaxEmbedChunkSize {
			end := start + gemini.MaxEmbedChunkSize
			if end > len(refs) {
				end = len(refs)
			}
			chunk := refs[start:end]

			if err := s.ensureChunk(ctx, set, chunk); err != nil {
				return fmt.Errorf("embed chunk for %s at offset %d: %w", provider, start, err)
			}
			if bar != nil {
				_ = bar.Add(len(chunk))
			}
		}
	}
	slog.Info("Embedding ingestion complete")
	return nil
}

func (s *Store) ensureChunk(ctx context.Context, set *catalog.Set, chunk []model.ItemReference) error {
	stored, err := s.storedRefs(ctx, chunk)
	if err != nil {
		return err
	}

	var toEmbed []*catalog.Item
	for _, ref := range chunk {
		if stored[ref] {
			continue
		}
		item, itemErr := set.ItemByRef(ref)
		if itemErr != nil {
			return itemErr
		}
		toEmbed = append(toEmbed, item)
	}
	if len(toEmbed) == 0 {
		return nil
	}

	vectors, err := s.embedder.EmbedItems(ctx, toEmbed)
	if err != nil {
		return err
	}
	if len(vectors) != len(toEmbed) {
		return fmt.Errorf("expected %d vectors, got %d", len(toEmbed), len(vectors))
	}

	points := make([]Point, len(toEmbed))
	for i, item := range toEmbed {
		ref := item.Ref()
		points[i] = Point{
			ID:     uuid.NewString(),
			Vector: vectors[i],
			Payload: map[string]any{
				"provider":   string(ref.Provider),
				"id":         ref.ID,
				"sheet_name": string(ref.Sheet),
			},
		}
	}
	return s.client.Upsert(ctx, points)
}

// storedRefs reports which of the given references already have a point.
func (s *Store) storedRefs(ctx context.Context, refs []model.ItemReference) (map[model.ItemReference]bool, error) {
	should := make([]any, 0, len(refs))
	for _, ref := range refs {
		should = append(should, refFilter(ref))
	}
	points, err := s.client.Scroll(ctx, filter{Should: should}, len(refs), false)
	if err != nil {
		return nil, err
	}

	stored := make(map[model.ItemReference]bool, len(points))
	for _, point := range points {
		ref, refErr := payloadToRef(point.Payload)
		if refErr != nil {
			return nil, refErr
		}
		stored[ref] = true
	}
	return stored, nil
}

// payloadToRef reconstructs an item reference from a point payload.
func payloadToRef(payload map[string]any) (model.ItemReference, error) {
	rawProvider, ok := payload["provider"].(string)
	if !ok {
		return model.ItemReference{}, fmt.Errorf("point payload missing provider: %v", payload)
	}
	provider, err := model.ParseProvider(rawProvider)
	if err != nil {
		return model.ItemReference{}, err
	}

	rawSheet, ok := payload["sheet_name"].(string)
	if !ok {
		return model.ItemReference{}, fmt.Errorf("point payload missing sheet_name: %v", payload)
	}
	sheetName, err := model.ParseSheetName(rawSheet)
	if err != nil {
		return model.ItemReference{}, err
	}

	rawID, ok := payload["id"].(float64)
	if !ok {
		return model.ItemReference{}, fmt.Errorf("point payload missing id: %v", payload)
	}

	return model.ItemReference{Provider: provider, Sheet: sheetName, ID: int(rawID)}, nil
}
