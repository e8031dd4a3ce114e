package engine

import (
	"context"

	"github.com/homexhq/catalog-merge/internal/catalog"
	"github.com/homexhq/catalog-merge/internal/model"
	"github.com/homexhq/catalog-merge/internal/service"
)

// Matcher asks the generative service for a best match against a rendered
// candidate set.
type Matcher interface {
	GenerateMatch(ctx context.Context, refs []*catalog.Item, query *catalog.Item) (service.MatchResult, error)
	GenerateFollowup(ctx context.Context, refs []*catalog.Item, query *catalog.Item, prev service.MatchResult) (service.MatchResult, error)
}

// RelevanceFilter bounds the candidate set by semantic similarity before the
// generative call.
type RelevanceFilter interface {
	RelevantItems(ctx context.Context, query model.ItemReference, scopes []service.Scope, limit int) ([]model.ItemReference, error)
}

// CheckpointStore persists the ledger between runs and collects items needing
// manual review.
type CheckpointStore interface {
	Load() ([]model.MatchRecord, error)
	Save(records []model.MatchRecord) error
	AppendRevisit(ref model.ItemReference) error
}
