// Package service defines the shared contracts between the engine and its
// collaborators.
package service

import (
	"context"
	"time"

	"github.com/homexhq/catalog-merge/internal/model"
)

// MatchTier is the confidence tier asserted by the generative-matching
// collaborator. These are wire tags of the structured response schema.
type MatchTier string

// Match tiers the generation service may return.
const (
	TierStrongMatch MatchTier = "strong_match"
	TierHazyMatch   MatchTier = "hazy_match"
	TierNoMatch     MatchTier = "no_match"
)

// MatchProposal identifies the master-list entry the generation service
// picked. IDs are provider-assigned and may collide across providers, so the
// code is carried as a disambiguating fallback.
type MatchProposal struct {
	Provider model.Provider `json:"provider"`
	ID       int            `json:"id"`
	Code     string         `json:"code"`
	Name     string         `json:"name"`
}

// MatchResult is the structured response to one matching request. Item is nil
// exactly when Tier is TierNoMatch.
type MatchResult struct {
	Tier      MatchTier      `json:"type"`
	Item      *MatchProposal `json:"item,omitempty"`
	Reasoning string         `json:"reasoning"`
}

// Scope is one term of the disjunctive candidate filter handed to the
// relevance filter: a whole provider's catalog, or a single item when Ref is
// set.
type Scope struct {
	Provider model.Provider
	Ref      *model.ItemReference
}

// ProviderScope covers every item of one provider.
func ProviderScope(p model.Provider) Scope {
	return Scope{Provider: p}
}

// ItemScope covers exactly one item.
func ItemScope(ref model.ItemReference) Scope {
	return Scope{Provider: ref.Provider, Ref: &ref}
}

// Notifier delivers best-effort operator signals. Implementations never
// return errors; delivery failures are logged and swallowed.
type Notifier interface {
	Notify(ctx context.Context, title, message string)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
