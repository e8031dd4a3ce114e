// Package engine implements the matching-and-reconciliation core: the
// per-item match decision policy, the resumable batch orchestrator, and the
// coalescing of match records into report rows.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/homexhq/catalog-merge/internal/catalog"
	"github.com/homexhq/catalog-merge/internal/common"
	"github.com/homexhq/catalog-merge/internal/model"
	"github.com/homexhq/catalog-merge/internal/service"
)

// PolicyConfig tunes the decision policy.
type PolicyConfig struct {
	// CandidateLimit caps the semantic prefilter's candidate set.
	CandidateLimit int
	// ChunkSize splits the reference set when running without a relevance
	// filter (chunked-consensus fallback).
	ChunkSize int
}

// DefaultPolicyConfig returns the default tuning.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		CandidateLimit: 1500,
		ChunkSize:      4000,
	}
}

// CandidateScope is the set of reference items one decision may match
// against: the reference provider's catalog plus every no-match item
// accumulated from providers processed earlier in the run.
type CandidateScope struct {
	// Filters is the disjunctive scope handed to the relevance filter.
	Filters []service.Scope
	// Refs is the full accumulated candidate list, used by the fallback
	// path and for rendering when no prefilter is available.
	Refs []model.ItemReference
}

// Policy turns one query item into exactly one classified match record.
type Policy struct {
	set       *catalog.Set
	matcher   Matcher
	filter    RelevanceFilter // nil enables the chunked-consensus fallback
	store     CheckpointStore
	notifier  service.Notifier
	reference model.Provider
	cfg       PolicyConfig
}

// NewPolicy builds a decision policy. filter may be nil, in which case the
// whole candidate scope is rendered in fixed-size chunks instead of being
// narrowed semantically.
func NewPolicy(set *catalog.Set, matcher Matcher, filter RelevanceFilter, store CheckpointStore, notifier service.Notifier, reference model.Provider, cfg PolicyConfig) *Policy {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultPolicyConfig().CandidateLimit
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultPolicyConfig().ChunkSize
	}
	return &Policy{
		set:       set,
		matcher:   matcher,
		filter:    filter,
		store:     store,
		notifier:  notifier,
		reference: reference,
		cfg:       cfg,
	}
}

// Decide classifies one query item against the candidate scope.
func (p *Policy) Decide(ctx context.Context, query *catalog.Item, scope CandidateScope) (model.MatchRecord, error) {
	// Exact-code stage: a byte-identical code in the reference catalog
	// short-circuits everything else.
	if hit := p.set.Workbook(p.reference).ItemByCode(query.Code()); hit != nil {
		return model.NewExactCodeMatch(query.Ref(), hit.Ref()), nil
	}

	result, err := p.propose(ctx, query, scope)
	if err != nil {
		if errors.Is(err, common.ErrEmptyResponse) {
			// The generation service kept returning nothing for this item;
			// degrade it rather than aborting the batch.
			return p.degrade(ctx, query, "empty model responses exhausted")
		}
		return model.MatchRecord{}, err
	}

	record, resolved := p.evaluate(query, result)
	if resolved {
		return record, nil
	}

	slog.Info("Initial proposal did not resolve, issuing follow-up", "query", query.Ref())
	candidates, err := p.candidates(ctx, query, scope)
	if err != nil {
		return model.MatchRecord{}, err
	}
	followup, err := p.matcher.GenerateFollowup(ctx, candidates, query, result)
	if err != nil {
		if errors.Is(err, common.ErrEmptyResponse) {
			return p.degrade(ctx, query, "empty model responses exhausted on follow-up")
		}
		return model.MatchRecord{}, err
	}

	record, resolved = p.evaluate(query, followup)
	if resolved {
		return record, nil
	}
	return p.degrade(ctx, query, "follow-up proposal did not resolve")
}

// propose obtains one structured match proposal, via the semantic prefilter
// when available and the chunked-consensus fallback otherwise.
func (p *Policy) propose(ctx context.Context, query *catalog.Item, scope CandidateScope) (service.MatchResult, error) {
	if p.filter != nil {
		candidates, err := p.candidates(ctx, query, scope)
		if err != nil {
			return service.MatchResult{}, err
		}
		return p.matcher.GenerateMatch(ctx, candidates, query)
	}
	return p.proposeChunked(ctx, query, scope)
}

// candidates resolves the reference items a proposal is generated from.
func (p *Policy) candidates(ctx context.Context, query *catalog.Item, scope CandidateScope) ([]*catalog.Item, error) {
	if p.filter == nil {
		return p.set.Items(scope.Refs)
	}
	refs, err := p.filter.RelevantItems(ctx, query.Ref(), scope.Filters, p.cfg.CandidateLimit)
	if err != nil {
		return nil, err
	}
	return p.set.Items(refs)
}

// proposeChunked is the fallback when no embedding collaborator is
// configured: the full candidate scope is rendered in fixed-size chunks, one
// generative call each, and disagreeing chunk winners are reconciled with a
// final call over just those candidates.
func (p *Policy) proposeChunked(ctx context.Context, query *catalog.Item, scope CandidateScope) (service.MatchResult, error) {
	items, err := p.set.Items(scope.Refs)
	if err != nil {
		return service.MatchResult{}, err
	}

	if len(items) <= p.cfg.ChunkSize {
		return p.matcher.GenerateMatch(ctx, items, query)
	}

	var responses []service.MatchResult
	for start := 0; start < len(items); start += p.cfg.ChunkSize {
		end := start + p.cfg.ChunkSize
		if end > len(items) {
			end = len(items)
		}
		res, genErr := p.matcher.GenerateMatch(ctx, items[start:end], query)
		if genErr != nil {
			return service.MatchResult{}, genErr
		}
		responses = append(responses, res)
	}

	var winners []service.MatchResult
	for _, res := range responses {
		if res.Tier != service.TierNoMatch {
			winners = append(winners, res)
		}
	}

	switch len(winners) {
	case 0:
		// Unanimous no-match.
		return responses[0], nil
	case 1:
		return winners[0], nil
	}

	// Chunks disagree: re-ask over only the proposed candidates.
	var candidates []*catalog.Item
	for _, winner := range winners {
		found := false
		for _, item := range items {
			if item.Provider() == winner.Item.Provider &&
				(item.ID() == winner.Item.ID || item.Code() == winner.Item.Code) {
				candidates = append(candidates, item)
				found = true
			}
		}
		if !found {
			slog.Warn("Chunk winner not found in candidate scope",
				"provider", winner.Item.Provider,
				"id", winner.Item.ID,
				"code", winner.Item.Code)
		}
	}
	if len(candidates) == 0 {
		return service.MatchResult{}, fmt.Errorf("no chunk winners resolve within the candidate scope for %s", query.Ref())
	}
	return p.matcher.GenerateMatch(ctx, candidates, query)
}

// evaluate resolves a proposal against the catalogs. The second return is
// false when a match-tier proposal names an item that does not exist, which
// triggers the follow-up protocol.
func (p *Policy) evaluate(query *catalog.Item, result service.MatchResult) (model.MatchRecord, bool) {
	if result.Tier == service.TierNoMatch {
		return model.NewNoMatch(query.Ref()), true
	}

	match := p.resolveProposal(*result.Item)
	if match == nil {
		return model.MatchRecord{}, false
	}

	if result.Tier == service.TierStrongMatch {
		return model.NewStrongLLMMatch(query.Ref(), match.Ref()), true
	}
	return model.NewHazyLLMMatch(query.Ref(), match.Ref()), true
}

// resolveProposal looks the proposed item up by id first; ids may collide
// across providers, so the code is tried as a fallback.
func (p *Policy) resolveProposal(proposal service.MatchProposal) *catalog.Item {
	wb := p.set.Workbook(proposal.Provider)
	if wb == nil {
		slog.Warn("Proposal names an unknown provider", "provider", proposal.Provider)
		return nil
	}
	if item := wb.ItemByID(proposal.ID); item != nil {
		return item
	}
	slog.Info("ID lookup failed, falling back to code lookup",
		"provider", proposal.Provider, "id", proposal.ID, "code", proposal.Code)
	item := wb.ItemByCode(proposal.Code)
	if item == nil {
		slog.Info("Code lookup failed",
			"provider", proposal.Provider, "code", proposal.Code)
	}
	return item
}

// degrade records the item for manual review, warns the operator, and
// settles on a safe no-match so a single unresolvable item does not block
// the whole batch.
func (p *Policy) degrade(ctx context.Context, query *catalog.Item, reason string) (model.MatchRecord, error) {
	slog.Warn("Degrading item to no-match", "query", query.Ref(), "reason", reason)
	if err := p.store.AppendRevisit(query.Ref()); err != nil {
		return model.MatchRecord{}, fmt.Errorf("record %s for revisit: %w", query.Ref(), err)
	}
	if p.notifier != nil {
		p.notifier.Notify(ctx, "Merge warning",
			fmt.Sprintf("Recorded %s for revisit: %s", query.Ref(), reason))
	}
	return model.NewNoMatch(query.Ref()), nil
}
