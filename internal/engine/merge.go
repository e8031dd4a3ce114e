package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/homexhq/catalog-merge/internal/catalog"
	"github.com/homexhq/catalog-merge/internal/model"
	"github.com/homexhq/catalog-merge/internal/service"
)

// MergerConfig tunes the batch orchestrator.
type MergerConfig struct {
	// CheckpointInterval is how many processed items elapse between
	// checkpoint writes.
	CheckpointInterval int
	// ShowProgress renders a terminal progress bar per provider.
	ShowProgress bool
}

// DefaultMergerConfig returns the default tuning.
func DefaultMergerConfig() MergerConfig {
	return MergerConfig{CheckpointInterval: 10}
}

// Merger drives one full reconciliation run: every non-reference provider's
// items, in fixed order, each classified exactly once, with the ledger
// checkpointed as it grows.
type Merger struct {
	set       *catalog.Set
	policy    *Policy
	store     CheckpointStore
	notifier  service.Notifier
	reference model.Provider
	cfg       MergerConfig
}

// NewMerger builds an orchestrator from already-constructed collaborators.
func NewMerger(set *catalog.Set, policy *Policy, store CheckpointStore, notifier service.Notifier, reference model.Provider, cfg MergerConfig) *Merger {
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = DefaultMergerConfig().CheckpointInterval
	}
	return &Merger{
		set:       set,
		policy:    policy,
		store:     store,
		notifier:  notifier,
		reference: reference,
		cfg:       cfg,
	}
}

// Run processes every provider and returns the complete ledger. Items present
// in a prior checkpoint are copied forward without re-evaluation; any error
// flushes the checkpoint synchronously before propagating.
func (m *Merger) Run(ctx context.Context) ([]model.MatchRecord, error) {
	prior, err := m.loadPrior()
	if err != nil {
		return nil, err
	}

	var ledger []model.MatchRecord
	for _, provider := range model.Providers() {
		if provider == m.reference {
			slog.Info("Skipping reference provider", "provider", provider)
			continue
		}

		wb := m.set.Workbook(provider)
		refs := wb.Refs()
		slog.Info("Merging provider", "provider", provider, "items", len(refs))

		// Candidate scope is fixed per provider: accumulated no-matches from
		// the current provider never join its own scope.
		scope := m.candidateScope(provider, ledger)

		bar := m.newProgressBar(provider, len(refs))
		for idx, ref := range refs {
			if err := ctx.Err(); err != nil {
				return nil, m.fail(ledger, fmt.Errorf("run canceled: %w", err))
			}

			if idx%m.cfg.CheckpointInterval == 0 {
				slog.Info("Checkpoint", "provider", provider, "index", idx, "total", len(refs))
				if err := m.store.Save(ledger); err != nil {
					return nil, m.fail(ledger, err)
				}
			}

			if record, ok := prior[ref]; ok {
				ledger = append(ledger, record)
				m.step(bar)
				continue
			}

			item, err := wb.ItemByRef(ref)
			if err != nil {
				return nil, m.fail(ledger, err)
			}
			record, err := m.policy.Decide(ctx, item, scope)
			if err != nil {
				return nil, m.fail(ledger, fmt.Errorf("decide %s: %w", ref, err))
			}
			ledger = append(ledger, record)
			m.step(bar)
		}
		m.finish(bar)
	}

	if err := m.store.Save(ledger); err != nil {
		return nil, m.fail(ledger, err)
	}

	slog.Info("Merge complete", "records", len(ledger))
	if m.notifier != nil {
		m.notifier.Notify(ctx, "Merge completed", fmt.Sprintf("Merged %d items", len(ledger)))
	}
	return ledger, nil
}

// loadPrior indexes the previous run's checkpoint by query reference.
func (m *Merger) loadPrior() (map[model.ItemReference]model.MatchRecord, error) {
	records, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	prior := make(map[model.ItemReference]model.MatchRecord, len(records))
	for _, record := range records {
		prior[record.Query] = record
	}
	if len(prior) > 0 {
		slog.Info("Resuming from prior checkpoint", "records", len(prior))
	}
	return prior, nil
}

// candidateScope is the reference provider's full catalog plus every
// no-match item accumulated from providers already processed this run.
func (m *Merger) candidateScope(current model.Provider, ledger []model.MatchRecord) CandidateScope {
	referenceRefs := m.set.Workbook(m.reference).Refs()

	refs := make([]model.ItemReference, 0, len(referenceRefs))
	refs = append(refs, referenceRefs...)
	filters := []service.Scope{service.ProviderScope(m.reference)}

	for _, record := range ledger {
		if record.Type == model.MatchNone && record.Query.Provider != current {
			refs = append(refs, record.Query)
			filters = append(filters, service.ItemScope(record.Query))
		}
	}
	return CandidateScope{Filters: filters, Refs: refs}
}

// fail flushes the checkpoint before the error propagates so no completed
// decision is lost, then fires the operator notification.
func (m *Merger) fail(ledger []model.MatchRecord, cause error) error {
	if saveErr := m.store.Save(ledger); saveErr != nil {
		slog.Error("Failed to flush checkpoint during failure", "error", saveErr)
	}
	if m.notifier != nil {
		m.notifier.Notify(context.Background(), "Merge failed", cause.Error())
	}
	return cause
}

func (m *Merger) newProgressBar(provider model.Provider, total int) *progressbar.ProgressBar {
	if !m.cfg.ShowProgress {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(fmt.Sprintf("Merging %s...", provider)),
	)
}

func (m *Merger) step(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Add(1)
	}
}

func (m *Merger) finish(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Finish()
	}
}
