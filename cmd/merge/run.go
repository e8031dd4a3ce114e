package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/homexhq/catalog-merge/internal/checkpoint"
	"github.com/homexhq/catalog-merge/internal/cli"
	"github.com/homexhq/catalog-merge/internal/engine"
	"github.com/homexhq/catalog-merge/internal/gemini"
	"github.com/homexhq/catalog-merge/internal/model"
	"github.com/homexhq/catalog-merge/internal/report"
	"github.com/homexhq/catalog-merge/internal/vector"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile all provider catalogs and export the merge table",
		Long: `Reconcile every provider's catalog against the reference provider and write
the combined merge table.

Items are paired by exact code first, then by model-assisted judgment over
semantically similar reference candidates. Progress is checkpointed so an
interrupted run resumes without repeating completed items.

Examples:
  merge run                          # Full run with defaults
  merge run --reference-provider gem # Reconcile against the gem catalog
  merge run --coalesce fanout        # One output row per match
  merge run --no-prefilter           # Skip the similarity prefilter`,
		RunE: runMerge,
	}

	// Flags
	cmd.Flags().String("api-key", "", "Gemini API key (or GEMINI_API_KEY)")
	cmd.Flags().String("reference-provider", string(model.ProviderHaller), "Provider whose catalog anchors the merge")
	cmd.Flags().String("checkpoint-file", "output/merges.json", "Path of the merge checkpoint ledger")
	cmd.Flags().String("output-file", "output/merge-table.xlsx", "Path of the exported merge table")
	cmd.Flags().String("coalesce", "collapse", "Row layout for multiple matches (collapse, fanout)")
	cmd.Flags().Bool("no-prefilter", false, "Send full catalog chunks instead of similarity-filtered candidates")

	// Bind to viper (errors are rare and can be ignored in practice)
	_ = viper.BindPFlag("gemini.api_key", cmd.Flags().Lookup("api-key"))
	_ = viper.BindPFlag("merge.reference_provider", cmd.Flags().Lookup("reference-provider"))
	_ = viper.BindPFlag("merge.checkpoint_file", cmd.Flags().Lookup("checkpoint-file"))
	_ = viper.BindPFlag("merge.output_file", cmd.Flags().Lookup("output-file"))
	_ = viper.BindPFlag("merge.coalesce", cmd.Flags().Lookup("coalesce"))
	_ = viper.BindPFlag("merge.no_prefilter", cmd.Flags().Lookup("no-prefilter"))

	return cmd
}

func runMerge(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	reference, err := referenceProvider()
	if err != nil {
		return err
	}
	coalescePolicy, err := engine.ParseCoalescePolicy(viper.GetString("merge.coalesce"))
	if err != nil {
		return err
	}

	fmt.Println(cli.FormatTitle("Catalog Merge"))
	slog.Info("Starting catalog merge", "reference", reference)

	set, err := loadCatalogSet()
	if err != nil {
		return fmt.Errorf("failed to load catalogs: %w", err)
	}

	geminiClient, err := newGeminiClient()
	if err != nil {
		return err
	}

	var filter engine.RelevanceFilter
	if viper.GetBool("merge.no_prefilter") {
		slog.Info("Similarity prefilter disabled, using chunked candidate sets")
	} else {
		store, storeErr := newVectorStore(geminiClient)
		if storeErr != nil {
			return storeErr
		}
		if err = store.EnsureCollection(ctx); err != nil {
			return fmt.Errorf("failed to prepare embedding collection: %w", err)
		}
		if err = store.EnsureEmbeddings(ctx, set, interactive()); err != nil {
			return fmt.Errorf("failed to ingest embeddings: %w", err)
		}
		filter = store
	}

	ckpt := checkpoint.NewStore(viper.GetString("merge.checkpoint_file"))
	notifier := newNotifier()

	policy := engine.NewPolicy(set, geminiClient, filter, ckpt, notifier, reference, engine.DefaultPolicyConfig())
	merger := engine.NewMerger(set, policy, ckpt, notifier, reference, engine.MergerConfig{
		CheckpointInterval: viper.GetInt("merge.checkpoint_interval"),
		ShowProgress:       interactive(),
	})

	ledger, err := merger.Run(ctx)
	if err != nil {
		fmt.Println(cli.FormatError("Merge failed"))
		return err
	}

	rows := engine.NewCoalescer(set, reference, coalescePolicy).Rows(ledger)
	outputPath := viper.GetString("merge.output_file")
	if err := report.NewWriter(set, reference).Write(rows, outputPath); err != nil {
		return fmt.Errorf("failed to write merge table: %w", err)
	}

	printSummary(ledger, outputPath)
	return nil
}

func newVectorStore(embedder *gemini.Client) (*vector.Store, error) {
	client, err := newQdrantClient()
	if err != nil {
		return nil, err
	}
	return vector.NewStore(client, embedder), nil
}

func printSummary(ledger []model.MatchRecord, outputPath string) {
	counts := map[model.MatchType]int{}
	for _, record := range ledger {
		counts[record.Type]++
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Merged %d items", len(ledger))))
	fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf(
		"  exact: %d  strong: %d  hazy: %d  unmatched: %d",
		counts[model.MatchExactCode],
		counts[model.MatchStrongLLM],
		counts[model.MatchHazyLLM],
		counts[model.MatchNone],
	)))
	fmt.Println(cli.SubtleStyle.Render("  merge table: " + outputPath))
}
