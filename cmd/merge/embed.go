package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/homexhq/catalog-merge/internal/cli"
)

func embedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Ingest catalog embeddings into the vector database",
		Long: `Compute semantic-similarity embeddings for every catalog item of every
provider and store them in Qdrant. Items that already have a stored embedding
are skipped, so re-running after adding catalog rows is cheap.

The run command performs this step automatically; use embed to warm the
collection ahead of time or after changing the embedding model.`,
		RunE: runEmbed,
	}

	cmd.Flags().String("api-key", "", "Gemini API key (or GEMINI_API_KEY)")
	_ = viper.BindPFlag("gemini.api_key", cmd.Flags().Lookup("api-key"))

	return cmd
}

func runEmbed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	fmt.Println(cli.FormatTitle("Embedding Ingestion"))

	set, err := loadCatalogSet()
	if err != nil {
		return fmt.Errorf("failed to load catalogs: %w", err)
	}

	geminiClient, err := newGeminiClient()
	if err != nil {
		return err
	}
	store, err := newVectorStore(geminiClient)
	if err != nil {
		return err
	}

	if err := store.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to prepare embedding collection: %w", err)
	}
	if err := store.EnsureEmbeddings(ctx, set, interactive()); err != nil {
		return fmt.Errorf("failed to ingest embeddings: %w", err)
	}

	fmt.Println(cli.FormatSuccess("Embeddings are up to date"))
	return nil
}
