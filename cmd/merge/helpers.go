package main

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/homexhq/catalog-merge/internal/catalog"
	"github.com/homexhq/catalog-merge/internal/common"
	"github.com/homexhq/catalog-merge/internal/gemini"
	"github.com/homexhq/catalog-merge/internal/model"
	"github.com/homexhq/catalog-merge/internal/notify"
	"github.com/homexhq/catalog-merge/internal/vector"
)

func setDefaults() {
	for _, provider := range model.Providers() {
		viper.SetDefault(fmt.Sprintf("workbooks.%s", provider), fmt.Sprintf("data/%s.xlsx", provider))
	}

	viper.SetDefault("merge.reference_provider", string(model.ProviderHaller))
	viper.SetDefault("merge.checkpoint_file", "output/merges.json")
	viper.SetDefault("merge.output_file", "output/merge-table.xlsx")
	viper.SetDefault("merge.coalesce", "collapse")
	viper.SetDefault("merge.checkpoint_interval", 10)

	viper.SetDefault("gemini.requests_per_minute", 10)
	viper.SetDefault("gemini.terminology_file", "")

	viper.SetDefault("qdrant.url", "http://localhost:6333")
	viper.SetDefault("qdrant.collection", vector.DefaultCollection)
}

func loadCatalogSet() (*catalog.Set, error) {
	paths := make(map[model.Provider]string, len(model.Providers()))
	for _, provider := range model.Providers() {
		paths[provider] = viper.GetString(fmt.Sprintf("workbooks.%s", provider))
	}
	return catalog.LoadSet(paths)
}

func newGeminiClient() (*gemini.Client, error) {
	apiKey := viper.GetString("gemini.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, common.NewUserError(
			"Gemini API key is required: set --api-key, gemini.api_key, or GEMINI_API_KEY", common.ErrMissingConfig)
	}

	return gemini.NewClient(gemini.Config{
		APIKey:            apiKey,
		Model:             viper.GetString("gemini.model"),
		EmbedModel:        viper.GetString("gemini.embed_model"),
		TerminologyPath:   viper.GetString("gemini.terminology_file"),
		RequestsPerMinute: viper.GetInt("gemini.requests_per_minute"),
		ThinkingBudget:    viper.GetInt("gemini.thinking_budget"),
		EmbedRetryDelay:   viper.GetDuration("gemini.embed_retry_delay"),
	})
}

func newQdrantClient() (*vector.QdrantClient, error) {
	return vector.NewQdrantClient(vector.QdrantConfig{
		BaseURL:    viper.GetString("qdrant.url"),
		APIKey:     viper.GetString("qdrant.api_key"),
		Collection: viper.GetString("qdrant.collection"),
	})
}

func newNotifier() *notify.Pushover {
	return notify.NewPushover(notify.PushoverConfig{
		Token:   viper.GetString("pushover.token"),
		UserKey: viper.GetString("pushover.user_key"),
	})
}

func referenceProvider() (model.Provider, error) {
	return model.ParseProvider(viper.GetString("merge.reference_provider"))
}

// interactive reports whether progress bars should render.
func interactive() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
