// Package gemini implements the generative-matching and embedding
// collaborators on the Gemini REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/homexhq/catalog-merge/internal/catalog"
	"github.com/homexhq/catalog-merge/internal/common"
	"github.com/homexhq/catalog-merge/internal/service"
)

// MaxEmbedChunkSize caps the number of texts per embedding request.
const MaxEmbedChunkSize = 100

// EmbeddingVectorSize is the dimensionality of the embedding model's output.
const EmbeddingVectorSize = 768

const (
	defaultBaseURL        = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel          = "gemini-2.5-flash"
	defaultEmbedModel     = "text-embedding-004"
	defaultThinkingBudget = 18000
	followupBudget        = 15000

	maxGenerateAttempts = 4
	maxEmbedAttempts    = 3
)

// Config holds Gemini client settings.
type Config struct {
	APIKey             string
	BaseURL            string
	Model              string
	EmbedModel         string
	TerminologyPath    string
	RequestsPerMinute  int
	ThinkingBudget     int
	EmbedRetryDelay    time.Duration // cooldown after an embedding 429; the quota window is per minute
	GenerateRetryDelay time.Duration // fallback cooldown when a generation 429 carries no RetryInfo
}

// Client talks to the Gemini API. It implements the engine's Matcher
// interface and the vector store's Embedder interface.
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	cfg         Config
	terminology string
}

// NewClient creates a Gemini client from config, reading the optional
// terminology key document.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key", common.ErrMissingConfig)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = defaultEmbedModel
	}
	if cfg.ThinkingBudget == 0 {
		cfg.ThinkingBudget = defaultThinkingBudget
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.EmbedRetryDelay <= 0 {
		cfg.EmbedRetryDelay = time.Minute
	}
	if cfg.GenerateRetryDelay <= 0 {
		cfg.GenerateRetryDelay = 30 * time.Second
	}

	var terminology string
	if cfg.TerminologyPath != "" {
		data, err := os.ReadFile(cfg.TerminologyPath)
		if err != nil {
			return nil, fmt.Errorf("read terminology key: %w", err)
		}
		terminology = string(data)
	}

	return &Client{
		cfg:         cfg,
		terminology: terminology,
		limiter:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// EmbedItems returns one semantic-similarity vector per item, in input order.
// The chunk size cap is the caller's responsibility to respect when batching;
// oversized input is an error, not a silent split.
func (c *Client) EmbedItems(ctx context.Context, items []*catalog.Item) ([][]float32, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if len(items) > MaxEmbedChunkSize {
		return nil, fmt.Errorf("embed chunk of %d exceeds max %d", len(items), MaxEmbedChunkSize)
	}

	var vectors [][]float32
	err := common.WithRetry(ctx, func() error {
		var embedErr error
		vectors, embedErr = c.doEmbed(ctx, items)
		return embedErr
	}, service.RetryOptions{
		MaxAttempts:  maxEmbedAttempts,
		InitialDelay: time.Second,
		MaxDelay:     c.cfg.EmbedRetryDelay,
	})
	return vectors, err
}

func (c *Client) doEmbed(ctx context.Context, items []*catalog.Item) ([][]float32, error) {
	reqs := make([]embedRequest, len(items))
	for i, item := range items {
		reqs[i] = embedRequest{
			Model:    "models/" + c.cfg.EmbedModel,
			Content:  contentNode{Parts: []partNode{{Text: EmbeddingText(item)}}},
			TaskType: "SEMANTIC_SIMILARITY",
		}
	}

	var resp batchEmbedResponse
	url := fmt.Sprintf("%s/models/%s:batchEmbedContents", c.cfg.BaseURL, c.cfg.EmbedModel)
	if err := c.post(ctx, url, batchEmbedRequest{Requests: reqs}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Embeddings) != len(items) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(items), len(resp.Embeddings))
	}
	vectors := make([][]float32, len(items))
	for i, emb := range resp.Embeddings {
		if len(emb.Values) == 0 {
			return nil, fmt.Errorf("no embedding values for item %s", items[i].Ref())
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// GenerateMatch renders the candidate set plus the query item and asks for a
// best match with a confidence tier. Decoding is fully deterministic.
func (c *Client) GenerateMatch(ctx context.Context, refs []*catalog.Item, query *catalog.Item) (service.MatchResult, error) {
	contents, err := c.matchContents(refs, query)
	if err != nil {
		return service.MatchResult{}, err
	}
	return c.generate(ctx, contents, c.cfg.ThinkingBudget)
}

// GenerateFollowup re-asks after a proposal failed to resolve, including the
// invalid prior proposal and an instruction to pick a verifiably existing
// item or declare no match.
func (c *Client) GenerateFollowup(ctx context.Context, refs []*catalog.Item, query *catalog.Item, prev service.MatchResult) (service.MatchResult, error) {
	contents, err := c.followupContents(refs, query, prev)
	if err != nil {
		return service.MatchResult{}, err
	}
	return c.generate(ctx, contents, followupBudget)
}

// generate runs the bounded retry loop around one structured generation
// request. The thinking budget shrinks on each empty response and is dropped
// entirely on the final attempt; a rate-limited attempt waits out the
// server-advised delay.
func (c *Client) generate(ctx context.Context, contents []contentNode, thinkingBudget int) (service.MatchResult, error) {
	budget := thinkingBudget
	attempt := 0
	var result service.MatchResult
	var lastErr error

	err := common.WithRetry(ctx, func() error {
		attempt++
		b := budget
		if attempt >= maxGenerateAttempts {
			b = 0
		}
		res, genErr := c.doGenerate(ctx, contents, b)
		if genErr != nil {
			lastErr = genErr
			if errors.Is(genErr, common.ErrEmptyResponse) {
				budget -= 3000
				if budget < 0 {
					budget = 0
				}
			}
			return genErr
		}
		result = res
		return nil
	}, service.RetryOptions{
		MaxAttempts:  maxGenerateAttempts,
		InitialDelay: time.Second,
		MaxDelay:     c.cfg.GenerateRetryDelay,
	})

	if err != nil {
		// Surface repeated empty responses distinctly so the decision policy
		// can degrade the single item instead of aborting the run.
		if errors.Is(lastErr, common.ErrEmptyResponse) {
			return service.MatchResult{}, fmt.Errorf("%w: %v", common.ErrEmptyResponse, err)
		}
		return service.MatchResult{}, err
	}
	return result, nil
}

func (c *Client) doGenerate(ctx context.Context, contents []contentNode, thinkingBudget int) (service.MatchResult, error) {
	req := generateRequest{
		Contents: contents,
		GenerationConfig: generationConfig{
			Temperature:      0,
			ResponseMimeType: "application/json",
			ResponseSchema:   matchResponseSchema(),
		},
	}
	if thinkingBudget > 0 {
		req.GenerationConfig.ThinkingConfig = &thinkingConfig{
			ThinkingBudget:  thinkingBudget,
			IncludeThoughts: false,
		}
	}

	var resp generateResponse
	url := fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, c.cfg.Model)
	if err := c.post(ctx, url, req, &resp); err != nil {
		return service.MatchResult{}, err
	}

	text := resp.text()
	if text == "" {
		return service.MatchResult{}, common.ErrEmptyResponse
	}

	var result service.MatchResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return service.MatchResult{}, fmt.Errorf("parse match response: %w", err)
	}
	if err := validateResult(result); err != nil {
		return service.MatchResult{}, err
	}
	return result, nil
}

func validateResult(result service.MatchResult) error {
	switch result.Tier {
	case service.TierStrongMatch, service.TierHazyMatch:
		if result.Item == nil {
			return fmt.Errorf("match response of tier %s is missing its item", result.Tier)
		}
	case service.TierNoMatch:
		if result.Item != nil {
			return fmt.Errorf("no_match response must not carry an item")
		}
	default:
		return fmt.Errorf("unknown match tier: %q", result.Tier)
	}
	return nil
}

// post sends one paced JSON request and decodes the response, translating
// throttling into the retry-aware error types.
func (c *Client) post(ctx context.Context, url string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &common.RetryAfterError{
			Err:   fmt.Errorf("%w: %s", common.ErrRateLimit, summarize(respBody)),
			Delay: retryDelay(respBody, c.cfg.GenerateRetryDelay),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, summarize(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// retryDelay extracts the RetryInfo cooldown attached to a 429 error body,
// falling back to the configured default.
func retryDelay(body []byte, fallback time.Duration) time.Duration {
	var errResp struct {
		Error struct {
			Details []struct {
				Type       string `json:"@type"`
				RetryDelay string `json:"retryDelay"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return fallback
	}
	for _, detail := range errResp.Error.Details {
		if !strings.HasSuffix(detail.Type, "RetryInfo") || detail.RetryDelay == "" {
			continue
		}
		if seconds, err := strconv.Atoi(strings.TrimSuffix(detail.RetryDelay, "s")); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func summarize(body []byte) string {
	const maxLen = 512
	s := string(body)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// Wire types.

type partNode struct {
	Text string `json:"text"`
}

type contentNode struct {
	Role  string     `json:"role,omitempty"`
	Parts []partNode `json:"parts"`
}

type embedRequest struct {
	Model    string      `json:"model"`
	Content  contentNode `json:"content"`
	TaskType string      `json:"taskType"`
}

type batchEmbedRequest struct {
	Requests []embedRequest `json:"requests"`
}

type batchEmbedResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

type thinkingConfig struct {
	ThinkingBudget  int  `json:"thinkingBudget"`
	IncludeThoughts bool `json:"includeThoughts"`
}

type generationConfig struct {
	Temperature      float64         `json:"temperature"`
	ResponseMimeType string          `json:"responseMimeType"`
	ResponseSchema   map[string]any  `json:"responseSchema"`
	ThinkingConfig   *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type generateRequest struct {
	Contents         []contentNode    `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (r *generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return strings.TrimSpace(sb.String())
}

// matchResponseSchema is the structured-output contract: exactly one of the
// three tiers, with an identifying item for the two match tiers.
func matchResponseSchema() map[string]any {
	return map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"type": map[string]any{
				"type": "STRING",
				"enum": []string{
					string(service.TierStrongMatch),
					string(service.TierHazyMatch),
					string(service.TierNoMatch),
				},
			},
			"item": map[string]any{
				"type":     "OBJECT",
				"nullable": true,
				"properties": map[string]any{
					"provider": map[string]any{"type": "STRING"},
					"id":       map[string]any{"type": "INTEGER"},
					"code":     map[string]any{"type": "STRING"},
					"name":     map[string]any{"type": "STRING"},
				},
				"required": []string{"provider", "id", "code", "name"},
			},
			"reasoning": map[string]any{"type": "STRING"},
		},
		"required": []string{"type", "reasoning"},
	}
}
