// Package vector implements the semantic relevance filter and the embedding
// store on a Qdrant collection.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/homexhq/catalog-merge/internal/common"
	"github.com/homexhq/catalog-merge/internal/model"
)

// DefaultCollection is the Qdrant collection holding the catalog embeddings.
const DefaultCollection = "homex-catalog"

// QdrantConfig holds connection settings for the vector database.
type QdrantConfig struct {
	BaseURL    string
	APIKey     string
	Collection string
}

// QdrantClient is a minimal REST client for the Qdrant points API.
type QdrantClient struct {
	httpClient *http.Client
	cfg        QdrantConfig
}

// NewQdrantClient creates a Qdrant client from config.
func NewQdrantClient(cfg QdrantConfig) (*QdrantClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: qdrant URL", common.ErrMissingConfig)
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	return &QdrantClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Point is one stored embedding with the payload needed to reconstruct its
// item reference.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	Score   float64        `json:"score,omitempty"`
}

// fieldCondition matches one payload field exactly.
type fieldCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value any `json:"value"`
	} `json:"match"`
}

func matchField(key string, value any) fieldCondition {
	var c fieldCondition
	c.Key = key
	c.Match.Value = value
	return c
}

// filter is a Qdrant boolean filter clause.
type filter struct {
	Must   []any `json:"must,omitempty"`
	Should []any `json:"should,omitempty"`
}

func refFilter(ref model.ItemReference) filter {
	return filter{Must: []any{
		matchField("provider", string(ref.Provider)),
		matchField("id", ref.ID),
	}}
}

// EnsureCollection creates the collection when it does not exist yet.
func (c *QdrantClient) EnsureCollection(ctx context.Context, vectorSize int) error {
	url := fmt.Sprintf("%s/collections/%s", c.cfg.BaseURL, c.cfg.Collection)

	status, _, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	status, respBody, err := c.do(ctx, http.MethodPut, url, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("create collection %s (status %d): %s", c.cfg.Collection, status, respBody)
	}
	return nil
}

// Upsert stores points, waiting for the write to be applied.
func (c *QdrantClient) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.cfg.BaseURL, c.cfg.Collection)
	status, respBody, err := c.do(ctx, http.MethodPut, url, map[string]any{"points": points})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("upsert points (status %d): %s", status, respBody)
	}
	return nil
}

// Scroll fetches stored points matching the filter.
func (c *QdrantClient) Scroll(ctx context.Context, f filter, limit int, withVectors bool) ([]Point, error) {
	url := fmt.Sprintf("%s/collections/%s/points/scroll", c.cfg.BaseURL, c.cfg.Collection)
	body := map[string]any{
		"filter":       f,
		"limit":        limit,
		"with_vector":  withVectors,
		"with_payload": true,
	}
	status, respBody, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("scroll points (status %d): %s", status, respBody)
	}

	var resp struct {
		Result struct {
			Points []Point `json:"points"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parse scroll response: %w", err)
	}
	return resp.Result.Points, nil
}

// Search returns the nearest neighbors of the query vector within the filter
// scope, ranked by descending similarity.
func (c *QdrantClient) Search(ctx context.Context, vector []float32, f filter, limit int) ([]Point, error) {
	url := fmt.Sprintf("%s/collections/%s/points/search", c.cfg.BaseURL, c.cfg.Collection)
	body := map[string]any{
		"vector":       vector,
		"filter":       f,
		"limit":        limit,
		"with_payload": true,
	}
	status, respBody, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("search points (status %d): %s", status, respBody)
	}

	var resp struct {
		Result []Point `json:"result"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	return resp.Result, nil
}

func (c *QdrantClient) do(ctx context.Context, method, url string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("api-key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("qdrant request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
