package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/smefinder/smefinder/pkg/config"
	"github.com/smefinder/smefinder/pkg/errors"
	"github.com/smefinder/smefinder/pkg/logging"
)

// Vector is one embedding with its ticket metadata
type Vector struct {
	ID       string            `json:"id"`
	Values   []float64         `json:"values"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Match is a query hit
type Match struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Client talks to a Pinecone index over its REST data plane
type Client struct {
	endpoint   string
	apiKey     string
	namespace  string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a client for the configured index
func NewClient(cfg config.VectorConfig) *Client {
	return &Client{
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.APIKey,
		namespace: cfg.Namespace,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logging.GetLogger().WithComponent("vector"),
	}
}

// Upsert writes vectors into the index namespace
func (c *Client) Upsert(ctx context.Context, vectors []Vector) error {
	body := struct {
		Vectors   []Vector `json:"vectors"`
		Namespace string   `json:"namespace,omitempty"`
	}{Vectors: vectors, Namespace: c.namespace}

	var response struct {
		UpsertedCount int `json:"upsertedCount"`
	}
	if err := c.post(ctx, "/vectors/upsert", body, &response); err != nil {
		return err
	}

	c.logger.WithContext(ctx).Debug("Vectors upserted",
		"count", response.UpsertedCount, "namespace", c.namespace)
	return nil
}

// Query returns the topK nearest neighbors of the given vector
func (c *Client) Query(ctx context.Context, values []float64, topK int) ([]Match, error) {
	body := struct {
		Vector          []float64 `json:"vector"`
		TopK            int       `json:"topK"`
		Namespace       string    `json:"namespace,omitempty"`
		IncludeMetadata bool      `json:"includeMetadata"`
	}{Vector: values, TopK: topK, Namespace: c.namespace, IncludeMetadata: true}

	var response struct {
		Matches []Match `json:"matches"`
	}
	if err := c.post(ctx, "/query", body, &response); err != nil {
		return nil, err
	}
	return response.Matches, nil
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return errors.NewInternalError("Failed to encode vector request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return errors.NewInternalError("Failed to create vector request").WithCause(err)
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.NewTimeoutError("Vector index request").WithCause(err)
		}
		return errors.NewExternalError("pinecone", "Vector index request failed").WithCause(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.NewRateLimitError("Vector index rate limit exceeded")
	case resp.StatusCode >= 400:
		return errors.NewExternalError("pinecone",
			fmt.Sprintf("Vector index returned status %d", resp.StatusCode))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.NewExternalError("pinecone", "Failed to decode vector response").WithCause(err)
		}
	}
	return nil
}
