// Package pipeline provides the HTTP client for the external content
// generation pipeline.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/contentmill/contentmill/internal/engine"
)

// Client calls a remote content pipeline over HTTP. The caller bounds
// each Produce with a context deadline; the client itself never
// retries.
type Client struct {
	url        string
	httpClient *http.Client
}

var _ engine.Pipeline = (*Client)(nil)

func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type produceResponse struct {
	Artifact       json.RawMessage    `json:"artifact"`
	QualityMetrics map[string]float64 `json:"quality_metrics"`
}

func (c *Client) Produce(ctx context.Context, request map[string]any) (*engine.Artifact, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pipeline request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("pipeline returned %d: %s", resp.StatusCode, string(data))
	}

	var out produceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline response: %w", err)
	}
	if len(out.Artifact) == 0 {
		return nil, fmt.Errorf("pipeline returned an empty artifact")
	}

	return &engine.Artifact{
		Payload:        out.Artifact,
		QualityMetrics: out.QualityMetrics,
	}, nil
}
