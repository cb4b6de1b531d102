package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/contentmill/contentmill/internal/engine"
)

// AdvisorClient calls the optional feedback advisor service.
type AdvisorClient struct {
	url        string
	httpClient *http.Client
}

var _ engine.Advisor = (*AdvisorClient)(nil)

func NewAdvisorClient(url string, timeout time.Duration) *AdvisorClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AdvisorClient{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type recommendResponse struct {
	Overrides  map[string]any `json:"overrides"`
	Confidence float64        `json:"confidence"`
}

func (c *AdvisorClient) Recommend(ctx context.Context, request map[string]any) (*engine.Recommendation, error) {
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
		return nil, fmt.Errorf("advisor request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("advisor returned %d", resp.StatusCode)
	}

	var out recommendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode advisor response: %w", err)
	}

	return &engine.Recommendation{
		Overrides:  out.Overrides,
		Confidence: out.Confidence,
	}, nil
}
