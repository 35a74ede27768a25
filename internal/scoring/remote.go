package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RemoteScorer posts feature vectors to a model server.
type RemoteScorer struct {
	url            string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

type remoteRequest struct {
	Features []float64 `json:"features"`
}

type remoteResponse struct {
	Probability *float64 `json:"probability"`
}

// NewRemoteScorer creates a scorer for the model server at url.
func NewRemoteScorer(url string, timeout time.Duration, maxRetries int, retryDelayBase time.Duration) (*RemoteScorer, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: remote model URL is required", ErrStartup)
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &RemoteScorer{
		url:            url,
		httpClient:     &http.Client{Timeout: timeout},
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// PredictProba implements Scorer.
func (c *RemoteScorer) PredictProba(ctx context.Context, x []float64) (float64, error) {
	body, err := json.Marshal(remoteRequest{Features: x})
	if err != nil {
		return 0, fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.doRequest(ctx, body)
	if err != nil {
		return 0, fmt.Errorf("failed to call model server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Probability == nil {
		return 0, fmt.Errorf("response has no probability")
	}
	return *out.Probability, nil
}

// doRequest performs the POST with linear-backoff retry on transport errors and 5xx.
func (c *RemoteScorer) doRequest(ctx context.Context, body []byte) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if err != nil {
			lastErr = err
		} else {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
