// Package intentsource provides a client for the intent indexer API, the
// feed of open cross-chain orders the solver considers for fulfillment.
package intentsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openintent-hq/solver/pkg/logger"
	"github.com/openintent-hq/solver/pkg/models"
)

// APIResponse represents the structure of the indexer response. Deployments
// differ on the envelope key, so all known variants are accepted.
type APIResponse struct {
	Intents    []models.Intent `json:"intents,omitempty"`
	Data       []models.Intent `json:"data,omitempty"`
	Results    []models.Intent `json:"results,omitempty"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalCount int             `json:"total_count"`
	TotalPages int             `json:"total_pages"`
}

// Client fetches open intents from an indexer endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     logger.Logger
}

// New creates an indexer client for the given base endpoint.
func New(endpoint string, log logger.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: createHTTPClient(),
		logger:     log,
	}
}

// FetchOpenIntents gets currently open intents from the indexer.
func (c *Client) FetchOpenIntents(ctx context.Context) ([]models.Intent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/v1/intents?status=open", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build intents request: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open intents: %v", err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Error("Failed to close response body: %v", err)
		}
	}(resp.Body)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	return decodeIntents(bodyBytes)
}

// decodeIntents accepts either a bare array or any of the known envelope
// shapes.
func decodeIntents(bodyBytes []byte) ([]models.Intent, error) {
	var apiResp APIResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		var intents []models.Intent
		if err := json.Unmarshal(bodyBytes, &intents); err != nil {
			return nil, fmt.Errorf("failed to decode intents: %v, body: %s", err, string(bodyBytes))
		}
		return intents, nil
	}

	switch {
	case len(apiResp.Intents) > 0:
		return apiResp.Intents, nil
	case len(apiResp.Data) > 0:
		return apiResp.Data, nil
	case len(apiResp.Results) > 0:
		return apiResp.Results, nil
	}
	return []models.Intent{}, nil
}

// Helper function to create an HTTP client with timeouts
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
