package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"tripfare/pkg/logger"
	"tripfare/pkg/ratelimit"
)

// Limiter endpoint names.
const (
	EndpointSearch  = "search"
	EndpointResults = "results"
)

// Client is the seam the search engine polls through; tests inject fakes here.
type Client interface {
	StartSearch(ctx context.Context, req SearchRequest) (string, error)
	FetchResults(ctx context.Context, searchID string) (*ResultsPage, error)
}

type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    *ratelimit.EndpointLimiter
	logger     logger.Client
}

func NewHTTPClient(httpClient *http.Client, baseURL string, limiter *ratelimit.EndpointLimiter, logger logger.Client) *HTTPClient {
	return &HTTPClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		limiter:    limiter,
		logger:     logger,
	}
}

// StartSearch initiates an asynchronous search and returns the provider's
// session token. Results arrive incrementally through FetchResults.
func (c *HTTPClient) StartSearch(ctx context.Context, req SearchRequest) (string, error) {
	var resp searchResponse
	if err := c.post(ctx, EndpointSearch, "/api/flights/search", req, &resp); err != nil {
		return "", err
	}

	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "provider rejected search"
		}
		return "", fmt.Errorf("pricing: search failed: %s", msg)
	}
	if resp.Data.SearchID == "" {
		return "", fmt.Errorf("pricing: search succeeded without a search_id")
	}

	return resp.Data.SearchID, nil
}

// FetchResults retrieves the next batch for a running search. Batches may
// overlap with earlier ones; the caller is responsible for deduplication.
func (c *HTTPClient) FetchResults(ctx context.Context, searchID string) (*ResultsPage, error) {
	body := map[string]string{"search_id": searchID}

	var resp resultsResponse
	if err := c.post(ctx, EndpointResults, "/api/flights/results", body, &resp); err != nil {
		return nil, err
	}

	return &ResultsPage{
		Trips:    resp.Data.Trips,
		Complete: strings.EqualFold(resp.CompleteData, "true"),
	}, nil
}

func (c *HTTPClient) post(ctx context.Context, endpoint, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, endpoint); err != nil {
			return fmt.Errorf("pricing: rate limiter: %w", err)
		}
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("pricing: failed to marshal request: %w", err)
	}

	url := c.baseURL + path
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("pricing: failed to build request: %w", err)
	}
	r.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(r)
	if err != nil {
		return fmt.Errorf("pricing: external api call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pricing: external api returned non-200 status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.Error("failed to decode pricing response",
			logger.Field{Key: "endpoint", Value: endpoint},
			logger.Field{Key: "err", Value: err},
		)
		return fmt.Errorf("pricing: failed to decode response: %w", err)
	}

	return nil
}
