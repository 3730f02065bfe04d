// Package hypixel is the REST client for the Hypixel SkyBlock bazaar
// API, the engine's only upstream data source.
package hypixel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

const (
	// DefaultBaseURL is the Hypixel API root.
	DefaultBaseURL = "https://api.hypixel.net"

	bazaarPath = "/v2/skyblock/bazaar"
)

// Client is the bazaar API client. It keeps no state between calls; the
// poller carries the lastUpdated watermark for conditional fetches.
type Client struct {
	baseURL    string
	apiKey     string
	side       Side
	httpClient *http.Client
}

// NewClient creates a bazaar client. baseURL defaults to DefaultBaseURL
// and side to SideBuy when left empty. The API key is optional; the
// bazaar endpoint answers anonymous requests at a lower rate limit.
func NewClient(baseURL, apiKey string, side Side) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if side == "" {
		side = SideBuy
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		side:    side,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchAll fetches the complete bazaar and maps every product to a
// snapshot of the configured side, sorted by product ID.
func (c *Client) FetchAll(ctx context.Context) (domain.SnapshotBatch, error) {
	body, err := c.doGet(ctx, bazaarPath)
	if err != nil {
		return domain.SnapshotBatch{}, fmt.Errorf("hypixel: fetch bazaar: %w", err)
	}

	var resp APIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.SnapshotBatch{}, fmt.Errorf("hypixel: decode bazaar: %w", err)
	}
	if !resp.Success {
		return domain.SnapshotBatch{}, fmt.Errorf("hypixel: api error: %s", resp.Cause)
	}

	at := time.UnixMilli(resp.LastUpdated).UTC()
	out := domain.SnapshotBatch{
		LastUpdated: resp.LastUpdated,
		At:          at,
		Snapshots:   make([]domain.Snapshot, 0, len(resp.Products)),
	}
	for _, p := range resp.Products {
		out.Snapshots = append(out.Snapshots, p.ToSnapshot(c.side, at))
	}
	sort.Slice(out.Snapshots, func(i, j int) bool {
		return out.Snapshots[i].ProductID < out.Snapshots[j].ProductID
	})
	return out, nil
}

// FetchSince fetches the bazaar and reports domain.ErrNotModified when
// the API has not published a newer state than the given watermark.
func (c *Client) FetchSince(ctx context.Context, lastUpdated int64) (domain.SnapshotBatch, error) {
	batch, err := c.FetchAll(ctx)
	if err != nil {
		return domain.SnapshotBatch{}, err
	}
	if batch.LastUpdated <= lastUpdated {
		return domain.SnapshotBatch{}, fmt.Errorf("hypixel: bazaar at %d: %w", batch.LastUpdated, domain.ErrNotModified)
	}
	return batch, nil
}

// doGet sends a GET request to the bazaar API.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotModified:
		return domain.ErrNotModified
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUnavailable, statusCode, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
