// Package fin provides the shipped financial tool bindings: thin HTTP
// wrappers over market-data, regulatory, macro and search vendors, exposed
// through the tools.Tool interface. Each vendor group is registered only
// when its credential is present; a missing credential skips the group
// without failing startup.
package fin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// apiClient is the shared HTTP plumbing for all vendor bindings.
type apiClient struct {
	httpClient *http.Client
	logger     *slog.Logger
}

func newAPIClient(logger *slog.Logger) *apiClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &apiClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// getJSON fetches url and decodes the response body as JSON. Non-2xx
// responses become errors carrying the status code and a body excerpt.
func (c *apiClient) getJSON(ctx context.Context, url string, headers map[string]string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s returned HTTP %d: %s", req.URL.Host, resp.StatusCode, string(body))
	}

	var out any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", req.URL.Host, err)
	}
	return out, nil
}

// postJSON sends a JSON payload and decodes the JSON response.
func (c *apiClient) postJSON(ctx context.Context, url string, payload any, headers map[string]string) (any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post to %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s returned HTTP %d: %s", req.URL.Host, resp.StatusCode, string(body))
	}

	var out any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", req.URL.Host, err)
	}
	return out, nil
}
