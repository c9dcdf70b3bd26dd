// Package oracle queries the remote-metadata lookup service that maps
// a tool-index identifier to a concrete clone URL, commit, and
// version. Failure is always non-fatal: callers fall back to the
// default github.com/<id>.git URL.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Metadata is what the oracle returns for a resolved index id.
type Metadata struct {
	CloneURL string `json:"clone_url"`
	Commit   string `json:"commit"`
	Version  string `json:"version"`
}

// Client queries a configured oracle endpoint with a single HTTP
// request (10-second timeout, no retry) per lookup.
type Client struct {
	Endpoint   string
	HTTPClient *http.Client
}

// New creates a Client. If endpoint is empty, Resolve always falls
// back immediately without making a request.
func New(endpoint string) *Client {
	return &Client{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type lookupRequest struct {
	IndexID      string `json:"index_id"`
	IndexVersion string `json:"index_version,omitempty"`
}

// Resolve looks up metadata for indexID (optionally pinned to
// indexVersion). On any failure — network error, non-2xx status,
// malformed body, empty clone_url — it returns Metadata holding only
// the fallback URL; Resolve has no error result, so failure is never
// fatal to the caller.
func (c *Client) Resolve(ctx context.Context, indexID, indexVersion string) Metadata {
	fallback := Metadata{CloneURL: fmt.Sprintf("https://github.com/%s.git", indexID)}

	if c == nil || c.Endpoint == "" {
		return fallback
	}

	body, err := json.Marshal(lookupRequest{IndexID: indexID, IndexVersion: indexVersion})
	if err != nil {
		return fallback
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fallback
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fallback
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fallback
	}

	var meta Metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return fallback
	}
	if meta.CloneURL == "" {
		return fallback
	}
	return meta
}
