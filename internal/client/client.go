// Package client is the HTTP client for the docsage server. It speaks the
// same JSON wire format the server emits, including the data-only SSE chat
// stream, and exposes the filter and document management endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sentinel errors callers can match with errors.Is.
var (
	// ErrRejected means the server refused the request before streaming
	// began (HTTP 4xx).
	ErrRejected = errors.New("request rejected")

	// ErrDocumentNotFound means the named document has no chunks.
	ErrDocumentNotFound = errors.New("document not found")
)

// DocumentInfo is one indexed document as reported by the server.
type DocumentInfo struct {
	Name       string `json:"name"`
	ChunkCount int64  `json:"chunkCount"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client. The default has no
// timeout because chat responses stream indefinitely; callers bound
// individual requests with context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpc = hc
	}
}

// Client talks to one docsage server. Safe for concurrent use.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
}

// New creates a Client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Filter reports whether document filtering is enabled on the server.
func (c *Client) Filter(ctx context.Context) (bool, error) {
	var out struct {
		FilterEnabled bool `json:"filterEnabled"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/filter", nil, &out); err != nil {
		return false, fmt.Errorf("reading filter state: %w", err)
	}
	return out.FilterEnabled, nil
}

// SetFilter updates the server-side filter flag and returns the new state.
func (c *Client) SetFilter(ctx context.Context, enabled bool) (bool, error) {
	in := struct {
		CheckedFilterOption bool `json:"checkedFilterOption"`
	}{CheckedFilterOption: enabled}

	var out struct {
		FilterEnabled bool `json:"filterEnabled"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/filter", in, &out); err != nil {
		return false, fmt.Errorf("updating filter state: %w", err)
	}
	return out.FilterEnabled, nil
}

// Documents lists the indexed documents with their chunk counts.
func (c *Client) Documents(ctx context.Context) ([]DocumentInfo, error) {
	var out struct {
		Documents []DocumentInfo `json:"documents"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/documents", nil, &out); err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return out.Documents, nil
}

// DeleteDocument removes every chunk of the named document and returns the
// number of chunks deleted. An unknown name yields ErrDocumentNotFound.
func (c *Client) DeleteDocument(ctx context.Context, name string) (int64, error) {
	var out struct {
		Deleted int64 `json:"deleted"`
	}
	path := "/api/documents/" + url.PathEscape(name)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, &out); err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("deleting document %q: %w", name, err)
	}
	return out.Deleted, nil
}

// doJSON issues one JSON request and decodes the response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, ErrDocumentNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: %s: %w", method, path, serverMessage(resp.Body), httpStatusErr(resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// serverMessage extracts the {"message": ...} body the server sends with
// error statuses, falling back to the raw body.
func serverMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "no response body"
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(raw))
}

// httpStatusErr folds client errors into ErrRejected so callers can
// distinguish a refusal from a transport failure.
func httpStatusErr(code int) error {
	if code >= 400 && code < 500 {
		return fmt.Errorf("%w (HTTP %d)", ErrRejected, code)
	}
	return fmt.Errorf("HTTP %d", code)
}
