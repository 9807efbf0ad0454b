// Package client provides an HTTP client for a FHIR REST server (such as
// HAPI FHIR). It implements the canonical-lookup and id-lookup capabilities
// the packaging core depends on, plus the CRUD and search operations the
// HTTP API passes through.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gofhir/sdcforms/canonical"
	"github.com/gofhir/sdcforms/model"
	"github.com/gofhir/sdcforms/service"
)

// DefaultTimeout for HTTP requests against the FHIR server.
const DefaultTimeout = 30 * time.Second

// Client is a FHIR REST client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *log.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithLogger sets the logger. By default the client is silent.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a FHIR client for the given base URL
// (e.g. "http://hapi-fhir:8080/fhir").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// searchResult is the searchset bundle shape returned by FHIR search.
type searchResult struct {
	Total int `json:"total"`
	Entry []struct {
		Resource json.RawMessage `json:"resource"`
	} `json:"entry"`
}

// ResolveCanonical implements service.CanonicalResolver against the FHIR
// search API. A versioned reference queries url and version exactly; an
// unversioned reference selects the most recently updated active resource.
// Both a zero total and a non-empty total with an empty entry list count
// as absent.
func (c *Client) ResolveCanonical(ctx context.Context, kind, ref string) (*model.Resource, error) {
	parsed := canonical.Parse(ref)

	params := url.Values{}
	params.Set("url", parsed.URL)
	if parsed.Versioned() {
		params.Set("version", parsed.Version)
	} else {
		params.Set("status", "active")
		params.Set("_sort", "-_lastUpdated")
		params.Set("_count", "1")
	}

	raw, err := c.get(ctx, "/"+kind, params)
	if err != nil {
		return nil, err
	}

	var result searchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode search result: %w", err)
	}
	if result.Total == 0 || len(result.Entry) == 0 {
		return nil, service.ErrNotFound
	}

	res, err := model.ParseResource(result.Entry[0].Resource)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s %s: %w", kind, ref, err)
	}
	return res, nil
}

// GetResource implements service.ResourceGetter. An HTTP 404 maps to
// service.ErrNotFound.
func (c *Client) GetResource(ctx context.Context, kind, id string) (*model.Resource, error) {
	raw, err := c.get(ctx, fmt.Sprintf("/%s/%s", kind, id), nil)
	if err != nil {
		return nil, err
	}

	res, err := model.ParseResource(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s/%s: %w", kind, id, err)
	}
	return res, nil
}

// Search performs a FHIR search and returns the raw searchset bundle.
func (c *Client) Search(ctx context.Context, kind string, params url.Values) (json.RawMessage, error) {
	return c.get(ctx, "/"+kind, params)
}

// Create stores a new resource and returns the server's copy.
func (c *Client) Create(ctx context.Context, kind string, resource json.RawMessage) (json.RawMessage, error) {
	return c.send(ctx, http.MethodPost, "/"+kind, resource)
}

// Update replaces the resource with the given id and returns the server's
// copy. An HTTP 404 maps to service.ErrNotFound.
func (c *Client) Update(ctx context.Context, kind, id string, resource json.RawMessage) (json.RawMessage, error) {
	return c.send(ctx, http.MethodPut, fmt.Sprintf("/%s/%s", kind, id), resource)
}

// Delete removes the resource with the given id. An HTTP 404 maps to
// service.ErrNotFound.
func (c *Client) Delete(ctx context.Context, kind, id string) error {
	_, err := c.send(ctx, http.MethodDelete, fmt.Sprintf("/%s/%s", kind, id), nil)
	return err
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/fhir+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", u, err)
	}
	defer resp.Body.Close()

	return c.readBody(resp, u)
}

func (c *Client) send(ctx context.Context, method, path string, body json.RawMessage) (json.RawMessage, error) {
	u := c.baseURL + path

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/fhir+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/fhir+json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", u, err)
	}
	defer resp.Body.Close()

	return c.readBody(resp, u)
}

func (c *Client) readBody(resp *http.Response, u string) (json.RawMessage, error) {
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, service.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("fhir server returned error", "url", u, "status", resp.StatusCode)
		return nil, fmt.Errorf("fhir server returned status %d for %s", resp.StatusCode, u)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", u, err)
	}
	return data, nil
}

var _ service.Store = (*Client)(nil)
