// Package client is a typed HTTP client for the assessment API.
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

	"github.com/okian/kaushal/internal/domain/identity"
	"github.com/okian/kaushal/internal/domain/types"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 64 * 1024
)

// Client talks to one server. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	userID  string
	role    string
}

// New creates a client for baseURL, e.g. "http://localhost:9080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// HTTP returns the underlying http.Client.
func (c *Client) HTTP() *http.Client { return c.http }

// UploadURL is the multipart ingestion endpoint of an assessment.
func (c *Client) UploadURL(assessmentID string) string {
	return c.baseURL + "/assessments/" + url.PathEscape(assessmentID) + "/upload-video"
}

// Authorize stamps the identity headers onto req.
func (c *Client) Authorize(req *http.Request) {
	if c.userID != "" {
		req.Header.Set(identity.HeaderUserID, c.userID)
	}
	if c.role != "" {
		req.Header.Set(identity.HeaderRole, c.role)
	}
}

// Health checks that /healthz answers 200.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
	}
	return nil
}

// Stats returns the /stats document.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.call(ctx, http.MethodGet, "/stats", nil, &out)
	return out, err
}

func (c *Client) CreateAthlete(ctx context.Context, req types.CreateAthleteRequest) (types.Athlete, error) {
	var out types.Athlete
	err := c.call(ctx, http.MethodPost, "/athletes", req, &out)
	return out, err
}

func (c *Client) GetAthlete(ctx context.Context, id string) (types.Athlete, error) {
	var out types.Athlete
	err := c.call(ctx, http.MethodGet, "/athletes/"+url.PathEscape(id), nil, &out)
	return out, err
}

// ListTestTypes returns the active catalog.
func (c *Client) ListTestTypes(ctx context.Context) ([]types.TestType, error) {
	var out []types.TestType
	err := c.call(ctx, http.MethodGet, "/test-types", nil, &out)
	return out, err
}

func (c *Client) CreateAssessment(ctx context.Context, req types.CreateAssessmentRequest) (types.Assessment, error) {
	var out types.Assessment
	err := c.call(ctx, http.MethodPost, "/assessments", req, &out)
	return out, err
}

// GetAssessment reads the current persisted state of an assessment.
func (c *Client) GetAssessment(ctx context.Context, id string) (types.Assessment, error) {
	var out types.Assessment
	err := c.call(ctx, http.MethodGet, "/assessments/"+url.PathEscape(id), nil, &out)
	return out, err
}

// call sends body as JSON and decodes a 2xx response into out.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode %s %s: %w", method, path, err)
		}
		r = bytes.NewReader(b)
	}
	resp, err := c.do(ctx, method, path, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return DecodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.Authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}
	return resp, nil
}
