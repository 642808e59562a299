// Package fal implements the provider adapter for fal.ai-hosted models.
// Generation is a single synchronous call: the request blocks until the
// model finishes and the response carries the video URL inline.
package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vidarena/generation-worker/internal/provider"
)

// Static errors for fal client construction.
var (
	// ErrAPIKeyRequired is returned when no API key is provided.
	ErrAPIKeyRequired = errors.New("fal: API key is required")
)

// defaultTimeout bounds the blocking generation call. Fal holds the
// connection open for the whole generation, so this is generous.
const defaultTimeout = 15 * time.Minute

// Name is the registry name of the fal provider.
const Name = "fal"

// Client is the fal provider adapter.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBaseURL overrides the fal API base URL.
func WithBaseURL(url string) Option {
	return func(cl *Client) {
		cl.baseURL = url
	}
}

// NewClient creates a fal adapter. The API key is required; its absence is
// a construction error, never a per-job failure.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	c := &Client{
		apiKey:     apiKey,
		baseURL:    "https://fal.run",
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the registry name.
func (c *Client) Name() string {
	return Name
}

// GenerateVideo issues one blocking generation call against the endpoint
// (a fal model path such as "fal-ai/kling-video/v1/standard/text-to-video").
// Vendor-side failures are encoded in the result, not returned as errors.
func (c *Client) GenerateVideo(ctx context.Context, endpoint string, req provider.Request) provider.Result {
	start := time.Now()

	payload := buildPayload(req)
	body, err := json.Marshal(payload)
	if err != nil {
		return provider.Failure(fmt.Sprintf("fal: marshal request: %v", err), time.Since(start))
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, endpoint)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return provider.Failure(fmt.Sprintf("fal: create request: %v", err), time.Since(start))
	}
	httpReq.Header.Set("Authorization", "Key "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return provider.Failure(fmt.Sprintf("fal: request failed: %v", err), time.Since(start))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Failure(fmt.Sprintf("fal: read response: %v", err), time.Since(start))
	}

	elapsed := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res := provider.Failure(fmt.Sprintf("fal: request failed with status %d: %s", resp.StatusCode, truncate(respBody, 512)), elapsed)
		res.RawResponse = json.RawMessage(respBody)
		return res
	}

	var parsed map[string]any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return provider.Failure(fmt.Sprintf("fal: unmarshal response: %v", err), elapsed)
	}

	result := provider.Result{
		GenerationTime: elapsed,
		RawResponse:    json.RawMessage(respBody),
		RequestID:      stringAt(parsed, "request_id"),
	}

	videoURL, ok := extractVideoURL(parsed)
	if !ok {
		result.Error = "fal: no video URL in response"
		return result
	}

	result.Success = true
	result.VideoURL = videoURL
	result.DurationSeconds = numberAt(parsed, "video", "duration")
	result.Width = int(numberAt(parsed, "video", "width"))
	result.Height = int(numberAt(parsed, "video", "height"))
	return result
}

// buildPayload merges the vendor-agnostic fields with the extra-parameter
// bag. Extra is applied last so it overrides the mapped fields.
func buildPayload(req provider.Request) map[string]any {
	payload := map[string]any{
		"prompt": req.Prompt,
	}
	if req.SourceImageURL != "" {
		payload["image_url"] = req.SourceImageURL
	}
	if req.DurationSeconds > 0 {
		payload["duration"] = req.DurationSeconds
	}
	if req.AspectRatio != "" {
		payload["aspect_ratio"] = req.AspectRatio
	}
	if req.Seed != nil {
		payload["seed"] = *req.Seed
	}
	for k, v := range req.Extra {
		payload[k] = v
	}
	return payload
}

// videoURLPaths are the known shapes fal models use for the video URL.
// First present wins; the order is historical and unverified against every
// model contract.
var videoURLPaths = [][]string{
	{"video", "url"},
	{"video_url"},
	{"output", "video_url"},
	{"url"},
}

// extractVideoURL tries each known key path in order.
func extractVideoURL(parsed map[string]any) (string, bool) {
	for _, path := range videoURLPaths {
		if url := stringAt(parsed, path...); url != "" {
			return url, true
		}
	}
	return "", false
}

// stringAt walks nested maps along the key path and returns the string leaf,
// or "" when any hop is missing or of the wrong type.
func stringAt(m map[string]any, path ...string) string {
	v, ok := valueAt(m, path...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// numberAt walks nested maps along the key path and returns the numeric
// leaf, or 0 when missing.
func numberAt(m map[string]any, path ...string) float64 {
	v, ok := valueAt(m, path...)
	if !ok {
		return 0
	}
	n, _ := v.(float64)
	return n
}

func valueAt(m map[string]any, path ...string) (any, bool) {
	var current any = m
	for _, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// truncate caps vendor error bodies persisted into the error string.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ provider.Provider = (*Client)(nil)
