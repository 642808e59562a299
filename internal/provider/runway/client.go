package runway

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

// Static errors for Runway client operations.
var (
	// ErrAPIKeyRequired is returned when no API key is provided.
	ErrAPIKeyRequired = errors.New("runway: API key is required")
	// ErrNoTaskIDReturned is returned when task creation yields no task ID.
	ErrNoTaskIDReturned = errors.New("runway: create task: no task ID returned")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("runway: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("runway: rate limited")
	// ErrRequestFailed is returned when a request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("runway: request failed")
)

// Polling bounds: 120 polls at 5s is a hard 10 minute ceiling per task.
const (
	defaultPollInterval = 5 * time.Second
	defaultMaxPolls     = 120
	apiVersion          = "2024-11-06"
)

// Name is the registry name of the Runway provider.
const Name = "runway"

// Client is the Runway provider adapter.
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	maxPolls     int
	maxRetries   int
	baseBackoff  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBaseURL overrides the Runway API base URL.
func WithBaseURL(url string) Option {
	return func(cl *Client) {
		cl.baseURL = url
	}
}

// WithPollInterval sets the delay between status polls.
func WithPollInterval(d time.Duration) Option {
	return func(cl *Client) {
		cl.pollInterval = d
	}
}

// WithMaxPolls sets the poll attempt ceiling.
func WithMaxPolls(n int) Option {
	return func(cl *Client) {
		cl.maxPolls = n
	}
}

// WithMaxRetries sets the per-request retry budget for transient failures.
func WithMaxRetries(n int) Option {
	return func(cl *Client) {
		cl.maxRetries = n
	}
}

// NewClient creates a Runway adapter. The API key is required; its absence
// is a construction error, never a per-job failure.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	c := &Client{
		apiKey:       apiKey,
		baseURL:      "https://api.dev.runwayml.com",
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: defaultPollInterval,
		maxPolls:     defaultMaxPolls,
		maxRetries:   3,
		baseBackoff:  1 * time.Second,
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

// GenerateVideo creates a Runway task for the endpoint (a model name such as
// "gen3a_turbo") and polls it until a terminal status or the poll ceiling.
// Vendor-side failures and timeouts are encoded in the result, not returned
// as errors.
func (c *Client) GenerateVideo(ctx context.Context, endpoint string, req provider.Request) provider.Result {
	start := time.Now()

	taskID, raw, err := c.createTask(ctx, endpoint, req)
	if err != nil {
		res := provider.Failure(fmt.Sprintf("runway: %v", err), time.Since(start))
		res.RawResponse = raw
		return res
	}

	return c.pollUntilTerminal(ctx, taskID, start)
}

// createTask maps the vendor-agnostic request into Runway field names and
// submits it. Image presence selects the image-to-video task route.
func (c *Client) createTask(ctx context.Context, model string, req provider.Request) (string, json.RawMessage, error) {
	body := createTaskRequest{
		Model:      model,
		PromptText: req.Prompt,
		Ratio:      translateRatio(req.AspectRatio),
		Duration:   req.DurationSeconds,
		Seed:       req.Seed,
	}
	route := "/v1/text_to_video"
	if req.SourceImageURL != "" {
		body.PromptImage = req.SourceImageURL
		route = "/v1/image_to_video"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", nil, fmt.Errorf("marshal request: %w", err)
	}

	var resp createTaskResponse
	raw, err := c.doRequestWithRetry(ctx, http.MethodPost, c.baseURL+route, payload, &resp)
	if err != nil {
		return "", raw, err
	}

	if resp.ID == "" {
		if resp.Error != "" {
			return "", raw, fmt.Errorf("create task: %s", resp.Error)
		}
		return "", raw, ErrNoTaskIDReturned
	}
	return resp.ID, raw, nil
}

// pollUntilTerminal polls the task until SUCCEEDED/FAILED or the attempt
// ceiling. First terminal status wins; exceeding the ceiling is a timeout
// failure, never an indefinite wait.
func (c *Client) pollUntilTerminal(ctx context.Context, taskID string, start time.Time) provider.Result {
	result := provider.Result{RequestID: taskID}

	for attempt := 0; attempt < c.maxPolls; attempt++ {
		select {
		case <-ctx.Done():
			result.GenerationTime = time.Since(start)
			result.Error = fmt.Sprintf("runway: polling cancelled: %v", ctx.Err())
			return result
		case <-time.After(c.pollInterval):
		}

		var task taskResponse
		raw, err := c.doRequestWithRetry(ctx, http.MethodGet, fmt.Sprintf("%s/v1/tasks/%s", c.baseURL, taskID), nil, &task)
		if err != nil {
			result.GenerationTime = time.Since(start)
			result.RawResponse = raw
			result.Error = fmt.Sprintf("runway: poll task: %v", err)
			return result
		}
		result.RawResponse = raw

		switch task.Status {
		case StatusSucceeded:
			result.GenerationTime = time.Since(start)
			if len(task.Output) == 0 {
				result.Error = "runway: task succeeded but returned no output"
				return result
			}
			result.Success = true
			result.VideoURL = task.Output[0]
			return result
		case StatusFailed, StatusCancelled:
			result.GenerationTime = time.Since(start)
			msg := task.Failure
			if msg == "" {
				msg = string(task.Status)
			}
			result.Error = fmt.Sprintf("runway: task failed: %s", msg)
			return result
		}
	}

	result.GenerationTime = time.Since(start)
	result.Error = fmt.Sprintf("runway: timed out after %d polls (%s)", c.maxPolls, time.Duration(c.maxPolls)*c.pollInterval)
	return result
}

// doRequestWithRetry performs an HTTP request with exponential backoff on
// transient failures (network errors, 5xx, 429).
func (c *Client) doRequestWithRetry(ctx context.Context, method, url string, body []byte, result any) (json.RawMessage, error) {
	var lastErr error
	var lastRaw json.RawMessage
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return lastRaw, fmt.Errorf("context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		raw, err := c.doRequest(ctx, method, url, body, result)
		if err == nil {
			return raw, nil
		}
		if raw != nil {
			lastRaw = raw
		}
		if !isRetryable(err) {
			return lastRaw, err
		}
		lastErr = err
	}

	return lastRaw, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request and decodes the JSON response.
func (c *Client) doRequest(ctx context.Context, method, url string, body []byte, result any) (json.RawMessage, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Runway-Version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return respBody, &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, respBody)}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return respBody, &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, respBody)}
		}
		return respBody, fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return respBody, fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return respBody, nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

var _ provider.Provider = (*Client)(nil)
