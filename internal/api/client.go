package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client provides HTTP client functionality for the Mirror Play API
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{} // concurrency-limiting semaphore

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	limitHits       uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains API client configuration
type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	LimitHits       uint64        `json:"limit_hits"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// errorBody is the server's error envelope
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// NewClient creates a new Mirror Play API client
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Transcribe submits a base64-encoded recording and returns the transcript
func (c *Client) Transcribe(ctx context.Context, req *TranscribeRequest) (*TranscribeResponse, error) {
	var resp TranscribeResponse
	if err := c.call(ctx, http.MethodPost, "/api/transcribe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitPractice submits a recorded practice take for server-side scoring
func (c *Client) SubmitPractice(ctx context.Context, req *PracticeSubmission) (*PracticeResult, error) {
	var resp PracticeResult
	if err := c.call(ctx, http.MethodPost, "/api/practice/submit", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RespondRehearsal sends one rehearsal turn and returns the scored reply
func (c *Client) RespondRehearsal(ctx context.Context, req *RehearsalTurn) (*RehearsalReply, error) {
	var resp RehearsalReply
	if err := c.call(ctx, http.MethodPost, "/api/rehearsal/respond", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateDuoSession creates a new duo-practice session as host
func (c *Client) CreateDuoSession(ctx context.Context, scenarioID string) (*DuoSession, error) {
	body := map[string]string{"scenarioId": scenarioID}
	var resp DuoSession
	if err := c.call(ctx, http.MethodPost, "/api/duo/sessions", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JoinDuoSession joins an invited duo-practice session as partner
func (c *Client) JoinDuoSession(ctx context.Context, sessionID string) (*DuoSession, error) {
	var resp DuoSession
	path := fmt.Sprintf("/api/duo/sessions/%s/join", sessionID)
	if err := c.call(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDuoSession fetches the current state of a duo-practice session
func (c *Client) GetDuoSession(ctx context.Context, sessionID string) (*DuoSession, error) {
	var resp DuoSession
	path := fmt.Sprintf("/api/duo/sessions/%s", sessionID)
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PostDuoMessage submits one turn to a duo-practice session and returns the
// updated session state
func (c *Client) PostDuoMessage(ctx context.Context, sessionID, text string) (*DuoSession, error) {
	body := map[string]string{"text": text}
	var resp DuoSession
	path := fmt.Sprintf("/api/duo/sessions/%s/messages", sessionID)
	if err := c.call(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CompleteDuoSession marks a duo-practice session complete
func (c *Client) CompleteDuoSession(ctx context.Context, sessionID string) (*DuoSession, error) {
	var resp DuoSession
	path := fmt.Sprintf("/api/duo/sessions/%s/complete", sessionID)
	if err := c.call(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetProgress fetches the user's XP, streak, and subscription tier
func (c *Client) GetProgress(ctx context.Context) (*Progress, error) {
	var resp Progress
	if err := c.call(ctx, http.MethodGet, "/api/progress", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// call performs a request with concurrency limiting and a retry loop using
// exponential backoff. Non-retryable failures (client errors, the daily cap)
// break out immediately.
func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if backoff > 15*time.Second {
				backoff = 15 * time.Second
			}

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.doRequest(ctx, method, path, body, out)
		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			return nil
		}

		lastErr = err

		if !IsRetryable(err) {
			break
		}
	}

	c.incrementFailedRequests()
	return lastErr
}

// doRequest performs a single JSON HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	httpReq.Header.Set("User-Agent", "mirrorplay-client/1.0")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.parseError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response JSON: %w", err)
		}
	}

	return nil
}

// parseError converts a failed response into the client error taxonomy
func (c *Client) parseError(statusCode int, body []byte) error {
	var parsed errorBody
	_ = json.Unmarshal(body, &parsed)

	message := parsed.Message
	if message == "" {
		message = parsed.Error
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
	}

	if parsed.Code == codeLimitReached || (statusCode == 429 && strings.Contains(message, "daily")) {
		c.incrementLimitHits()
		return fmt.Errorf("%w: %s", ErrDailyLimit, message)
	}

	return &APIError{
		StatusCode: statusCode,
		Code:       parsed.Code,
		Message:    message,
	}
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) incrementLimitHits() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limitHits++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		LimitHits:       c.limitHits,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Close waits for all in-flight requests to drain
func (c *Client) Close() error {
	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}
	return nil
}
