package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Dannyyapyap/stt-be-fe/internal/audio"
)

// Client sends normalized audio to a remote speech-recognition endpoint and
// manages the model's cold-start protocol: HTTP 503 means "model loading,
// retry later" and is handled with exponential backoff inside WarmUp.
//
// Warmth is advisory. A warm client still attempts transcription directly,
// and a cold one is not blocked; the flag only feeds monitoring.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger

	// sleep is the backoff wait, injectable so tests can verify the exact
	// schedule without real delays. It must honour ctx cancellation.
	sleep func(ctx context.Context, d time.Duration) error

	warm bool

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	warmUpAttempts  uint64

	mu sync.RWMutex
}

// Config contains transcription client configuration
type Config struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Result represents a transcription returned by the remote model. Raw keeps
// the unprocessed response body for diagnostics.
type Result struct {
	Text string          `json:"text"`
	Raw  json.RawMessage `json:"-"`
}

// ClientStats represents client statistics
type ClientStats struct {
	Warm            bool    `json:"warm"`
	TotalRequests   uint64  `json:"total_requests"`
	SuccessRequests uint64  `json:"success_requests"`
	FailedRequests  uint64  `json:"failed_requests"`
	SuccessRate     float64 `json:"success_rate"`
	WarmUpAttempts  uint64  `json:"warm_up_attempts"`
}

// NewClient creates a new transcription client
func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxRetries <= 0 {
		config.MaxRetries = 5
	}

	if config.RetryDelay <= 0 {
		config.RetryDelay = 2 * time.Second
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
		sleep:      sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WarmUp probes the model endpoint with a short silent WAV until it reports
// ready. 503 responses and transport errors back off with
// RetryDelay * 2^attempt and retry; any other unexpected status aborts
// immediately. Returns false when retries are exhausted. A false result is
// non-fatal to the service, which continues degraded.
func (c *Client) WarmUp(ctx context.Context) bool {
	c.logger.Info("warming up transcription model",
		slog.String("endpoint", c.config.Endpoint),
		slog.Int("max_retries", c.config.MaxRetries),
	)

	probe, err := silentProbe()
	if err != nil {
		c.logger.Error("failed to build warm-up probe", slog.String("error", err.Error()))
		return false
	}

	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		c.countWarmUpAttempt()

		status, body, err := c.post(ctx, probe)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			c.logger.Warn("warm-up attempt failed",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			if !c.backoff(ctx, attempt) {
				return false
			}
			continue
		}

		switch status {
		case http.StatusOK:
			c.setWarm(true)
			c.logger.Info("transcription model ready")
			return true

		case http.StatusServiceUnavailable:
			c.logger.Info("model still loading",
				slog.Int("attempt", attempt+1),
				slog.Duration("wait", c.backoffDelay(attempt)),
			)
			if !c.backoff(ctx, attempt) {
				return false
			}

		default:
			c.logger.Error("unexpected status during warm-up",
				slog.Int("status", status),
				slog.String("body", truncate(body, 200)),
			)
			return false
		}
	}

	c.logger.Error("failed to warm up model",
		slog.Int("attempts", c.config.MaxRetries),
	)
	return false
}

// Transcribe sends normalized audio bytes to the model endpoint. A single
// 503 response triggers one full warm-up cycle followed by exactly one
// retried call; there is no further retrying, which bounds worst-case
// request latency to one warm-up cycle's backoff.
func (c *Client) Transcribe(ctx context.Context, wavData []byte) (*Result, error) {
	c.countRequest()

	status, body, err := c.post(ctx, wavData)
	if err != nil {
		c.countFailure()
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}

	if status == http.StatusServiceUnavailable {
		c.setWarm(false)
		c.logger.Debug("model not ready, starting warm-up sequence")
		c.WarmUp(ctx)

		status, body, err = c.post(ctx, wavData)
		if err != nil {
			c.countFailure()
			return nil, fmt.Errorf("transcription retry failed: %w", err)
		}
	}

	if status != http.StatusOK {
		c.countFailure()
		return nil, fmt.Errorf("transcription failed with HTTP %d: %s", status, truncate(body, 200))
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		c.countFailure()
		return nil, fmt.Errorf("failed to parse transcription response: %w", err)
	}
	result.Raw = json.RawMessage(body)

	c.setWarm(true)
	c.countSuccess()
	return &result, nil
}

// post performs a single raw-body request to the model endpoint
func (c *Client) post(ctx context.Context, data []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Accept", "application/json")
	// Without a token the remote endpoint decides whether to reject
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, body, nil
}

// backoffDelay returns the wait before the attempt after `attempt`
// (0-indexed): RetryDelay * 2^attempt
func (c *Client) backoffDelay(attempt int) time.Duration {
	return c.config.RetryDelay * time.Duration(1<<uint(attempt))
}

func (c *Client) backoff(ctx context.Context, attempt int) bool {
	return c.sleep(ctx, c.backoffDelay(attempt)) == nil
}

// silentProbe builds one second of silent 16 kHz mono PCM-16 WAV
func silentProbe() ([]byte, error) {
	return audio.EncodeWAV(make([]int16, 16000), 16000)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

// Warm reports whether the last remote call succeeded
func (c *Client) Warm() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.warm
}

func (c *Client) setWarm(warm bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warm = warm
}

func (c *Client) countRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) countSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) countFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) countWarmUpAttempt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warmUpAttempts++
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
		Warm:            c.warm,
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		WarmUpAttempts:  c.warmUpAttempts,
	}
}
