package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/banktalk/internal/common"
	"github.com/Veraticus/banktalk/internal/model"
	"github.com/Veraticus/banktalk/internal/service"
)

const serviceName = "nlp"

// Endpoint paths.
const (
	PathProcessText      = "/process-text"
	PathProcessSmartText = "/process-smart-text"
	PathCompleteAction   = "/complete-action"
	PathHealth           = "/health"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 1 << 20

// Recorder observes classification calls.
type Recorder interface {
	RecordClassification(endpoint string, elapsed time.Duration, err error)
	RecordCacheHit()
}

type nopRecorder struct{}

func (nopRecorder) RecordClassification(string, time.Duration, error) {}
func (nopRecorder) RecordCacheHit()                                   {}

// Config holds configuration for the NLP client.
type Config struct {
	HTTPClient        *http.Client
	Recorder          Recorder
	Logger            *slog.Logger
	Now               func() time.Time
	BaseURL           string
	Timeout           time.Duration
	CacheTTL          time.Duration
	RetryDelay        time.Duration
	RequestsPerMinute int
	MaxRetries        int
}

// Client talks to the NLP classification backend. It implements
// service.Classifier.
type Client struct {
	httpClient *http.Client
	limiter    *tokenBucket
	cache      *responseCache
	recorder   Recorder
	logger     *slog.Logger
	baseURL    string
	retryOpts  common.RetryOptions
}

var _ service.Classifier = (*Client)(nil)

// New creates a client for the backend at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: nlp base url is required", common.ErrMissingConfig)
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("%w: nlp base url %q must be http or https", common.ErrInvalidConfig, base)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	retryOpts := common.DefaultRetryOptions()
	if cfg.MaxRetries > 0 {
		retryOpts.MaxAttempts = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		retryOpts.InitialDelay = cfg.RetryDelay
	}

	return &Client{
		httpClient: httpClient,
		limiter:    newTokenBucket(cfg.RequestsPerMinute),
		cache:      newResponseCache(cfg.CacheTTL, cfg.Now),
		recorder:   cfg.Recorder,
		logger:     cfg.Logger,
		baseURL:    base,
		retryOpts:  retryOpts,
	}, nil
}

type processTextBody struct {
	Text   string `json:"text"`
	UserID string `json:"user_id"`
}

// The backend reads is_new_session as the strings "true" and "false".
type smartTextBody struct {
	UserID       string `json:"user_id"`
	Text         string `json:"text"`
	IsNewSession string `json:"is_new_session"`
}

// ProcessText classifies a single utterance. Identical utterances from the
// same user within the cache TTL are served from the cache.
func (c *Client) ProcessText(ctx context.Context, userID, text string) (*model.ClassificationResponse, error) {
	key := cacheKey(userID, text)
	if resp, ok := c.cache.get(key); ok {
		c.recorder.RecordCacheHit()
		c.logger.Debug("Classification cache hit", "user_id", userID)
		return resp, nil
	}

	var resp *model.ClassificationResponse
	err := common.WithRetry(ctx, func() error {
		var err error
		resp, err = c.call(ctx, PathProcessText, processTextBody{Text: text, UserID: userID})
		return err
	}, c.retryOpts)
	if err != nil {
		return nil, err
	}

	c.cache.set(key, resp)
	return resp, nil
}

// ProcessSmartText classifies an utterance within the user's multi-turn
// exchange. The backend keeps conversation state, so the call is never
// retried.
func (c *Client) ProcessSmartText(ctx context.Context, req service.SmartRequest) (*model.ClassificationResponse, error) {
	return c.call(ctx, PathProcessSmartText, smartTextBody{
		UserID:       req.UserID,
		Text:         req.Text,
		IsNewSession: strconv.FormatBool(req.IsNewSession),
	})
}

// CompleteAction re-classifies a request with the supplied parameters.
func (c *Client) CompleteAction(ctx context.Context, req service.CompletionRequest) (*model.ClassificationResponse, error) {
	if req.Parameters == nil {
		req.Parameters = model.Entities{}
	}

	var resp *model.ClassificationResponse
	err := common.WithRetry(ctx, func() error {
		var err error
		resp, err = c.call(ctx, PathCompleteAction, req)
		return err
	}, c.retryOpts)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Health checks that the backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+PathHealth, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrServiceUnavailable, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		return decodeAPIError(httpResp)
	}
	return nil
}

// Close stops background work.
func (c *Client) Close() {
	c.limiter.stop()
}

func (c *Client) call(ctx context.Context, path string, body any) (resp *model.ClassificationResponse, err error) {
	start := time.Now()
	defer func() {
		c.recorder.RecordClassification(path, time.Since(start), err)
	}()

	if err := c.limiter.wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s request: %w", path, ctx.Err())
		}
		return nil, &common.RetryableError{
			Err:       fmt.Errorf("%s request failed: %w: %w", path, common.ErrServiceUnavailable, err),
			Retryable: true,
		}
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		apiErr := decodeAPIError(httpResp)
		c.logger.Warn("Classification backend returned an error",
			"path", path,
			"status", httpResp.StatusCode,
			"error", apiErr)
		return nil, apiErr
	}

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	resp = &model.ClassificationResponse{}
	if err := json.Unmarshal(raw, resp); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrClassificationFailed, path, err)
	}

	c.logger.Debug("Classification received",
		"path", path,
		"module", resp.ModuleCode,
		"submodule", resp.SubmoduleCode,
		"has_error", resp.Error != "",
		"elapsed", time.Since(start))
	return resp, nil
}

// decodeAPIError turns a non-2xx response into an APIError, reading the
// message from an {"error": ...} or {"detail": ...} body when present.
func decodeAPIError(resp *http.Response) error {
	apiErr := &common.APIError{Service: serviceName, Status: resp.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return apiErr
	}

	var body struct {
		Error  string `json:"error"`
		Detail any    `json:"detail"`
	}
	if json.Unmarshal(raw, &body) == nil {
		switch {
		case body.Error != "":
			apiErr.Message = body.Error
		case body.Detail != nil:
			if s, ok := body.Detail.(string); ok {
				apiErr.Message = s
			} else if b, err := json.Marshal(body.Detail); err == nil {
				apiErr.Message = string(b)
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
