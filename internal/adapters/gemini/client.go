// Package gemini implements the vision-model gateway used to classify and
// extract financial documents. Every call sends the document bytes inline and
// expects a JSON answer back.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	httpinfra "adva/ms_conciliacion_core/internal/infrastructure/http"
	"adva/ms_conciliacion_core/internal/infrastructure/ratelimit"
)

// ErrorCategory classifies a failed model call.
type ErrorCategory string

const (
	// CategoryQuota marks daily-quota exhaustion. Retrying is pointless
	// until the quota resets, so these fail fast.
	CategoryQuota ErrorCategory = "quota"
	// CategoryRetryable marks transient failures worth retrying with backoff.
	CategoryRetryable ErrorCategory = "retryable"
	// CategoryPermanent marks failures that will not improve on retry.
	CategoryPermanent ErrorCategory = "permanent"
)

// ErrQuotaExhausted is returned when the provider reports quota exhaustion.
var ErrQuotaExhausted = errors.New("gemini: daily quota exhausted")

// APIError is a failed call against the model API.
type APIError struct {
	Status   int
	Category ErrorCategory
	Body     string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("gemini: status %d (%s): %s", e.Status, e.Category, body)
}

// Categorize maps an HTTP status and response body to an error category.
// 429 with "quota" in the body means the daily quota ran out; a plain 429 is
// transient rate pressure.
func Categorize(status int, body string) ErrorCategory {
	switch {
	case status == http.StatusTooManyRequests:
		if strings.Contains(strings.ToLower(body), "quota") {
			return CategoryQuota
		}
		return CategoryRetryable
	case status == http.StatusRequestTimeout,
		status == http.StatusInternalServerError,
		status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout:
		return CategoryRetryable
	case status >= 400 && status < 500:
		return CategoryPermanent
	default:
		return CategoryRetryable
	}
}

// Doer abstracts the HTTP client so the traced client can be plugged in.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the gateway configuration.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Client calls the Gemini generateContent API with rate limiting and
// category-aware retries.
type Client struct {
	cfg     Config
	http    Doer
	limiter *ratelimit.SlidingWindow
	log     *slog.Logger

	// test hooks
	sleep  func(context.Context, time.Duration) error
	jitter func() float64
}

// New creates a gateway client. The limiter bounds requests per minute across
// all workers sharing this client.
func New(cfg Config, doer Doer, limiter *ratelimit.SlidingWindow, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}

	return &Client{
		cfg:     cfg,
		http:    doer,
		limiter: limiter,
		log:     log,
		sleep:   sleepCtx,
		jitter:  rand.Float64,
	}
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate sends a prompt plus an inline PDF to the model and returns the raw
// text answer. The fileID tags the call in the audit trail.
func (c *Client) Generate(ctx context.Context, fileID, prompt string, document []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: prompt},
				{InlineData: &inlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(document),
				}},
			},
		}},
		GenerationConfig: generationConfig{
			Temperature:     0.1,
			TopP:            0.8,
			MaxOutputTokens: 2048,
		},
	})
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model, c.cfg.APIKey)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.waitForSlot(ctx); err != nil {
			return "", err
		}

		text, err := c.doOnce(ctx, fileID, attempt, url, body)
		if err == nil {
			return text, nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			switch apiErr.Category {
			case CategoryQuota:
				return "", fmt.Errorf("%w: %v", ErrQuotaExhausted, err)
			case CategoryPermanent:
				return "", err
			}
		}

		if attempt == c.cfg.MaxRetries {
			break
		}

		wait := c.backoff(attempt)
		c.log.Warn("gemini call failed, retrying",
			"file_id", fileID,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
		if err := c.sleep(ctx, wait); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("gemini: %d attempts exhausted: %w", c.cfg.MaxRetries, lastErr)
}

func (c *Client) doOnce(ctx context.Context, fileID string, attempt int, url string, body []byte) (string, error) {
	callCtx := httpinfra.WithCallMeta(ctx, httpinfra.CallMeta{FileID: fileID, Attempt: attempt})

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Network errors are transient by definition.
		return "", &APIError{Status: 0, Category: CategoryRetryable, Body: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &APIError{Status: resp.StatusCode, Category: CategoryRetryable, Body: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{
			Status:   resp.StatusCode,
			Category: Categorize(resp.StatusCode, string(respBody)),
			Body:     string(respBody),
		}
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &APIError{Status: resp.StatusCode, Category: CategoryPermanent, Body: fmt.Sprintf("malformed response: %v", err)}
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", &APIError{Status: resp.StatusCode, Category: CategoryPermanent, Body: "response has no candidates"}
	}

	var sb strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

// waitForSlot blocks until the limiter admits a request or the context dies.
func (c *Client) waitForSlot(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	for {
		res := c.limiter.Check("gemini")
		if res.Allowed {
			return nil
		}
		if err := c.sleep(ctx, time.Duration(res.ResetMs)*time.Millisecond); err != nil {
			return err
		}
	}
}

// backoff returns base*2^(attempt-1) with ±20% jitter, capped.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.BackoffBase << (attempt - 1)
	if d > c.cfg.BackoffCap {
		d = c.cfg.BackoffCap
	}
	factor := 0.8 + 0.4*c.jitter()
	jittered := time.Duration(float64(d) * factor)
	if jittered > c.cfg.BackoffCap {
		jittered = c.cfg.BackoffCap
	}
	return jittered
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
