package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/terra-clan/koi-prep/internal/config"
	"github.com/terra-clan/koi-prep/internal/models"
	"github.com/terra-clan/koi-prep/internal/telemetry"
)

// maxErrorBody caps how much of an error response is kept in messages
const maxErrorBody = 512

// Recorder stores one ledger entry per gateway call
type Recorder interface {
	RecordCall(ctx context.Context, call *models.GatewayCall) error
}

// Client implements Gateway over the OpenAI-compatible chat completions API
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	maxAttempts int
	retryDelay  time.Duration
	labels      func(models.Language) string
	recorder    Recorder
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLanguageLabels sets how languages are named in prompts
func WithLanguageLabels(fn func(models.Language) string) Option {
	return func(c *Client) { c.labels = fn }
}

// WithRecorder records every call in a ledger
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// NewClient creates a gateway client
func NewClient(cfg config.GatewayConfig, opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		labels:      func(l models.Language) string { return string(l) },
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the model name sent with every request
func (c *Client) Model() string {
	return c.model
}

// GenerateProblems asks for req.Count problems and normalises the answer
func (c *Client) GenerateProblems(ctx context.Context, req ProblemRequest) (*Generation, error) {
	if req.Count < 1 {
		return nil, fmt.Errorf("%w: problem count %d", ErrInvalidResponse, req.Count)
	}

	system, payload := problemsMessages(req, c.labels(req.Language))

	out, err := completeAs[problemsPayload](ctx, c, models.OpGenerateProblems, system, payload)
	if err != nil {
		return nil, err
	}

	gen, err := normalizeProblems(out.Problems, req.Count)
	if err != nil {
		return nil, err
	}
	if gen.Truncated {
		slog.Warn("gateway returned fewer problems than requested",
			"requested", req.Count,
			"received", len(gen.Problems),
		)
	}
	return gen, nil
}

// JudgeCode asks the model to simulate the code on one sample case
func (c *Client) JudgeCode(ctx context.Context, req JudgeRequest) (models.RunResult, error) {
	system, payload := judgeMessages(req, c.labels(req.Language))

	out, err := completeAs[models.RunResult](ctx, c, models.OpJudgeCode, system, payload)
	if err != nil {
		return models.RunResult{}, err
	}
	return out, nil
}

// GenerateAnalysisReport asks for the final analysis of every submission
func (c *Client) GenerateAnalysisReport(ctx context.Context, req AnalysisRequest) (*models.AnalysisResult, error) {
	system, payload := analysisMessages(req)

	out, err := completeAs[models.AnalysisResult](ctx, c, models.OpGenerateAnalysis, system, payload)
	if err != nil {
		return nil, err
	}
	return normalizeAnalysis(&out, req.Problems), nil
}

// Ping checks that the service answers its model listing
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Stream         bool            `json:"stream"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// StatusError is a non-200 answer from the service
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gateway status %d", e.Code)
	}
	return fmt.Sprintf("gateway status %d: %s", e.Code, e.Body)
}

// Retryable reports whether another attempt could succeed
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// completeAs runs a completion and decodes the answer as a T. Every attempt
// decodes into a fresh value; only the accepted attempt reaches the result.
func completeAs[T any](ctx context.Context, c *Client, op models.GatewayOperation, system string, payload any) (T, error) {
	var result T
	err := c.complete(ctx, op, system, payload, func(content string) error {
		var v T
		if err := decodeContent(content, &v); err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// complete runs one chat completion with retries, hands each answer to
// decode, and traces and records the call. An attempt whose answer decode
// rejects is retried.
func (c *Client) complete(ctx context.Context, op models.GatewayOperation, system string, payload any, decode func(content string) error) error {
	user, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", op, err)
	}

	temperature := 0.2
	if op == models.OpGenerateProblems {
		temperature = 0.8
	}
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: string(user)},
		},
		Temperature:    &temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	ctx, span := telemetry.StartGatewaySpan(ctx, string(op), c.model)

	attempts := 0
	content, err := backoff.Retry(ctx, func() (string, error) {
		attempts++
		resp, err := c.send(ctx, body)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && !se.Retryable() {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		span.SetTokens(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

		content := resp.Choices[0].Message.Content
		if err := decode(content); err != nil {
			return "", err
		}
		return content, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryDelay)),
		backoff.WithMaxTries(uint(c.maxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("gateway call failed, retrying",
				"operation", op,
				"attempt", attempts,
				"retry_in", next.String(),
				"error", err,
			)
		}),
	)

	span.SetAttempts(attempts)
	span.SetSizes(len(user), len(content))
	if err != nil {
		err = fmt.Errorf("%s failed after %d attempt(s): %w", op, attempts, err)
		span.SetError(err)
	}
	elapsed := span.End()

	slog.Debug("gateway call finished",
		"operation", op,
		"model", c.model,
		"attempts", attempts,
		"duration_ms", elapsed.Milliseconds(),
		"success", err == nil,
	)

	c.record(op, attempts, elapsed, err)
	return err
}

// send performs a single chat completion request
func (c *Client) send(ctx context.Context, body []byte) (*chatResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: msg}
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	return &out, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" && c.apiKey != "none" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// record writes the ledger entry; ledger failures never fail the call
func (c *Client) record(op models.GatewayOperation, attempts int, elapsed time.Duration, callErr error) {
	if c.recorder == nil {
		return
	}

	call := &models.GatewayCall{
		Operation:  op,
		Model:      c.model,
		Attempts:   attempts,
		DurationMS: elapsed.Milliseconds(),
		Success:    callErr == nil,
		CreatedAt:  time.Now().UTC(),
	}
	if callErr != nil {
		call.Error = callErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.recorder.RecordCall(ctx, call); err != nil {
		slog.Warn("failed to record gateway call", "operation", op, "error", err)
	}
}
