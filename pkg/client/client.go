package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/terra-clan/koi-prep/internal/models"
)

// Client is a Go SDK for the koi-prep API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new koi-prep client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is an error response of the API
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s - %s (HTTP %d)", e.Code, e.Message, e.StatusCode)
}

// ErrorCode returns the API error code of err, or "" when err is not an
// API error
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// Document is a downloaded report file
type Document struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Sessions

// CreateSession creates a session in SETUP
func (c *Client) CreateSession(ctx context.Context) (*models.SessionView, error) {
	var view models.SessionView
	if err := c.call(ctx, http.MethodPost, "/api/v1/sessions", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// GetSession retrieves a session snapshot
func (c *Client) GetSession(ctx context.Context, id string) (*models.SessionView, error) {
	return c.sessionCall(ctx, http.MethodGet, id, "", nil)
}

// DeleteSession discards a session
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, sessionPath(id, ""), nil, nil)
}

// Start submits the test configuration; problems are generated in the
// background
func (c *Client) Start(ctx context.Context, id string, cfg models.TestConfig) (*models.SessionView, error) {
	return c.sessionCall(ctx, http.MethodPost, id, "/start", cfg)
}

// SelectProblem shows another problem in the editor
func (c *Client) SelectProblem(ctx context.Context, id string, index int) (*models.SessionView, error) {
	return c.sessionCall(ctx, http.MethodPut, id, "/problems/current", models.SelectProblemRequest{Index: index})
}

// EditCode replaces the code of the current problem
func (c *Client) EditCode(ctx context.Context, id, code string) (*models.SessionView, error) {
	return c.sessionCall(ctx, http.MethodPut, id, "/code", models.EditCodeRequest{Code: code})
}

// PressKey applies an editor key to a buffer
func (c *Client) PressKey(ctx context.Context, id string, req models.KeyPressRequest) (*models.KeyPressResponse, error) {
	var res models.KeyPressResponse
	if err := c.call(ctx, http.MethodPost, sessionPath(id, "/editor/keys"), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Run judges the current code on its first sample case in the background
func (c *Client) Run(ctx context.Context, id string) (*models.SessionView, error) {
	return c.sessionCall(ctx, http.MethodPost, id, "/run", nil)
}

// Advance records the current submission and moves on
func (c *Client) Advance(ctx context.Context, id string) (*models.SessionView, error) {
	return c.sessionCall(ctx, http.MethodPost, id, "/advance", nil)
}

// Finish retries the analysis after a failure
func (c *Client) Finish(ctx context.Context, id string) (*models.SessionView, error) {
	return c.sessionCall(ctx, http.MethodPost, id, "/finish", nil)
}

// Restart returns a finished session to SETUP
func (c *Client) Restart(ctx context.Context, id string) (*models.SessionView, error) {
	return c.sessionCall(ctx, http.MethodPost, id, "/restart", nil)
}

// WaitForStep polls the session until it reaches step, or ctx ends
func (c *Client) WaitForStep(ctx context.Context, id string, step models.AppStep, interval time.Duration) (*models.SessionView, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		view, err := c.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if view.Step == step {
			return view, nil
		}

		select {
		case <-ctx.Done():
			return view, fmt.Errorf("waiting for %s, session in %s: %w", step, view.Step, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Report

// Report retrieves the analysis of a finished session
func (c *Client) Report(ctx context.Context, id string) (*models.ReportResponse, error) {
	var rep models.ReportResponse
	if err := c.call(ctx, http.MethodGet, sessionPath(id, "/report"), nil, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// ExportPDF downloads the report as a PDF document
func (c *Client) ExportPDF(ctx context.Context, id string) (*Document, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, sessionPath(id, "/report/export"), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, decodeError(resp.StatusCode, data)
	}

	doc := &Document{
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		doc.FileName = params["filename"]
	}
	return doc, nil
}

// Catalog

// Languages retrieves the language catalog
func (c *Client) Languages(ctx context.Context) ([]*models.LanguageInfo, error) {
	var result struct {
		Languages []*models.LanguageInfo `json:"languages"`
		Total     int                    `json:"total"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/languages", nil, &result); err != nil {
		return nil, err
	}
	return result.Languages, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health", nil, nil)
}

// Helpers

func sessionPath(id, suffix string) string {
	return "/api/v1/sessions/" + url.PathEscape(id) + suffix
}

func (c *Client) sessionCall(ctx context.Context, method, id, suffix string, in interface{}) (*models.SessionView, error) {
	var view models.SessionView
	if err := c.call(ctx, method, sessionPath(id, suffix), in, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// call sends in as JSON and decodes the data of the response envelope
// into out
func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, data)
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if out == nil || len(result.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var result struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.Error == nil {
		return &APIError{StatusCode: status, Code: "http_error", Message: strings.TrimSpace(string(body))}
	}
	return &APIError{StatusCode: status, Code: result.Error.Code, Message: result.Error.Message}
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}
