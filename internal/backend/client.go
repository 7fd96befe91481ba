// Package backend is the HTTP client for the external job backend.
//
// Endpoints:
//
//	POST /jobs            → create a posting
//	PUT  /jobs/{jobId}    → update a posting
//	GET  /companies       → list companies
package backend

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

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"jobmate/posting-service/internal/apperr"
	"jobmate/posting-service/internal/draft"
	"jobmate/posting-service/internal/telemetry"
)

const (
	defaultTimeout    = 15 * time.Second
	maxResponseBytes  = 4 << 20
	idempotencyHeader = "Idempotency-Key"
)

var tracer = telemetry.GetTracer("jobmate/posting-service/backend")

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// Response is a successful create/update answer. Body is the job record as
// echoed by the backend, kept opaque.
type Response struct {
	Status  int             `json:"-"`
	Message string          `json:"message,omitempty"`
	Body    json.RawMessage `json:"body"`
}

// Client talks to the job backend. A non-empty token is sent as a bearer
// credential on every request.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	hc := &http.Client{Timeout: timeout}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		hc = oauth2.NewClient(context.Background(), ts)
		hc.Timeout = timeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  hc,
		logger:  logger,
	}
}

// CreateJob issues POST /jobs.
func (c *Client) CreateJob(ctx context.Context, req draft.JobRequest, idempotencyKey string) (*Response, error) {
	ctx, span := tracer.Start(ctx, "CreateJob")
	defer span.End()
	return c.sendJob(ctx, http.MethodPost, c.baseURL+"/jobs", req, idempotencyKey)
}

// UpdateJob issues PUT /jobs/{jobID}.
func (c *Client) UpdateJob(ctx context.Context, jobID string, req draft.JobRequest, idempotencyKey string) (*Response, error) {
	ctx, span := tracer.Start(ctx, "UpdateJob")
	defer span.End()
	span.SetAttributes(telemetry.String("job.id", jobID))
	if jobID == "" {
		return nil, apperr.InvalidInput("update requires a job id", nil)
	}
	return c.sendJob(ctx, http.MethodPut, c.baseURL+"/jobs/"+url.PathEscape(jobID), req, idempotencyKey)
}

// ListCompanies issues GET /companies and returns the raw JSON body.
func (c *Client) ListCompanies(ctx context.Context) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "ListCompanies")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/companies", nil)
	if err != nil {
		return nil, apperr.Internal("creating request", err)
	}
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(telemetry.Int("http.status_code", status))
	if status < 200 || status > 299 {
		return nil, &APIError{Status: status, Message: serverMessage(body)}
	}
	if !json.Valid(body) {
		return nil, apperr.Internal("decoding companies", fmt.Errorf("invalid JSON body"))
	}
	return body, nil
}

func (c *Client) sendJob(ctx context.Context, method, endpoint string, payload draft.JobRequest, key string) (*Response, error) {
	span := trace.SpanFromContext(ctx)
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.Internal("marshaling job request", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, apperr.Internal("creating request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	span.SetAttributes(
		telemetry.String("http.method", method),
		telemetry.Int("screening.questions", len(payload.ScreeningQuestions)),
	)

	status, body, err := c.do(req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(telemetry.Int("http.status_code", status))

	if status < 200 || status > 299 {
		apiErr := &APIError{Status: status, Message: serverMessage(body)}
		span.RecordError(apiErr)
		c.logger.Warn("backend rejected job request",
			zap.String("method", method),
			zap.Int("status_code", status),
			zap.String("message", apiErr.Message))
		return nil, apiErr
	}

	resp := &Response{Status: status, Message: serverMessage(body)}
	if len(bytes.TrimSpace(body)) > 0 && json.Valid(body) {
		resp.Body = body
	}
	c.logger.Debug("backend accepted job request",
		zap.String("method", method),
		zap.Int("status_code", status))
	return resp, nil
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("failed to execute request",
			zap.String("url", req.URL.Redacted()),
			zap.Error(err))
		return 0, nil, apperr.Unavailable("executing request", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("failed to close response body", zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, apperr.Unavailable("reading response", err)
	}
	return resp.StatusCode, body, nil
}

// serverMessage extracts a top-level "message" (or "error") string, if any.
func serverMessage(body []byte) string {
	var m struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &m); err != nil {
		return ""
	}
	if m.Message != "" {
		return m.Message
	}
	return m.Error
}
