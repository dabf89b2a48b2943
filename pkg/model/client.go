package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	enginerrors "github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/errors"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/telemetry"
)

const defaultTimeout = 120 * time.Second

// ClientOptions provide optional overrides for client construction.
type ClientOptions struct {
	ProfileLabel       string // metric label; falls back to the model id
	NetworkLogsEnabled bool
	NetworkLogDir      string
	HTTPClient         *http.Client // for tests
}

// Client talks to one OpenAI-compatible completion endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	label      string
	httpClient *http.Client
}

// CompletionRequest describes one completion call.
type CompletionRequest struct {
	Model            string
	Messages         []Message
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	MaxTokens        int
	Structured       bool
	Schema           SchemaClass
}

// CompletionResult carries everything the run engine records per step.
type CompletionResult struct {
	Text           string
	Raw            json.RawMessage
	Usage          Usage
	UsageEstimated bool
	Latency        time.Duration
	FallbackUsed   bool
}

// NewClient builds a completion client for an endpoint base URL. The timeout
// bounds every request issued through this client.
func NewClient(baseURL, apiKey string, timeout time.Duration, opts ClientOptions) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := NewLoggingTransport(nil, opts.NetworkLogDir, opts.NetworkLogsEnabled)
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: transport,
		}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		label:      opts.ProfileLabel,
		httpClient: httpClient,
	}
}

// Complete executes a completion request. When Structured is set, the first
// attempt constrains output to the schema class; if the endpoint rejects the
// request format, the call is retried once without the constraint and the
// result is marked FallbackUsed. Timeouts and server errors are never retried.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	chatReq := ChatRequest{
		Model:            req.Model,
		Messages:         req.Messages,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		MaxTokens:        req.MaxTokens,
		Stream:           false,
	}
	if req.Structured {
		chatReq.ResponseFormat = schemaFor(req.Schema)
	}

	start := time.Now()
	result, err := c.invoke(ctx, chatReq)
	if err != nil {
		var apiErr *APIError
		if req.Structured && errors.As(err, &apiErr) && schemaRejected(apiErr) {
			// The endpoint does not speak structured-output mode. Retry once in
			// plain-text mode; all other failures surface to the caller.
			telemetry.CompletionFallbacks.WithLabelValues(c.metricLabel(req.Model)).Inc()
			chatReq.ResponseFormat = nil
			result, err = c.invoke(ctx, chatReq)
			if err != nil {
				c.countRequest(req, "error")
				return nil, c.classify(err)
			}
			result.FallbackUsed = true
		} else {
			c.countRequest(req, "error")
			return nil, c.classify(err)
		}
	}

	result.Latency = time.Since(start)
	if result.Usage.TotalTokens == 0 {
		result.Usage = estimateUsage(req.Messages, result.Text)
		result.UsageEstimated = true
	}

	c.countRequest(req, "ok")
	telemetry.CompletionLatency.WithLabelValues(c.metricLabel(req.Model), string(req.Schema)).
		Observe(result.Latency.Seconds())
	telemetry.CompletionTokens.WithLabelValues(c.metricLabel(req.Model), "prompt").
		Add(float64(result.Usage.PromptTokens))
	telemetry.CompletionTokens.WithLabelValues(c.metricLabel(req.Model), "completion").
		Add(float64(result.Usage.CompletionTokens))

	return result, nil
}

// ListModels fetches the endpoint's model catalog, used by the diagnostics
// handshake and the discovery poller.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classify(readAPIError(resp))
	}

	var catalog ModelCatalog
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return nil, fmt.Errorf("decoding model catalog: %w", err)
	}
	return catalog.Data, nil
}

func (c *Client) invoke(ctx context.Context, req ChatRequest) (*CompletionResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp.StatusCode, raw)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(raw, &chatResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("response contained no choices")
	}

	return &CompletionResult{
		Text:  chatResp.Choices[0].Message.Content,
		Raw:   json.RawMessage(raw),
		Usage: chatResp.Usage,
	}, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) metricLabel(modelID string) string {
	if c.label != "" {
		return c.label
	}
	return modelID
}

func (c *Client) countRequest(req CompletionRequest, outcome string) {
	telemetry.CompletionRequests.WithLabelValues(c.metricLabel(req.Model), string(req.Schema), outcome).Inc()
}

// classify maps low-level failures onto the engine error taxonomy so callers
// can distinguish timeouts from transport and server failures.
func (c *Client) classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return enginerrors.Wrap(err, enginerrors.ErrCodeEndpointTimeout, "completion request timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return enginerrors.Wrap(err, enginerrors.ErrCodeEndpointTimeout, "completion request timed out")
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return enginerrors.Wrap(err, enginerrors.ErrCodeEndpointServer, "endpoint returned an error").
			WithContext("status", apiErr.StatusCode)
	}

	return enginerrors.Wrap(err, enginerrors.ErrCodeEndpointUnreachable, "completion request failed")
}

// schemaRejected reports whether an API error indicates the endpoint rejected
// structured-output mode rather than failing for an unrelated reason.
func schemaRejected(err *APIError) bool {
	switch err.StatusCode {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnsupportedMediaType,
		http.StatusUnprocessableEntity, http.StatusNotImplemented:
		return true
	default:
		return false
	}
}

func decodeAPIError(status int, body []byte) *APIError {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return &APIError{
			StatusCode: status,
			Message:    errResp.Error.Message,
			Type:       errResp.Error.Type,
			Code:       errResp.Error.Code,
		}
	}
	msg := string(body)
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return &APIError{StatusCode: status, Message: msg}
}

func readAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(resp.Body)
	return decodeAPIError(resp.StatusCode, body)
}
