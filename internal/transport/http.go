package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/chat-orchestrator/internal/chat"
	"github.com/lexiqai/chat-orchestrator/internal/observability"
	"github.com/lexiqai/chat-orchestrator/internal/stream"
)

const maxErrorBody = 4 << 10

// HTTPConfig configures the HTTP transport
type HTTPConfig struct {
	BaseURL      string
	ChatPath     string
	HealthPath   string // optional; empty skips the probe
	Model        string
	APIKey       string
	APIKeyHeader string
	Headers      map[string]string
	Timeout      time.Duration
	Framing      stream.Framing
	ChunkSize    int
}

// HTTPTransport posts requests as JSON and reads incremental records from the response body
type HTTPTransport struct {
	config HTTPConfig
	client *http.Client
	logger zerolog.Logger
}

// NewHTTPTransport creates an HTTP transport. A nil client gets a default one whose
// response header timeout is config.Timeout; bodies are bounded by the caller's context.
func NewHTTPTransport(config HTTPConfig, client *http.Client) (*HTTPTransport, error) {
	if strings.TrimSpace(config.BaseURL) == "" {
		return nil, &chat.ConfigurationError{Field: "MODEL_BASE_URL", Message: "base URL is required"}
	}
	if config.ChatPath == "" {
		config.ChatPath = "/api/chat"
	}
	if config.APIKeyHeader == "" {
		config.APIKeyHeader = "Authorization"
	}
	if config.Framing == "" {
		config.Framing = stream.FramingLines
	}
	if client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = config.Timeout
		client = &http.Client{Transport: transport}
	}

	return &HTTPTransport{
		config: config,
		client: client,
		logger: observability.GetLogger().With().Str("component", "http_transport").Logger(),
	}, nil
}

// OpenStream posts a streaming request and returns the framed response body
func (t *HTTPTransport) OpenStream(ctx context.Context, req chat.Request) (stream.Source, error) {
	req.Stream = true
	resp, err := t.do(ctx, req)
	if err != nil {
		return nil, err
	}

	t.logger.Debug().
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Str("framing", string(t.config.Framing)).
		Msg("Model stream opened")

	return stream.NewSource(resp.Body, t.config.Framing, t.config.ChunkSize), nil
}

// Send posts a non-streaming request and returns the complete response body
func (t *HTTPTransport) Send(ctx context.Context, req chat.Request) ([]byte, error) {
	if t.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Timeout)
		defer cancel()
	}

	req.Stream = false
	resp, err := t.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &chat.TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	return body, nil
}

// HealthCheck probes the configured health path
func (t *HTTPTransport) HealthCheck(ctx context.Context) (bool, error) {
	if t.config.HealthPath == "" {
		return true, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url(t.config.HealthPath), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create health request: %w", err)
	}
	t.authorize(httpReq)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return false, &chat.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return false, errorFromResponse(resp)
	}
	return true, nil
}

func (t *HTTPTransport) do(ctx context.Context, req chat.Request) (*http.Response, error) {
	if req.Model == "" {
		req.Model = t.config.Model
	}
	body, err := EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url(t.config.ChatPath), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "application/x-ndjson, text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	t.authorize(httpReq)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &chat.TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		transportErr := errorFromResponse(resp)
		t.logger.Warn().
			Int("status_code", resp.StatusCode).
			Str("body", transportErr.Body).
			Msg("Model endpoint returned error status")
		return nil, transportErr
	}
	return resp, nil
}

func (t *HTTPTransport) authorize(httpReq *http.Request) {
	for name, value := range t.config.Headers {
		httpReq.Header.Set(name, value)
	}
	if t.config.APIKey == "" {
		return
	}
	value := t.config.APIKey
	if strings.EqualFold(t.config.APIKeyHeader, "Authorization") && !strings.HasPrefix(value, "Bearer ") {
		value = "Bearer " + value
	}
	httpReq.Header.Set(t.config.APIKeyHeader, value)
}

func (t *HTTPTransport) url(path string) string {
	return strings.TrimRight(t.config.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func errorFromResponse(resp *http.Response) *chat.TransportError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &chat.TransportError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
