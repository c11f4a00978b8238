package chat

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrMaxRoundsExceeded reports a turn that kept requesting tools past the configured bound
	ErrMaxRoundsExceeded = errors.New("maximum model rounds exceeded")

	// ErrInvalidConfig is the sentinel every ConfigurationError unwraps to
	ErrInvalidConfig = errors.New("invalid configuration")
)

// TransportError is a network or HTTP level failure talking to the model
type TransportError struct {
	StatusCode int    // 0 when no response was received
	Body       string // Response body, if any
	Err        error  // Underlying network error, if any
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("transport error: status code: %d; body: %s: %v", e.StatusCode, e.Body, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("transport error: status code: %d; body: %s", e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
	return "transport error"
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the failure is worth retrying on the synchronous path
func (e *TransportError) Temporary() bool {
	switch {
	case e.StatusCode == 0:
		// No response at all: connection refused, reset, timeout
		return true
	case e.StatusCode == 408, e.StatusCode == 429:
		return true
	case e.StatusCode == 501, e.StatusCode == 505:
		return false
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// DecodeError reports a malformed incremental record
type DecodeError struct {
	Record string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: %v (record: %q)", e.Err, truncate(e.Record, 120))
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// UnknownToolError reports a tool call for a name that is not registered
type UnknownToolError struct {
	Name   string
	CallID string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q requested by model (call_id: %s)", e.Name, e.CallID)
}

// ToolExecutionError wraps a failure raised by a tool
type ToolExecutionError struct {
	Name   string
	CallID string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q (call_id: %s) failed: %v", e.Name, e.CallID, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports a missing or invalid collaborator detected at construction
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Field, e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidConfig
}

// ErrorKind names the taxonomy bucket of err, for logs, metrics and client payloads
func ErrorKind(err error) string {
	var (
		transportErr *TransportError
		decodeErr    *DecodeError
		unknownErr   *UnknownToolError
		toolErr      *ToolExecutionError
		configErr    *ConfigurationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &unknownErr):
		return "unknown_tool"
	case errors.As(err, &toolErr):
		return "tool_execution"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &transportErr):
		return "transport"
	case errors.As(err, &configErr):
		return "configuration"
	case errors.Is(err, ErrMaxRoundsExceeded):
		return "max_rounds"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "internal"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
