package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestTransportError_Temporary(t *testing.T) {
	tests := []struct {
		name string
		err  *TransportError
		want bool
	}{
		{"network failure", &TransportError{Err: io.ErrUnexpectedEOF}, true},
		{"request timeout", &TransportError{StatusCode: 408}, true},
		{"rate limited", &TransportError{StatusCode: 429}, true},
		{"server error", &TransportError{StatusCode: 503, Body: "unavailable"}, true},
		{"not implemented", &TransportError{StatusCode: 501}, false},
		{"bad request", &TransportError{StatusCode: 400, Body: "bad"}, false},
		{"unauthorized", &TransportError{StatusCode: 401}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Temporary(); got != tt.want {
				t.Errorf("Expected Temporary() = %v, got %v", tt.want, got)
			}
		})
	}
}

func TestErrors_Unwrap(t *testing.T) {
	cause := errors.New("boom")

	wrapped := fmt.Errorf("round 2: %w", &ToolExecutionError{Name: "cancelBooking", CallID: "c1", Err: cause})
	if !errors.Is(wrapped, cause) {
		t.Error("Expected ToolExecutionError to unwrap to its cause")
	}
	var toolErr *ToolExecutionError
	if !errors.As(wrapped, &toolErr) || toolErr.Name != "cancelBooking" {
		t.Errorf("Expected errors.As to find ToolExecutionError, got %v", toolErr)
	}

	transportErr := &TransportError{Err: io.ErrClosedPipe}
	if !errors.Is(transportErr, io.ErrClosedPipe) {
		t.Error("Expected TransportError to unwrap to its network error")
	}

	decodeErr := &DecodeError{Record: "{", Err: io.ErrUnexpectedEOF}
	if !errors.Is(decodeErr, io.ErrUnexpectedEOF) {
		t.Error("Expected DecodeError to unwrap to its parse error")
	}

	configErr := &ConfigurationError{Field: "memory", Message: "nil"}
	if !errors.Is(configErr, ErrInvalidConfig) {
		t.Error("Expected ConfigurationError to match ErrInvalidConfig")
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&TransportError{StatusCode: 500}, "transport"},
		{&DecodeError{Err: io.EOF}, "decode"},
		{&UnknownToolError{Name: "x"}, "unknown_tool"},
		{fmt.Errorf("wrapped: %w", &ToolExecutionError{Name: "x", Err: io.EOF}), "tool_execution"},
		{&ConfigurationError{Field: "f"}, "configuration"},
		{fmt.Errorf("turn: %w", ErrMaxRoundsExceeded), "max_rounds"},
		{context.Canceled, "cancelled"},
		{errors.New("other"), "internal"},
	}

	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, expected %q", tt.err, got, tt.want)
		}
	}
}

func TestDecodeError_TruncatesRecord(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	err := &DecodeError{Record: string(long), Err: io.ErrUnexpectedEOF}
	if len(err.Error()) > 200 {
		t.Errorf("Expected truncated message, got %d bytes", len(err.Error()))
	}
}
