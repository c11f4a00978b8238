package stream

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/lexiqai/chat-orchestrator/internal/chat"
)

// recordSource replays fixed records, then returns err (io.EOF by default)
type recordSource struct {
	mu      sync.Mutex
	records []string
	err     error
	reads   int
	closed  bool
}

func newRecordSource(records ...string) *recordSource {
	return &recordSource{records: records}
}

func (s *recordSource) Next() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, io.ErrClosedPipe
	}
	if len(s.records) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	rec := s.records[0]
	s.records = s.records[1:]
	s.reads++
	return []byte(rec), nil
}

func (s *recordSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordSource) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func collect(src Source) []Event {
	var events []Event
	NewDecoder(src).Run(func(e Event) bool {
		events = append(events, e)
		return true
	})
	return events
}

func TestDecoder_TokensThenDone(t *testing.T) {
	src := newRecordSource(
		`{"content":"Hel","done":false}`,
		`{"content":"lo","done":false,"prompt_tokens":3,"completion_tokens":1}`,
		`{"content":"","done":true,"prompt_tokens":12,"completion_tokens":8}`,
		`{"content":"never read"}`,
	)

	events := collect(src)
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Kind != EventToken || events[0].Text != "Hel" {
		t.Errorf("Expected token Hel, got %+v", events[0])
	}
	if events[1].Kind != EventToken || events[1].Text != "lo" {
		t.Errorf("Expected token lo, got %+v", events[1])
	}

	done := events[2]
	if done.Kind != EventDone {
		t.Fatalf("Expected done, got %v", done.Kind)
	}
	if done.Usage != (chat.TokenUsage{PromptTokens: 12, CompletionTokens: 8}) {
		t.Errorf("Expected usage from last record, got %+v", done.Usage)
	}
	if done.FinishReason != chat.FinishStop {
		t.Errorf("Expected stop, got %s", done.FinishReason)
	}
	if src.Reads() != 3 {
		t.Errorf("Expected reading to stop at the terminal record, read %d", src.Reads())
	}
}

func TestDecoder_TerminalRecordWithContent(t *testing.T) {
	events := collect(newRecordSource(`{"content":"Hi","done":true}`))

	if len(events) != 2 || events[0].Text != "Hi" || events[1].Kind != EventDone {
		t.Errorf("Expected token then done, got %+v", events)
	}
}

func TestDecoder_EndOfStreamIsDone(t *testing.T) {
	events := collect(newRecordSource(`{"content":"a"}`))

	if len(events) != 2 || events[1].Kind != EventDone {
		t.Fatalf("Expected token then done at EOF, got %+v", events)
	}
	if !events[1].Usage.IsZero() {
		t.Errorf("Expected zero usage, got %+v", events[1].Usage)
	}
}

func TestDecoder_ToolCallsAccumulate(t *testing.T) {
	src := newRecordSource(
		`{"tool_calls":[{"id":"c1","name":"getBookingDetails","arguments":{"bookingNumber":"BK123"}}]}`,
		`{"tool_calls":[{"id":"c2","name":"cancelBooking","arguments":"{\"bookingNumber\": \"BK123\"}"}]}`,
		`{"done":true,"done_reason":"tool_calls"}`,
	)

	events := collect(src)
	if len(events) != 1 {
		t.Fatalf("Expected only done, got %+v", events)
	}
	done := events[0]
	if done.FinishReason != chat.FinishToolCall {
		t.Errorf("Expected tool_call, got %s", done.FinishReason)
	}
	if len(done.ToolCalls) != 2 {
		t.Fatalf("Expected 2 tool calls, got %d", len(done.ToolCalls))
	}
	if done.ToolCalls[0].Name != "getBookingDetails" || done.ToolCalls[1].Name != "cancelBooking" {
		t.Errorf("Expected arrival order, got %+v", done.ToolCalls)
	}
	if done.ToolCalls[1].Arguments != `{"bookingNumber":"BK123"}` {
		t.Errorf("Expected string arguments to be unwrapped, got %s", done.ToolCalls[1].Arguments)
	}
}

func TestDecoder_FinishReason(t *testing.T) {
	tests := []struct {
		name     string
		records  []string
		expected chat.FinishReason
	}{
		{"plain stop", []string{`{"content":"hi"}`, `{"done":true,"done_reason":"stop"}`}, chat.FinishStop},
		{"no reason", []string{`{"content":"hi","done":true}`}, chat.FinishStop},
		{"reported error", []string{`{"content":"partial"}`, `{"done":true,"done_reason":"error"}`}, chat.FinishError},
		{"tool calls win", []string{`{"tool_calls":[{"name":"a"}],"done":true,"done_reason":"error"}`}, chat.FinishToolCall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := collect(newRecordSource(tt.records...))
			done := events[len(events)-1]
			if done.Kind != EventDone {
				t.Fatalf("Expected done, got %s", done.Kind)
			}
			if done.FinishReason != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, done.FinishReason)
			}
		})
	}
}

func TestDecoder_MalformedRecord(t *testing.T) {
	src := newRecordSource(`{"content":"Hel"}`, `{"content":`, `{"content":"lo"}`)

	events := collect(src)
	if len(events) != 2 {
		t.Fatalf("Expected token then error, got %+v", events)
	}
	if events[0].Text != "Hel" {
		t.Errorf("Expected token Hel, got %+v", events[0])
	}
	var decodeErr *chat.DecodeError
	if events[1].Kind != EventError || !errors.As(events[1].Err, &decodeErr) {
		t.Errorf("Expected DecodeError, got %+v", events[1])
	}
}

func TestDecoder_TransportFailure(t *testing.T) {
	src := newRecordSource(`{"content":"a"}`)
	src.err = io.ErrUnexpectedEOF

	events := collect(src)
	if len(events) != 2 {
		t.Fatalf("Expected token then error, got %+v", events)
	}
	var transportErr *chat.TransportError
	if !errors.As(events[1].Err, &transportErr) {
		t.Errorf("Expected TransportError, got %v", events[1].Err)
	}
}

func TestDecoder_StopsWhenEmitRefuses(t *testing.T) {
	src := newRecordSource(`{"content":"a"}`, `{"content":"b"}`, `{"content":"c"}`)

	var count int
	NewDecoder(src).Run(func(e Event) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("Expected decoding to stop after refused emit, got %d events", count)
	}
	if src.Reads() != 1 {
		t.Errorf("Expected 1 read, got %d", src.Reads())
	}
}

func TestParseRecord_InvalidToolCalls(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing name", `{"tool_calls":[{"id":"1","arguments":{}}]}`},
		{"array arguments", `{"tool_calls":[{"name":"a","arguments":[1,2]}]}`},
		{"broken string arguments", `{"tool_calls":[{"name":"a","arguments":"{oops"}]}`},
		{"not an object", `"text"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecord([]byte(tt.raw))
			var decodeErr *chat.DecodeError
			if !errors.As(err, &decodeErr) {
				t.Errorf("Expected DecodeError, got %v", err)
			}
		})
	}
}

func TestParseRecord_EmptyArguments(t *testing.T) {
	rec, err := ParseRecord([]byte(`{"tool_calls":[{"name":"a"},{"name":"b","arguments":""}]}`))
	if err != nil {
		t.Fatalf("ParseRecord failed: %v", err)
	}
	for _, call := range rec.Calls() {
		if call.Arguments != "{}" {
			t.Errorf("Expected empty object arguments, got %q", call.Arguments)
		}
	}
}
