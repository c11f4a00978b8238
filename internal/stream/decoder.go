package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/lexiqai/chat-orchestrator/internal/chat"
)

// Record is one incremental response record on the wire
type Record struct {
	Content          string           `json:"content"`
	Done             bool             `json:"done"`
	DoneReason       string           `json:"done_reason,omitempty"`
	PromptTokens     *int             `json:"prompt_tokens,omitempty"`
	CompletionTokens *int             `json:"completion_tokens,omitempty"`
	ToolCalls        []RecordToolCall `json:"tool_calls,omitempty"`
}

// RecordToolCall is a tool call as it appears on the wire.
// Arguments may be a JSON object or a string holding JSON text.
type RecordToolCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ParseRecord decodes one raw record. Failures are returned as *chat.DecodeError.
func ParseRecord(raw []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, &chat.DecodeError{Record: string(raw), Err: err}
	}
	for i, call := range rec.ToolCalls {
		if call.Name == "" {
			return nil, &chat.DecodeError{Record: string(raw), Err: errors.New("tool call without name")}
		}
		args, err := normalizeArguments(call.Arguments)
		if err != nil {
			return nil, &chat.DecodeError{Record: string(raw), Err: err}
		}
		rec.ToolCalls[i].Arguments = args
	}
	return &rec, nil
}

// Usage returns the token counters carried by the record, if any
func (r *Record) Usage() (chat.TokenUsage, bool) {
	if r.PromptTokens == nil && r.CompletionTokens == nil {
		return chat.TokenUsage{}, false
	}
	var prompt, completion int
	if r.PromptTokens != nil {
		prompt = *r.PromptTokens
	}
	if r.CompletionTokens != nil {
		completion = *r.CompletionTokens
	}
	return chat.NewTokenUsage(prompt, completion), true
}

// Calls converts the wire tool calls into requests
func (r *Record) Calls() []chat.ToolCallRequest {
	if len(r.ToolCalls) == 0 {
		return nil
	}
	calls := make([]chat.ToolCallRequest, 0, len(r.ToolCalls))
	for _, call := range r.ToolCalls {
		calls = append(calls, chat.ToolCallRequest{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: string(call.Arguments),
		})
	}
	return calls
}

func normalizeArguments(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}"), nil
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, err
		}
		if text == "" {
			return json.RawMessage("{}"), nil
		}
		trimmed = []byte(text)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, err
	}
	if buf.Len() == 0 || buf.Bytes()[0] != '{' {
		return nil, errors.New("tool call arguments must be a JSON object")
	}
	return buf.Bytes(), nil
}

// FinishReasonFor classifies a completed response. Requested tools win over
// the reason reported on the wire; a reported "error" is kept.
func FinishReasonFor(calls []chat.ToolCallRequest, doneReason string) chat.FinishReason {
	if len(calls) > 0 {
		return chat.FinishToolCall
	}
	if doneReason == string(chat.FinishError) {
		return chat.FinishError
	}
	return chat.FinishStop
}

// Decoder turns a Source into Events.
// Usage is taken from the last record that carries counters and tool calls
// accumulate across records in arrival order. The decoder never keeps the text.
type Decoder struct {
	src    Source
	usage  chat.TokenUsage
	calls  []chat.ToolCallRequest
	reason string
}

func NewDecoder(src Source) *Decoder {
	return &Decoder{src: src}
}

// Run reads records until a terminal event has been emitted or emit returns false.
// emit is called from the goroutine that calls Run.
func (d *Decoder) Run(emit func(Event) bool) {
	for {
		raw, err := d.src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				emit(d.done())
				return
			}
			emit(Failure(readError(err)))
			return
		}

		rec, err := ParseRecord(raw)
		if err != nil {
			emit(Failure(err))
			return
		}

		if usage, ok := rec.Usage(); ok {
			d.usage = usage
		}
		d.calls = append(d.calls, rec.Calls()...)
		if rec.DoneReason != "" {
			d.reason = rec.DoneReason
		}

		if rec.Content != "" && !emit(Token(rec.Content)) {
			return
		}
		if rec.Done {
			emit(d.done())
			return
		}
	}
}

func (d *Decoder) done() Event {
	return Done(d.usage, FinishReasonFor(d.calls, d.reason), d.calls)
}
