package stream

import (
	"github.com/lexiqai/chat-orchestrator/internal/chat"
)

// EventKind identifies the variant carried by an Event
type EventKind int

const (
	EventToken EventKind = iota + 1
	EventDone
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventToken:
		return "token"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one item delivered from a live model response.
// Token repeats zero or more times; exactly one Done or Error ends the sequence.
type Event struct {
	Kind EventKind

	// Token
	Text string

	// Done
	Usage        chat.TokenUsage
	FinishReason chat.FinishReason
	ToolCalls    []chat.ToolCallRequest

	// Error
	Err error
}

func Token(text string) Event {
	return Event{Kind: EventToken, Text: text}
}

func Done(usage chat.TokenUsage, reason chat.FinishReason, calls []chat.ToolCallRequest) Event {
	return Event{Kind: EventDone, Usage: usage, FinishReason: reason, ToolCalls: calls}
}

func Failure(err error) Event {
	return Event{Kind: EventError, Err: err}
}

// Terminal reports whether the event ends the sequence
func (e Event) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}
