package chat

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Role identifies who authored a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool" // tool execution result
)

// FinishReason classifies why a round ended
type FinishReason string

const (
	FinishStop     FinishReason = "stop"
	FinishToolCall FinishReason = "tool_call"
	FinishError    FinishReason = "error"
)

// ToolCallRequest is a model request to invoke a tool by name
type ToolCallRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // Raw JSON object text, opaque to the orchestrator
}

// ToolCallResult answers a ToolCallRequest
type ToolCallResult struct {
	Request ToolCallRequest `json:"request"`
	Content string          `json:"content"`
}

// Message is a single entry of a conversation.
// Messages are treated as immutable once appended to memory; use Clone when handing them out.
type Message struct {
	Role       Role              `json:"role"`
	Content    string            `json:"content,omitempty"`
	ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
	ToolResult *ToolCallResult   `json:"tool_result,omitempty"`
}

// HasToolCalls reports whether the message asks for tool execution
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Clone returns a deep copy of the message
func (m Message) Clone() Message {
	cloned := m
	if len(m.ToolCalls) > 0 {
		cloned.ToolCalls = append([]ToolCallRequest(nil), m.ToolCalls...)
	}
	if m.ToolResult != nil {
		result := *m.ToolResult
		cloned.ToolResult = &result
	}
	return cloned
}

func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage builds an assistant message carrying optional tool call requests
func AssistantMessage(text string, calls []ToolCallRequest) Message {
	msg := Message{Role: RoleAssistant, Content: text}
	if len(calls) > 0 {
		msg.ToolCalls = append([]ToolCallRequest(nil), calls...)
	}
	return msg
}

// ToolResultMessage wraps a tool result as a conversation message
func ToolResultMessage(req ToolCallRequest, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolResult: &ToolCallResult{Request: req, Content: content},
	}
}

// ParameterSpec describes one tool parameter
type ParameterSpec struct {
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// ToolSpecification describes a callable tool to the model
type ToolSpecification struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Parameters  map[string]ParameterSpec `json:"parameters,omitempty"`
}

// RequiredParameters returns the names of required parameters in a stable order
func (s ToolSpecification) RequiredParameters() []string {
	var names []string
	for name, p := range s.Parameters {
		if p.Required {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ValidateToolSpecifications checks that every specification is named and names are unique
func ValidateToolSpecifications(specs []ToolSpecification) error {
	seen := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return &ConfigurationError{Field: "tools", Message: "tool name is empty"}
		}
		if _, exists := seen[name]; exists {
			return &ConfigurationError{Field: "tools", Message: fmt.Sprintf("duplicate tool name %q", name)}
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Request is a single model invocation built from memory
type Request struct {
	Model    string              `json:"model"`
	Messages []Message           `json:"messages"`
	Tools    []ToolSpecification `json:"tools,omitempty"`
	Stream   bool                `json:"stream"`
}

// Response is the final outcome of a turn
type Response struct {
	Message      Message      `json:"message"`
	Usage        TokenUsage   `json:"usage"`
	FinishReason FinishReason `json:"finish_reason"`
}

// EnsureToolCallIDs fills in missing identifiers so every result can be correlated
func EnsureToolCallIDs(calls []ToolCallRequest) []ToolCallRequest {
	for i := range calls {
		if strings.TrimSpace(calls[i].ID) == "" {
			calls[i].ID = "call_" + uuid.NewString()
		}
	}
	return calls
}
