package transport

import (
	"encoding/json"
	"sort"

	"github.com/lexiqai/chat-orchestrator/internal/chat"
)

// wireRequest is the request body sent to the model endpoint
type wireRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []wireMessage `json:"messages"`
	Tools    []wireTool    `json:"tools,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type wireToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type wireTool struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  wireSchema `json:"parameters"`
}

type wireSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]wireSchemaProp `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

type wireSchemaProp struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// EncodeRequest renders a request as the JSON body understood by the model endpoint
func EncodeRequest(req chat.Request) ([]byte, error) {
	return json.Marshal(toWire(req))
}

func toWire(req chat.Request) wireRequest {
	out := wireRequest{
		Model:    req.Model,
		Stream:   req.Stream,
		Messages: make([]wireMessage, 0, len(req.Messages)),
	}

	for _, msg := range req.Messages {
		wm := wireMessage{Role: string(msg.Role), Content: msg.Content}
		for _, call := range msg.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:        call.ID,
				Name:      call.Name,
				Arguments: rawArguments(call.Arguments),
			})
		}
		if msg.ToolResult != nil {
			wm.ToolCallID = msg.ToolResult.Request.ID
			wm.Name = msg.ToolResult.Request.Name
		}
		out.Messages = append(out.Messages, wm)
	}

	for _, spec := range req.Tools {
		schema := wireSchema{
			Type:       "object",
			Properties: make(map[string]wireSchemaProp, len(spec.Parameters)),
			Required:   spec.RequiredParameters(),
		}
		for name, param := range spec.Parameters {
			schema.Properties[name] = wireSchemaProp{Type: param.Type, Description: param.Description}
		}
		out.Tools = append(out.Tools, wireTool{Name: spec.Name, Description: spec.Description, Parameters: schema})
	}
	sort.SliceStable(out.Tools, func(i, j int) bool { return out.Tools[i].Name < out.Tools[j].Name })

	return out
}

func rawArguments(args string) json.RawMessage {
	if args == "" || !json.Valid([]byte(args)) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(args)
}
