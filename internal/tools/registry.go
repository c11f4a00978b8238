package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lexiqai/chat-orchestrator/internal/chat"
)

// Executor runs one tool call and returns its textual result
type Executor interface {
	Execute(ctx context.Context, req chat.ToolCallRequest, conversationID string) (string, error)
}

// ExecutorFunc adapts a function to Executor
type ExecutorFunc func(ctx context.Context, req chat.ToolCallRequest, conversationID string) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, req chat.ToolCallRequest, conversationID string) (string, error) {
	return f(ctx, req, conversationID)
}

// Tool pairs a specification with its executor
type Tool struct {
	Spec     chat.ToolSpecification
	Executor Executor
}

// Registry maps tool names to executors. It is filled at startup and read-only
// afterwards, so one registry can serve every conversation.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	validator Validator
}

// NewRegistry creates a registry holding tools, rejecting empty or duplicate names
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools:     make(map[string]Tool, len(tools)),
		validator: DefaultValidator{},
	}
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register inserts a tool when its name is not in use
func (r *Registry) Register(tool Tool) error {
	if tool.Executor == nil {
		return &chat.ConfigurationError{Field: "tools", Message: fmt.Sprintf("tool %q has no executor", tool.Spec.Name)}
	}
	if err := chat.ValidateToolSpecifications([]chat.ToolSpecification{tool.Spec}); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Spec.Name]; exists {
		return &chat.ConfigurationError{Field: "tools", Message: fmt.Sprintf("duplicate tool name %q", tool.Spec.Name)}
	}
	r.tools[tool.Spec.Name] = tool
	return nil
}

// Lookup returns the executor for name. The returned executor validates
// arguments against the tool's parameters before running it.
func (r *Registry) Lookup(name string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return validatingExecutor{spec: tool.Spec, next: tool.Executor, validator: r.validator}, true
}

// Specifications lists all tool specifications ordered by name
func (r *Registry) Specifications() []chat.ToolSpecification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]chat.ToolSpecification, 0, len(r.tools))
	for _, tool := range r.tools {
		specs = append(specs, tool.Spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// SetValidator swaps the validator used before execution
func (r *Registry) SetValidator(v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validator = v
}

type validatingExecutor struct {
	spec      chat.ToolSpecification
	next      Executor
	validator Validator
}

func (v validatingExecutor) Execute(ctx context.Context, req chat.ToolCallRequest, conversationID string) (string, error) {
	if v.validator != nil {
		params, err := DecodeArguments(req.Arguments)
		if err != nil {
			return "", err
		}
		if err := v.validator.Validate(params, v.spec); err != nil {
			return "", fmt.Errorf("invalid arguments for %s: %w", v.spec.Name, err)
		}
	}
	return v.next.Execute(ctx, req, conversationID)
}
