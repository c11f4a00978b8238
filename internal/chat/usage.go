package chat

// TokenUsage holds additive token counters.
// The zero value is the identity for Add.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// NewTokenUsage builds a usage value, clamping negative counters to zero
func NewTokenUsage(prompt, completion int) TokenUsage {
	return TokenUsage{
		PromptTokens:     nonNegative(prompt),
		CompletionTokens: nonNegative(completion),
	}
}

// Add returns the sum of u and other without modifying either
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     nonNegative(u.PromptTokens) + nonNegative(other.PromptTokens),
		CompletionTokens: nonNegative(u.CompletionTokens) + nonNegative(other.CompletionTokens),
	}
}

// Total returns prompt plus completion tokens
func (u TokenUsage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// IsZero reports whether no tokens were counted
func (u TokenUsage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
