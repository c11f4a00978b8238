package memory

import (
	"sync"

	"github.com/lexiqai/chat-orchestrator/internal/chat"
)

// DefaultMaxMessages is the window size used when none is configured
const DefaultMaxMessages = 10

// Memory is the ordered message history of one conversation
type Memory interface {
	Messages() []chat.Message
	Add(msg chat.Message)
}

// WindowMemory keeps the most recent messages of a conversation.
// When the window overflows the oldest messages are evicted, except a leading
// system message. Tool results whose requesting assistant message was evicted
// are dropped with it so the history never starts with an orphaned result.
type WindowMemory struct {
	mu          sync.RWMutex
	maxMessages int
	messages    []chat.Message
}

// NewWindowMemory creates an empty window
func NewWindowMemory(maxMessages int) *WindowMemory {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &WindowMemory{maxMessages: maxMessages}
}

// Add appends a copy of msg and evicts as needed. A tool result whose
// requesting assistant message is no longer in the window is discarded.
func (m *WindowMemory) Add(msg chat.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.Role == chat.RoleTool && msg.ToolResult != nil && !m.hasRequest(msg.ToolResult.Request.ID) {
		return
	}
	m.messages = append(m.messages, msg.Clone())
	m.evict()
}

// Messages returns a copy of the history, oldest first
func (m *WindowMemory) Messages() []chat.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]chat.Message, len(m.messages))
	for i, msg := range m.messages {
		out[i] = msg.Clone()
	}
	return out
}

// Len returns the number of stored messages
func (m *WindowMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

// Clear removes every message
func (m *WindowMemory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

func (m *WindowMemory) evict() {
	for len(m.messages) > m.maxMessages {
		head := 0
		if m.messages[0].Role == chat.RoleSystem {
			head = 1
		}
		if head >= len(m.messages) {
			return
		}
		m.removeAt(head)
		// Drop results left without their request
		for head < len(m.messages) && m.messages[head].Role == chat.RoleTool {
			m.removeAt(head)
		}
	}
}

// hasRequest reports whether an assistant message in the window asked for callID
func (m *WindowMemory) hasRequest(callID string) bool {
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Role != chat.RoleAssistant {
			continue
		}
		for _, call := range m.messages[i].ToolCalls {
			if call.ID == callID {
				return true
			}
		}
	}
	return false
}

func (m *WindowMemory) removeAt(i int) {
	copy(m.messages[i:], m.messages[i+1:])
	m.messages[len(m.messages)-1] = chat.Message{}
	m.messages = m.messages[:len(m.messages)-1]
}
