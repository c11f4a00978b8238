package memory

import (
	"sync"
)

// Store hands out one window per conversation id.
// Callers must serialize turns on the same conversation.
type Store struct {
	mu            sync.Mutex
	maxMessages   int
	conversations map[string]*WindowMemory
}

func NewStore(maxMessages int) *Store {
	return &Store{
		maxMessages:   maxMessages,
		conversations: make(map[string]*WindowMemory),
	}
}

// For returns the memory of a conversation, creating it on first use
func (s *Store) For(conversationID string) Memory {
	return s.window(conversationID)
}

// Window is For with the concrete type
func (s *Store) Window(conversationID string) *WindowMemory {
	return s.window(conversationID)
}

// Delete forgets a conversation
func (s *Store) Delete(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
}

// Len returns the number of known conversations
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

func (s *Store) window(conversationID string) *WindowMemory {
	s.mu.Lock()
	defer s.mu.Unlock()

	mem, ok := s.conversations[conversationID]
	if !ok {
		mem = NewWindowMemory(s.maxMessages)
		s.conversations[conversationID] = mem
	}
	return mem
}
