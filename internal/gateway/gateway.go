package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/chat-orchestrator/internal/chat"
	"github.com/lexiqai/chat-orchestrator/internal/observability"
	"github.com/lexiqai/chat-orchestrator/internal/orchestrator"
)

// ErrConversationBusy is returned when a conversation already has a turn in flight
var ErrConversationBusy = errors.New("conversation already has a turn in flight")

const maxRequestBody = 1 << 20

// Runner executes conversational turns
type Runner interface {
	RunTurn(ctx context.Context, conversationID, userText string, h orchestrator.Handler)
	Complete(ctx context.Context, conversationID, userText string) (*chat.Response, error)
}

// Gateway exposes a Runner over websocket and JSON endpoints.
// Only one turn per conversation runs at a time.
type Gateway struct {
	runner Runner
	logger zerolog.Logger

	mu   sync.Mutex
	busy map[string]struct{}
}

func New(runner Runner) *Gateway {
	return &Gateway{
		runner: runner,
		logger: observability.GetLogger().With().Str("component", "gateway").Logger(),
		busy:   make(map[string]struct{}),
	}
}

// Register mounts the chat endpoints on mux
func (g *Gateway) Register(mux *http.ServeMux) {
	mux.HandleFunc("/chat/ws", g.HandleWS)
	mux.HandleFunc("/chat/complete", g.HandleComplete)
}

// acquire marks the conversation busy, reporting false if it already was
func (g *Gateway) acquire(conversationID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.busy[conversationID]; ok {
		return false
	}
	g.busy[conversationID] = struct{}{}
	return true
}

func (g *Gateway) release(conversationID string) {
	g.mu.Lock()
	delete(g.busy, conversationID)
	g.mu.Unlock()
}

// CompleteRequest is the body of POST /chat/complete
type CompleteRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

// CompleteResponse is the successful reply of POST /chat/complete
type CompleteResponse struct {
	ConversationID string         `json:"conversation_id"`
	Response       *chat.Response `json:"response"`
}

// ErrorResponse describes a failed request or turn
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// HandleComplete runs one synchronous turn
func (g *Gateway) HandleComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}

	var req CompleteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "message is required"})
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = newConversationID()
	}

	if !g.acquire(req.ConversationID) {
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: ErrConversationBusy.Error(), ErrorKind: "busy"})
		return
	}
	defer g.release(req.ConversationID)

	resp, err := g.runner.Complete(r.Context(), req.ConversationID, req.Message)
	if err != nil {
		kind := chat.ErrorKind(err)
		g.logger.Warn().Err(err).
			Str("conversation_id", req.ConversationID).
			Str("error_kind", kind).
			Msg("Completion failed")
		writeJSON(w, statusForError(err), ErrorResponse{Error: err.Error(), ErrorKind: kind})
		return
	}

	writeJSON(w, http.StatusOK, CompleteResponse{ConversationID: req.ConversationID, Response: resp})
}

func statusForError(err error) int {
	switch chat.ErrorKind(err) {
	case "transport", "decode":
		return http.StatusBadGateway
	case "cancelled":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
