package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/chat-orchestrator/internal/chat"
	"github.com/lexiqai/chat-orchestrator/internal/observability"
	"github.com/lexiqai/chat-orchestrator/internal/orchestrator"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	// Origin checks are left to the reverse proxy
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Frame types sent to websocket clients
const (
	FrameSession  = "session"
	FrameToken    = "token"
	FrameComplete = "complete"
	FrameError    = "error"
)

// ClientMessage is a message sent by a websocket client
type ClientMessage struct {
	Type string `json:"type"` // "message"
	Text string `json:"text"`
}

// Frame is a message sent to a websocket client
type Frame struct {
	Type           string         `json:"type"`
	ConversationID string         `json:"conversation_id"`
	Text           string         `json:"text,omitempty"`
	Response       *chat.Response `json:"response,omitempty"`
	Error          string         `json:"error,omitempty"`
	ErrorKind      string         `json:"error_kind,omitempty"`
}

// Session holds the state of one websocket connection
type Session struct {
	conn           *websocket.Conn
	gateway        *Gateway
	conversationID string
	logger         zerolog.Logger

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// HandleWS upgrades the request and streams turns for one conversation.
// The conversation is taken from the conversation_id query parameter or generated.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()

	observability.ConnectionOpened()
	defer observability.ConnectionClosed()

	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		conversationID = newConversationID()
	}

	s := &Session{
		conn:           conn,
		gateway:        g,
		conversationID: conversationID,
		logger:         g.logger.With().Str("conversation_id", conversationID).Logger(),
	}
	s.logger.Info().Msg("WebSocket session started")
	s.run(r.Context())
	s.logger.Info().Msg("WebSocket session ended")
}

// run reads client messages until the connection closes. In-flight turns are
// cancelled when it returns.
func (s *Session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.wg.Wait()
	}()

	if err := s.send(Frame{Type: FrameSession}); err != nil {
		return
	}

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.send(Frame{Type: FrameError, Error: "invalid message: " + err.Error(), ErrorKind: "bad_request"})
			continue
		}

		switch msg.Type {
		case "", "message":
			s.startTurn(ctx, msg.Text)
		default:
			s.send(Frame{Type: FrameError, Error: "unknown message type " + msg.Type, ErrorKind: "bad_request"})
		}
	}
}

func (s *Session) startTurn(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		s.send(Frame{Type: FrameError, Error: "text is required", ErrorKind: "bad_request"})
		return
	}
	if !s.gateway.acquire(s.conversationID) {
		s.send(Frame{Type: FrameError, Error: ErrConversationBusy.Error(), ErrorKind: "busy"})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.gateway.release(s.conversationID)

		s.gateway.runner.RunTurn(ctx, s.conversationID, text, orchestrator.Handler{
			OnToken: func(token string) {
				s.send(Frame{Type: FrameToken, Text: token})
			},
			OnComplete: func(resp *chat.Response) {
				s.send(Frame{Type: FrameComplete, Response: resp})
			},
			OnError: func(err error) {
				s.send(Frame{Type: FrameError, Error: err.Error(), ErrorKind: chat.ErrorKind(err)})
			},
		})
	}()
}

func (s *Session) send(f Frame) error {
	f.ConversationID = s.conversationID

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(f); err != nil {
		s.logger.Debug().Err(err).Str("frame", f.Type).Msg("Failed to write frame")
		return err
	}
	return nil
}

func newConversationID() string {
	return uuid.New().String()
}
