package observability

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	globalLogger zerolog.Logger
	loggerOnce   sync.Once
	loggerMu     sync.RWMutex
)

// InitLogger initializes the global structured logger writing to stdout.
// Only the first call has an effect.
func InitLogger(level string, pretty bool) {
	loggerOnce.Do(func() {
		setLogger(newLogger(os.Stdout, level, pretty))
	})
}

// SetOutput replaces the global logger, for tools and tests that capture logs
func SetOutput(w io.Writer, level string, pretty bool) {
	loggerOnce.Do(func() {})
	setLogger(newLogger(w, level, pretty))
}

func newLogger(w io.Writer, level string, pretty bool) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		// Pretty console output for development
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func setLogger(logger zerolog.Logger) {
	loggerMu.Lock()
	globalLogger = logger
	log.Logger = logger
	loggerMu.Unlock()
}

// GetLogger returns the global logger
func GetLogger() zerolog.Logger {
	InitLogger("info", false)

	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return globalLogger
}

// WithContext creates a logger with context fields
func WithContext(fields map[string]interface{}) zerolog.Logger {
	return GetLogger().With().Fields(fields).Logger()
}

// WithCorrelationID creates a logger with a correlation ID
func WithCorrelationID(correlationID string) zerolog.Logger {
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}
	return GetLogger().With().Str("correlation_id", correlationID).Logger()
}

// ForTurn creates the logger used for one conversational turn
func ForTurn(correlationID, conversationID, mode string) zerolog.Logger {
	return WithCorrelationID(correlationID).With().
		Str("conversation_id", conversationID).
		Str("mode", mode).
		Logger()
}

// NewCorrelationID generates a new correlation ID
func NewCorrelationID() string {
	return uuid.New().String()
}
