package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/lexiqai/chat-orchestrator/internal/chat"
)

// Config holds all configuration for the chat orchestrator service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Model endpoint
	ModelTransport    string            `envconfig:"MODEL_TRANSPORT" default:"http"` // http or grpc
	ModelBaseURL      string            `envconfig:"MODEL_BASE_URL" default:"http://localhost:11434"`
	ModelChatPath     string            `envconfig:"MODEL_CHAT_PATH" default:"/api/chat"`
	ModelHealthPath   string            `envconfig:"MODEL_HEALTH_PATH" default:""` // Empty disables the readiness probe
	ModelName         string            `envconfig:"MODEL_NAME" required:"true"`
	ModelAPIKey       string            `envconfig:"MODEL_API_KEY" default:""`
	ModelAPIKeyHeader string            `envconfig:"MODEL_API_KEY_HEADER" default:"Authorization"`
	ModelHeaders      map[string]string `envconfig:"MODEL_HEADERS" default:""` // key:value,key2:value2
	ModelGRPCTarget   string            `envconfig:"MODEL_GRPC_TARGET" default:"localhost:50051"`
	ModelGRPCMethod   string            `envconfig:"MODEL_GRPC_METHOD" default:"/chat.v1.ModelService/StreamChat"`
	ModelGRPCUnary    string            `envconfig:"MODEL_GRPC_UNARY_METHOD" default:"/chat.v1.ModelService/Chat"`
	ModelTLSEnabled   bool              `envconfig:"MODEL_TLS_ENABLED" default:"false"`
	ModelTimeout      int               `envconfig:"MODEL_TIMEOUT" default:"60"` // seconds

	// Streaming
	StreamFraming     string `envconfig:"STREAM_FRAMING" default:"lines"`    // lines or chunks
	StreamChunkSize   int    `envconfig:"STREAM_CHUNK_SIZE" default:"1024"`  // bytes per record for chunk framing
	StreamBufferLimit int    `envconfig:"STREAM_BUFFER_LIMIT" default:"0"`   // 0 = unbounded

	// Conversation
	MaxRounds         int    `envconfig:"MAX_ROUNDS" default:"10"`          // model calls per turn
	ToolTimeout       int    `envconfig:"TOOL_TIMEOUT" default:"0"`         // seconds, 0 = no timeout
	MemoryMaxMessages int    `envconfig:"MEMORY_MAX_MESSAGES" default:"10"` // window size per conversation
	SystemPrompt      string `envconfig:"SYSTEM_PROMPT" default:""`
	BookingsFile      string `envconfig:"BOOKINGS_FILE" default:""` // YAML seed; empty uses demo bookings

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum attempts for non-streaming calls
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerations and bounds
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ModelName) == "" {
		return &chat.ConfigurationError{Field: "MODEL_NAME", Message: "is required"}
	}

	switch c.ModelTransport {
	case "http":
		if c.ModelBaseURL == "" {
			return &chat.ConfigurationError{Field: "MODEL_BASE_URL", Message: "is required for the http transport"}
		}
	case "grpc":
		if c.ModelGRPCTarget == "" {
			return &chat.ConfigurationError{Field: "MODEL_GRPC_TARGET", Message: "is required for the grpc transport"}
		}
	default:
		return &chat.ConfigurationError{Field: "MODEL_TRANSPORT", Message: fmt.Sprintf("unknown transport %q (expected http or grpc)", c.ModelTransport)}
	}

	switch c.StreamFraming {
	case "lines", "chunks":
	default:
		return &chat.ConfigurationError{Field: "STREAM_FRAMING", Message: fmt.Sprintf("unknown framing %q (expected lines or chunks)", c.StreamFraming)}
	}

	positive := []struct {
		field string
		value int
	}{
		{"MAX_ROUNDS", c.MaxRounds},
		{"MEMORY_MAX_MESSAGES", c.MemoryMaxMessages},
		{"RETRY_MAX_ATTEMPTS", c.RetryMaxAttempts},
		{"STREAM_CHUNK_SIZE", c.StreamChunkSize},
		{"CIRCUIT_BREAKER_MAX_FAILURES", c.CircuitBreakerMaxFailures},
	}
	for _, p := range positive {
		if p.value < 1 {
			return &chat.ConfigurationError{Field: p.field, Message: "must be positive"}
		}
	}

	nonNegative := []struct {
		field string
		value int
	}{
		{"MODEL_TIMEOUT", c.ModelTimeout},
		{"TOOL_TIMEOUT", c.ToolTimeout},
		{"STREAM_BUFFER_LIMIT", c.StreamBufferLimit},
		{"RETRY_INITIAL_BACKOFF", c.RetryInitialBackoff},
		{"CIRCUIT_BREAKER_RESET_TIMEOUT", c.CircuitBreakerResetTimeout},
	}
	for _, n := range nonNegative {
		if n.value < 0 {
			return &chat.ConfigurationError{Field: n.field, Message: "must not be negative"}
		}
	}

	return nil
}

// ModelTimeoutDuration returns MODEL_TIMEOUT as a duration
func (c *Config) ModelTimeoutDuration() time.Duration {
	return time.Duration(c.ModelTimeout) * time.Second
}

// ToolTimeoutDuration returns TOOL_TIMEOUT as a duration; zero means unbounded
func (c *Config) ToolTimeoutDuration() time.Duration {
	return time.Duration(c.ToolTimeout) * time.Second
}

// CircuitBreakerResetDuration returns CIRCUIT_BREAKER_RESET_TIMEOUT as a duration
func (c *Config) CircuitBreakerResetDuration() time.Duration {
	return time.Duration(c.CircuitBreakerResetTimeout) * time.Second
}

// RetryInitialBackoffDuration returns RETRY_INITIAL_BACKOFF as a duration
func (c *Config) RetryInitialBackoffDuration() time.Duration {
	return time.Duration(c.RetryInitialBackoff) * time.Millisecond
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
