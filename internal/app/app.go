package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/lexiqai/chat-orchestrator/internal/booking"
	"github.com/lexiqai/chat-orchestrator/internal/chat"
	"github.com/lexiqai/chat-orchestrator/internal/config"
	"github.com/lexiqai/chat-orchestrator/internal/memory"
	"github.com/lexiqai/chat-orchestrator/internal/observability"
	"github.com/lexiqai/chat-orchestrator/internal/orchestrator"
	"github.com/lexiqai/chat-orchestrator/internal/resilience"
	"github.com/lexiqai/chat-orchestrator/internal/stream"
	"github.com/lexiqai/chat-orchestrator/internal/tools"
	"github.com/lexiqai/chat-orchestrator/internal/transport"
)

// ModelTransport is a transport that can also report model health
type ModelTransport interface {
	orchestrator.Transport
	HealthCheck(ctx context.Context) (bool, error)
}

// App holds the wired collaborators shared by the server and the CLI
type App struct {
	Config       *config.Config
	Transport    ModelTransport
	Bookings     *booking.Service
	Tools        *tools.Registry
	Memory       *memory.Store
	Breaker      *resilience.CircuitBreaker
	Orchestrator *orchestrator.Orchestrator
}

// Build wires every collaborator from cfg
func Build(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	modelTransport, err := NewTransport(cfg)
	if err != nil {
		return nil, err
	}

	bookings, err := loadBookings(cfg.BookingsFile)
	if err != nil {
		closeTransport(modelTransport)
		return nil, err
	}

	registry, err := tools.NewRegistry(booking.Tools(bookings)...)
	if err != nil {
		closeTransport(modelTransport)
		return nil, err
	}

	breaker := resilience.NewCircuitBreaker("model", cfg.CircuitBreakerMaxFailures, cfg.CircuitBreakerResetDuration())
	breaker.IsFailure = resilience.IsTransientTransportError
	breaker.OnStateChange = func(name string, from, to resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
		logger := observability.GetLogger()
		logger.Warn().
			Str("breaker", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Circuit breaker state changed")
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.RetryMaxAttempts
	retry.InitialBackoff = cfg.RetryInitialBackoffDuration()
	retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
		logger := observability.GetLogger()
		logger.Warn().Err(err).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Retrying model request")
	}

	store := memory.NewStore(cfg.MemoryMaxMessages)

	orch, err := orchestrator.New(orchestrator.Options{
		Model:        cfg.ModelName,
		Transport:    modelTransport,
		Memory:       store,
		Tools:        registry,
		SystemPrompt: cfg.SystemPrompt,
		MaxRounds:    cfg.MaxRounds,
		ToolTimeout:  cfg.ToolTimeoutDuration(),
		BufferLimit:  cfg.StreamBufferLimit,
		Retry:        retry,
		Breaker:      breaker,
	})
	if err != nil {
		closeTransport(modelTransport)
		return nil, err
	}

	return &App{
		Config:       cfg,
		Transport:    modelTransport,
		Bookings:     bookings,
		Tools:        registry,
		Memory:       store,
		Breaker:      breaker,
		Orchestrator: orch,
	}, nil
}

// NewTransport creates the model transport selected by MODEL_TRANSPORT
func NewTransport(cfg *config.Config) (ModelTransport, error) {
	switch cfg.ModelTransport {
	case "grpc":
		t, err := transport.NewGRPCTransport(transport.GRPCConfig{
			Target:       cfg.ModelGRPCTarget,
			StreamMethod: cfg.ModelGRPCMethod,
			UnaryMethod:  cfg.ModelGRPCUnary,
			Model:        cfg.ModelName,
			APIKey:       cfg.ModelAPIKey,
			TLSEnabled:   cfg.ModelTLSEnabled,
			Timeout:      cfg.ModelTimeoutDuration(),
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	case "", "http":
		framing, err := stream.ParseFraming(cfg.StreamFraming)
		if err != nil {
			return nil, err
		}
		t, err := transport.NewHTTPTransport(transport.HTTPConfig{
			BaseURL:      cfg.ModelBaseURL,
			ChatPath:     cfg.ModelChatPath,
			HealthPath:   cfg.ModelHealthPath,
			Model:        cfg.ModelName,
			APIKey:       cfg.ModelAPIKey,
			APIKeyHeader: cfg.ModelAPIKeyHeader,
			Headers:      cfg.ModelHeaders,
			Timeout:      cfg.ModelTimeoutDuration(),
			Framing:      framing,
			ChunkSize:    cfg.StreamChunkSize,
		}, nil)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, &chat.ConfigurationError{Field: "MODEL_TRANSPORT", Message: fmt.Sprintf("unsupported transport %q", cfg.ModelTransport)}
	}
}

// Close releases the model transport
func (a *App) Close() error {
	return closeTransport(a.Transport)
}

func closeTransport(t ModelTransport) error {
	if c, ok := t.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func loadBookings(path string) (*booking.Service, error) {
	seed := booking.DefaultBookings()
	if path != "" {
		loaded, err := booking.LoadFile(path)
		if err != nil {
			return nil, err
		}
		seed = loaded
	}
	return booking.NewService(seed)
}
