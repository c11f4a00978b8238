package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Turn metrics
	activeTurns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_orchestrator_active_turns",
		Help: "Number of turns currently running",
	})

	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_orchestrator_turns_total",
		Help: "Total number of turns by mode and outcome",
	}, []string{"mode", "status"})

	turnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_orchestrator_turn_duration_seconds",
		Help:    "Duration of a turn from user message to final answer",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"mode"})

	roundsPerTurn = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_orchestrator_rounds_per_turn",
		Help:    "Model rounds needed to finish a turn",
		Buckets: []float64{1, 2, 3, 4, 5, 7, 10},
	})

	// Model metrics
	modelRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_orchestrator_model_requests_total",
		Help: "Total number of model requests",
	}, []string{"status"})

	modelLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_orchestrator_model_latency_seconds",
		Help:    "Model round latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_orchestrator_tokens_total",
		Help: "Tokens reported by the model",
	}, []string{"kind"}) // kind: "prompt" or "completion"

	streamQueueHighWater = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_orchestrator_stream_queue_high_water",
		Help:    "Largest number of undelivered events queued during a model round",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
	})

	// Tool metrics
	toolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_orchestrator_tool_executions_total",
		Help: "Total number of tool executions",
	}, []string{"tool", "status"})

	toolLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_orchestrator_tool_latency_seconds",
		Help:    "Tool execution latency in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
	}, []string{"tool"})

	// Gateway metrics
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_orchestrator_active_connections",
		Help: "Number of open streaming connections",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_orchestrator_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chat_orchestrator_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_orchestrator_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// TurnMetrics tracks metrics for a single turn
type TurnMetrics struct {
	mode           string
	startTime      time.Time
	modelStartTime time.Time
	mu             sync.Mutex
}

// NewTurnMetrics creates a metrics tracker for a turn; mode is "stream" or "sync"
func NewTurnMetrics(mode string) *TurnMetrics {
	return &TurnMetrics{
		mode:      mode,
		startTime: time.Now(),
	}
}

// RecordTurnStart records the start of a turn
func (m *TurnMetrics) RecordTurnStart() {
	activeTurns.Inc()
}

// RecordTurnEnd records the outcome of a turn and how many model rounds it took
func (m *TurnMetrics) RecordTurnEnd(success bool, rounds int) {
	activeTurns.Dec()
	turnDuration.WithLabelValues(m.mode).Observe(time.Since(m.startTime).Seconds())
	turnsTotal.WithLabelValues(m.mode, statusLabel(success)).Inc()
	if rounds > 0 {
		roundsPerTurn.Observe(float64(rounds))
	}
}

// RecordModelStart records the start of a model round
func (m *TurnMetrics) RecordModelStart() {
	m.mu.Lock()
	m.modelStartTime = time.Now()
	m.mu.Unlock()
}

// RecordModelEnd records the end of a model round
func (m *TurnMetrics) RecordModelEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.modelStartTime.IsZero() {
		modelLatency.Observe(time.Since(m.modelStartTime).Seconds())
		m.modelStartTime = time.Time{}
	}
	modelRequests.WithLabelValues(statusLabel(success)).Inc()
}

// RecordTokens adds the token counters reported for a round
func (m *TurnMetrics) RecordTokens(prompt, completion int) {
	if prompt > 0 {
		tokensTotal.WithLabelValues("prompt").Add(float64(prompt))
	}
	if completion > 0 {
		tokensTotal.WithLabelValues("completion").Add(float64(completion))
	}
}

// RecordToolExecution records one tool call
func (m *TurnMetrics) RecordToolExecution(tool string, duration time.Duration, success bool) {
	toolLatency.WithLabelValues(tool).Observe(duration.Seconds())
	toolExecutions.WithLabelValues(tool, statusLabel(success)).Inc()
}

// RecordQueueHighWater records the deepest backlog of a streamed round
func (m *TurnMetrics) RecordQueueHighWater(depth int) {
	streamQueueHighWater.Observe(float64(depth))
}

// RecordError records an error
func (m *TurnMetrics) RecordError(errorType, component string) {
	RecordError(errorType, component)
}

// RecordError records an error outside a turn
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// ConnectionOpened tracks a new streaming client connection
func ConnectionOpened() {
	activeConnections.Inc()
}

// ConnectionClosed tracks a closed streaming client connection
func ConnectionClosed() {
	activeConnections.Dec()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
