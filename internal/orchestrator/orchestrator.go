package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/chat-orchestrator/internal/chat"
	"github.com/lexiqai/chat-orchestrator/internal/memory"
	"github.com/lexiqai/chat-orchestrator/internal/observability"
	"github.com/lexiqai/chat-orchestrator/internal/resilience"
	"github.com/lexiqai/chat-orchestrator/internal/stream"
	"github.com/lexiqai/chat-orchestrator/internal/tools"
)

// DefaultMaxRounds bounds model calls per turn when Options.MaxRounds is unset
const DefaultMaxRounds = 10

const (
	modeStream = "stream"
	modeSync   = "sync"
)

// Transport opens model responses
type Transport interface {
	OpenStream(ctx context.Context, req chat.Request) (stream.Source, error)
	Send(ctx context.Context, req chat.Request) ([]byte, error)
}

// MemoryProvider returns the memory of a conversation
type MemoryProvider interface {
	For(conversationID string) memory.Memory
}

// ToolRegistry resolves tool names
type ToolRegistry interface {
	Lookup(name string) (tools.Executor, bool)
	Specifications() []chat.ToolSpecification
}

// Handler receives the outcome of a streamed turn.
// Exactly one of OnComplete or OnError is called per turn.
type Handler struct {
	OnToken    func(text string)
	OnComplete func(resp *chat.Response)
	OnError    func(err error)
}

// Options configures an Orchestrator
type Options struct {
	Model        string
	Transport    Transport
	Memory       MemoryProvider
	Tools        ToolRegistry
	SystemPrompt string
	MaxRounds    int
	ToolTimeout  time.Duration // zero means tools run without a deadline
	BufferLimit  int           // bridge queue bound; zero means unbounded

	// Synchronous path only
	Retry   *resilience.RetryConfig
	Breaker *resilience.CircuitBreaker

	// OnStateChange observes every transition of every turn
	OnStateChange func(conversationID string, from, to State)
}

// Orchestrator runs the model -> tool -> model protocol for conversational turns.
// It is safe for concurrent use across conversations; turns on the same
// conversation must not overlap.
type Orchestrator struct {
	model         string
	transport     Transport
	memory        MemoryProvider
	tools         ToolRegistry
	systemPrompt  string
	maxRounds     int
	toolTimeout   time.Duration
	bufferLimit   int
	retry         *resilience.RetryConfig
	breaker       *resilience.CircuitBreaker
	onStateChange func(conversationID string, from, to State)
	logger        zerolog.Logger
}

// New validates collaborators and creates an Orchestrator
func New(opts Options) (*Orchestrator, error) {
	if opts.Transport == nil {
		return nil, &chat.ConfigurationError{Field: "transport", Message: "transport is required"}
	}
	if opts.Memory == nil {
		return nil, &chat.ConfigurationError{Field: "memory", Message: "memory provider is required"}
	}
	if opts.Tools == nil {
		return nil, &chat.ConfigurationError{Field: "tools", Message: "tool registry is required"}
	}
	if err := chat.ValidateToolSpecifications(opts.Tools.Specifications()); err != nil {
		return nil, err
	}

	maxRounds := opts.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}

	retry := opts.Retry
	if retry == nil {
		retry = resilience.DefaultRetryConfig()
	}

	breaker := opts.Breaker
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("model", 5, 30*time.Second)
		breaker.IsFailure = resilience.IsTransientTransportError
	}

	return &Orchestrator{
		model:         opts.Model,
		transport:     opts.Transport,
		memory:        opts.Memory,
		tools:         opts.Tools,
		systemPrompt:  strings.TrimSpace(opts.SystemPrompt),
		maxRounds:     maxRounds,
		toolTimeout:   opts.ToolTimeout,
		bufferLimit:   opts.BufferLimit,
		retry:         retry,
		breaker:       breaker,
		onStateChange: opts.OnStateChange,
		logger:        observability.GetLogger().With().Str("component", "orchestrator").Logger(),
	}, nil
}

// RunTurn appends userText to the conversation and streams the answer through h.
// It blocks until the turn completes or fails. Errors are delivered to
// h.OnError as-is; the streaming path never retries.
func (o *Orchestrator) RunTurn(ctx context.Context, conversationID, userText string, h Handler) {
	t := o.newTurn(conversationID, modeStream)

	resp, err := t.run(ctx, userText, func(ctx context.Context, req chat.Request) (roundResult, error) {
		return o.streamRound(ctx, t, req, h)
	})
	if err != nil {
		if h.OnError != nil {
			h.OnError(err)
		}
		return
	}
	if h.OnComplete != nil {
		h.OnComplete(resp)
	}
}

// Complete runs a turn without streaming. Each round is a single request,
// retried on transient transport failures and guarded by the circuit breaker.
func (o *Orchestrator) Complete(ctx context.Context, conversationID, userText string) (*chat.Response, error) {
	t := o.newTurn(conversationID, modeSync)
	return t.run(ctx, userText, func(ctx context.Context, req chat.Request) (roundResult, error) {
		return o.sendRound(ctx, t, req)
	})
}

// roundResult is what one model round produced
type roundResult struct {
	text   string
	calls  []chat.ToolCallRequest
	usage  chat.TokenUsage
	reason chat.FinishReason
}

type roundFunc func(ctx context.Context, req chat.Request) (roundResult, error)

func (o *Orchestrator) streamRound(ctx context.Context, t *turn, req chat.Request, h Handler) (roundResult, error) {
	req.Stream = true
	src, err := o.transport.OpenStream(ctx, req)
	if err != nil {
		return roundResult{}, err
	}
	t.transition(StateStreaming)

	bridge := stream.Open(src, stream.Options{BufferLimit: o.bufferLimit})
	defer bridge.Close()

	var text strings.Builder
	for {
		ev, err := bridge.Recv(ctx)
		if err != nil {
			return roundResult{}, err
		}

		switch ev.Kind {
		case stream.EventToken:
			text.WriteString(ev.Text)
			if h.OnToken != nil {
				h.OnToken(ev.Text)
			}
		case stream.EventDone:
			t.metrics.RecordQueueHighWater(bridge.HighWater())
			return roundResult{text: text.String(), calls: ev.ToolCalls, usage: ev.Usage, reason: ev.FinishReason}, nil
		case stream.EventError:
			return roundResult{}, ev.Err
		}
	}
}

func (o *Orchestrator) sendRound(ctx context.Context, t *turn, req chat.Request) (roundResult, error) {
	req.Stream = false

	var body []byte
	err := o.breaker.Call(func() error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			var sendErr error
			body, sendErr = o.transport.Send(ctx, req)
			return sendErr
		}, o.retry, resilience.IsTransientTransportError)
	})

	observability.UpdateCircuitBreakerState(o.breaker.Name(), int(o.breaker.GetState()))
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return roundResult{}, &chat.TransportError{Err: err}
		}
		if resilience.IsTransientTransportError(err) {
			observability.IncrementCircuitBreakerFailures(o.breaker.Name())
		}
		return roundResult{}, err
	}

	rec, err := stream.ParseRecord(body)
	if err != nil {
		return roundResult{}, err
	}
	usage, _ := rec.Usage()
	calls := rec.Calls()
	return roundResult{
		text:   rec.Content,
		calls:  calls,
		usage:  usage,
		reason: stream.FinishReasonFor(calls, rec.DoneReason),
	}, nil
}

// turn holds the state of one RunTurn or Complete invocation
type turn struct {
	o              *Orchestrator
	conversationID string
	mem            memory.Memory
	state          State
	usage          chat.TokenUsage
	rounds         int
	logger         zerolog.Logger
	metrics        *observability.TurnMetrics
}

func (o *Orchestrator) newTurn(conversationID, mode string) *turn {
	return &turn{
		o:              o,
		conversationID: conversationID,
		mem:            o.memory.For(conversationID),
		state:          StateAwaitingModel,
		logger:         observability.ForTurn(observability.NewCorrelationID(), conversationID, mode),
		metrics:        observability.NewTurnMetrics(mode),
	}
}

func (t *turn) run(ctx context.Context, userText string, round roundFunc) (resp *chat.Response, err error) {
	t.metrics.RecordTurnStart()
	start := time.Now()
	defer func() {
		t.metrics.RecordTurnEnd(err == nil, t.rounds)
		if err != nil {
			t.transition(StateFailed)
			t.metrics.RecordError(chat.ErrorKind(err), "orchestrator")
			t.logger.Error().Err(err).
				Str("error_kind", chat.ErrorKind(err)).
				Int("rounds", t.rounds).
				Msg("Turn failed")
			return
		}
		t.transition(StateComplete)
		t.logger.Info().
			Int("rounds", t.rounds).
			Int("prompt_tokens", resp.Usage.PromptTokens).
			Int("completion_tokens", resp.Usage.CompletionTokens).
			Dur("duration", time.Since(start)).
			Msg("Turn complete")
	}()

	t.mem.Add(chat.UserMessage(userText))

	for {
		t.rounds++
		t.logger.Debug().Int("round", t.rounds).Msg("Requesting model")

		t.metrics.RecordModelStart()
		result, err := round(ctx, t.buildRequest())
		t.metrics.RecordModelEnd(err == nil)
		if err != nil {
			return nil, err
		}

		t.usage = t.usage.Add(result.usage)
		t.metrics.RecordTokens(result.usage.PromptTokens, result.usage.CompletionTokens)

		calls := chat.EnsureToolCallIDs(result.calls)
		if len(calls) > 0 && t.rounds >= t.o.maxRounds {
			return nil, fmt.Errorf("model still requested %d tool(s) after %d rounds: %w", len(calls), t.rounds, chat.ErrMaxRoundsExceeded)
		}

		assistant := chat.AssistantMessage(result.text, calls)
		t.mem.Add(assistant)

		if len(calls) == 0 {
			return &chat.Response{
				Message:      assistant,
				Usage:        t.usage,
				FinishReason: result.reason,
			}, nil
		}

		t.transition(StateToolExecution)
		if err := t.executeTools(ctx, calls); err != nil {
			return nil, err
		}
		t.transition(StateAwaitingModel)
	}
}

func (t *turn) buildRequest() chat.Request {
	messages := t.mem.Messages()
	if t.o.systemPrompt != "" {
		messages = append([]chat.Message{chat.SystemMessage(t.o.systemPrompt)}, messages...)
	}
	return chat.Request{
		Model:    t.o.model,
		Messages: messages,
		Tools:    t.o.tools.Specifications(),
	}
}

// executeTools resolves every requested tool before running any of them,
// then runs them in request order and records each result.
func (t *turn) executeTools(ctx context.Context, calls []chat.ToolCallRequest) error {
	executors := make([]tools.Executor, len(calls))
	for i, call := range calls {
		exec, ok := t.o.tools.Lookup(call.Name)
		if !ok {
			return &chat.UnknownToolError{Name: call.Name, CallID: call.ID}
		}
		executors[i] = exec
	}

	for i, call := range calls {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := t.execute(ctx, executors[i], call)
		if err != nil {
			return &chat.ToolExecutionError{Name: call.Name, CallID: call.ID, Err: err}
		}
		t.mem.Add(chat.ToolResultMessage(call, result))
	}
	return nil
}

func (t *turn) execute(ctx context.Context, exec tools.Executor, call chat.ToolCallRequest) (result string, err error) {
	if t.o.toolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.o.toolTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
		t.metrics.RecordToolExecution(call.Name, time.Since(start), err == nil)

		event := t.logger.Info()
		if err != nil {
			event = t.logger.Warn().Err(err)
		}
		event.Str("tool", call.Name).
			Str("call_id", call.ID).
			Int("round", t.rounds).
			Dur("duration", time.Since(start)).
			Msg("Tool executed")
	}()

	return exec.Execute(ctx, call, t.conversationID)
}

func (t *turn) transition(to State) {
	from := t.state
	if from == to || from.Terminal() {
		return
	}
	t.state = to
	t.logger.Debug().Str("from", from.String()).Str("state", to.String()).Int("round", t.rounds).Msg("State transition")
	if t.o.onStateChange != nil {
		t.o.onStateChange(t.conversationID, from, to)
	}
}
