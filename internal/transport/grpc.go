package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lexiqai/chat-orchestrator/internal/chat"
	"github.com/lexiqai/chat-orchestrator/internal/observability"
	"github.com/lexiqai/chat-orchestrator/internal/stream"
)

const (
	DefaultStreamMethod = "/chat.v1.ModelService/StreamChat"
	DefaultUnaryMethod  = "/chat.v1.ModelService/Chat"
)

// GRPCConfig configures the gRPC transport.
// Requests and records travel as google.protobuf.Struct messages with the same
// field layout as the HTTP transport's JSON.
type GRPCConfig struct {
	Target        string
	StreamMethod  string
	UnaryMethod   string
	HealthService string
	Model         string
	APIKey        string
	APIKeyHeader  string
	TLSEnabled    bool
	Timeout       time.Duration

	// DialOptions are appended after the defaults
	DialOptions []grpc.DialOption
}

// GRPCTransport calls a model service over gRPC
type GRPCTransport struct {
	config GRPCConfig
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	logger zerolog.Logger
	mu     sync.RWMutex
	closed bool
}

// NewGRPCTransport creates the client connection. Connecting is lazy; the first
// call or health check establishes it.
func NewGRPCTransport(config GRPCConfig) (*GRPCTransport, error) {
	if config.Target == "" {
		return nil, &chat.ConfigurationError{Field: "MODEL_GRPC_TARGET", Message: "target is required"}
	}
	if config.StreamMethod == "" {
		config.StreamMethod = DefaultStreamMethod
	}
	if config.UnaryMethod == "" {
		config.UnaryMethod = DefaultUnaryMethod
	}
	if config.APIKeyHeader == "" {
		config.APIKeyHeader = "authorization"
	}

	var opts []grpc.DialOption
	if config.TLSEnabled {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	// Keepalive settings for long-lived connections
	opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
		Time:                10 * time.Second,
		Timeout:             3 * time.Second,
		PermitWithoutStream: true,
	}))
	opts = append(opts, config.DialOptions...)

	conn, err := grpc.NewClient(config.Target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", config.Target, err)
	}

	logger := observability.GetLogger().With().Str("component", "grpc_transport").Logger()
	logger.Info().Str("target", config.Target).Bool("tls", config.TLSEnabled).Msg("gRPC transport created")

	return &GRPCTransport{
		config: config,
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		logger: logger,
	}, nil
}

// OpenStream starts a server-streaming call; each received message is one record
func (t *GRPCTransport) OpenStream(ctx context.Context, req chat.Request) (stream.Source, error) {
	conn, err := t.connection()
	if err != nil {
		return nil, err
	}

	req.Stream = true
	msg, err := t.encode(req)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(t.outgoing(ctx))
	clientStream, err := conn.NewStream(streamCtx, &grpc.StreamDesc{ServerStreams: true}, t.config.StreamMethod)
	if err != nil {
		cancel()
		return nil, fromStatus(err)
	}
	if err := clientStream.SendMsg(msg); err != nil {
		cancel()
		return nil, fromStatus(err)
	}
	if err := clientStream.CloseSend(); err != nil {
		cancel()
		return nil, fromStatus(err)
	}

	t.logger.Debug().Str("method", t.config.StreamMethod).Int("messages", len(req.Messages)).Msg("Model stream opened")
	return &grpcSource{stream: clientStream, cancel: cancel}, nil
}

// Send performs a unary call and returns the response rendered as JSON
func (t *GRPCTransport) Send(ctx context.Context, req chat.Request) ([]byte, error) {
	conn, err := t.connection()
	if err != nil {
		return nil, err
	}

	if t.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Timeout)
		defer cancel()
	}

	req.Stream = false
	in, err := t.encode(req)
	if err != nil {
		return nil, err
	}

	out := &structpb.Struct{}
	if err := conn.Invoke(t.outgoing(ctx), t.config.UnaryMethod, in, out); err != nil {
		return nil, fromStatus(err)
	}

	body, err := protojson.Marshal(out)
	if err != nil {
		return nil, &chat.DecodeError{Record: out.String(), Err: err}
	}
	return body, nil
}

// HealthCheck queries the standard gRPC health service
func (t *GRPCTransport) HealthCheck(ctx context.Context) (bool, error) {
	if _, err := t.connection(); err != nil {
		return false, err
	}

	resp, err := t.health.Check(ctx, &healthpb.HealthCheckRequest{Service: t.config.HealthService})
	if err != nil {
		return false, fmt.Errorf("health check failed: %w", err)
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// Close closes the gRPC connection
func (t *GRPCTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

func (t *GRPCTransport) connection() (*grpc.ClientConn, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, &chat.TransportError{Err: errors.New("grpc transport is closed")}
	}
	return t.conn, nil
}

func (t *GRPCTransport) encode(req chat.Request) (*structpb.Struct, error) {
	if req.Model == "" {
		req.Model = t.config.Model
	}
	body, err := EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	msg := &structpb.Struct{}
	if err := protojson.Unmarshal(body, msg); err != nil {
		return nil, fmt.Errorf("failed to convert request to struct: %w", err)
	}
	return msg, nil
}

func (t *GRPCTransport) outgoing(ctx context.Context) context.Context {
	if t.config.APIKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, t.config.APIKeyHeader, t.config.APIKey)
}

// grpcSource adapts a server stream to stream.Source
type grpcSource struct {
	stream grpc.ClientStream
	cancel context.CancelFunc
}

func (s *grpcSource) Next() ([]byte, error) {
	msg := &structpb.Struct{}
	if err := s.stream.RecvMsg(msg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fromStatus(err)
	}

	record, err := protojson.Marshal(msg)
	if err != nil {
		return nil, &chat.DecodeError{Record: msg.String(), Err: err}
	}
	return record, nil
}

func (s *grpcSource) Close() error {
	s.cancel()
	return nil
}

// fromStatus maps a gRPC status onto a TransportError with the equivalent HTTP status
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return &chat.TransportError{Err: err}
	}
	return &chat.TransportError{
		StatusCode: httpStatusFromCode(st.Code()),
		Body:       st.Message(),
		Err:        err,
	}
}

func httpStatusFromCode(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.Canceled:
		return 499
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
