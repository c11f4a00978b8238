package transport

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lexiqai/chat-orchestrator/internal/chat"
	"github.com/lexiqai/chat-orchestrator/internal/stream"
)

// fakeModelService answers every method through the unknown service handler
type fakeModelService struct {
	records  []map[string]interface{}
	err      error
	received *structpb.Struct
	apiKey   string
}

func (f *fakeModelService) handle(_ interface{}, ss grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(ss)

	in := &structpb.Struct{}
	if err := ss.RecvMsg(in); err != nil {
		return err
	}
	f.received = in
	if md, ok := metadata.FromIncomingContext(ss.Context()); ok {
		if values := md.Get("authorization"); len(values) > 0 {
			f.apiKey = values[0]
		}
	}
	if f.err != nil {
		return f.err
	}

	if method == DefaultUnaryMethod {
		out, err := structpb.NewStruct(f.records[len(f.records)-1])
		if err != nil {
			return err
		}
		return ss.SendMsg(out)
	}

	for _, record := range f.records {
		out, err := structpb.NewStruct(record)
		if err != nil {
			return err
		}
		if err := ss.SendMsg(out); err != nil {
			return err
		}
	}
	return nil
}

func startFakeModel(t *testing.T, svc *fakeModelService) *GRPCTransport {
	t.Helper()

	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.UnknownServiceHandler(svc.handle))
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	go server.Serve(listener)
	t.Cleanup(server.Stop)

	tr, err := NewGRPCTransport(GRPCConfig{
		Target: "passthrough:///bufnet",
		Model:  "test-model",
		APIKey: "Bearer secret",
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return listener.DialContext(ctx)
			}),
		},
	})
	if err != nil {
		t.Fatalf("NewGRPCTransport failed: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestGRPCTransport_OpenStream(t *testing.T) {
	svc := &fakeModelService{records: []map[string]interface{}{
		{"content": "Hello", "done": false},
		{"content": " there", "done": false},
		{"done": true, "prompt_tokens": 9, "completion_tokens": 2},
	}}
	tr := startFakeModel(t, svc)

	src, err := tr.OpenStream(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	defer src.Close()

	var text string
	var done stream.Event
	stream.NewDecoder(src).Run(func(e stream.Event) bool {
		switch e.Kind {
		case stream.EventToken:
			text += e.Text
		default:
			done = e
		}
		return true
	})

	if text != "Hello there" {
		t.Errorf("Expected Hello there, got %q", text)
	}
	if done.Kind != stream.EventDone || done.Usage.Total() != 11 {
		t.Errorf("Expected done with 11 tokens, got %+v", done)
	}
	if got := svc.received.GetFields()["model"].GetStringValue(); got != "test-model" {
		t.Errorf("Expected model test-model, got %q", got)
	}
	if !svc.received.GetFields()["stream"].GetBoolValue() {
		t.Error("Expected stream flag on request")
	}
	if svc.apiKey != "Bearer secret" {
		t.Errorf("Expected api key metadata, got %q", svc.apiKey)
	}
}

func TestGRPCTransport_Send(t *testing.T) {
	svc := &fakeModelService{records: []map[string]interface{}{
		{"content": "final answer", "done": true},
	}}
	tr := startFakeModel(t, svc)

	body, err := tr.Send(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	rec, err := stream.ParseRecord(body)
	if err != nil {
		t.Fatalf("ParseRecord failed: %v", err)
	}
	if rec.Content != "final answer" || !rec.Done {
		t.Errorf("Unexpected record %+v", rec)
	}
}

func TestGRPCTransport_StatusMapping(t *testing.T) {
	svc := &fakeModelService{err: status.Error(codes.Unavailable, "overloaded")}
	tr := startFakeModel(t, svc)

	_, err := tr.Send(context.Background(), testRequest())
	var transportErr *chat.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("Expected TransportError, got %v", err)
	}
	if transportErr.StatusCode != 503 || !transportErr.Temporary() {
		t.Errorf("Expected temporary 503, got %+v", transportErr)
	}
}

func TestGRPCTransport_HealthCheck(t *testing.T) {
	tr := startFakeModel(t, &fakeModelService{})

	healthy, err := tr.HealthCheck(context.Background())
	if err != nil || !healthy {
		t.Errorf("Expected serving, got %v %v", healthy, err)
	}

	tr.Close()
	if healthy, err := tr.HealthCheck(context.Background()); healthy || err == nil {
		t.Errorf("Expected closed transport to be unhealthy, got %v %v", healthy, err)
	}
}

func TestHTTPStatusFromCode(t *testing.T) {
	tests := []struct {
		code codes.Code
		want int
	}{
		{codes.ResourceExhausted, 429},
		{codes.DeadlineExceeded, 504},
		{codes.InvalidArgument, 400},
		{codes.Unauthenticated, 401},
		{codes.Internal, 500},
	}

	for _, tt := range tests {
		if got := httpStatusFromCode(tt.code); got != tt.want {
			t.Errorf("httpStatusFromCode(%v) = %d, expected %d", tt.code, got, tt.want)
		}
	}
}

func TestNewGRPCTransport_RequiresTarget(t *testing.T) {
	_, err := NewGRPCTransport(GRPCConfig{})
	if !errors.Is(err, chat.ErrInvalidConfig) {
		t.Errorf("Expected configuration error, got %v", err)
	}
}
