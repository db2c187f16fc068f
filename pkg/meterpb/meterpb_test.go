package meterpb

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

type countingServer struct {
	UnimplementedReadingServiceServer
	got *Batch
}

func (s *countingServer) Push(_ context.Context, b *Batch) (*PushResponse, error) {
	s.got = b
	return &PushResponse{Ok: true, Accepted: int32(len(b.Readings))}, nil
}

func startServer(t *testing.T, srv ReadingServiceServer, opts ...grpc.ServerOption) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := grpc.NewServer(opts...)
	RegisterReadingServiceServer(s, srv)
	go s.Serve(lis) //nolint:errcheck
	t.Cleanup(s.Stop)
	return lis.Addr().String()
}

func dial(t *testing.T, addr string) ReadingServiceClient {
	t.Helper()
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewReadingServiceClient(conn)
}

func TestPush_RoundTrip(t *testing.T) {
	srv := &countingServer{}
	client := dial(t, startServer(t, srv))

	ts := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	batch := &Batch{
		AgentID: "agent-1",
		Readings: []*Reading{{
			BuildingID: "library",
			Unit:       "kWh",
			Value:      2850,
			Baseline:   1050,
			Timestamp:  ts,
			Breakdown:  []Category{{Name: "HVAC", Value: 45}},
			Forecast:   []ForecastPoint{{Step: 1, Value: 900, Confidence: 40}},
		}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.Push(ctx, batch)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !resp.Ok || resp.Accepted != 1 {
		t.Errorf("response = %+v, want ok with 1 accepted", resp)
	}

	if srv.got == nil || len(srv.got.Readings) != 1 {
		t.Fatalf("server received %+v", srv.got)
	}
	r := srv.got.Readings[0]
	if r.BuildingID != "library" || r.Value != 2850 || r.Baseline != 1050 {
		t.Errorf("reading = %+v", r)
	}
	if !r.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", r.Timestamp, ts)
	}
	if len(r.Forecast) != 1 || r.Forecast[0].Confidence != 40 {
		t.Errorf("forecast = %+v", r.Forecast)
	}
}

func TestPush_InterceptorSeesBatch(t *testing.T) {
	var method string
	var req any
	intercept := func(ctx context.Context, r any, info *grpc.UnaryServerInfo, h grpc.UnaryHandler) (any, error) {
		method, req = info.FullMethod, r
		return h(ctx, r)
	}
	client := dial(t, startServer(t, &countingServer{}, grpc.UnaryInterceptor(intercept)))

	if _, err := client.Push(context.Background(), &Batch{AgentID: "a"}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if method != PushMethod {
		t.Errorf("method = %q, want %q", method, PushMethod)
	}
	if b, ok := req.(*Batch); !ok || b.AgentID != "a" {
		t.Errorf("interceptor request = %#v", req)
	}
}

func TestPush_Unimplemented(t *testing.T) {
	client := dial(t, startServer(t, UnimplementedReadingServiceServer{}))
	_, err := client.Push(context.Background(), &Batch{})
	if code := status.Code(err); code != codes.Unimplemented {
		t.Errorf("code = %v, want Unimplemented", code)
	}
}

func TestCodec(t *testing.T) {
	var c Codec
	if c.Name() != CodecName {
		t.Errorf("Name = %q", c.Name())
	}
	if err := c.Unmarshal([]byte("{bad"), &Batch{}); err == nil {
		t.Error("expected error for malformed JSON")
	}
}
