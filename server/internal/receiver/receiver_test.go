package receiver_test

import (
	"context"
	"math"
	"net"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wattboard/wattboard/pkg/meterpb"
	"github.com/wattboard/wattboard/server/internal/alerts"
	"github.com/wattboard/wattboard/server/internal/auth"
	"github.com/wattboard/wattboard/server/internal/config"
	"github.com/wattboard/wattboard/server/internal/metrics"
	"github.com/wattboard/wattboard/server/internal/receiver"
	"github.com/wattboard/wattboard/server/internal/status"
	"github.com/wattboard/wattboard/server/internal/store"
)

var t0 = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

type fixture struct {
	client  meterpb.ReadingServiceClient
	store   *store.Store
	tracker *alerts.Tracker
	metrics *metrics.Metrics
}

// startServer starts a gRPC server with the given interceptor on a random
// TCP port and returns a connected client.
func startServer(t *testing.T, interceptor grpc.UnaryServerInterceptor) fixture {
	t.Helper()

	cls, err := status.NewClassifier(status.DefaultThresholds())
	if err != nil {
		t.Fatal(err)
	}
	f := fixture{
		store:   store.New(5*time.Minute, 24),
		tracker: alerts.New(config.AlertsConfig{}),
	}
	f.metrics = metrics.New(metrics.Gauges{ActiveAlerts: f.tracker.ActiveCount})
	rec := receiver.New(f.store, cls, f.tracker, f.metrics)

	srv := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
	meterpb.RegisterReadingServiceServer(srv, rec)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go srv.Serve(lis) //nolint:errcheck

	t.Cleanup(func() {
		srv.Stop()
		lis.Close()
	})

	conn, err := grpc.Dial(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	) //nolint:staticcheck
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	f.client = meterpb.NewReadingServiceClient(conn)
	return f
}

// allowAll is a no-op interceptor that passes every call through.
func allowAll(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	return handler(ctx, req)
}

func batch(readings ...*meterpb.Reading) *meterpb.Batch {
	return &meterpb.Batch{AgentID: "agent-test", Readings: readings}
}

func TestPush_StoresAndRaises(t *testing.T) {
	f := startServer(t, allowAll)

	resp, err := f.client.Push(context.Background(), batch(&meterpb.Reading{
		BuildingID: "library", Unit: "kWh", Value: 2850, Baseline: 1050, Timestamp: t0,
	}))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !resp.Ok || resp.Accepted != 1 || resp.Rejected != 0 {
		t.Errorf("response: got %+v", resp)
	}

	e, ok := f.store.Get("library")
	if !ok {
		t.Fatal("store.Get: expected entry, got none")
	}
	if e.Reading.Value != 2850 {
		t.Errorf("Value: got %v, want 2850", e.Reading.Value)
	}

	a, ok := f.tracker.ActiveFor("library")
	if !ok {
		t.Fatal("expected an active alert for library")
	}
	if a.Severity != status.BandCritical || a.Variance != 171 {
		t.Errorf("alert: got %+v", a)
	}
	if !a.CreatedAt.Equal(t0) {
		t.Errorf("CreatedAt: got %v, want reading timestamp %v", a.CreatedAt, t0)
	}

	want := `
# HELP wattboard_readings_total Accepted readings by classification band.
# TYPE wattboard_readings_total counter
wattboard_readings_total{band="critical"} 1
# HELP wattboard_active_alerts Alerts awaiting resolution.
# TYPE wattboard_active_alerts gauge
wattboard_active_alerts 1
`
	if err := testutil.GatherAndCompare(f.metrics.Registry(), strings.NewReader(want),
		"wattboard_readings_total", "wattboard_active_alerts"); err != nil {
		t.Error(err)
	}
}

func TestPush_NormalReadingNoAlert(t *testing.T) {
	f := startServer(t, allowAll)

	if _, err := f.client.Push(context.Background(), batch(&meterpb.Reading{
		BuildingID: "dorm-a", Value: 1100, Baseline: 1000, Timestamp: t0,
	})); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if n := f.tracker.ActiveCount(); n != 0 {
		t.Errorf("ActiveCount: got %d, want 0", n)
	}
}

func TestPush_EmptyBatch_InvalidArgument(t *testing.T) {
	f := startServer(t, allowAll)

	_, err := f.client.Push(context.Background(), &meterpb.Batch{AgentID: "a"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if code := grpcstatus.Code(err); code != codes.InvalidArgument {
		t.Errorf("code: got %v, want InvalidArgument", code)
	}
}

func TestPush_InvalidReadingsSkipped(t *testing.T) {
	f := startServer(t, allowAll)

	resp, err := f.client.Push(context.Background(), batch(
		&meterpb.Reading{BuildingID: "", Value: 1, Baseline: 1, Timestamp: t0},
		&meterpb.Reading{BuildingID: "neg", Value: -5, Baseline: 100, Timestamp: t0},
		&meterpb.Reading{BuildingID: "zero-base", Value: 5, Baseline: 0, Timestamp: t0},
		&meterpb.Reading{BuildingID: "ok", Value: 90, Baseline: 100, Timestamp: t0},
	))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if resp.Ok || resp.Accepted != 1 || resp.Rejected != 3 {
		t.Errorf("response: got %+v", resp)
	}
	if resp.Message == "" {
		t.Error("expected a rejection message")
	}
	if f.store.Count() != 1 {
		t.Errorf("store.Count: got %d, want 1", f.store.Count())
	}
	if _, ok := f.store.Get("zero-base"); ok {
		t.Error("reading with zero baseline was stored")
	}
}

func TestPush_UndrawableBreakdownOrForecastRejected(t *testing.T) {
	f := startServer(t, allowAll)

	resp, err := f.client.Push(context.Background(), batch(
		&meterpb.Reading{BuildingID: "lab", Value: 900, Baseline: 1000, Timestamp: t0,
			Breakdown: []meterpb.Category{{Name: "HVAC", Value: -10}, {Name: "Lighting", Value: 40}}},
		&meterpb.Reading{BuildingID: "gym", Value: 900, Baseline: 1000, Timestamp: t0,
			Forecast: []meterpb.ForecastPoint{{Step: 1, Value: 800}, {Step: 2, Value: -5}}},
		&meterpb.Reading{BuildingID: "hall", Value: 900, Baseline: 1000, Timestamp: t0,
			Forecast: []meterpb.ForecastPoint{{Step: 1, Value: 800, Confidence: -1}}},
		&meterpb.Reading{BuildingID: "library", Value: 900, Baseline: 1000, Timestamp: t0,
			Breakdown: []meterpb.Category{{Name: "HVAC", Value: 500}},
			Forecast:  []meterpb.ForecastPoint{{Step: 1, Value: 800, Confidence: 50}}},
	))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if resp.Accepted != 1 || resp.Rejected != 3 {
		t.Errorf("response: got %+v, want 1 accepted, 3 rejected", resp)
	}
	for _, id := range []string{"lab", "gym", "hall"} {
		if _, ok := f.store.Get(id); ok {
			t.Errorf("reading for %q was stored", id)
		}
	}
	if _, ok := f.store.Get("library"); !ok {
		t.Error("valid reading was not stored")
	}

	want := `
# HELP wattboard_readings_rejected_total Readings dropped during ingestion by reason.
# TYPE wattboard_readings_rejected_total counter
wattboard_readings_rejected_total{reason="invalid_breakdown"} 1
wattboard_readings_rejected_total{reason="invalid_forecast"} 2
`
	if err := testutil.GatherAndCompare(f.metrics.Registry(), strings.NewReader(want),
		"wattboard_readings_rejected_total"); err != nil {
		t.Error(err)
	}
}

// NaN and Inf cannot travel through the JSON codec, so these go straight to
// the handler.
func TestPush_NonFiniteBreakdownRejected(t *testing.T) {
	cls, _ := status.NewClassifier(status.DefaultThresholds())
	st := store.New(5*time.Minute, 24)
	rec := receiver.New(st, cls, alerts.New(config.AlertsConfig{}), nil)

	resp, err := rec.Push(context.Background(), batch(
		&meterpb.Reading{BuildingID: "lab", Value: 900, Baseline: 1000, Timestamp: t0,
			Breakdown: []meterpb.Category{{Name: "HVAC", Value: math.NaN()}}},
		&meterpb.Reading{BuildingID: "gym", Value: 900, Baseline: 1000, Timestamp: t0,
			Forecast: []meterpb.ForecastPoint{{Step: 1, Value: math.Inf(1)}}},
	))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if resp.Rejected != 2 || st.Count() != 0 {
		t.Errorf("response: got %+v, stored %d, want both rejected", resp, st.Count())
	}
}

func TestPush_OutOfOrderRejected(t *testing.T) {
	f := startServer(t, allowAll)
	ctx := context.Background()

	if _, err := f.client.Push(ctx, batch(&meterpb.Reading{BuildingID: "b", Value: 10, Baseline: 10, Timestamp: t0})); err != nil {
		t.Fatal(err)
	}
	resp, err := f.client.Push(ctx, batch(&meterpb.Reading{BuildingID: "b", Value: 20, Baseline: 10, Timestamp: t0.Add(-time.Hour)}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Rejected != 1 {
		t.Errorf("response: got %+v, want 1 rejected", resp)
	}
	e, _ := f.store.Get("b")
	if e.Reading.Value != 10 {
		t.Errorf("older reading replaced newer: %v", e.Reading.Value)
	}
}

func TestPush_MissingTimestampUsesReceiveTime(t *testing.T) {
	f := startServer(t, allowAll)
	before := time.Now()
	if _, err := f.client.Push(context.Background(), batch(&meterpb.Reading{BuildingID: "b", Value: 1, Baseline: 1})); err != nil {
		t.Fatal(err)
	}
	e, _ := f.store.Get("b")
	if e.Reading.Timestamp.Before(before) {
		t.Errorf("Timestamp: got %v, want >= %v", e.Reading.Timestamp, before)
	}
}

func TestPush_WithAPIKeyInterceptor_CorrectKey_Passes(t *testing.T) {
	i := auth.APIKeyInterceptor("apikey", "x-api-key", "testkey")
	f := startServer(t, i)

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "testkey")
	_, err := f.client.Push(ctx, batch(&meterpb.Reading{BuildingID: "b", Value: 1, Baseline: 1, Timestamp: t0}))
	if err != nil {
		t.Fatalf("Push with correct key: %v", err)
	}
	if f.store.Count() != 1 {
		t.Errorf("store.Count: got %d, want 1", f.store.Count())
	}
}

func TestPush_WithAPIKeyInterceptor_WrongKey_Rejected(t *testing.T) {
	i := auth.APIKeyInterceptor("apikey", "x-api-key", "testkey")
	f := startServer(t, i)

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "wrongkey")
	_, err := f.client.Push(ctx, batch(&meterpb.Reading{BuildingID: "b", Value: 1, Baseline: 1, Timestamp: t0}))
	if code := grpcstatus.Code(err); code != codes.Unauthenticated {
		t.Errorf("code: got %v, want Unauthenticated", code)
	}
	if f.store.Count() != 0 {
		t.Error("unauthenticated batch was stored")
	}
}
