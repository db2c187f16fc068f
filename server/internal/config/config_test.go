package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	// Server section absent; only the agent side is configured.
	p := writeConfig(t, `agent:
  server_endpoint: "localhost:50051"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.GRPCPort != DefaultGRPCPort {
		t.Errorf("grpc_port: got %d, want %d", s.GRPCPort, DefaultGRPCPort)
	}
	if s.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", s.HTTPPort, DefaultHTTPPort)
	}
	if s.Snapshot.TTL != DefaultSnapshotTTL || s.Snapshot.HistorySize != DefaultHistorySize {
		t.Errorf("snapshot: got %+v", s.Snapshot)
	}
	if s.Classification.NormalCeiling != 15 || s.Classification.WarningCeiling != 35 {
		t.Errorf("classification: got %+v, want 15/35", s.Classification)
	}
	if s.Dashboard.DonutRadius != 90 || s.Dashboard.BarMinPct != 20 || s.Dashboard.BarMaxPct != 80 {
		t.Errorf("dashboard: got %+v", s.Dashboard)
	}
	if s.Dashboard.PeakWindow.StartHour != 9 || s.Dashboard.PeakWindow.EndHour != 17 {
		t.Errorf("peak window: got %+v", s.Dashboard.PeakWindow)
	}
	if s.Alerts.Currency != "USD" || s.Alerts.HistorySize != DefaultAlertHistory {
		t.Errorf("alerts: got %+v", s.Alerts)
	}
	if s.Log.SlogLevel() != slog.LevelInfo {
		t.Errorf("log level: got %v, want info", s.Log.SlogLevel())
	}
}

func TestLoad_FullServer(t *testing.T) {
	p := writeConfig(t, `server:
  grpc_port: 9090
  http_port: 9091
  log:
    level: debug
  auth:
    mode: apikey
    key_env: MY_KEY
    header: x-watt-key
  snapshot:
    ttl: 10m
    history_size: 48
  classification:
    normal_ceiling: 10
    warning_ceiling: 25
  dashboard:
    broadcast_interval: 2s
    bar_min_pct: 10
    bar_max_pct: 90
    peak_window:
      start_hour: 8
      end_hour: 18
  alerts:
    cooldown: 30m
    tariff: 0.12
    currency: EUR
    webhooks:
      - type: slack
        url_env: SLACK_URL
  buildings:
    - id: library
      name: Main Library
      type: Academic
      capacity_kwh: 3000
    - id: dorm-a
      name: Dormitory A
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.GRPCPort != 9090 {
		t.Errorf("grpc_port: got %d, want 9090", s.GRPCPort)
	}
	if s.Auth.Mode != "apikey" {
		t.Errorf("auth.mode: got %q, want apikey", s.Auth.Mode)
	}
	if s.Auth.EffectiveHeader() != "x-watt-key" {
		t.Errorf("header: got %q, want x-watt-key", s.Auth.EffectiveHeader())
	}
	if s.Snapshot.TTL != 10*time.Minute || s.Snapshot.HistorySize != 48 {
		t.Errorf("snapshot: got %+v", s.Snapshot)
	}
	if s.Classification.NormalCeiling != 10 || s.Classification.WarningCeiling != 25 {
		t.Errorf("classification: got %+v", s.Classification)
	}
	if s.Dashboard.BroadcastInterval != 2*time.Second || s.Dashboard.DonutRadius != DefaultDonutRadius {
		t.Errorf("dashboard: got %+v", s.Dashboard)
	}
	if s.Dashboard.PeakWindow.StartHour != 8 {
		t.Errorf("peak window: got %+v", s.Dashboard.PeakWindow)
	}
	if s.Alerts.Cooldown != 30*time.Minute || s.Alerts.Tariff != 0.12 || s.Alerts.Currency != "EUR" {
		t.Errorf("alerts: got %+v", s.Alerts)
	}
	if len(s.Alerts.Webhooks) != 1 || s.Alerts.Webhooks[0].Type != "slack" {
		t.Errorf("webhooks: got %+v", s.Alerts.Webhooks)
	}
	if s.Log.SlogLevel() != slog.LevelDebug {
		t.Errorf("log level: got %v", s.Log.SlogLevel())
	}

	reg := s.Registry()
	if reg["library"].CapacityKWh != 3000 {
		t.Errorf("library capacity: got %v", reg["library"].CapacityKWh)
	}
	if reg["dorm-a"].CapacityKWh != DefaultCapacityKWh {
		t.Errorf("dorm-a capacity: got %v, want default", reg["dorm-a"].CapacityKWh)
	}
}

func TestLoad_DefaultHeader(t *testing.T) {
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: K
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h := cfg.Server.Auth.EffectiveHeader(); h != "x-api-key" {
		t.Errorf("EffectiveHeader: got %q, want x-api-key", h)
	}
}

func TestLoad_EnvResolution(t *testing.T) {
	t.Setenv("TEST_SERVER_KEY", "supersecret")
	t.Setenv("TEST_HOOK_URL", "https://hooks.example/abc")
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: TEST_SERVER_KEY
  alerts:
    webhooks:
      - type: http
        url_env: TEST_HOOK_URL
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if k := cfg.Server.Auth.Key(); k != "supersecret" {
		t.Errorf("Key(): got %q, want supersecret", k)
	}
	if u := cfg.Server.Alerts.Webhooks[0].URL(); u != "https://hooks.example/abc" {
		t.Errorf("URL(): got %q", u)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, yaml, want string
	}{
		{"auth mode", "server:\n  auth:\n    mode: oauth2\n", "auth.mode"},
		{"port", "server:\n  grpc_port: 70000\n", "grpc_port"},
		{"thresholds unordered", "server:\n  classification:\n    normal_ceiling: 40\n    warning_ceiling: 20\n", "classification"},
		{"bar range", "server:\n  dashboard:\n    bar_min_pct: 90\n    bar_max_pct: 10\n", "bar range"},
		{"peak window", "server:\n  dashboard:\n    peak_window:\n      start_hour: 20\n      end_hour: 3\n", "peak window"},
		{"webhook type", "server:\n  alerts:\n    webhooks:\n      - type: pager\n", "webhooks[0]"},
		{"tariff", "server:\n  alerts:\n    tariff: -1\n", "tariff"},
		{"building id", "server:\n  buildings:\n    - name: x\n", "buildings[0].id"},
		{"duplicate building", "server:\n  buildings:\n    - id: a\n    - id: a\n", "duplicate"},
		{"history", "server:\n  snapshot:\n    history_size: 0\n", "history_size"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestWatch_ReloadsValidConfig(t *testing.T) {
	p := writeConfig(t, "server:\n  classification:\n    normal_ceiling: 15\n    warning_ceiling: 35\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, p, func(c *Config) { got <- c }) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(p, []byte("server:\n  classification: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(3 * reloadDebounce)
	if err := os.WriteFile(p, []byte("server:\n  classification:\n    normal_ceiling: 5\n    warning_ceiling: 10\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-got:
		if c.Server.Classification.NormalCeiling != 5 {
			t.Errorf("reloaded normal_ceiling: got %d, want 5", c.Server.Classification.NormalCeiling)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}
