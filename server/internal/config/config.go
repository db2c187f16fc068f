package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wattboard/wattboard/server/internal/layout"
	"github.com/wattboard/wattboard/server/internal/status"
)

// Default values for the server configuration.
const (
	DefaultGRPCPort          = 50051
	DefaultHTTPPort          = 8080
	DefaultSnapshotTTL       = 15 * time.Minute
	DefaultHistorySize       = 24
	DefaultBroadcastInterval = 5 * time.Second
	DefaultDonutRadius       = 90
	DefaultRingRadius        = 40
	DefaultBarMinPct         = 20
	DefaultBarMaxPct         = 80
	DefaultCapacityKWh       = 1000
	DefaultAlertHistory      = 200
	DefaultCurrency          = "USD"
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// GRPCPort is the port the gRPC receiver listens on (default 50051).
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort is the port the REST API, WebSocket hub and /metrics listen on
	// (default 8080).
	HTTPPort int `yaml:"http_port"`

	Log LogConfig `yaml:"log"`

	// Auth configures how the server authenticates agents and operators.
	Auth AuthConfig `yaml:"auth"`

	// Snapshot controls in-memory reading retention.
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Classification holds the variance ceilings for the status bands.
	// Hot-reloadable.
	Classification status.Thresholds `yaml:"classification"`

	// Dashboard controls chart geometry and the live broadcast.
	// Hot-reloadable except BroadcastInterval.
	Dashboard DashboardConfig `yaml:"dashboard"`

	// Alerts holds cost estimation, suppression and webhook targets.
	Alerts AlertsConfig `yaml:"alerts"`

	// Buildings is the registry of monitored buildings. Readings for an ID
	// not listed here are still accepted and shown with the ID as name.
	Buildings []Building `yaml:"buildings"`
}

// LogConfig sets the process log level.
type LogConfig struct {
	// Level is one of: debug | info | warn | error (default info).
	Level string `yaml:"level"`
}

// SlogLevel maps Level to a slog.Level. Unknown values map to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	// "mtls" is supported for future use but requires TLS listener setup.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the gRPC metadata key (and HTTP header name) to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// SnapshotConfig controls in-memory reading retention.
type SnapshotConfig struct {
	// TTL is how long a building's latest reading stays in the store after its
	// last update. Default: 15m.
	TTL time.Duration `yaml:"ttl"`

	// HistorySize is how many past values are kept per building for the
	// historical region of the profile chart. Default: 24.
	HistorySize int `yaml:"history_size"`
}

// DashboardConfig controls chart geometry.
type DashboardConfig struct {
	// BroadcastInterval is how often the WebSocket hub pushes a snapshot.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`

	// DonutRadius is the breakdown donut radius in SVG units (default 90).
	DonutRadius float64 `yaml:"donut_radius"`

	// RingRadius is the forecast accuracy ring radius (default 40).
	RingRadius float64 `yaml:"ring_radius"`

	// BarMinPct and BarMaxPct bound normalized bar heights (default 20..80).
	BarMinPct float64 `yaml:"bar_min_pct"`
	BarMaxPct float64 `yaml:"bar_max_pct"`

	// PeakWindow marks tariff peak hours on the 24h profile (default 9..17).
	PeakWindow layout.PeakWindow `yaml:"peak_window"`
}

// AlertsConfig holds alert tracking settings and webhook delivery targets.
type AlertsConfig struct {
	// Cooldown suppresses a new alert for a building for this long after its
	// previous alert was resolved. Zero disables suppression.
	Cooldown time.Duration `yaml:"cooldown"`

	// Tariff is the price of one unit of energy, used for the estimated cost
	// of excess consumption. Zero disables cost estimation.
	Tariff float64 `yaml:"tariff"`

	// Currency is the ISO code shown next to estimated costs (default USD).
	Currency string `yaml:"currency"`

	// HistorySize bounds the number of resolved alerts kept (default 200).
	HistorySize int `yaml:"history_size"`

	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Building is one entry of the building registry.
type Building struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// Type is a free-form category such as "Academic" or "Residential".
	Type string `yaml:"type"`

	// CapacityKWh is the consumption that fills the card's progress bar.
	// Defaults to 1000.
	CapacityKWh float64 `yaml:"capacity_kwh"`
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	for i := range cfg.Server.Buildings {
		if cfg.Server.Buildings[i].CapacityKWh == 0 {
			cfg.Server.Buildings[i].CapacityKWh = DefaultCapacityKWh
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort: DefaultGRPCPort,
			HTTPPort: DefaultHTTPPort,
			Log:      LogConfig{Level: "info"},
			Snapshot: SnapshotConfig{
				TTL:         DefaultSnapshotTTL,
				HistorySize: DefaultHistorySize,
			},
			Classification: status.DefaultThresholds(),
			Dashboard: DashboardConfig{
				BroadcastInterval: DefaultBroadcastInterval,
				DonutRadius:       DefaultDonutRadius,
				RingRadius:        DefaultRingRadius,
				BarMinPct:         DefaultBarMinPct,
				BarMaxPct:         DefaultBarMaxPct,
				PeakWindow:        layout.DefaultPeakWindow(),
			},
			Alerts: AlertsConfig{
				Currency:    DefaultCurrency,
				HistorySize: DefaultAlertHistory,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.GRPCPort <= 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", s.GRPCPort)
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey", "mtls", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|mtls|none", s.Auth.Mode)
	}
	if s.Snapshot.TTL < 0 {
		return fmt.Errorf("server.snapshot.ttl must not be negative")
	}
	if s.Snapshot.HistorySize < 1 {
		return fmt.Errorf("server.snapshot.history_size must be at least 1")
	}
	if err := s.Classification.Validate(); err != nil {
		return fmt.Errorf("server.classification: %w", err)
	}
	if err := validateDashboard(s.Dashboard); err != nil {
		return err
	}
	if s.Alerts.Cooldown < 0 {
		return fmt.Errorf("server.alerts.cooldown must not be negative")
	}
	if s.Alerts.Tariff < 0 {
		return fmt.Errorf("server.alerts.tariff must not be negative")
	}
	if s.Alerts.HistorySize < 1 {
		return fmt.Errorf("server.alerts.history_size must be at least 1")
	}
	for i, wh := range s.Alerts.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d].type %q unknown: want slack|teams|http", i, wh.Type)
		}
	}

	seen := make(map[string]bool, len(s.Buildings))
	for i, b := range s.Buildings {
		if b.ID == "" {
			return fmt.Errorf("server.buildings[%d].id is required", i)
		}
		if seen[b.ID] {
			return fmt.Errorf("server.buildings[%d]: duplicate id %q", i, b.ID)
		}
		seen[b.ID] = true
		if b.CapacityKWh < 0 {
			return fmt.Errorf("server.buildings[%d].capacity_kwh must be greater than zero", i)
		}
	}
	return nil
}

func validateDashboard(d DashboardConfig) error {
	if d.BroadcastInterval <= 0 {
		return fmt.Errorf("server.dashboard.broadcast_interval must be positive")
	}
	if d.DonutRadius <= 0 || d.RingRadius <= 0 {
		return fmt.Errorf("server.dashboard: chart radii must be positive")
	}
	if d.BarMinPct < 0 || d.BarMaxPct > 100 || d.BarMinPct > d.BarMaxPct {
		return fmt.Errorf("server.dashboard: bar range %v..%v invalid, want 0 <= min <= max <= 100",
			d.BarMinPct, d.BarMaxPct)
	}
	if err := d.PeakWindow.Validate(); err != nil {
		return fmt.Errorf("server.dashboard: %w", err)
	}
	return nil
}

// Registry returns the configured buildings keyed by ID.
func (s ServerConfig) Registry() map[string]Building {
	out := make(map[string]Building, len(s.Buildings))
	for _, b := range s.Buildings {
		out[b.ID] = b
	}
	return out
}
