package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultScrapeInterval = 60 * time.Second
	DefaultBufferSize     = 1000
	DefaultMaxBatch       = 100
	DefaultPeriod         = time.Hour
	DefaultUnit           = "kWh"
	DefaultMQTTQoS        = 1
	DefaultAuthHeader     = "x-api-key"
)

// Config is the agent's view of the shared config file. The server section
// is ignored here.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ID names this agent in every batch it ships. Defaults to the hostname.
	ID string `yaml:"id"`

	// ServerEndpoint is the gRPC address of wattboard-server (host:port).
	ServerEndpoint string `yaml:"server_endpoint"`

	// ScrapeInterval controls how often each meter is read.
	ScrapeInterval time.Duration `yaml:"scrape_interval"`

	// BufferSize is the maximum number of readings held in memory while the
	// server is unreachable. The oldest reading is dropped when full.
	BufferSize int `yaml:"buffer_size"`

	// MaxBatch caps the number of readings sent in one Push call.
	MaxBatch int `yaml:"max_batch"`

	Log LogConfig `yaml:"log"`

	// ServerAuth configures how the agent authenticates to wattboard-server.
	ServerAuth AuthConfig `yaml:"server_auth"`

	// MQTT is the broker shared by all mqtt meters.
	MQTT MQTTConfig `yaml:"mqtt"`

	// Meters is the list of building meters to read.
	Meters []Meter `yaml:"meters"`
}

// LogConfig sets the agent log level.
type LogConfig struct {
	// Level is one of: debug | info | warn | error. Default: info.
	Level string `yaml:"level"`
}

// SlogLevel maps Level to a slog.Level, defaulting to Info.
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

// Meter describes where one building's consumption comes from.
type Meter struct {
	// BuildingID is the building this meter reports for. Must match the
	// server's building registry to get a display name.
	BuildingID string `yaml:"building_id"`

	// Type is one of: prometheus | mqtt.
	Type string `yaml:"type"`

	// Endpoint is the exporter URL for prometheus meters.
	Endpoint string `yaml:"endpoint"`

	// Topic is the MQTT topic for mqtt meters.
	Topic string `yaml:"topic"`

	// Unit is the display unit of the reading. Default: kWh.
	Unit string `yaml:"unit"`

	// Baseline is used when the meter itself does not report one.
	Baseline float64 `yaml:"baseline"`

	// Period is the interval a counter-derived reading is scaled to, so
	// that it is comparable with Baseline. Default: 1h.
	Period time.Duration `yaml:"period"`

	// Stale marks an mqtt meter unavailable when no message arrived for
	// this long. Default: three scrape intervals.
	Stale time.Duration `yaml:"stale"`

	// Auth configures how the agent authenticates to a prometheus exporter.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// MQTTConfig is the broker connection used by mqtt meters.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. tcp://broker:1883 or ssl://broker:8883.
	Broker string `yaml:"broker"`

	// ClientID defaults to "wattboard-agent-<agent id>".
	ClientID string `yaml:"client_id"`

	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`

	// QoS is the subscription quality of service, 0..2. Default: 1.
	QoS int `yaml:"qos"`
}

// Password returns the broker password resolved from the environment.
func (m MQTTConfig) Password() string {
	if m.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(m.PasswordEnv)
}

// AuthConfig specifies an authentication mode for an outgoing connection.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the header (or gRPC metadata key) that carries the API key.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv holds the bearer token, used when Mode == "bearer".
	TokenEnv string `yaml:"token_env"`

	// Username and PasswordEnv are used when Mode == "basic".
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string { return env(a.KeyEnv) }

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string { return env(a.TokenEnv) }

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string { return env(a.PasswordEnv) }

// EffectiveHeader returns Header, or "x-api-key" when unset.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAuthHeader
}

// TLSConfig holds per-meter TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("agent config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("agent config: parse yaml: %w", err)
	}
	applyMeterDefaults(&cfg.Agent)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("agent config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	id, _ := os.Hostname()
	return &Config{
		Agent: AgentConfig{
			ID:             id,
			ScrapeInterval: DefaultScrapeInterval,
			BufferSize:     DefaultBufferSize,
			MaxBatch:       DefaultMaxBatch,
			Log:            LogConfig{Level: "info"},
			MQTT:           MQTTConfig{QoS: DefaultMQTTQoS},
		},
	}
}

func applyMeterDefaults(a *AgentConfig) {
	if a.MQTT.ClientID == "" {
		a.MQTT.ClientID = "wattboard-agent-" + a.ID
	}
	for i := range a.Meters {
		m := &a.Meters[i]
		if m.Unit == "" {
			m.Unit = DefaultUnit
		}
		if m.Period == 0 {
			m.Period = DefaultPeriod
		}
		if m.Stale == 0 {
			m.Stale = 3 * a.ScrapeInterval
		}
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.ServerEndpoint == "" {
		return fmt.Errorf("agent.server_endpoint is required")
	}
	if a.ID == "" {
		return fmt.Errorf("agent.id is required when the hostname is unknown")
	}
	if a.ScrapeInterval <= 0 {
		return fmt.Errorf("agent.scrape_interval must be positive")
	}
	if a.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}
	if a.MaxBatch <= 0 {
		return fmt.Errorf("agent.max_batch must be positive")
	}
	if err := validateAuthMode("agent.server_auth", a.ServerAuth.Mode); err != nil {
		return err
	}

	seen := make(map[string]bool, len(a.Meters))
	needBroker := false
	for i, m := range a.Meters {
		if m.BuildingID == "" {
			return fmt.Errorf("meters[%d]: building_id is required", i)
		}
		if seen[m.BuildingID] {
			return fmt.Errorf("meters[%d]: duplicate building_id %q", i, m.BuildingID)
		}
		seen[m.BuildingID] = true

		switch m.Type {
		case "prometheus":
			if _, err := url.ParseRequestURI(m.Endpoint); err != nil {
				return fmt.Errorf("meters[%d] %q: endpoint must be a URL: %w", i, m.BuildingID, err)
			}
		case "mqtt":
			if m.Topic == "" {
				return fmt.Errorf("meters[%d] %q: topic is required", i, m.BuildingID)
			}
			needBroker = true
		default:
			return fmt.Errorf("meters[%d] %q: unknown type %q", i, m.BuildingID, m.Type)
		}
		if m.Baseline < 0 {
			return fmt.Errorf("meters[%d] %q: baseline must not be negative", i, m.BuildingID)
		}
		if m.Period < 0 {
			return fmt.Errorf("meters[%d] %q: period must be positive", i, m.BuildingID)
		}
		if err := validateAuthMode(fmt.Sprintf("meters[%d] %q auth", i, m.BuildingID), m.Auth.Mode); err != nil {
			return err
		}
	}

	if needBroker && a.MQTT.Broker == "" {
		return fmt.Errorf("agent.mqtt.broker is required for mqtt meters")
	}
	if a.MQTT.QoS < 0 || a.MQTT.QoS > 2 {
		return fmt.Errorf("agent.mqtt.qos %d must be 0, 1 or 2", a.MQTT.QoS)
	}
	return nil
}

func validateAuthMode(field, mode string) error {
	switch mode {
	case "mtls", "apikey", "bearer", "basic", "none", "":
		return nil
	}
	return fmt.Errorf("%s: unknown mode %q", field, mode)
}

func env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
