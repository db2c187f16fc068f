package scraper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/wattboard/wattboard/agent/internal/config"
	"github.com/wattboard/wattboard/pkg/meterpb"
)

const defaultScrapeTimeout = 10 * time.Second

// Sample is the raw output of reading one meter once. The meter engine keeps
// the previous sample and turns cumulative counters into interval readings.
type Sample struct {
	BuildingID string
	Unit       string
	ScrapedAt  time.Time

	// Consumption is a direct interval reading, nil when the meter only
	// exposes a cumulative counter.
	Consumption *float64

	// EnergyTotal is the cumulative energy counter, nil when absent.
	EnergyTotal *float64

	// Baseline, Previous and Predicted are zero when the meter does not
	// report them.
	Baseline  float64
	Previous  float64
	Predicted float64

	// Breakdown keeps the order the meter reports categories in.
	Breakdown []meterpb.Category
	Forecast  []meterpb.ForecastPoint

	// Err is non-nil if the read itself failed (connectivity, auth, parse,
	// stale feed). The engine counts it against meter availability.
	Err error
}

// Scraper is implemented by every meter type.
type Scraper interface {
	Scrape(ctx context.Context) (*Sample, error)
}

// New returns the Scraper for m. mqtt meters read from sub, which may be nil
// when no mqtt meter is configured.
func New(m config.Meter, sub *Subscriber) (Scraper, error) {
	switch m.Type {
	case "prometheus":
		client, err := buildHTTPClient(m)
		if err != nil {
			return nil, fmt.Errorf("scraper %q: build http client: %w", m.BuildingID, err)
		}
		return &promScraper{meter: m, client: client}, nil
	case "mqtt":
		if sub == nil {
			return nil, fmt.Errorf("scraper %q: mqtt meter without a broker connection", m.BuildingID)
		}
		sub.Track(m.Topic)
		return &mqttScraper{meter: m, sub: sub}, nil
	default:
		return nil, fmt.Errorf("scraper: unsupported type %q", m.Type)
	}
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.EffectiveHeader(), t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the meter's auth and TLS settings.
func buildHTTPClient(m config.Meter) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: m.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if m.Auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(m.Auth.CertFile, m.Auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}

		if m.Auth.CAFile != "" {
			caPEM, err := os.ReadFile(m.Auth.CAFile)
			if err != nil {
				return nil, fmt.Errorf("read ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("no valid certs found in ca file %q", m.Auth.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
	}

	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: m.Auth,
		},
		Timeout: defaultScrapeTimeout,
	}, nil
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric
// families. A partial parse that produced families is accepted.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
// ok is false when the family is absent from the scrape.
func sumFamily(mf *dto.MetricFamily) (total float64, ok bool) {
	if mf == nil || len(mf.GetMetric()) == 0 {
		return 0, false
	}
	for _, m := range mf.GetMetric() {
		total += metricValue(m)
	}
	return total, true
}

func metricValue(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	}
	return 0
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// newSample initialises an empty Sample for m.
func newSample(m config.Meter) *Sample {
	return &Sample{
		BuildingID: m.BuildingID,
		Unit:       m.Unit,
		ScrapedAt:  time.Now().UTC(),
	}
}
