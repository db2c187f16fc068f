// Package scraper reads building meters. Each Scraper returns a Sample with
// the raw values of one read: a direct interval consumption or a cumulative
// energy counter, plus optional baseline, previous-day, predicted, breakdown
// and forecast values. The meter engine derives interval readings from
// consecutive samples.
//
// Meter types:
//   - prometheus (prometheus.go): an exporter's text exposition, parsed
//     with expfmt. Metric names are wattboard_*_kwh.
//   - mqtt (mqtt.go): the latest JSON Payload on a topic, over one shared
//     paho connection (Subscriber).
//
// Authentication for exporters (mTLS, API key, bearer, basic) is handled by
// the authRoundTripper in base.go.
package scraper
