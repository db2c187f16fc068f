package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	dto "github.com/prometheus/client_model/go"

	"github.com/wattboard/wattboard/agent/internal/config"
	"github.com/wattboard/wattboard/pkg/meterpb"
)

// Meter exporter metric names.
const (
	// Interval consumption, reported directly by meters that compute it.
	promConsumption = "wattboard_consumption_kwh"

	// Cumulative energy counter, for meters that only count.
	promEnergyTotal = "wattboard_energy_total_kwh"

	// Expected consumption for the interval.
	promBaseline = "wattboard_baseline_kwh"

	// The same interval one day earlier.
	promPrevious = "wattboard_previous_kwh"

	// What the forecaster predicted for the current interval.
	promPredicted = "wattboard_predicted_kwh"

	// Per-category consumption, label "category".
	promCategory = "wattboard_category_kwh"

	// Forecast steps ahead, label "step" (1-based).
	promForecast           = "wattboard_forecast_kwh"
	promForecastConfidence = "wattboard_forecast_confidence_kwh"
)

type promScraper struct {
	meter  config.Meter
	client *http.Client
}

// Scrape fetches the meter exporter's /metrics endpoint. A failed fetch is
// reported in Sample.Err rather than as an error so the engine can track
// availability.
func (s *promScraper) Scrape(ctx context.Context) (*Sample, error) {
	res := newSample(s.meter)

	mfs, err := fetchMetrics(ctx, s.client, s.meter.Endpoint)
	if err != nil {
		res.Err = fmt.Errorf("prometheus scrape %q: %w", s.meter.BuildingID, err)
		slog.Warn("scraper: prometheus fetch failed", "building", s.meter.BuildingID, "err", err)
		return res, nil
	}

	if v, ok := sumFamily(mfs[promConsumption]); ok {
		res.Consumption = &v
	}
	if v, ok := sumFamily(mfs[promEnergyTotal]); ok {
		res.EnergyTotal = &v
	}
	res.Baseline, _ = sumFamily(mfs[promBaseline])
	res.Previous, _ = sumFamily(mfs[promPrevious])
	res.Predicted, _ = sumFamily(mfs[promPredicted])

	if mf := mfs[promCategory]; mf != nil {
		for _, m := range mf.GetMetric() {
			name := label(m, "category")
			if name == "" {
				continue
			}
			res.Breakdown = append(res.Breakdown, meterpb.Category{Name: name, Value: metricValue(m)})
		}
	}

	res.Forecast = forecastSteps(s.meter.BuildingID, mfs[promForecast], mfs[promForecastConfidence])

	if res.Consumption == nil && res.EnergyTotal == nil {
		res.Err = fmt.Errorf("prometheus scrape %q: neither %s nor %s exposed",
			s.meter.BuildingID, promConsumption, promEnergyTotal)
	}
	return res, nil
}

// forecastSteps pairs forecast values with their confidence by step label,
// ordered by step. Series with a missing or non-numeric step are skipped.
func forecastSteps(building string, values, confidence *dto.MetricFamily) []meterpb.ForecastPoint {
	if values == nil {
		return nil
	}
	conf := make(map[int]float64)
	if confidence != nil {
		for _, m := range confidence.GetMetric() {
			if step, err := strconv.Atoi(label(m, "step")); err == nil {
				conf[step] = metricValue(m)
			}
		}
	}

	var out []meterpb.ForecastPoint
	for _, m := range values.GetMetric() {
		step, err := strconv.Atoi(label(m, "step"))
		if err != nil || step <= 0 {
			slog.Debug("scraper: skipping forecast series", "building", building, "step", label(m, "step"))
			continue
		}
		out = append(out, meterpb.ForecastPoint{Step: step, Value: metricValue(m), Confidence: conf[step]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out
}
