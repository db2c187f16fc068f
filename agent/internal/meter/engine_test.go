package meter

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/wattboard/wattboard/agent/internal/config"
	"github.com/wattboard/wattboard/agent/internal/scraper"
	"github.com/wattboard/wattboard/pkg/meterpb"
)

// baseTime is a fixed reference point so all test timings are deterministic.
var baseTime = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// tick returns baseTime advanced by n minutes.
func tick(n int) time.Time {
	return baseTime.Add(time.Duration(n) * time.Minute)
}

func meters() []config.Meter {
	return []config.Meter{
		{BuildingID: "library", Type: "prometheus", Unit: "kWh", Period: time.Hour, Baseline: 1050},
		{BuildingID: "lab-b", Type: "mqtt", Unit: "kWh", Period: time.Hour},
	}
}

func counter(id string, total float64, at time.Time) *scraper.Sample {
	return &scraper.Sample{BuildingID: id, Unit: "kWh", ScrapedAt: at, EnergyTotal: &total}
}

func direct(id string, value, baseline float64, at time.Time) *scraper.Sample {
	return &scraper.Sample{BuildingID: id, Unit: "kWh", ScrapedAt: at, Consumption: &value, Baseline: baseline}
}

func failed(id string, at time.Time) *scraper.Sample {
	return &scraper.Sample{BuildingID: id, ScrapedAt: at, Err: errors.New("connection refused")}
}

// --- counter meters ---

func TestEngine_FirstCounterSample_NoReading(t *testing.T) {
	e := NewEngine(meters())
	out := e.Process(counter("library", 120000, tick(0)))
	if out.Reading != nil {
		t.Fatalf("first sample produced a reading: %+v", out.Reading)
	}
	if out.Skip != SkipFirstSample {
		t.Errorf("Skip = %q, want %q", out.Skip, SkipFirstSample)
	}
}

func TestEngine_CounterDelta_ScaledToPeriod(t *testing.T) {
	e := NewEngine(meters())
	e.Process(counter("library", 120000, tick(0)))

	// 50 kWh in 1 minute is 3000 kWh per hour.
	out := e.Process(counter("library", 120050, tick(1)))
	if out.Reading == nil {
		t.Fatalf("no reading, skip = %q", out.Skip)
	}
	if math.Abs(out.Reading.Value-3000) > 1e-9 {
		t.Errorf("Value = %v, want 3000", out.Reading.Value)
	}
	if out.Reading.Baseline != 1050 {
		t.Errorf("Baseline = %v, want configured 1050", out.Reading.Baseline)
	}
	if !out.Reading.Timestamp.Equal(tick(1)) {
		t.Errorf("Timestamp = %v, want %v", out.Reading.Timestamp, tick(1))
	}
}

func TestEngine_ValueScalesWithElapsed(t *testing.T) {
	e := NewEngine(meters())
	e.Process(counter("library", 0, tick(0)))

	// 250 kWh in 15 minutes is 1000 kWh per hour.
	out := e.Process(counter("library", 250, tick(15)))
	if out.Reading == nil || math.Abs(out.Reading.Value-1000) > 1e-9 {
		t.Fatalf("reading = %+v, want 1000", out.Reading)
	}
}

func TestEngine_CounterReset(t *testing.T) {
	e := NewEngine(meters())
	e.Process(counter("library", 120000, tick(0)))

	out := e.Process(counter("library", 10, tick(1)))
	if out.Reading != nil || out.Skip != SkipCounterReset {
		t.Fatalf("reset: reading=%+v skip=%q, want none/%q", out.Reading, out.Skip, SkipCounterReset)
	}

	// The reset value is the new baseline.
	out = e.Process(counter("library", 20, tick(2)))
	if out.Reading == nil || math.Abs(out.Reading.Value-600) > 1e-9 {
		t.Errorf("after reset: reading = %+v, want 600", out.Reading)
	}
}

func TestEngine_RepeatedSample_Ignored(t *testing.T) {
	e := NewEngine(meters())
	e.Process(direct("lab-b", 900, 820, tick(5)))

	out := e.Process(direct("lab-b", 900, 820, tick(5)))
	if out.Reading != nil || out.Skip != SkipNoNewData {
		t.Errorf("repeat: reading=%+v skip=%q", out.Reading, out.Skip)
	}
	out = e.Process(direct("lab-b", 900, 820, tick(4)))
	if out.Skip != SkipNoNewData {
		t.Errorf("older sample: skip=%q, want %q", out.Skip, SkipNoNewData)
	}
}

// --- direct meters ---

func TestEngine_DirectConsumption(t *testing.T) {
	e := NewEngine(meters())
	s := direct("lab-b", 1150, 820, tick(0))
	s.Previous = 950
	s.Predicted = 1100
	s.Breakdown = []meterpb.Category{{Name: "HVAC", Value: 600}}
	s.Forecast = []meterpb.ForecastPoint{{Step: 1, Value: 1000}}

	out := e.Process(s)
	r := out.Reading
	if r == nil {
		t.Fatalf("no reading, skip = %q", out.Skip)
	}
	if r.Value != 1150 || r.Baseline != 820 || r.Previous != 950 || r.Predicted != 1100 {
		t.Errorf("reading = %+v", r)
	}
	if len(r.Breakdown) != 1 || len(r.Forecast) != 1 {
		t.Errorf("breakdown/forecast not carried: %+v", r)
	}
}

func TestEngine_DirectWinsOverCounter(t *testing.T) {
	e := NewEngine(meters())
	s := direct("lab-b", 700, 820, tick(0))
	total := 5000.0
	s.EnergyTotal = &total

	if out := e.Process(s); out.Reading == nil || out.Reading.Value != 700 {
		t.Errorf("reading = %+v, want direct value on first sample", out.Reading)
	}
}

func TestEngine_NoBaseline(t *testing.T) {
	e := NewEngine(meters())
	out := e.Process(direct("lab-b", 700, 0, tick(0)))
	if out.Reading != nil || out.Skip != SkipNoBaseline {
		t.Errorf("reading=%+v skip=%q, want %q", out.Reading, out.Skip, SkipNoBaseline)
	}
}

func TestEngine_ReportedBaselineWins(t *testing.T) {
	e := NewEngine(meters())
	out := e.Process(direct("library", 1000, 990, tick(0)))
	if out.Reading == nil || out.Reading.Baseline != 990 {
		t.Errorf("reading = %+v, want reported baseline 990", out.Reading)
	}
}

func TestEngine_InvalidValue(t *testing.T) {
	e := NewEngine(meters())
	if out := e.Process(direct("library", -5, 0, tick(0))); out.Skip != SkipInvalidValue {
		t.Errorf("negative: skip = %q", out.Skip)
	}
	if out := e.Process(direct("library", math.NaN(), 0, tick(1))); out.Skip != SkipInvalidValue {
		t.Errorf("NaN: skip = %q", out.Skip)
	}
}

// --- failures and availability ---

func TestEngine_ScrapeFailure_DoesNotAdvanceBaseline(t *testing.T) {
	e := NewEngine(meters())
	e.Process(counter("library", 100, tick(0)))

	if out := e.Process(failed("library", tick(1))); out.Skip != SkipScrapeFailed {
		t.Fatalf("failure: skip = %q", out.Skip)
	}

	// Delta is measured from the last good sample, two minutes earlier.
	out := e.Process(counter("library", 200, tick(2)))
	if out.Reading == nil || math.Abs(out.Reading.Value-3000) > 1e-9 {
		t.Errorf("reading = %+v, want 3000", out.Reading)
	}
}

func TestEngine_Availability(t *testing.T) {
	e := NewEngine(meters())

	out := e.Process(direct("lab-b", 1, 1, tick(0)))
	if out.Availability != StateOnline || out.UptimePct != 100 {
		t.Errorf("after success: %s %.0f%%", out.Availability, out.UptimePct)
	}

	out = e.Process(failed("lab-b", tick(1)))
	if out.Availability != StateFlaky || out.UptimePct != 50 {
		t.Errorf("after 1/2: %s %.0f%%", out.Availability, out.UptimePct)
	}

	for i := 2; i < 4; i++ {
		out = e.Process(failed("lab-b", tick(i)))
	}
	if out.Availability != StateOffline {
		t.Errorf("after 1/4: %s %.0f%%", out.Availability, out.UptimePct)
	}
}

func TestEngine_UptimeRollingWindow(t *testing.T) {
	e := NewEngine(meters())
	for i := 0; i < uptimeWindow; i++ {
		e.Process(failed("lab-b", tick(i)))
	}
	var out *Result
	for i := 0; i < uptimeWindow; i++ {
		out = e.Process(direct("lab-b", 1, 1, tick(uptimeWindow+i)))
	}
	if out.UptimePct != 100 {
		t.Errorf("UptimePct = %v, want 100 once failures leave the window", out.UptimePct)
	}
}

// --- configuration ---

func TestEngine_UnknownMeter(t *testing.T) {
	e := NewEngine(meters())
	if out := e.Process(direct("gym", 1, 1, tick(0))); out.Skip != SkipUnknownMeter {
		t.Errorf("skip = %q, want %q", out.Skip, SkipUnknownMeter)
	}
}

func TestEngine_Configure_KeepsState(t *testing.T) {
	e := NewEngine(meters())
	e.Process(counter("library", 100, tick(0)))

	next := meters()
	next[0].Baseline = 2000
	e.Configure(next)

	out := e.Process(counter("library", 110, tick(1)))
	if out.Reading == nil {
		t.Fatalf("reload lost the counter baseline: skip = %q", out.Skip)
	}
	if out.Reading.Baseline != 2000 {
		t.Errorf("Baseline = %v, want reloaded 2000", out.Reading.Baseline)
	}

	e.Configure(next[1:])
	e.Configure(next)
	if out := e.Process(counter("library", 120, tick(2))); out.Skip != SkipFirstSample {
		t.Errorf("removed meter kept its state: skip = %q", out.Skip)
	}
}

func TestAvailability(t *testing.T) {
	tests := []struct {
		pct  float64
		n    int
		want string
	}{
		{100, 0, StateUnknown},
		{100, 5, StateOnline},
		{90, 10, StateOnline},
		{89.9, 10, StateFlaky},
		{50, 10, StateFlaky},
		{49.9, 10, StateOffline},
		{0, 10, StateOffline},
	}
	for _, tc := range tests {
		if got := availability(tc.pct, tc.n); got != tc.want {
			t.Errorf("availability(%v, %d) = %q, want %q", tc.pct, tc.n, got, tc.want)
		}
	}
}
