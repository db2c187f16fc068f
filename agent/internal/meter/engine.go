package meter

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/wattboard/wattboard/agent/internal/config"
	"github.com/wattboard/wattboard/agent/internal/scraper"
	"github.com/wattboard/wattboard/pkg/meterpb"
)

// Reasons a cycle produced no reading.
const (
	SkipScrapeFailed = "scrape_failed"
	SkipNoNewData    = "no_new_data"
	SkipFirstSample  = "first_counter_sample"
	SkipCounterReset = "counter_reset"
	SkipNoBaseline   = "no_baseline"
	SkipInvalidValue = "invalid_value"
	SkipUnknownMeter = "unknown_meter"
)

// Result is the outcome of processing one Sample.
type Result struct {
	BuildingID string

	// Reading is nil when no reading could be derived this cycle; Skip
	// then names the reason.
	Reading *meterpb.Reading
	Skip    string

	UptimePct    float64
	Availability string
}

// Engine turns meter samples into interval readings. It remembers the
// previous counter value of every meter so cumulative energy counters can
// be turned into per-period consumption.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	meters map[string]config.Meter
	states map[string]*meterState
}

type meterState struct {
	prevTotal    float64
	prevAt       time.Time
	hasTotal     bool
	lastAt       time.Time
	history      window
	availability string
}

// NewEngine returns an Engine for the given meters.
func NewEngine(meters []config.Meter) *Engine {
	e := &Engine{states: make(map[string]*meterState)}
	e.Configure(meters)
	return e
}

// Configure replaces the meter settings. State of meters that are still
// configured is kept, so a reload does not reset counter baselines.
func (e *Engine) Configure(meters []config.Meter) {
	next := make(map[string]config.Meter, len(meters))
	for _, m := range meters {
		next[m.BuildingID] = m
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.meters = next
	for id := range e.states {
		if _, ok := next[id]; !ok {
			delete(e.states, id)
		}
	}
}

// Process ingests one Sample.
//
// A meter that reports interval consumption directly yields a reading on
// every new sample. A counter-only meter yields nothing on its first sample
// and after a counter reset; otherwise the counter delta is scaled from the
// elapsed time to the meter's period:
//
//	value = (total - prevTotal) * period / (at - prevAt)
//
// A sample not newer than the last one processed is ignored.
func (e *Engine) Process(s *scraper.Sample) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := &Result{BuildingID: s.BuildingID}
	m, ok := e.meters[s.BuildingID]
	if !ok {
		out.Skip = SkipUnknownMeter
		return out
	}

	st := e.stateFor(s.BuildingID)
	st.history.record(s.Err == nil)
	out.UptimePct = st.history.uptimePct()
	out.Availability = availability(out.UptimePct, len(st.history.outcomes))
	if out.Availability != st.availability {
		if st.availability != "" {
			slog.Warn("meter: availability changed",
				"building", s.BuildingID, "from", st.availability, "to", out.Availability, "uptime_pct", out.UptimePct)
		}
		st.availability = out.Availability
	}

	if s.Err != nil {
		slog.Warn("meter: scrape failed", "building", s.BuildingID, "err", s.Err)
		out.Skip = SkipScrapeFailed
		return out
	}
	if !st.lastAt.IsZero() && !s.ScrapedAt.After(st.lastAt) {
		out.Skip = SkipNoNewData
		return out
	}
	st.lastAt = s.ScrapedAt

	value, skip := st.value(s, m.Period)
	if skip != "" {
		out.Skip = skip
		return out
	}
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		slog.Warn("meter: invalid value", "building", s.BuildingID, "value", value)
		out.Skip = SkipInvalidValue
		return out
	}

	baseline := s.Baseline
	if baseline <= 0 {
		baseline = m.Baseline
	}
	if baseline <= 0 {
		slog.Warn("meter: no baseline reported or configured", "building", s.BuildingID)
		out.Skip = SkipNoBaseline
		return out
	}

	out.Reading = &meterpb.Reading{
		BuildingID: s.BuildingID,
		Unit:       s.Unit,
		Value:      value,
		Baseline:   baseline,
		Previous:   s.Previous,
		Predicted:  s.Predicted,
		Timestamp:  s.ScrapedAt,
		Breakdown:  s.Breakdown,
		Forecast:   s.Forecast,
	}
	return out
}

func (e *Engine) stateFor(id string) *meterState {
	if st, ok := e.states[id]; ok {
		return st
	}
	st := &meterState{}
	e.states[id] = st
	return st
}

// value returns the interval consumption of s and advances the counter
// baseline.
func (st *meterState) value(s *scraper.Sample, period time.Duration) (float64, string) {
	var fromCounter float64
	skip := ""

	if s.EnergyTotal != nil {
		total := *s.EnergyTotal
		switch {
		case !st.hasTotal:
			skip = SkipFirstSample
		case total < st.prevTotal:
			slog.Info("meter: counter reset", "building", s.BuildingID, "previous", st.prevTotal, "current", total)
			skip = SkipCounterReset
		default:
			elapsed := s.ScrapedAt.Sub(st.prevAt)
			fromCounter = (total - st.prevTotal) * float64(period) / float64(elapsed)
		}
		st.prevTotal, st.prevAt, st.hasTotal = total, s.ScrapedAt, true
	}

	if s.Consumption != nil {
		return *s.Consumption, ""
	}
	return fromCounter, skip
}
