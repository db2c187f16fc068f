package dashboard

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/wattboard/wattboard/pkg/meterpb"
	"github.com/wattboard/wattboard/server/internal/alerts"
	"github.com/wattboard/wattboard/server/internal/config"
	"github.com/wattboard/wattboard/server/internal/layout"
	"github.com/wattboard/wattboard/server/internal/status"
	"github.com/wattboard/wattboard/server/internal/store"
)

var (
	// ErrUnknownBuilding is returned for an ID that is neither configured
	// nor reporting.
	ErrUnknownBuilding = errors.New("dashboard: unknown building")

	// ErrNoData is returned for a configured building with no live reading.
	ErrNoData = errors.New("dashboard: no reading for building")
)

// Builder assembles view models from the live server state. Every call
// classifies with the settings current at that moment.
type Builder struct {
	live    *Live
	store   *store.Store
	tracker *alerts.Tracker
	now     func() time.Time
}

// NewBuilder creates a Builder over the given state.
func NewBuilder(live *Live, st *store.Store, tr *alerts.Tracker) *Builder {
	return &Builder{live: live, store: st, tracker: tr, now: time.Now}
}

// Buildings returns a card for every configured building in registry order,
// followed by reporting but unregistered buildings ordered by ID.
func (b *Builder) Buildings() []Building {
	s := b.live.Settings()
	entries := b.store.List()

	live := make(map[string]store.Entry, len(entries))
	for _, e := range entries {
		live[e.Reading.BuildingID] = e
	}

	out := make([]Building, 0, len(s.order)+len(entries))
	for _, id := range s.order {
		if e, ok := live[id]; ok {
			out = append(out, b.card(s, e))
			continue
		}
		reg, _ := s.Building(id)
		out = append(out, Building{ID: id, Name: reg.Name, Type: reg.Type})
	}
	for _, e := range entries {
		if _, ok := s.Building(e.Reading.BuildingID); !ok {
			out = append(out, b.card(s, e))
		}
	}
	return out
}

// Building returns the card of one building.
func (b *Builder) Building(id string) (Building, error) {
	s := b.live.Settings()
	e, err := b.entry(s, id)
	if err != nil {
		return Building{}, err
	}
	return b.card(s, e), nil
}

// Detail returns the full page of one building. An all-zero breakdown is
// left out rather than failing the page.
func (b *Builder) Detail(id string) (Detail, error) {
	s := b.live.Settings()
	e, err := b.entry(s, id)
	if err != nil {
		return Detail{}, err
	}

	d := Detail{
		Building:      b.card(s, e),
		Circumference: layout.Circumference(s.Charts.DonutRadius),
		PeakWindow:    s.Charts.PeakWindow,
	}

	d.Breakdown, err = breakdown(e.Reading.Breakdown, d.Circumference)
	switch {
	case errors.Is(err, layout.ErrEmptySegmentSet):
		slog.Debug("dashboard: empty breakdown", "building", id)
	case err != nil:
		return Detail{}, fmt.Errorf("dashboard: breakdown of %s: %w", id, err)
	}

	d.Profile, err = profile(e.History, s.Charts)
	if err != nil {
		return Detail{}, fmt.Errorf("dashboard: profile of %s: %w", id, err)
	}

	if a, ok := b.tracker.ActiveFor(id); ok {
		v := b.alertView(s, a)
		d.Alert = &v
	}
	return d, nil
}

// Forecast returns the history-plus-forecast chart of one building and,
// when the reading carries a prediction, how accurate it was.
func (b *Builder) Forecast(id string) (Forecast, error) {
	s := b.live.Settings()
	e, err := b.entry(s, id)
	if err != nil {
		return Forecast{}, err
	}

	points := make([]layout.Point, 0, len(e.History)+len(e.Reading.Forecast))
	for _, h := range e.History {
		points = append(points, layout.Point{Index: len(points), Magnitude: h.Value})
	}
	steps := append([]meterpb.ForecastPoint(nil), e.Reading.Forecast...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Step < steps[j].Step })
	for _, f := range steps {
		points = append(points, layout.Point{
			Index:      len(points),
			Magnitude:  f.Value,
			Forecast:   true,
			Confidence: f.Confidence,
		})
	}

	chart, err := layout.Normalize(points, s.Charts.BarMinPct, s.Charts.BarMaxPct)
	if err != nil {
		return Forecast{}, fmt.Errorf("dashboard: forecast of %s: %w", id, err)
	}
	f := Forecast{BuildingID: id, Chart: chart}

	if e.Reading.Predicted > 0 {
		acc, err := status.ComputeAccuracy(e.Reading.Predicted, e.Reading.Value)
		if err == nil {
			ring, _ := layout.Ring(acc.Percent/100, layout.Circumference(s.Charts.RingRadius))
			f.Accuracy, f.Ring = &acc, &ring
		}
	}
	return f, nil
}

// Alerts returns the active alerts, most severe first.
func (b *Builder) Alerts() []Alert {
	s := b.live.Settings()
	active := b.tracker.Active()
	out := make([]Alert, 0, len(active))
	for _, a := range active {
		out = append(out, b.alertView(s, a))
	}
	return out
}

// ResolvedAlerts returns up to limit resolved alerts, newest first.
func (b *Builder) ResolvedAlerts(limit int) []Alert {
	s := b.live.Settings()
	recent := b.tracker.Recent(limit)
	out := make([]Alert, 0, len(recent))
	for _, a := range recent {
		out = append(out, b.alertView(s, a))
	}
	return out
}

// Snapshot assembles the live dashboard.
func (b *Builder) Snapshot() Snapshot {
	s := b.live.Settings()
	buildings := b.Buildings()
	active := b.Alerts()

	sum := Summary{
		Buildings:    len(buildings),
		ByStatus:     make(map[status.Band]int, 3),
		ActiveAlerts: len(active),
		Currency:     s.Currency,
	}
	var previous float64
	havePrevious := true
	for _, c := range buildings {
		if !c.Reporting {
			continue
		}
		sum.Reporting++
		sum.TotalConsumption += c.Consumption
		sum.TotalBaseline += c.Baseline
		sum.ByStatus[c.Status]++
		if e, ok := b.store.Get(c.ID); ok && e.Reading.Previous > 0 {
			previous += e.Reading.Previous
		} else {
			havePrevious = false
		}
	}
	if havePrevious && previous > 0 {
		if v, err := status.Trend(sum.TotalConsumption, previous); err == nil {
			sum.Trend, sum.TrendTone = &v, status.TrendTone(v)
		}
	}
	for _, a := range active {
		if a.Severity == status.BandCritical {
			sum.CriticalAlerts++
		}
		sum.EstimatedWaste += a.EstimatedCost
	}

	return Snapshot{
		GeneratedAt: b.now(),
		Summary:     sum,
		Buildings:   buildings,
		Alerts:      active,
	}
}

func (b *Builder) entry(s *Settings, id string) (store.Entry, error) {
	if e, ok := b.store.Get(id); ok {
		return e, nil
	}
	if _, ok := s.Building(id); ok {
		return store.Entry{}, fmt.Errorf("%w: %s", ErrNoData, id)
	}
	return store.Entry{}, fmt.Errorf("%w: %s", ErrUnknownBuilding, id)
}

func (b *Builder) card(s *Settings, e store.Entry) Building {
	r := e.Reading
	reg, ok := s.Building(r.BuildingID)
	if !ok {
		reg = config.Building{ID: r.BuildingID, Name: r.BuildingID, CapacityKWh: config.DefaultCapacityKWh}
	}

	c := Building{
		ID:          r.BuildingID,
		Name:        reg.Name,
		Type:        reg.Type,
		Reporting:   true,
		Unit:        r.Unit,
		Consumption: r.Value,
		Baseline:    r.Baseline,
		UpdatedAt:   e.UpdatedAt,
	}
	if c.Name == "" {
		c.Name = r.BuildingID
	}

	// Stored readings passed validation on ingest, so this only fails if
	// the reading was stored under different rules.
	if ev, err := s.Classifier.Evaluate(r.Value, r.Baseline); err == nil {
		c.Status, c.StatusLabel, c.Tone = ev.Band, ev.Band.Label(), ev.Band.Tone()
		c.Variance = &ev.Variance
	}
	if r.Previous > 0 {
		if v, err := status.Trend(r.Value, r.Previous); err == nil {
			c.Trend, c.TrendTone = &v, status.TrendTone(v)
		}
	}
	c.Fill, _ = layout.Fill(r.Value, reg.CapacityKWh)
	return c
}

func (b *Builder) alertView(s *Settings, a alerts.Alert) Alert {
	name := a.BuildingID
	if reg, ok := s.Building(a.BuildingID); ok && reg.Name != "" {
		name = reg.Name
	}
	return Alert{Alert: a, BuildingName: name, Display: a.Display(), Currency: s.Currency}
}

func breakdown(cats []meterpb.Category, circumference float64) ([]Slice, error) {
	segs := make([]layout.Segment, len(cats))
	for i, c := range cats {
		segs[i] = layout.Segment{Label: c.Name, Weight: c.Value}
	}
	arcs, err := layout.Arcs(segs, circumference)
	if err != nil {
		return nil, err
	}
	widths, err := layout.Widths(segs)
	if err != nil {
		return nil, err
	}
	out := make([]Slice, len(arcs))
	for i, a := range arcs {
		out[i] = Slice{
			Label:      a.Label,
			Value:      cats[i].Value,
			Share:      widths[i],
			Arc:        a,
			DashArray:  a.DashArray(circumference),
			DashOffset: a.DashOffset(),
		}
	}
	return out, nil
}

func profile(history []store.Sample, charts config.DashboardConfig) ([]ProfileBar, error) {
	points := make([]layout.Point, len(history))
	for i, h := range history {
		points[i] = layout.Point{Index: i, Magnitude: h.Value}
	}
	chart, err := layout.Normalize(points, charts.BarMinPct, charts.BarMaxPct)
	if err != nil {
		return nil, err
	}
	out := make([]ProfileBar, len(chart.Bars))
	for i, bar := range chart.Bars {
		out[i] = ProfileBar{
			Bar:   bar,
			At:    history[i].At,
			Value: history[i].Value,
			Peak:  charts.PeakWindow.Contains(history[i].At.Hour()),
		}
	}
	return out, nil
}
