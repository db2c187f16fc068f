package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wattboard/wattboard/server/internal/config"
	"github.com/wattboard/wattboard/server/internal/status"
)

// Change describes what an Observe call did to the tracked alerts.
type Change int

const (
	ChangeNone Change = iota
	ChangeRaised
	ChangeEscalated
)

func (c Change) String() string {
	switch c {
	case ChangeRaised:
		return "raised"
	case ChangeEscalated:
		return "escalated"
	default:
		return "none"
	}
}

// Tracker owns every alert the server knows about. All state transitions
// happen under one mutex, so for any alert ID exactly one Resolve succeeds.
//
// Each building has at most one active alert. Readings that classify Normal
// never resolve it; only an explicit Resolve does.
//
// Tracker is safe for concurrent use.
type Tracker struct {
	webhooks   []config.WebhookConfig
	tariff     float64
	currency   string
	cooldown   time.Duration
	historyLen int
	client     *http.Client

	now   func() time.Time
	newID func() string

	mu           sync.Mutex
	byID         map[string]*Alert
	active       map[string]string    // building ID -> alert ID
	lastResolved map[string]time.Time // building ID -> last resolution (for cooldown)
	history      []string             // resolved alert IDs, oldest first
	evicted      map[string]struct{}  // resolved IDs dropped from history
}

// New creates a Tracker from the server alert configuration.
func New(cfg config.AlertsConfig) *Tracker {
	historyLen := cfg.HistorySize
	if historyLen <= 0 {
		historyLen = config.DefaultAlertHistory
	}
	return &Tracker{
		webhooks:     cfg.Webhooks,
		tariff:       cfg.Tariff,
		currency:     cfg.Currency,
		cooldown:     cfg.Cooldown,
		historyLen:   historyLen,
		client:       &http.Client{Timeout: 10 * time.Second},
		now:          time.Now,
		newID:        uuid.NewString,
		byID:         make(map[string]*Alert),
		active:       make(map[string]string),
		lastResolved: make(map[string]time.Time),
		evicted:      make(map[string]struct{}),
	}
}

// Observe feeds one classified reading to the tracker.
//
// A Warning or Critical reading raises an alert when the building has none
// active, unless the building's previous alert was resolved less than the
// cooldown ago. A reading more severe than the active alert escalates it in
// place; severity is never lowered. The returned Alert is the building's
// active alert after the call, zero when there is none.
func (t *Tracker) Observe(obs Observation, eval status.Evaluation) (Alert, Change) {
	if !eval.Band.Alertable() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if id, ok := t.active[obs.BuildingID]; ok {
			return *t.byID[id], ChangeNone
		}
		return Alert{}, ChangeNone
	}

	t.mu.Lock()

	if id, ok := t.active[obs.BuildingID]; ok {
		a := t.byID[id]
		if eval.Band.Severity() <= a.Severity.Severity() {
			cp := *a
			t.mu.Unlock()
			return cp, ChangeNone
		}
		a.Severity = eval.Band
		a.Current = obs.Current
		a.Baseline = obs.Baseline
		a.Variance = eval.Variance.Percent
		a.EstimatedCost = excessCost(obs.Current, obs.Baseline, t.tariff)
		cp := *a
		t.mu.Unlock()

		slog.Warn("alerts: alert escalated",
			"id", cp.ID, "building", cp.BuildingID, "severity", cp.Severity, "variance", cp.Variance)
		go t.deliver(cp, "escalated")
		return cp, ChangeEscalated
	}

	if last, ok := t.lastResolved[obs.BuildingID]; ok && t.cooldown > 0 && obs.At.Sub(last) < t.cooldown {
		t.mu.Unlock()
		slog.Debug("alerts: suppressed by cooldown", "building", obs.BuildingID, "band", eval.Band)
		return Alert{}, ChangeNone
	}

	a, _ := Raise(t.newID(), obs, eval, t.tariff)
	t.byID[a.ID] = &a
	t.active[a.BuildingID] = a.ID
	cp := a
	t.mu.Unlock()

	slog.Warn("alerts: alert raised",
		"id", cp.ID, "building", cp.BuildingID, "severity", cp.Severity,
		"current", cp.Current, "baseline", cp.Baseline, "variance", cp.Variance)
	go t.deliver(cp, "raised")
	return cp, ChangeRaised
}

// Resolve marks alert id resolved at time at by the named operator. It
// returns ErrNotFound for an unknown ID, ErrAlreadyResolved for one that was
// resolved before, even after it aged out of history, and otherwise the
// errors of the package-level Resolve.
func (t *Tracker) Resolve(id string, at time.Time, by string) (Alert, error) {
	t.mu.Lock()

	a, ok := t.byID[id]
	if !ok {
		_, gone := t.evicted[id]
		t.mu.Unlock()
		if gone {
			return Alert{}, fmt.Errorf("%w: %s", ErrAlreadyResolved, id)
		}
		return Alert{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	resolved, err := Resolve(*a, at, by)
	if err != nil {
		t.mu.Unlock()
		return resolved, err
	}
	*a = resolved
	delete(t.active, a.BuildingID)
	t.lastResolved[a.BuildingID] = at
	t.history = append(t.history, a.ID)
	if over := len(t.history) - t.historyLen; over > 0 {
		for _, old := range t.history[:over] {
			delete(t.byID, old)
			t.evicted[old] = struct{}{}
		}
		t.history = append([]string(nil), t.history[over:]...)
	}
	cp := *a
	t.mu.Unlock()

	slog.Info("alerts: alert resolved", "id", cp.ID, "building", cp.BuildingID, "by", by)
	go t.deliver(cp, "resolved")
	return cp, nil
}

// ResolveNow resolves id at the tracker's current time.
func (t *Tracker) ResolveNow(id, by string) (Alert, error) {
	return t.Resolve(id, t.now(), by)
}

// Get returns a copy of alert id.
func (t *Tracker) Get(id string) (Alert, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.byID[id]
	if !ok {
		return Alert{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *a, nil
}

// ActiveFor returns the active alert for a building, if any.
func (t *Tracker) ActiveFor(buildingID string) (Alert, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.active[buildingID]
	if !ok {
		return Alert{}, false
	}
	return *t.byID[id], true
}

// Active returns copies of all active alerts, most severe first and then
// newest first.
func (t *Tracker) Active() []Alert {
	t.mu.Lock()
	out := make([]Alert, 0, len(t.active))
	for _, id := range t.active {
		out = append(out, *t.byID[id])
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		si, sj := out[i].Severity.Severity(), out[j].Severity.Severity()
		if si != sj {
			return si > sj
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ActiveCount returns the number of active alerts.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Recent returns up to limit resolved alerts, most recently resolved first.
// A limit of zero or less returns the whole retained history.
func (t *Tracker) Recent(limit int) []Alert {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Alert, 0, n)
	for i := len(t.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *t.byID[t.history[i]])
	}
	return out
}
