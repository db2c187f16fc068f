package alerts

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wattboard/wattboard/server/internal/status"
)

var (
	// ErrAlreadyResolved is returned when resolving an alert that is no longer
	// active. A second concurrent resolve of the same alert always sees it.
	ErrAlreadyResolved = errors.New("alerts: alert already resolved")

	// ErrInvalidTimestampOrder is returned when the resolution time is before
	// the alert was created.
	ErrInvalidTimestampOrder = errors.New("alerts: resolved before created")

	// ErrNotFound is returned by Tracker lookups for an unknown alert ID.
	ErrNotFound = errors.New("alerts: alert not found")
)

// State is the lifecycle state of an alert. Active is the only non-terminal state.
type State string

const (
	StateActive   State = "active"
	StateResolved State = "resolved"
)

// Observation is one classified reading for a building.
type Observation struct {
	BuildingID string
	Current    float64
	Baseline   float64
	At         time.Time
}

// Alert is a Warning or Critical classification of a building awaiting an
// operator. Once resolved only the audit fields ResolvedAt and ResolvedBy
// are set; nothing else changes.
type Alert struct {
	ID         string      `json:"id"`
	BuildingID string      `json:"building_id"`
	Severity   status.Band `json:"severity"`
	Current    float64     `json:"current"`
	Baseline   float64     `json:"baseline"`
	Variance   int         `json:"variance"`

	// EstimatedCost is the price of consumption above baseline at the
	// configured tariff, rounded to cents.
	EstimatedCost float64 `json:"estimated_cost"`

	CreatedAt  time.Time  `json:"created_at"`
	State      State      `json:"state"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
}

// Active reports whether the alert still awaits resolution.
func (a Alert) Active() bool { return a.State == StateActive }

// Raise creates an active alert for obs when eval is Warning or Critical.
// A Normal evaluation creates nothing and Raise returns false.
func Raise(id string, obs Observation, eval status.Evaluation, tariff float64) (Alert, bool) {
	if !eval.Band.Alertable() {
		return Alert{}, false
	}
	return Alert{
		ID:            id,
		BuildingID:    obs.BuildingID,
		Severity:      eval.Band,
		Current:       obs.Current,
		Baseline:      obs.Baseline,
		Variance:      eval.Variance.Percent,
		EstimatedCost: excessCost(obs.Current, obs.Baseline, tariff),
		CreatedAt:     obs.At,
		State:         StateActive,
	}, true
}

// Resolve returns a resolved at time at by the given operator. It fails with
// ErrAlreadyResolved if a is not active, and with ErrInvalidTimestampOrder if
// at is before a.CreatedAt. The input alert is never modified.
func Resolve(a Alert, at time.Time, by string) (Alert, error) {
	if a.State != StateActive {
		return a, fmt.Errorf("%w: %s", ErrAlreadyResolved, a.ID)
	}
	if at.Before(a.CreatedAt) {
		return a, fmt.Errorf("%w: %s at %s, created %s", ErrInvalidTimestampOrder,
			a.ID, at.Format(time.RFC3339Nano), a.CreatedAt.Format(time.RFC3339Nano))
	}
	a.State = StateResolved
	a.ResolvedAt = &at
	a.ResolvedBy = by
	return a, nil
}

func excessCost(current, baseline, tariff float64) float64 {
	excess := current - baseline
	if excess <= 0 || tariff <= 0 {
		return 0
	}
	return math.Round(excess*tariff*100) / 100
}
