package dashboard

import (
	"time"

	"github.com/wattboard/wattboard/server/internal/alerts"
	"github.com/wattboard/wattboard/server/internal/layout"
	"github.com/wattboard/wattboard/server/internal/status"
)

// Building is the card view of one building.
type Building struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`

	// Reporting is false for a registered building with no live reading.
	// All fields below are zero in that case.
	Reporting bool `json:"reporting"`

	Unit        string           `json:"unit,omitempty"`
	Consumption float64          `json:"consumption"`
	Baseline    float64          `json:"baseline"`
	Status      status.Band      `json:"status,omitempty"`
	StatusLabel string           `json:"status_label,omitempty"`
	Tone        status.Tone      `json:"tone,omitempty"`
	Variance    *status.Variance `json:"variance,omitempty"`

	// Trend is the change against the same interval one day earlier; nil
	// when the previous value is unknown.
	Trend     *status.Variance `json:"trend,omitempty"`
	TrendTone status.Tone      `json:"trend_tone,omitempty"`

	// Fill is the progress-bar width for Consumption against capacity.
	Fill      float64   `json:"fill"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Slice is one category of a building's breakdown donut.
type Slice struct {
	Label      string     `json:"label"`
	Value      float64    `json:"value"`
	Share      float64    `json:"share"`
	Arc        layout.Arc `json:"arc"`
	DashArray  string     `json:"dash_array"`
	DashOffset float64    `json:"dash_offset"`
}

// ProfileBar is one hour of the consumption profile.
type ProfileBar struct {
	layout.Bar
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
	Peak  bool      `json:"peak"`
}

// Detail is the full page of one building.
type Detail struct {
	Building      Building          `json:"building"`
	Circumference float64           `json:"circumference"`
	Breakdown     []Slice           `json:"breakdown"`
	Profile       []ProfileBar      `json:"profile"`
	PeakWindow    layout.PeakWindow `json:"peak_window"`
	Alert         *Alert            `json:"alert,omitempty"`
}

// Forecast is the prediction page of one building.
type Forecast struct {
	BuildingID string           `json:"building_id"`
	Chart      layout.Chart     `json:"chart"`
	Accuracy   *status.Accuracy `json:"accuracy,omitempty"`
	Ring       *layout.RingSpec `json:"ring,omitempty"`
}

// Alert is an alert with its presentation attributes.
type Alert struct {
	alerts.Alert
	BuildingName string         `json:"building_name"`
	Display      alerts.Display `json:"display"`
	Currency     string         `json:"currency"`
}

// Summary is the campus-wide header.
type Summary struct {
	Buildings        int                 `json:"buildings"`
	Reporting        int                 `json:"reporting"`
	TotalConsumption float64             `json:"total_consumption"`
	TotalBaseline    float64             `json:"total_baseline"`
	Trend            *status.Variance    `json:"trend,omitempty"`
	TrendTone        status.Tone         `json:"trend_tone,omitempty"`
	ByStatus         map[status.Band]int `json:"by_status"`
	ActiveAlerts     int                 `json:"active_alerts"`
	CriticalAlerts   int                 `json:"critical_alerts"`
	EstimatedWaste   float64             `json:"estimated_waste"`
	Currency         string              `json:"currency"`
}

// Snapshot is everything the live dashboard shows, pushed over WebSocket.
type Snapshot struct {
	GeneratedAt time.Time  `json:"generated_at"`
	Summary     Summary    `json:"summary"`
	Buildings   []Building `json:"buildings"`
	Alerts      []Alert    `json:"alerts"`
}
