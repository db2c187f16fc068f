package meterpb

import "time"

// Category is one slice of a building's consumption breakdown.
type Category struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// ForecastPoint is one predicted step after the reading's timestamp.
type ForecastPoint struct {
	Step       int     `json:"step"`
	Value      float64 `json:"value"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Reading is one metric sample for a building over one interval.
//
// Baseline is the expected consumption for the interval. Previous is the same
// interval one day earlier and Predicted the value the forecaster produced for
// it; both are optional and zero when unknown.
type Reading struct {
	BuildingID string          `json:"building_id"`
	Unit       string          `json:"unit,omitempty"`
	Value      float64         `json:"value"`
	Baseline   float64         `json:"baseline"`
	Previous   float64         `json:"previous,omitempty"`
	Predicted  float64         `json:"predicted,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Breakdown  []Category      `json:"breakdown,omitempty"`
	Forecast   []ForecastPoint `json:"forecast,omitempty"`
}

// Batch is the unit an agent pushes per collection cycle.
type Batch struct {
	AgentID  string     `json:"agent_id"`
	Readings []*Reading `json:"readings"`
}

// PushResponse reports how many readings of a batch were kept.
type PushResponse struct {
	Ok       bool   `json:"ok"`
	Accepted int32  `json:"accepted"`
	Rejected int32  `json:"rejected"`
	Message  string `json:"message,omitempty"`
}
