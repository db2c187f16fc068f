package api

import (
	"time"

	"github.com/wattboard/wattboard/server/internal/dashboard"
	"github.com/wattboard/wattboard/server/internal/status"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// State is one of: unknown | normal | warning | critical.
	State          string              `json:"state"`
	BuildingCount  int                 `json:"building_count"`
	ReportingCount int                 `json:"reporting_count"`
	ByStatus       map[status.Band]int `json:"by_status"`
	ActiveAlerts   int                 `json:"active_alerts"`
	CriticalAlerts int                 `json:"critical_alerts"`
}

// BuildingDetailResponse is the payload for GET /api/v1/buildings/{id}.
type BuildingDetailResponse struct {
	dashboard.Detail
	Insights []Insight `json:"insights"`
}

// ResolveRequest is the optional body of POST /api/v1/alerts/{id}/resolve.
type ResolveRequest struct {
	ResolvedBy string     `json:"resolved_by"`
	ResolvedAt *time.Time `json:"resolved_at"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
