package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/wattboard/wattboard/server/internal/alerts"
	"github.com/wattboard/wattboard/server/internal/dashboard"
	"github.com/wattboard/wattboard/server/internal/layout"
	"github.com/wattboard/wattboard/server/internal/metrics"
)

// Options wires a Handler to the server state.
type Options struct {
	Builder *dashboard.Builder
	Tracker *alerts.Tracker
	Metrics *metrics.Metrics // may be nil

	// OperatorAuth guards the operator actions. Nil leaves them open.
	OperatorAuth func(http.Handler) http.Handler
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	views   *dashboard.Builder
	tracker *alerts.Tracker
	metrics *metrics.Metrics
	resolve http.Handler
	mux     *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(opts Options) http.Handler {
	h := &Handler{
		views:   opts.Builder,
		tracker: opts.Tracker,
		metrics: opts.Metrics,
		mux:     http.NewServeMux(),
	}
	h.resolve = http.HandlerFunc(h.resolveAlert)
	if opts.OperatorAuth != nil {
		h.resolve = opts.OperatorAuth(h.resolve)
	}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/buildings", h.listBuildings)
	h.mux.HandleFunc("/api/v1/buildings/", h.building) // subtree: {id} and {id}/forecast
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/alerts/", h.alert) // subtree: {id} and {id}/resolve
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: campus state and per-band counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sum := h.views.Snapshot().Summary
	resp := HealthResponse{
		BuildingCount:  sum.Buildings,
		ReportingCount: sum.Reporting,
		ByStatus:       sum.ByStatus,
		ActiveAlerts:   sum.ActiveAlerts,
		CriticalAlerts: sum.CriticalAlerts,
	}
	resp.State = campusState(sum)
	jsonResp(w, http.StatusOK, resp)
}

// listBuildings returns GET /api/v1/buildings: one card per building.
func (h *Handler) listBuildings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.views.Buildings())
}

// building serves GET /api/v1/buildings/{id} and GET /api/v1/buildings/{id}/forecast.
func (h *Handler) building(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/buildings/"), "/")
	if rest == "" {
		h.listBuildings(w, r)
		return
	}

	id, sub, _ := strings.Cut(rest, "/")
	switch sub {
	case "":
		d, err := h.views.Detail(id)
		if err != nil {
			viewErr(w, err)
			return
		}
		jsonResp(w, http.StatusOK, BuildingDetailResponse{Detail: d, Insights: computeInsights(d)})

	case "forecast":
		f, err := h.views.Forecast(id)
		if err != nil {
			viewErr(w, err)
			return
		}
		jsonResp(w, http.StatusOK, f)

	default:
		jsonErr(w, http.StatusNotFound, "not found")
	}
}

// listAlerts returns GET /api/v1/alerts. Active alerts by default;
// ?state=resolved&limit=N returns the resolution history instead.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	switch q.Get("state") {
	case "", string(alerts.StateActive):
		jsonResp(w, http.StatusOK, h.views.Alerts())
	case string(alerts.StateResolved):
		limit := 0
		if s := q.Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				jsonErr(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			limit = n
		}
		jsonResp(w, http.StatusOK, h.views.ResolvedAlerts(limit))
	default:
		jsonErr(w, http.StatusBadRequest, "state must be active or resolved")
	}
}

// alert serves GET /api/v1/alerts/{id} and POST /api/v1/alerts/{id}/resolve.
func (h *Handler) alert(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/alerts/"), "/")
	id, sub, _ := strings.Cut(rest, "/")

	switch {
	case id == "":
		h.listAlerts(w, r)
	case sub == "resolve":
		h.resolve.ServeHTTP(w, r)
	case sub != "":
		jsonErr(w, http.StatusNotFound, "not found")
	case r.Method != http.MethodGet:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	default:
		a, err := h.tracker.Get(id)
		if err != nil {
			alertErr(w, err)
			return
		}
		jsonResp(w, http.StatusOK, a)
	}
}

// resolveAlert handles POST /api/v1/alerts/{id}/resolve.
//
// The optional JSON body names the operator and the resolution time:
//
//	{"resolved_by": "facilities", "resolved_at": "2026-03-02T15:04:05Z"}
//
// resolved_at defaults to the server clock.
func (h *Handler) resolveAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/alerts/"), "/")
	id := strings.TrimSuffix(rest, "/resolve")

	var req ResolveRequest
	if r.ContentLength != 0 {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			jsonErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	var (
		a   alerts.Alert
		err error
	)
	if req.ResolvedAt != nil {
		a, err = h.tracker.Resolve(id, *req.ResolvedAt, req.ResolvedBy)
	} else {
		a, err = h.tracker.ResolveNow(id, req.ResolvedBy)
	}
	if err != nil {
		alertErr(w, err)
		return
	}
	h.metrics.AlertEvent("resolved")
	jsonResp(w, http.StatusOK, a)
}

// snapshot returns GET /api/v1/snapshot: everything the live dashboard shows.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.views.Snapshot())
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func viewErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dashboard.ErrUnknownBuilding), errors.Is(err, dashboard.ErrNoData):
		jsonErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, layout.ErrInvalidRange),
		errors.Is(err, layout.ErrInterleavedForecast),
		errors.Is(err, layout.ErrNegativeMagnitude),
		errors.Is(err, layout.ErrNegativeWeight):
		jsonErr(w, http.StatusUnprocessableEntity, err.Error())
	default:
		jsonErr(w, http.StatusInternalServerError, err.Error())
	}
}

func alertErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, alerts.ErrNotFound):
		jsonErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, alerts.ErrAlreadyResolved):
		jsonErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, alerts.ErrInvalidTimestampOrder):
		jsonErr(w, http.StatusUnprocessableEntity, err.Error())
	default:
		jsonErr(w, http.StatusInternalServerError, err.Error())
	}
}

// campusState rolls the summary up to one word for status pages.
func campusState(s dashboard.Summary) string {
	switch {
	case s.Reporting == 0:
		return "unknown"
	case s.CriticalAlerts > 0:
		return "critical"
	case s.ActiveAlerts > 0:
		return "warning"
	default:
		return "normal"
	}
}
