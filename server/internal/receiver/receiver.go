package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/wattboard/wattboard/pkg/meterpb"
	"github.com/wattboard/wattboard/server/internal/alerts"
	"github.com/wattboard/wattboard/server/internal/metrics"
	"github.com/wattboard/wattboard/server/internal/status"
	"github.com/wattboard/wattboard/server/internal/store"
)

// Evaluator classifies a reading against its baseline. The server passes its
// hot-reloadable settings so threshold changes apply to the next batch.
type Evaluator interface {
	Evaluate(current, baseline float64) (status.Evaluation, error)
}

// Receiver implements meterpb.ReadingServiceServer.
// It validates each incoming Reading, stores it and feeds the alert tracker.
type Receiver struct {
	meterpb.UnimplementedReadingServiceServer

	store   *store.Store
	eval    Evaluator
	tracker *alerts.Tracker
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a Receiver. m may be nil.
func New(st *store.Store, eval Evaluator, tr *alerts.Tracker, m *metrics.Metrics) *Receiver {
	return &Receiver{store: st, eval: eval, tracker: tr, metrics: m, now: time.Now}
}

// Push is the unary RPC handler called by wattboard-agent instances.
//
// Invalid readings are logged and skipped; the rest of the batch is still
// applied. A batch with no readings at all is InvalidArgument.
// Authentication is enforced by the gRPC server interceptor before this is called.
func (r *Receiver) Push(ctx context.Context, b *meterpb.Batch) (*meterpb.PushResponse, error) {
	if b == nil || len(b.Readings) == 0 {
		return nil, grpcstatus.Error(codes.InvalidArgument, "batch has no readings")
	}
	r.metrics.BatchReceived()

	resp := &meterpb.PushResponse{}
	var firstErr error
	for i, rd := range b.Readings {
		if err := r.apply(rd); err != nil {
			resp.Rejected++
			if firstErr == nil {
				firstErr = fmt.Errorf("reading %d: %w", i, err)
			}
			slog.Warn("receiver: reading rejected",
				"agent", b.AgentID, "index", i, "err", err)
			continue
		}
		resp.Accepted++
	}

	resp.Ok = resp.Rejected == 0
	if firstErr != nil {
		resp.Message = fmt.Sprintf("%d of %d readings rejected, first: %v",
			resp.Rejected, len(b.Readings), firstErr)
	}

	slog.Debug("receiver: batch applied",
		"agent", b.AgentID, "accepted", resp.Accepted, "rejected", resp.Rejected)
	return resp, nil
}

var (
	errMissingBuilding = errors.New("building_id is required")
	errInvalidValue    = errors.New("value must be a finite number >= 0")
	errOutOfOrder      = errors.New("older than the stored reading")
	errBadBreakdown    = errors.New("breakdown values must be finite numbers >= 0")
	errBadForecast     = errors.New("forecast values must be finite numbers >= 0")
)

func finite(v float64) bool { return v >= 0 && !math.IsInf(v, 1) }

// checkBreakdown rejects categories the donut and stacked bar cannot draw.
func checkBreakdown(cats []meterpb.Category) error {
	for i, c := range cats {
		if !finite(c.Value) {
			return fmt.Errorf("%w: category %d %q = %v", errBadBreakdown, i, c.Name, c.Value)
		}
	}
	return nil
}

// checkForecast rejects points the forecast chart cannot draw. Confidence
// is optional but, when set, must be a finite half-width.
func checkForecast(points []meterpb.ForecastPoint) error {
	for i, p := range points {
		if !finite(p.Value) || !finite(p.Confidence) {
			return fmt.Errorf("%w: step %d value=%v confidence=%v", errBadForecast, i, p.Value, p.Confidence)
		}
	}
	return nil
}

func (r *Receiver) apply(rd *meterpb.Reading) error {
	switch {
	case rd == nil || rd.BuildingID == "":
		r.metrics.RejectReading(metrics.ReasonMissingBuilding)
		return errMissingBuilding
	case rd.Value < 0 || math.IsNaN(rd.Value) || math.IsInf(rd.Value, 0):
		r.metrics.RejectReading(metrics.ReasonInvalidValue)
		return fmt.Errorf("%s: %w", rd.BuildingID, errInvalidValue)
	}
	if err := checkBreakdown(rd.Breakdown); err != nil {
		r.metrics.RejectReading(metrics.ReasonInvalidBreakdown)
		return fmt.Errorf("%s: %w", rd.BuildingID, err)
	}
	if err := checkForecast(rd.Forecast); err != nil {
		r.metrics.RejectReading(metrics.ReasonInvalidForecast)
		return fmt.Errorf("%s: %w", rd.BuildingID, err)
	}

	ev, err := r.eval.Evaluate(rd.Value, rd.Baseline)
	if err != nil {
		r.metrics.RejectReading(metrics.ReasonInvalidBaseline)
		return fmt.Errorf("%s: %w", rd.BuildingID, err)
	}

	if rd.Timestamp.IsZero() {
		rd.Timestamp = r.now()
	}
	if !r.store.Put(rd) {
		r.metrics.RejectReading(metrics.ReasonOutOfOrder)
		return fmt.Errorf("%s at %s: %w", rd.BuildingID, rd.Timestamp.Format(time.RFC3339), errOutOfOrder)
	}
	r.metrics.ObserveReading(ev.Band)

	_, change := r.tracker.Observe(alerts.Observation{
		BuildingID: rd.BuildingID,
		Current:    rd.Value,
		Baseline:   rd.Baseline,
		At:         rd.Timestamp,
	}, ev)
	r.metrics.AlertEvent(change.String())
	return nil
}
