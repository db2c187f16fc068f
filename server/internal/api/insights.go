package api

import (
	"fmt"
	"sort"

	"github.com/wattboard/wattboard/server/internal/dashboard"
	"github.com/wattboard/wattboard/server/internal/status"
)

// Insight is one human-readable observation about a building's consumption.
// The UI shows these as chips on the detail page; Detail is the explanation
// shown on click.
type Insight struct {
	// Key is a stable machine-readable identifier (used for dedup/ordering).
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown on the chip.
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional number associated with the insight (e.g. variance %).
	Value *float64 `json:"value,omitempty"`
}

// dominantShare is the breakdown share above which one category is called out.
const dominantShare = 50.0

// peakHeavyShare is the fraction of profile consumption inside the peak
// window above which the building is flagged as peak-heavy.
const peakHeavyShare = 0.6

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// computeInsights derives insights from a building detail page, ordered
// critical first, then warnings, then info.
func computeInsights(d dashboard.Detail) []Insight {
	b := d.Building
	if !b.Reporting || b.Variance == nil {
		return []Insight{{
			Key:   "no_data",
			Level: "info",
			Title: "Waiting for data",
			Detail: "No reading has arrived for this building yet. " +
				"Check that the agent's meter for it is configured and reachable.",
		}}
	}

	var out []Insight

	pct := float64(b.Variance.Percent)
	switch {
	case b.Variance.Percent > 0:
		level := "info"
		switch b.Status {
		case status.BandCritical:
			level = "critical"
		case status.BandWarning:
			level = "warning"
		}
		out = append(out, Insight{
			Key:   "above_baseline",
			Level: level,
			Title: fmt.Sprintf("%d%% above baseline", b.Variance.Percent),
			Detail: fmt.Sprintf(
				"%s is drawing %.0f %s against a baseline of %.0f %s. "+
					"Look for equipment left running outside occupied hours or HVAC setpoints that drifted.",
				b.Name, b.Consumption, b.Unit, b.Baseline, b.Unit,
			),
			Value: &pct,
		})
	case b.Variance.Percent < 0:
		out = append(out, Insight{
			Key:   "below_baseline",
			Level: "ok",
			Title: fmt.Sprintf("%d%% below baseline", -b.Variance.Percent),
			Detail: fmt.Sprintf(
				"%s is using less than its baseline of %.0f %s.", b.Name, b.Baseline, b.Unit,
			),
			Value: &pct,
		})
	}

	if b.Trend != nil && b.Trend.Percent != 0 {
		t := float64(b.Trend.Percent)
		if b.Trend.Direction == status.DirectionUp {
			out = append(out, Insight{
				Key:    "trend_up",
				Level:  "info",
				Title:  fmt.Sprintf("Up %d%% on yesterday", b.Trend.Percent),
				Detail: "Consumption is higher than at the same time yesterday.",
				Value:  &t,
			})
		} else {
			out = append(out, Insight{
				Key:    "trend_down",
				Level:  "ok",
				Title:  fmt.Sprintf("Down %d%% on yesterday", -b.Trend.Percent),
				Detail: "Consumption is lower than at the same time yesterday.",
				Value:  &t,
			})
		}
	}

	for _, s := range d.Breakdown {
		if s.Share < dominantShare {
			continue
		}
		share := s.Share
		out = append(out, Insight{
			Key:   "dominant_category",
			Level: "info",
			Title: fmt.Sprintf("%s is %.0f%% of load", s.Label, s.Share),
			Detail: fmt.Sprintf(
				"%s accounts for more than half of this building's consumption. "+
					"Savings effort here has the largest effect.", s.Label,
			),
			Value: &share,
		})
	}

	if frac, ok := peakFraction(d.Profile); ok && frac > peakHeavyShare {
		v := frac * 100
		out = append(out, Insight{
			Key:   "peak_heavy",
			Level: "warning",
			Title: fmt.Sprintf("%.0f%% during peak hours", v),
			Detail: fmt.Sprintf(
				"Most of the last day's consumption fell between %02d:00 and %02d:59, when tariffs are highest. "+
					"Shifting flexible loads out of that window reduces cost.",
				d.PeakWindow.StartHour, d.PeakWindow.EndHour,
			),
			Value: &v,
		})
	}

	if d.Alert != nil && d.Alert.EstimatedCost > 0 {
		cost := d.Alert.EstimatedCost
		out = append(out, Insight{
			Key:   "estimated_waste",
			Level: "warning",
			Title: fmt.Sprintf("%.2f %s wasted", cost, d.Alert.Currency),
			Detail: fmt.Sprintf(
				"At the configured tariff the excess over baseline costs about %.2f %s.",
				cost, d.Alert.Currency,
			),
			Value: &cost,
		})
	}

	if len(out) == 0 {
		out = append(out, Insight{
			Key:    "on_baseline",
			Level:  "ok",
			Title:  "On baseline",
			Detail: "Consumption matches the baseline.",
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return levelRank[out[i].Level] < levelRank[out[j].Level] })
	return out
}

func peakFraction(profile []dashboard.ProfileBar) (float64, bool) {
	var total, peak float64
	for _, p := range profile {
		total += p.Value
		if p.Peak {
			peak += p.Value
		}
	}
	if total <= 0 {
		return 0, false
	}
	return peak / total, true
}
