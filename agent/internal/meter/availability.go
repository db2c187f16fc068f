package meter

// Availability states derived from the recent scrape success rate.
const (
	StateOnline  = "online"
	StateFlaky   = "flaky"
	StateOffline = "offline"
	StateUnknown = "unknown"
)

// Uptime percentages that map to an availability state.
const (
	ThresholdOnline = 90.0
	ThresholdFlaky  = 50.0
)

// uptimeWindow is the number of recent scrape outcomes tracked per meter.
const uptimeWindow = 20

// availability maps an uptime percentage over n observations to a state.
func availability(uptimePct float64, n int) string {
	switch {
	case n == 0:
		return StateUnknown
	case uptimePct >= ThresholdOnline:
		return StateOnline
	case uptimePct >= ThresholdFlaky:
		return StateFlaky
	default:
		return StateOffline
	}
}

// window is a bounded history of scrape outcomes, newest last.
type window struct {
	outcomes []bool
}

func (w *window) record(success bool) {
	if len(w.outcomes) >= uptimeWindow {
		w.outcomes = w.outcomes[1:]
	}
	w.outcomes = append(w.outcomes, success)
}

// uptimePct is 100 before the first observation.
func (w *window) uptimePct() float64 {
	if len(w.outcomes) == 0 {
		return 100
	}
	var ok int
	for _, s := range w.outcomes {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(w.outcomes)) * 100
}
