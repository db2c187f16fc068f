package alerts

import "github.com/wattboard/wattboard/server/internal/status"

// Display holds the presentation attributes derived from an alert's severity.
type Display struct {
	Badge  string      `json:"badge"`
	Icon   string      `json:"icon"`
	Tone   status.Tone `json:"tone"`
	Border status.Tone `json:"border"`

	// Pulse marks badges that should draw attention while active.
	Pulse bool `json:"pulse"`
}

// DisplayFor maps a severity to its badge. Anything below Warning renders
// as an informational badge.
func DisplayFor(b status.Band) Display {
	switch b {
	case status.BandCritical:
		return Display{Badge: "CRITICAL", Icon: "🔴", Tone: status.ToneDanger, Border: status.ToneDanger, Pulse: true}
	case status.BandWarning:
		return Display{Badge: "WARNING", Icon: "🟡", Tone: status.ToneWarning, Border: status.ToneWarning}
	default:
		return Display{Badge: "INFO", Icon: "🔵", Tone: status.TonePrimary, Border: status.TonePrimary}
	}
}

// Display returns the alert's presentation attributes. A resolved alert
// keeps its badge but stops pulsing.
func (a Alert) Display() Display {
	d := DisplayFor(a.Severity)
	if !a.Active() {
		d.Pulse = false
	}
	return d
}
