package layout

import "fmt"

// PeakWindow is the inclusive range of tariff peak hours on a 24-hour profile.
type PeakWindow struct {
	StartHour int `yaml:"start_hour" json:"start_hour"`
	EndHour   int `yaml:"end_hour" json:"end_hour"`
}

// DefaultPeakWindow is 09:00 through 17:59.
func DefaultPeakWindow() PeakWindow { return PeakWindow{StartHour: 9, EndHour: 17} }

// Validate checks that both bounds are hours of the day and ordered.
func (w PeakWindow) Validate() error {
	if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 {
		return fmt.Errorf("peak window %d..%d outside 0..23", w.StartHour, w.EndHour)
	}
	if w.StartHour > w.EndHour {
		return fmt.Errorf("peak window start %d after end %d", w.StartHour, w.EndHour)
	}
	return nil
}

// Contains reports whether hour falls in the peak window.
func (w PeakWindow) Contains(hour int) bool {
	return hour >= w.StartHour && hour <= w.EndHour
}
