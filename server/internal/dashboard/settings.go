package dashboard

import (
	"fmt"
	"sync/atomic"

	"github.com/wattboard/wattboard/server/internal/config"
	"github.com/wattboard/wattboard/server/internal/status"
)

// Settings is the hot-reloadable part of the server configuration.
// A Settings value is never modified after it is published.
type Settings struct {
	Classifier *status.Classifier
	Charts     config.DashboardConfig
	Currency   string

	buildings map[string]config.Building
	order     []string
}

// Building returns the registry entry for id, if configured.
func (s *Settings) Building(id string) (config.Building, bool) {
	b, ok := s.buildings[id]
	return b, ok
}

// Live publishes Settings atomically so readers never see a half-applied
// reload.
type Live struct {
	p atomic.Pointer[Settings]
}

// NewLive builds the initial settings from cfg.
func NewLive(cfg config.ServerConfig) (*Live, error) {
	l := &Live{}
	if err := l.Apply(cfg); err != nil {
		return nil, err
	}
	return l, nil
}

// Apply replaces the current settings with ones derived from cfg. On error
// the previous settings stay in place.
func (l *Live) Apply(cfg config.ServerConfig) error {
	cls, err := status.NewClassifier(cfg.Classification)
	if err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	s := &Settings{
		Classifier: cls,
		Charts:     cfg.Dashboard,
		Currency:   cfg.Alerts.Currency,
		buildings:  cfg.Registry(),
		order:      make([]string, 0, len(cfg.Buildings)),
	}
	for _, b := range cfg.Buildings {
		s.order = append(s.order, b.ID)
	}
	l.p.Store(s)
	return nil
}

// Settings returns the current settings.
func (l *Live) Settings() *Settings { return l.p.Load() }

// Evaluate classifies with the current thresholds.
func (l *Live) Evaluate(current, baseline float64) (status.Evaluation, error) {
	return l.Settings().Classifier.Evaluate(current, baseline)
}
