package status

import (
	"errors"
	"fmt"
)

// Band is the discrete status of a reading.
type Band string

const (
	BandNormal   Band = "normal"
	BandWarning  Band = "warning"
	BandCritical Band = "critical"
)

// Default ceilings, in variance percent.
const (
	DefaultNormalCeiling  = 15
	DefaultWarningCeiling = 35
)

// ErrInvalidThresholds is returned when ceilings are not ordered.
var ErrInvalidThresholds = errors.New("status: normal ceiling must not exceed warning ceiling")

// Thresholds holds the ordered band ceilings.
//
//	percent <  NormalCeiling                   → Normal
//	NormalCeiling ≤ percent < WarningCeiling   → Warning
//	percent ≥ WarningCeiling                   → Critical
type Thresholds struct {
	NormalCeiling  int `yaml:"normal_ceiling" json:"normal_ceiling"`
	WarningCeiling int `yaml:"warning_ceiling" json:"warning_ceiling"`
}

// DefaultThresholds returns the 15/35 ceilings.
func DefaultThresholds() Thresholds {
	return Thresholds{NormalCeiling: DefaultNormalCeiling, WarningCeiling: DefaultWarningCeiling}
}

// Validate reports whether the ceilings are monotonic.
func (t Thresholds) Validate() error {
	if t.NormalCeiling > t.WarningCeiling {
		return fmt.Errorf("%w (normal=%d, warning=%d)", ErrInvalidThresholds, t.NormalCeiling, t.WarningCeiling)
	}
	return nil
}

// BandFor maps a variance percent onto a band.
func (t Thresholds) BandFor(percent int) Band {
	switch {
	case percent < t.NormalCeiling:
		return BandNormal
	case percent < t.WarningCeiling:
		return BandWarning
	default:
		return BandCritical
	}
}

// Evaluation is a band together with the variance that produced it.
type Evaluation struct {
	Band     Band     `json:"band"`
	Variance Variance `json:"variance"`
}

// Classifier applies Thresholds to (current, baseline) pairs.
// A Classifier is immutable and safe for concurrent use.
type Classifier struct {
	th Thresholds
}

// NewClassifier validates th and returns a Classifier using it.
func NewClassifier(th Thresholds) (*Classifier, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{th: th}, nil
}

// Thresholds returns the ceilings in use.
func (c *Classifier) Thresholds() Thresholds { return c.th }

// Classify returns the band for current against baseline.
func (c *Classifier) Classify(current, baseline float64) (Band, error) {
	ev, err := c.Evaluate(current, baseline)
	if err != nil {
		return "", err
	}
	return ev.Band, nil
}

// Evaluate returns both the band and the variance for current against baseline.
func (c *Classifier) Evaluate(current, baseline float64) (Evaluation, error) {
	v, err := Compute(current, baseline)
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluation{Band: c.th.BandFor(v.Percent), Variance: v}, nil
}

// Severity orders bands for escalation: Normal < Warning < Critical.
func (b Band) Severity() int {
	switch b {
	case BandWarning:
		return 1
	case BandCritical:
		return 2
	default:
		return 0
	}
}

// Alertable reports whether b should raise an alert.
func (b Band) Alertable() bool { return b == BandWarning || b == BandCritical }

// Label is the human-readable name of b.
func (b Band) Label() string {
	switch b {
	case BandWarning:
		return "Warning"
	case BandCritical:
		return "Critical"
	default:
		return "Normal"
	}
}

// Tone is the colour token renderers use for b.
func (b Band) Tone() Tone {
	switch b {
	case BandWarning:
		return ToneWarning
	case BandCritical:
		return ToneDanger
	default:
		return ToneSuccess
	}
}
