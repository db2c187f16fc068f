package status

import "math"

// Tone is a semantic colour token shared by every renderer.
type Tone string

const (
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneDanger  Tone = "danger"
	TonePrimary Tone = "primary"
)

// Deviation tone ceilings for prediction accuracy, in absolute kWh.
const (
	deviationOK   = 30
	deviationWarn = 50
)

// TrendTone colours a day-over-day trend: rising consumption is bad news.
func TrendTone(v Variance) Tone {
	if v.Direction == DirectionUp {
		return ToneDanger
	}
	return ToneSuccess
}

// Accuracy compares a prediction against the observed value.
type Accuracy struct {
	// Deviation is |predicted - actual|, rounded half-up.
	Deviation int `json:"deviation"`
	// Percent is 100 - Deviation/actual*100, one decimal, floored at 0.
	Percent float64 `json:"percent"`
	Tone    Tone    `json:"tone"`
}

// ComputeAccuracy scores predicted against actual. actual must be positive.
func ComputeAccuracy(predicted, actual float64) (Accuracy, error) {
	if !(actual > 0) || math.IsInf(actual, 1) {
		return Accuracy{}, ErrInvalidBaseline
	}
	dev := math.Abs(predicted - actual)
	pct := 100 - dev/actual*100
	if pct < 0 {
		pct = 0
	}
	d := roundHalfUp(dev)
	return Accuracy{
		Deviation: d,
		Percent:   math.Floor(pct*10+0.5) / 10,
		Tone:      deviationTone(d),
	}, nil
}

func deviationTone(d int) Tone {
	switch {
	case d < deviationOK:
		return ToneSuccess
	case d < deviationWarn:
		return ToneWarning
	default:
		return ToneDanger
	}
}
