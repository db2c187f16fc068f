package status

import (
	"errors"
	"math"
)

var (
	// ErrInvalidBaseline is returned when a reference value is zero, negative or NaN.
	ErrInvalidBaseline = errors.New("status: baseline must be greater than zero")

	// ErrInvalidValue is returned when a current value is negative or not finite.
	ErrInvalidValue = errors.New("status: value must be a finite number >= 0")
)

// MaxPercent bounds Variance.Percent. A ratio beyond it saturates so an
// extreme overrun still classifies as the highest band.
const MaxPercent = math.MaxInt32

// Direction is the sign of a deviation from the baseline.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Variance is the deviation of a current value from its baseline.
type Variance struct {
	// Percent is ((current - baseline) / baseline) * 100 rounded half-up to
	// the nearest integer. Negative when current is below baseline.
	Percent int `json:"percent"`

	// Direction is DirectionUp only when current > baseline. Equal values
	// report DirectionDown.
	Direction Direction `json:"direction"`
}

// Compute returns the variance of current against baseline.
//
// Rounding is half-up (toward +Inf): 14.5 → 15, -2.5 → -2. The rounding mode
// matters at classification boundaries, so it is fixed here rather than left
// to callers.
func Compute(current, baseline float64) (Variance, error) {
	if !(baseline > 0) || math.IsInf(baseline, 1) {
		return Variance{}, ErrInvalidBaseline
	}
	if !(current >= 0) || math.IsInf(current, 1) {
		return Variance{}, ErrInvalidValue
	}
	dir := DirectionDown
	if current > baseline {
		dir = DirectionUp
	}
	// Scale before dividing so integral inputs hit exact halves (145*100/1000 = 14.5).
	return Variance{
		Percent:   roundHalfUp((current - baseline) * 100 / baseline),
		Direction: dir,
	}, nil
}

// Trend is the day-over-day change shown next to a building's consumption.
// It is the variance of current against previous; a previous value that is
// not positive has nothing to compare against and yields ErrInvalidBaseline.
func Trend(current, previous float64) (Variance, error) {
	return Compute(current, previous)
}

// roundHalfUp rounds x and saturates at ±MaxPercent.
func roundHalfUp(x float64) int {
	r := math.Floor(x + 0.5)
	switch {
	case r > MaxPercent:
		return MaxPercent
	case r < -MaxPercent:
		return -MaxPercent
	}
	return int(r)
}
