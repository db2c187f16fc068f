package layout

import "math"

// RingSpec is the stroke geometry of a single-value progress ring.
type RingSpec struct {
	Fraction   float64 `json:"fraction"`
	DashArray  float64 `json:"dash_array"`
	DashOffset float64 `json:"dash_offset"`
}

// Ring draws fraction (clamped to [0, 1]) of a circle. The stroke-dasharray
// is the full circumference and the offset hides the unfilled remainder.
func Ring(fraction, circumference float64) (RingSpec, error) {
	if !(circumference > 0) || math.IsInf(circumference, 1) {
		return RingSpec{}, ErrInvalidCircumference
	}
	switch {
	case math.IsNaN(fraction), fraction < 0:
		fraction = 0
	case fraction > 1:
		fraction = 1
	}
	return RingSpec{
		Fraction:   fraction,
		DashArray:  circumference,
		DashOffset: circumference * (1 - fraction),
	}, nil
}
