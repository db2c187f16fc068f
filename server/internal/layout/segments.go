package layout

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	// ErrEmptySegmentSet is returned when segment weights sum to zero.
	ErrEmptySegmentSet = errors.New("layout: segment weights sum to zero")

	// ErrNegativeWeight is returned for a segment weight below zero or not
	// finite, and for weights whose sum overflows.
	ErrNegativeWeight = errors.New("layout: segment weight must be a finite number >= 0")

	// ErrInvalidCircumference is returned for a non-positive circumference.
	ErrInvalidCircumference = errors.New("layout: circumference must be greater than zero")

	// ErrInvalidCapacity is returned by Fill for a non-positive capacity.
	ErrInvalidCapacity = errors.New("layout: capacity must be greater than zero")
)

// Segment is one category's share of a chart. Order in a slice is meaningful:
// it fixes the start angle on a donut and the stacking order on a bar.
type Segment struct {
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
}

// Arc is the stroke geometry of one donut segment, in circumference units.
type Arc struct {
	Label  string  `json:"label"`
	Offset float64 `json:"offset"`
	Length float64 `json:"length"`
}

// DashArray renders the arc as an SVG stroke-dasharray: the visible length
// followed by a gap of one full circumference.
func (a Arc) DashArray(circumference float64) string {
	return strconv.FormatFloat(a.Length, 'f', -1, 64) + " " + strconv.FormatFloat(circumference, 'f', -1, 64)
}

// DashOffset is the SVG stroke-dashoffset that starts the arc at Offset.
func (a Arc) DashOffset() float64 { return -a.Offset }

// Circumference returns 2πr.
func Circumference(radius float64) float64 { return 2 * math.Pi * radius }

// Arcs lays segments around a circle of the given circumference.
//
// length_i = weight_i / total * circumference
// offset_i = length_0 + ... + length_{i-1}
//
// Offsets are non-decreasing and the last offset+length equals circumference
// up to floating-point error.
func Arcs(segments []Segment, circumference float64) ([]Arc, error) {
	if !(circumference > 0) || math.IsInf(circumference, 1) {
		return nil, ErrInvalidCircumference
	}
	total, err := totalWeight(segments)
	if err != nil {
		return nil, err
	}

	out := make([]Arc, len(segments))
	var offset float64
	for i, s := range segments {
		length := s.Weight / total * circumference
		out[i] = Arc{Label: s.Label, Offset: offset, Length: length}
		offset += length
	}
	return out, nil
}

// Widths returns each segment's percentage width on a stacked bar, left to
// right in input order. Widths sum to 100 up to floating-point error.
func Widths(segments []Segment) ([]float64, error) {
	total, err := totalWeight(segments)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(segments))
	for i, s := range segments {
		out[i] = s.Weight / total * 100
	}
	return out, nil
}

// Fill is the width percentage of a single progress bar holding value out of
// capacity, capped at 100. Negative values render empty.
func Fill(value, capacity float64) (float64, error) {
	if !(capacity > 0) {
		return 0, ErrInvalidCapacity
	}
	pct := value / capacity * 100
	switch {
	case pct > 100:
		return 100, nil
	case pct < 0:
		return 0, nil
	}
	return pct, nil
}

func totalWeight(segments []Segment) (float64, error) {
	var total float64
	for i, s := range segments {
		if !(s.Weight >= 0) || math.IsInf(s.Weight, 1) {
			return 0, fmt.Errorf("%w: segment %d %q = %v", ErrNegativeWeight, i, s.Label, s.Weight)
		}
		total += s.Weight
	}
	if math.IsInf(total, 1) {
		return 0, fmt.Errorf("%w: weights sum to %v", ErrNegativeWeight, total)
	}
	if total == 0 {
		return 0, ErrEmptySegmentSet
	}
	return total, nil
}
