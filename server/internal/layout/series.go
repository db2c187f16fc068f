package layout

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidRange is returned when the minimum height exceeds the maximum
	// or either bound is not finite.
	ErrInvalidRange = errors.New("layout: min height must not exceed max height")

	// ErrInterleavedForecast is returned when a historical point follows a
	// forecast point. The forecast region must be a contiguous tail.
	ErrInterleavedForecast = errors.New("layout: historical point after forecast boundary")

	// ErrNegativeMagnitude is returned for a magnitude below zero or not finite.
	ErrNegativeMagnitude = errors.New("layout: magnitude must be a finite number >= 0")
)

// NoMarker is the NowIndex of a series with no historical/forecast boundary.
const NoMarker = -1

// Point is one sample of a time series.
type Point struct {
	Index     int     `json:"index"`
	Magnitude float64 `json:"magnitude"`
	Forecast  bool    `json:"forecast"`

	// Confidence is the half-width of a forecast's confidence band, in the
	// same unit as Magnitude. Ignored on historical points.
	Confidence float64 `json:"confidence,omitempty"`
}

// Bar is the rendered height of one Point, as a percentage of the chart.
type Bar struct {
	Index    int     `json:"index"`
	Height   float64 `json:"height"`
	Forecast bool    `json:"forecast"`

	// ConfidenceHeight is the top of the confidence band, never above the
	// chart's max height. Equal to Height when there is no band.
	ConfidenceHeight float64 `json:"confidence_height"`
}

// Chart is a normalized series plus the position of the "now" divider.
type Chart struct {
	Bars []Bar `json:"bars"`

	// NowIndex is the position in Bars of the last historical point, or
	// NoMarker when the series is empty, all historical or all forecast.
	NowIndex int `json:"now_index"`
}

// Normalize maps magnitudes linearly onto [minPct, maxPct]:
//
//	height_i = minPct + (m_i - min) / (max - min) * (maxPct - minPct)
//
// A constant series has no spread to scale, so every bar sits at minPct.
// Order is preserved and every bar keeps its source point's Forecast flag.
func Normalize(points []Point, minPct, maxPct float64) (Chart, error) {
	if !(minPct <= maxPct) || math.IsInf(minPct, 0) || math.IsInf(maxPct, 0) {
		return Chart{}, fmt.Errorf("%w (min=%v, max=%v)", ErrInvalidRange, minPct, maxPct)
	}
	now, err := boundary(points)
	if err != nil {
		return Chart{}, err
	}

	chart := Chart{Bars: make([]Bar, len(points)), NowIndex: now}
	if len(points) == 0 {
		return chart, nil
	}

	lo, hi := points[0].Magnitude, points[0].Magnitude
	for _, p := range points[1:] {
		lo = math.Min(lo, p.Magnitude)
		hi = math.Max(hi, p.Magnitude)
	}

	span := hi - lo
	var scale float64
	if span > 0 {
		scale = (maxPct - minPct) / span
	}

	for i, p := range points {
		h := minPct + (p.Magnitude-lo)*scale
		top := h
		if p.Forecast && p.Confidence > 0 {
			top = math.Min(h+p.Confidence*scale, maxPct)
		}
		chart.Bars[i] = Bar{Index: p.Index, Height: h, Forecast: p.Forecast, ConfidenceHeight: top}
	}
	return chart, nil
}

// boundary validates the series and returns the "now" marker position.
func boundary(points []Point) (int, error) {
	first := -1
	for i, p := range points {
		if !(p.Magnitude >= 0) || math.IsInf(p.Magnitude, 1) {
			return 0, fmt.Errorf("%w: point %d = %v", ErrNegativeMagnitude, i, p.Magnitude)
		}
		switch {
		case p.Forecast && first < 0:
			first = i
		case !p.Forecast && first >= 0:
			return 0, fmt.Errorf("%w: point %d", ErrInterleavedForecast, i)
		}
	}
	if first <= 0 {
		// No forecast points, or no historical ones.
		return NoMarker, nil
	}
	return first - 1, nil
}
