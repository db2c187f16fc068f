// Package layout converts numbers into chart geometry.
//
// segments.go lays category weights out as donut arcs (Arcs) and stacked bar
// widths (Widths); Fill sizes a single capped progress bar.
// ring.go sizes a single-value progress ring.
// series.go normalizes a time series onto a bounded height range and marks
// the boundary between historical and forecast bars.
// zones.go flags tariff peak hours on a 24-hour profile.
//
// Every function is pure. Zero total weight fails with ErrEmptySegmentSet
// rather than dividing by zero.
package layout
