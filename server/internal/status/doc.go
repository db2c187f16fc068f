// Package status turns raw consumption readings into discrete classifications.
//
// variance.go computes the signed, integer-rounded percentage deviation of a
// current value from its baseline, plus the direction of that deviation.
//
// classify.go maps the variance percent onto a Band using configurable,
// monotonic ceilings (Normal < 15% ≤ Warning < 35% ≤ Critical by default).
//
// All functions are pure and safe for concurrent use. A baseline that is not
// strictly positive is rejected with ErrInvalidBaseline; nothing is divided
// by zero and nothing is guessed.
package status
