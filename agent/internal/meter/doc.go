// Package meter turns raw meter samples into the readings the agent ships.
//
// Engine.Process takes one scraper.Sample per meter per cycle and returns a
// Result carrying either a meterpb.Reading or the reason none was produced:
// a failed scrape, a repeated sample, the first or reset sample of a
// cumulative counter, or a missing baseline. Counter deltas are scaled to
// the meter's period so they compare with the baseline.
//
// The engine also tracks each meter's availability over its last 20 scrapes
// (online >= 90%, flaky >= 50%, offline below) and logs transitions.
package meter
