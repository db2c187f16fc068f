// Package alerts implements the alert lifecycle for wattboard buildings.
//
// An alert is raised when a reading classifies Warning or Critical and moves
// Active -> Resolved only through an explicit Resolve. Raise and Resolve are
// pure value functions; Tracker serializes them per server so concurrent
// resolves of one alert have a single winner. Raise, escalate and resolve
// events are delivered to Slack, Teams or generic HTTP webhooks.
package alerts
