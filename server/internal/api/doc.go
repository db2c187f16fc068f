// Package api implements the HTTP REST API of wattboard-server.
//
// New(Options) returns an http.Handler that serves:
//
//	GET  /api/v1/health                  campus state, per-band counts
//	GET  /api/v1/buildings               one card per building
//	GET  /api/v1/buildings/{id}          detail page plus insights
//	GET  /api/v1/buildings/{id}/forecast history and forecast chart, accuracy
//	GET  /api/v1/alerts                  active alerts; ?state=resolved&limit=N for history
//	GET  /api/v1/alerts/{id}             one alert
//	POST /api/v1/alerts/{id}/resolve     resolve an alert (operator auth)
//	GET  /api/v1/snapshot                everything the live dashboard shows
//
// All endpoints respond with Content-Type: application/json and return 405
// for the wrong method. JSON types are defined in types.go.
package api
