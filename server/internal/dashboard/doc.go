// Package dashboard turns stored readings and tracked alerts into the view
// models the REST API and WebSocket hub serve: building cards, the building
// detail page (breakdown donut, 24h profile), the forecast chart with its
// accuracy ring, and the campus summary.
//
// Live holds the hot-reloadable settings (thresholds, chart geometry,
// building registry). Builder reads them once per call, so a reload never
// mixes old and new settings within one view.
package dashboard
