// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - GRPCPort:        port for the gRPC receiver (default 50051)
//   - HTTPPort:        port for the REST API, WebSocket hub and /metrics (default 8080)
//   - Log.Level:       debug | info | warn | error
//   - Auth:            API key mode, key env var and header name
//   - Snapshot:        reading TTL (default 15m) and per-building history size (24)
//   - Classification:  normal_ceiling / warning_ceiling variance percentages (15 / 35)
//   - Dashboard:       chart radii, bar height range, peak window, broadcast interval
//   - Alerts:          cooldown, tariff and currency, history size, webhooks
//   - Buildings:       registry of id, name, type and capacity_kwh
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, onChange) reloads the file on write and keeps the previous
// config when the new one does not load.
package config
