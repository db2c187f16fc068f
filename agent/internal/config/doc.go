// Package config loads and watches the agent section of config.yaml.
//
// Load(path) reads the file, applies defaults (60s scrape interval, 1000
// reading buffer, 100 readings per batch, kWh over a 1h period per meter),
// then validates required fields and enums. Meters are either prometheus
// exporters (endpoint) or MQTT topics on the shared broker (topic).
//
// Secrets are never stored in the file: *_env fields name the environment
// variables that hold them.
//
// Watch(ctx, path, onChange) uses fsnotify to detect rewrites and calls
// onChange with the new agent section.
package config
