// Package config loads and validates the housekeeper configuration.
//
// Configuration is read from a YAML file, merged over built-in defaults,
// and finally overridden by HOUSEKEEPER_* environment variables. The
// registry token additionally falls back to SUPERVISOR_TOKEN so the
// housekeeper works unconfigured when running as a managed add-on next
// to the registry host.
//
// Sections:
//   - registry: WebSocket endpoint, token, timeouts
//   - housekeeper: data directory, rules path, fallback area name
//   - database: SQLite run-history settings
//   - api: HTTP server settings
//   - mqtt: optional event notifier
//   - influxdb: optional run-metrics sink
//   - logging: level, format, output
package config
