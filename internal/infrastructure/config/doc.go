// Package config provides 12-factor configuration for the courier daemon.
//
// Configuration is loaded from environment variables with defaults that match
// the Pioneer companion's expectations. CLI flags may override a few fields.
//
// Configuration Sections:
//   - Relay: WebSocket endpoint and reconnect backoff
//   - Correlation: header name, counter key, readiness and lookup timeouts
//   - Storage: durable counter store driver and path
//   - Directory: where container names and roles come from
//   - Notify: notification webhook, icon and throttling
//   - API: hook API listen address
//   - Proxy: optional forward proxy
//   - Logging: log level and output format
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("relaying to %s\n", cfg.Relay.URL)
//
// Environment Variables:
//   - COURIER_RELAY_URL, COURIER_BACKOFF_FLOOR, COURIER_BACKOFF_CEILING
//   - COURIER_HEADER, COURIER_COUNTER_KEY, COURIER_READY_TIMEOUT, COURIER_LOOKUP_TIMEOUT
//   - COURIER_STORAGE_DRIVER, COURIER_STORAGE_PATH
//   - COURIER_DIRECTORY_SOURCE, COURIER_DIRECTORY_PATH, COURIER_DIRECTORY_URL
//   - COURIER_NOTIFY_WEBHOOK, COURIER_NOTIFY_MIN_INTERVAL
//   - COURIER_API_HOST, COURIER_API_PORT, COURIER_PROXY_ENABLED, COURIER_PROXY_ADDR
//   - LOG_LEVEL, LOG_DEV
package config
