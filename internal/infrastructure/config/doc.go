// Package config provides 12-factor configuration management for the nbapi host.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP listen address, shutdown grace period, CORS origins
//   - Fetch: notebook document fetching (timeouts, retries, throttling, auth)
//   - Kernel: interpreter backend selection and Jupyter gateway settings
//   - Registry: directory and default format of stored services
//   - History: SQLite run history location
//   - Artifacts: base directory for collecting declared outputs
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Serving services from %s on %s\n", cfg.Registry.Dir, cfg.Server.Addr())
//
// Environment Variables:
//   - PORT, HOST, SHUTDOWN_TIMEOUT, CORS_ORIGINS
//   - FETCH_TIMEOUT, FETCH_MAX_RETRIES, FETCH_RPS, FETCH_TOKEN, FETCH_ALLOW_FILES
//   - KERNEL_BACKEND, KERNEL_GATEWAY_URL, KERNEL_GATEWAY_TOKEN, KERNEL_STAGE_TIMEOUT
//   - REGISTRY_DIR, REGISTRY_FORMAT, REGISTRY_WATCH
//   - HISTORY_PATH, ARTIFACT_DIR
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
