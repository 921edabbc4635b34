// Command server runs the nbapi HTTP service.
//
// It serves the service registry, notebook discovery, plan execution and run
// history over REST, with Prometheus metrics on /metrics.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -registry ./services -gateway http://localhost:8888
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
