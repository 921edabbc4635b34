// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components never reach for a global logger; each receives a *zap.Logger,
// usually named after itself with Logger.Component.
//
// Adapters let third-party clients log through the same core:
//   - Leveled for hashicorp/go-retryablehttp
//   - Printf for go-resty
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "8000"))
//	logger.Component("fetch").Error("Failed to fetch", zap.Error(err))
package logging
