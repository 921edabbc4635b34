/*
Package monitoring provides Prometheus metrics for the HTTP API and executions.

# Overview

Each Metrics value owns a private registry. Collectors cover HTTP requests,
plan executions and stages, registry size and circuit breaker transitions,
plus the Go runtime and process collectors.

# Usage

	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Report executions
	executor := plan.NewExecutor(fetcher, kernel,
		plan.WithObserver(monitoring.NewObserver(metrics)))

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
