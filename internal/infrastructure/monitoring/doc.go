/*
Package monitoring provides Prometheus metrics for the courier daemon.

# Overview

Metrics live on a private registry so several daemons (or tests) can coexist
in one process. Every recording method is safe to call on a nil *Metrics,
which lets components treat metrics as optional.

# Metrics

- courier_http_requests_total / courier_http_request_duration_seconds
- courier_relay_state, courier_relay_reconnects_total, courier_relay_backoff_seconds
- courier_events_sent_total, courier_events_dropped_total{reason}
- courier_correlation_ids_total{origin}, courier_correlation_counter
- courier_counter_persist_failures_total
- courier_lookup_failures_total{kind}
- courier_notifications_total
- courier_pipeline_outcomes_total{outcome}, courier_pipeline_duration_seconds

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
