// Package http exposes the hook API the browser extension calls for every
// outbound request, plus operational endpoints.
//
// Endpoints:
//   - Intercept: POST /v1/intercept
//   - Health: /health and /status
//   - Metrics: /metrics
//
// The intercept contract mirrors the browser's blocking request hook:
// 200 with {"requestHeaders": [...]} to replace the header set, or 204 to
// leave the request untouched. Any other status is treated as "no change"
// by the extension, so a failure here never blocks browsing.
//
// Example Usage:
//
//	handlers := http.NewHandlers(pipeline, manager, allocator, metrics, logger)
//	router := http.NewRouter(handlers, http.RouterConfig{})
package http
