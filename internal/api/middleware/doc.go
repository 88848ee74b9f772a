// Package middleware provides the Gin middleware used by the hook API.
//
//   - CORS: admits the browser extension's moz-extension:// origin and
//     loopback pages
//   - RateLimit: per-IP token bucket for the operational endpoints
//   - AccessLog: request logging through zap
//
// The intercept route is never rate limited: rejecting it would stall the
// browser request it represents.
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	ops.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
