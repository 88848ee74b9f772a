package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	// AllowSchemes admits any origin using one of these schemes, such as
	// moz-extension for the browser extension.
	AllowSchemes []string
	// AllowOrigins lists exact origins admitted in addition.
	AllowOrigins []string
	// AllowLoopback admits http origins on localhost and 127.0.0.1.
	AllowLoopback bool
	AllowMethods  []string
	AllowHeaders  []string
	MaxAge        time.Duration
}

// DefaultCORSConfig admits the browser extension and local pages.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowSchemes:  []string{"moz-extension"},
		AllowLoopback: true,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept",
			"Origin",
		},
		MaxAge: 12 * time.Hour,
	}
}

// Allowed reports whether origin passes cfg.
func (cfg CORSConfig) Allowed(origin string) bool {
	for _, o := range cfg.AllowOrigins {
		if o == origin {
			return true
		}
	}

	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" {
		return false
	}
	for _, scheme := range cfg.AllowSchemes {
		if strings.EqualFold(u.Scheme, scheme) {
			return true
		}
	}
	if cfg.AllowLoopback && (u.Scheme == "http" || u.Scheme == "https") {
		switch u.Hostname() {
		case "localhost", "127.0.0.1", "::1":
			return true
		}
	}
	return false
}

// CORS creates a CORS middleware with the provided configuration.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc: cfg.Allowed,
		AllowMethods:    cfg.AllowMethods,
		AllowHeaders:    cfg.AllowHeaders,
		MaxAge:          cfg.MaxAge,
	})
}
