package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/GriffinCanCode/courier/internal/infrastructure/logging"
	"github.com/GriffinCanCode/courier/internal/infrastructure/resilience"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPConfig configures the remote directory client.
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
	// RPS caps outbound lookups per second; 0 means unlimited.
	RPS        float64
	MaxRetries int
	Logger     *zap.Logger
}

// HTTP resolves containers against a remote directory service:
//
//	GET {base}/containers/{id} -> 200 {"id","name","role"} | 404
type HTTP struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *zap.Logger
}

// NewHTTP creates a remote directory client.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid directory url %q: %w", cfg.BaseURL, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = 50 * time.Millisecond
	retryClient.RetryWaitMax = 500 * time.Millisecond
	retryClient.Logger = nil

	client := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "courier-directory/1.0")

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	breaker := resilience.New("directory-http", resilience.Settings{
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
	})

	return &HTTP{
		resty:   client,
		limiter: limiter,
		breaker: breaker,
		logger:  logging.OrNop(cfg.Logger),
	}, nil
}

// Breaker exposes the circuit breaker for status reporting.
func (h *HTTP) Breaker() *resilience.Breaker {
	return h.breaker
}

func (h *HTTP) fetch(ctx context.Context, id string) (Entry, error) {
	if e, ok := scopedEntry(ctx, id); ok {
		return e, nil
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return Entry{}, fmt.Errorf("directory rate limit: %w", err)
	}

	entry, err := resilience.Execute(ctx, h.breaker, func(ctx context.Context) (Entry, error) {
		var entry Entry
		resp, err := h.resty.R().
			SetContext(ctx).
			SetPathParam("id", id).
			SetResult(&entry).
			Get("/containers/{id}")
		if err != nil {
			return Entry{}, fmt.Errorf("directory request: %w", err)
		}

		switch resp.StatusCode() {
		case http.StatusOK:
			if entry.ID == "" {
				entry.ID = id
			}
			return entry, nil
		case http.StatusNotFound:
			return Entry{}, ErrNotFound
		default:
			return Entry{}, fmt.Errorf("directory returned %d", resp.StatusCode())
		}
	})
	if err != nil {
		return Entry{}, err
	}
	rememberEntry(ctx, id, entry)
	return entry, nil
}

// Resolve implements Resolver.
func (h *HTTP) Resolve(ctx context.Context, id string) (Identity, error) {
	e, err := h.fetch(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			h.logger.Debug("directory resolve failed", zap.String("container", id), zap.Error(err))
		}
		return Identity{}, err
	}
	return Identity{ID: e.ID, Name: e.Name}, nil
}

// Role implements RoleDirectory.
func (h *HTTP) Role(ctx context.Context, id string) (string, bool, error) {
	e, err := h.fetch(ctx, id)
	if err != nil {
		return "", false, err
	}
	return e.Role, e.Role != "", nil
}
