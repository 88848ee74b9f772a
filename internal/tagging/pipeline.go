package tagging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/GriffinCanCode/courier/internal/directory"
	"github.com/GriffinCanCode/courier/internal/infrastructure/logging"
	"github.com/GriffinCanCode/courier/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/courier/internal/notify"
	"github.com/GriffinCanCode/courier/internal/relay"
	"go.uber.org/zap"
)

const (
	DefaultHeaderName = "Pioneer-Correlation-Id"
	DefaultIcon       = "img/multiaccountcontainer-48.svg"

	FallbackName = "Default"
	FallbackRole = "default"

	MissingRoleTitle = "Pioneer Integration Error"
)

// MissingRoleMessage is the notification body for a container without a role.
func MissingRoleMessage(containerName string) string {
	return fmt.Sprintf("Container '%s' missing role! Configure in settings.", containerName)
}

// Allocator mints correlation ids once loaded.
type Allocator interface {
	Wait(ctx context.Context) error
	Next() (int64, error)
}

// Sender delivers an event best-effort.
type Sender interface {
	Send(v any) bool
}

// Config configures the Pipeline.
type Config struct {
	HeaderName    string
	Icon          string
	ReadyTimeout  time.Duration
	LookupTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.HeaderName == "" {
		c.HeaderName = DefaultHeaderName
	}
	if c.Icon == "" {
		c.Icon = DefaultIcon
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 5 * time.Second
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = 2 * time.Second
	}
	return c
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = logging.OrNop(l) }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline is the request tagging orchestrator. It is safe for concurrent use.
type Pipeline struct {
	cfg       Config
	allocator Allocator
	sender    Sender
	resolver  directory.Resolver
	roles     directory.RoleDirectory
	notifier  notify.Notifier
	logger    *zap.Logger
	metrics   *monitoring.Metrics
}

// New creates a Pipeline.
func New(cfg Config, allocator Allocator, sender Sender, resolver directory.Resolver,
	roles directory.RoleDirectory, notifier notify.Notifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg.withDefaults(),
		allocator: allocator,
		sender:    sender,
		resolver:  resolver,
		roles:     roles,
		notifier:  notifier,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HeaderName returns the correlation header name.
func (p *Pipeline) HeaderName() string {
	return p.cfg.HeaderName
}

// Handle runs the pipeline and returns the header set to send, or nil when
// the request is left alone.
func (p *Pipeline) Handle(ctx context.Context, req Request) *Result {
	res, _ := p.Process(ctx, req)
	return res
}

// Process is Handle that also reports the outcome.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Result, Outcome) {
	start := time.Now()
	res, outcome := p.process(ctx, req)
	p.metrics.RecordOutcome(string(outcome), time.Since(start))
	return res, outcome
}

func (p *Pipeline) process(ctx context.Context, req Request) (*Result, Outcome) {
	if !p.awaitReady(ctx) {
		return nil, OutcomeUnready
	}

	if !Participates(req.ContainerID) || req.Headers == nil {
		return nil, OutcomeSkipped
	}

	headers := make([]Header, len(req.Headers), len(req.Headers)+1)
	copy(headers, req.Headers)

	var id int64
	if i := findHeader(headers, p.cfg.HeaderName); i >= 0 {
		supplied, err := strconv.ParseInt(strings.TrimSpace(headers[i].Value), 10, 64)
		if err != nil {
			p.logger.Warn("caller-supplied correlation id is not an integer",
				zap.String("container", req.ContainerID),
				zap.String("value", headers[i].Value))
			return &Result{Headers: headers}, OutcomeInvalidID
		}
		id = supplied
		p.metrics.RecordCorrelationID("supplied")
	} else {
		minted, err := p.allocator.Next()
		if err != nil {
			p.logger.Error("correlation id allocation failed", zap.Error(err))
			return nil, OutcomeUnready
		}
		id = minted
		headers = append(headers, Header{Name: p.cfg.HeaderName, Value: strconv.FormatInt(id, 10)})
		p.metrics.RecordCorrelationID("minted")
	}

	name, role, ok := p.describe(ctx, req.ContainerID)
	if !ok {
		p.notifier.Notify(notify.Notification{
			Title:       MissingRoleTitle,
			Message:     MissingRoleMessage(name),
			Icon:        p.cfg.Icon,
			ContainerID: req.ContainerID,
		})
		return &Result{Headers: headers}, OutcomeSuppressed
	}

	if !p.sender.Send(relay.NewContextEvent(id, role, name)) {
		p.logger.Debug("context event not delivered",
			zap.Int64("correlation_id", id),
			zap.String("container", name))
	}
	return &Result{Headers: headers}, OutcomeEmitted
}

func (p *Pipeline) awaitReady(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ReadyTimeout)
	defer cancel()
	if err := p.allocator.Wait(ctx); err != nil {
		p.logger.Warn("correlation allocator not ready, passing request through", zap.Error(err))
		return false
	}
	return true
}

// describe resolves the display name and role for containerID. ok is false
// when the container is known but has no role configured.
func (p *Pipeline) describe(ctx context.Context, containerID string) (name, role string, ok bool) {
	ctx, cancel := context.WithTimeout(directory.WithLookupScope(ctx), p.cfg.LookupTimeout)
	defer cancel()

	identity, err := p.resolver.Resolve(ctx, containerID)
	if err != nil {
		if !errors.Is(err, directory.ErrNotFound) {
			p.metrics.RecordLookupFailure("identity")
		}
		p.logger.Warn("container identity lookup failed",
			zap.String("container", containerID),
			zap.Error(err))
		return FallbackName, FallbackRole, true
	}

	role, found, err := p.roles.Role(ctx, containerID)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		return identity.Name, "", false
	case err != nil:
		p.metrics.RecordLookupFailure("role")
		p.logger.Warn("container role lookup failed",
			zap.String("container", containerID),
			zap.Error(err))
		return identity.Name, FallbackRole, true
	case !found || role == "":
		return identity.Name, "", false
	}
	return identity.Name, role, true
}
