package notify

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/courier/internal/infrastructure/logging"
	"github.com/GriffinCanCode/courier/internal/infrastructure/monitoring"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Notification is a basic user-visible message.
type Notification struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Icon        string    `json:"iconUrl"`
	ContainerID string    `json:"containerId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// stamp fills in the id and timestamp if missing.
func (n Notification) stamp() Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return n
}

// Notifier shows notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to Notifier.
type Func func(n Notification)

// Notify implements Notifier.
func (f Func) Notify(n Notification) { f(n) }

// Log writes notifications to the log.
type Log struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewLog creates a log notifier.
func NewLog(logger *zap.Logger, metrics *monitoring.Metrics) *Log {
	return &Log{logger: logging.OrNop(logger), metrics: metrics}
}

// Notify implements Notifier.
func (l *Log) Notify(n Notification) {
	n = n.stamp()
	l.metrics.RecordNotification()
	l.logger.Warn(n.Message,
		zap.String("notification_id", n.ID),
		zap.String("title", n.Title),
		zap.String("container", n.ContainerID),
		zap.String("icon", n.Icon))
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(n Notification) {
	n = n.stamp()
	for _, target := range m {
		if target != nil {
			target.Notify(n)
		}
	}
}

// Throttle limits notifications per container. A zero interval passes
// everything through.
type Throttle struct {
	next     Notifier
	interval time.Duration
	logger   *zap.Logger

	limiters *limiterSet
}

// NewThrottle wraps next so that each container notifies at most once per
// interval.
func NewThrottle(next Notifier, interval time.Duration, logger *zap.Logger) *Throttle {
	return &Throttle{
		next:     next,
		interval: interval,
		logger:   logging.OrNop(logger),
		limiters: newLimiterSet(interval),
	}
}

// Notify implements Notifier.
func (t *Throttle) Notify(n Notification) {
	if t.interval > 0 && !t.limiters.get(n.ContainerID).Allow() {
		t.logger.Debug("notification throttled",
			zap.String("container", n.ContainerID),
			zap.String("title", n.Title))
		return
	}
	t.next.Notify(n)
}

// limiterSet hands out one limiter per key.
type limiterSet struct {
	every rate.Limit
	mu    sync.Mutex
	byKey map[string]*rate.Limiter
}

func newLimiterSet(interval time.Duration) *limiterSet {
	every := rate.Inf
	if interval > 0 {
		every = rate.Every(interval)
	}
	return &limiterSet{every: every, byKey: make(map[string]*rate.Limiter)}
}

func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.byKey[key]
	if !ok {
		l = rate.NewLimiter(s.every, 1)
		s.byKey[key] = l
	}
	return l
}
