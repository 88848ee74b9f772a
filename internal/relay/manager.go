package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/courier/internal/infrastructure/logging"
	"github.com/GriffinCanCode/courier/internal/infrastructure/monitoring"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SessionHeader carries the per-connection session id on the handshake.
const SessionHeader = "X-Courier-Session"

// Dialer opens WebSocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Timer is a pending reconnect.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. The default wraps time.AfterFunc.
type Scheduler func(d time.Duration, f func()) Timer

func afterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Config configures the Manager.
type Config struct {
	URL              string
	BackoffFloor     time.Duration
	BackoffCeiling   time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.BackoffFloor <= 0 {
		c.BackoffFloor = time.Second
	}
	if c.BackoffCeiling <= 0 {
		c.BackoffCeiling = 30 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 2 * time.Second
	}
	return c
}

// Option customises a Manager.
type Option func(*Manager)

// WithDialer replaces the WebSocket dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithScheduler replaces the reconnect scheduler.
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) { m.schedule = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrNop(l) }
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// Manager owns the single logical connection to the relay endpoint.
type Manager struct {
	cfg      Config
	dialer   Dialer
	schedule Scheduler
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	// base context for dials, set by Start and canceled by Close
	ctx    context.Context
	cancel context.CancelFunc
	dials  sync.WaitGroup

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	session string
	pending Timer
	backoff *Backoff
	closed  bool
}

// NewManager creates a Manager in the Disconnected state. Call Start to dial.
func NewManager(cfg Config, opts ...Option) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg: cfg,
		// the relay is local; never route it through HTTP_PROXY
		dialer: &websocket.Dialer{
			Proxy:            nil,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		schedule: afterFunc,
		logger:   zap.NewNop(),
		backoff:  NewBackoff(cfg.BackoffFloor, cfg.BackoffCeiling),
		state:    StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins connecting. Dials derive from ctx as well as the Manager's own
// lifetime; canceling ctx has the same effect as Close.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.ctx, m.cancel = runCtx, cancel
	m.mu.Unlock()

	go func() {
		<-runCtx.Done()
		m.mu.Lock()
		current := m.ctx == runCtx
		m.mu.Unlock()
		// a later Start replaced this context; that is not a shutdown
		if current {
			m.Close()
		}
	}()

	m.Connect()
}

// Connect dials the relay in the background; it does nothing before Start.
// Any current connection is
// abandoned, not closed: the relay tolerates dangling peers, and its events
// no longer reach the Manager.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.closed || m.ctx == nil {
		m.mu.Unlock()
		return
	}
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
	session := uuid.NewString()
	m.session = session
	m.conn = nil
	m.setState(StateConnecting)
	ctx := m.ctx
	m.dials.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.dials.Done()
		m.dial(ctx, session)
	}()
}

func (m *Manager) dial(ctx context.Context, session string) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	defer cancel()

	header := http.Header{}
	header.Set(SessionHeader, session)

	conn, resp, err := m.dialer.DialContext(ctx, m.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		m.logger.Warn("relay dial failed",
			zap.String("url", m.cfg.URL),
			zap.String("session", session),
			zap.Error(err))
		m.handleClose(session)
		return
	}

	m.mu.Lock()
	if m.closed || m.session != session {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.backoff.Reset()
	m.setState(StateOpen)
	m.mu.Unlock()

	m.metrics.RecordConnectionOpened()
	m.logger.Info("connected to relay", zap.String("url", m.cfg.URL), zap.String("session", session))

	go m.readLoop(conn, session)
}

// readLoop drains inbound frames so close and ping frames are processed. The
// relay does not send application messages to courier.
func (m *Manager) readLoop(conn *websocket.Conn, session string) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.logger.Info("relay closed connection", zap.String("session", session))
			} else {
				m.logger.Warn("relay connection error", zap.String("session", session), zap.Error(err))
			}
			m.handleClose(session)
			return
		}
		m.logger.Debug("ignoring inbound relay message",
			zap.Int("type", msgType),
			zap.Int("bytes", len(data)))
	}
}

// handleClose is the single reconnect path. It acts once per session, so a
// failure that surfaces both as an error and as a close schedules one timer.
func (m *Manager) handleClose(session string) {
	m.mu.Lock()
	if m.closed || m.session != session {
		m.mu.Unlock()
		return
	}
	m.session = ""
	m.conn = nil
	m.setState(StateDisconnected)
	delay := m.backoff.Next()
	m.pending = m.schedule(delay, m.Connect)
	m.mu.Unlock()

	m.metrics.RecordReconnect(delay)
	m.logger.Info("reconnecting to relay", zap.Duration("delay", delay))
}

// Send writes v as one JSON text message if the connection is Open and
// reports whether it was written. Nothing is buffered for later delivery.
func (m *Manager) Send(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Error("encode relay message", zap.Error(err))
		m.metrics.RecordEventDropped("encode")
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateOpen || m.conn == nil {
		m.metrics.RecordEventDropped("not_open")
		return false
	}

	conn := m.conn
	_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		m.logger.Warn("relay write failed", zap.String("session", m.session), zap.Error(err))
		m.metrics.RecordEventDropped("write")
		// the read loop observes the close and schedules the reconnect
		conn.Close()
		return false
	}

	m.metrics.RecordEventSent()
	return true
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// NextDelay returns the delay the next reconnect would wait.
func (m *Manager) NextDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backoff.Peek()
}

// Close cancels any pending reconnect and closes the live connection. It is
// safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
	conn := m.conn
	m.conn = nil
	m.session = ""
	m.setState(StateDisconnected)
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.dials.Wait()

	if conn != nil {
		deadline := time.Now().Add(m.cfg.WriteTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "courier shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		return conn.Close()
	}
	return nil
}

// setState must be called with mu held.
func (m *Manager) setState(s State) {
	m.state = s
	m.metrics.SetRelayState(s.String())
}
