package http

import (
	"context"
	"net/http"
	"time"

	"github.com/GriffinCanCode/courier/internal/infrastructure/logging"
	"github.com/GriffinCanCode/courier/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/courier/internal/relay"
	"github.com/GriffinCanCode/courier/internal/tagging"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OutcomeHeader reports how the pipeline handled an intercepted request.
const OutcomeHeader = "X-Courier-Outcome"

// Pipeline is the request tagging pipeline.
type Pipeline interface {
	Process(ctx context.Context, req tagging.Request) (*tagging.Result, tagging.Outcome)
}

// RelayStatus reports the relay connection.
type RelayStatus interface {
	State() relay.State
	NextDelay() time.Duration
}

// CounterStatus reports the correlation counter.
type CounterStatus interface {
	Current() (value int64, ready bool)
}

// InterceptRequest is the body of POST /v1/intercept.
type InterceptRequest struct {
	ContainerID    string           `json:"containerId"`
	RequestHeaders []tagging.Header `json:"requestHeaders"`
}

// InterceptResponse is returned when headers changed or were confirmed.
type InterceptResponse struct {
	RequestHeaders []tagging.Header `json:"requestHeaders"`
}

// Handlers contains all HTTP handlers
type Handlers struct {
	pipeline Pipeline
	relay    RelayStatus
	counter  CounterStatus
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	started  time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(pipeline Pipeline, relay RelayStatus, counter CounterStatus,
	metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	return &Handlers{
		pipeline: pipeline,
		relay:    relay,
		counter:  counter,
		metrics:  metrics,
		logger:   logging.OrNop(logger),
		started:  time.Now(),
	}
}

// Intercept runs one browser request through the tagging pipeline.
func (h *Handlers) Intercept(c *gin.Context) {
	var req InterceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("malformed intercept request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, outcome := h.pipeline.Process(c.Request.Context(), tagging.Request{
		ContainerID: req.ContainerID,
		Headers:     req.RequestHeaders,
	})
	c.Header(OutcomeHeader, string(outcome))

	if res == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, InterceptResponse{RequestHeaders: res.Headers})
}

// Health handles liveness checks
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "courier",
	})
}

// Status reports relay and counter state
func (h *Handlers) Status(c *gin.Context) {
	counter, ready := h.counter.Current()
	state := h.relay.State()

	status := "ok"
	if !ready || state != relay.StateOpen {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"uptime": time.Since(h.started).Round(time.Second).String(),
		"relay": gin.H{
			"state":     state.String(),
			"nextDelay": h.relay.NextDelay().String(),
		},
		"counter": gin.H{
			"ready": ready,
			"value": counter,
		},
	})
}

// Metrics serves the Prometheus registry
func (h *Handlers) Metrics(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusNotFound)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}
