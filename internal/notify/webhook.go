package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/courier/internal/infrastructure/logging"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Webhook POSTs each notification as JSON to a URL, for desktop bridges or
// chat integrations.
type Webhook struct {
	url     string
	timeout time.Duration
	client  *resty.Client
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url string, timeout time.Duration, logger *zap.Logger) *Webhook {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "courier-notify/1.0")
	return &Webhook{
		url:     url,
		timeout: timeout,
		client:  client,
		logger:  logging.OrNop(logger),
	}
}

// Notify implements Notifier. Delivery happens in the background.
func (w *Webhook) Notify(n Notification) {
	n = n.stamp()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		if err := w.deliver(ctx, n); err != nil {
			w.logger.Warn("notification webhook failed",
				zap.String("notification_id", n.ID),
				zap.String("url", w.url),
				zap.Error(err))
		}
	}()
}

func (w *Webhook) deliver(ctx context.Context, n Notification) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(n).
		Post(w.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned %d", resp.StatusCode())
	}
	return nil
}

// Wait blocks until in-flight deliveries finish.
func (w *Webhook) Wait() {
	w.wg.Wait()
}
