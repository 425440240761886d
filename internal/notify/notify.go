// Package notify fans ledger notifications out to external sinks. The
// persisted Notification row is written by the store inside the mutation
// commit; everything here is best-effort delivery on top of that, and a
// delivery failure never affects the ledger.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"wallet-core/internal/domain"
)

// Sink delivers one notification to an external channel.
type Sink interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// LogSink writes notifications to the structured log. Default in dev.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(_ context.Context, n domain.Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification",
		slog.String("owner_id", n.OwnerID),
		slog.String("title", n.Title),
		slog.String("severity", string(n.Severity)))
	return nil
}

// WebhookSink POSTs the notification as JSON to a configured endpoint.
type WebhookSink struct {
	URL    string
	Client *http.Client
}

func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *WebhookSink) Notify(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "wallet-core-webhook/1.0")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
}

// Dispatcher queues notifications and delivers them from a worker pool.
// Enqueue never blocks the caller: when the queue is full the notification
// is dropped and counted, because ledger commits must not wait on delivery.
type Dispatcher struct {
	sink     Sink
	queue    chan domain.Notification
	shutdown chan struct{}
	wg       sync.WaitGroup
	logger   *slog.Logger

	onResult func(status string)
}

// NewDispatcher starts workers delivering to sink. onResult, if non-nil,
// receives "sent", "failed" or "dropped" per notification (metrics hook).
func NewDispatcher(sink Sink, workers, queueSize int, logger *slog.Logger, onResult func(status string)) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	d := &Dispatcher{
		sink:     sink,
		queue:    make(chan domain.Notification, queueSize),
		shutdown: make(chan struct{}),
		logger:   logger,
		onResult: onResult,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return d
}

// Enqueue hands a notification to the pool. Fire-and-forget.
func (d *Dispatcher) Enqueue(n domain.Notification) {
	select {
	case d.queue <- n:
	default:
		d.logger.Warn("notification queue full, dropping",
			slog.String("owner_id", n.OwnerID),
			slog.String("title", n.Title))
		d.result("dropped")
	}
}

// Notify makes the dispatcher itself usable as a Sink.
func (d *Dispatcher) Notify(_ context.Context, n domain.Notification) error {
	d.Enqueue(n)
	return nil
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for {
		select {
		case n := <-d.queue:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := d.sink.Notify(ctx, n)
			cancel()
			if err != nil {
				d.logger.Error("notification delivery failed",
					slog.String("owner_id", n.OwnerID),
					slog.String("title", n.Title),
					slog.Int("worker_id", id),
					slog.String("error", err.Error()))
				d.result("failed")
				continue
			}
			d.result("sent")
		case <-d.shutdown:
			return
		}
	}
}

func (d *Dispatcher) result(status string) {
	if d.onResult != nil {
		d.onResult(status)
	}
}

// Shutdown stops the workers, draining nothing: queued notifications that
// have not started delivery are dropped, consistent with best-effort.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	close(d.shutdown)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CaptureSink records notifications for assertions in tests.
type CaptureSink struct {
	mu   sync.Mutex
	Sent []domain.Notification
}

func (s *CaptureSink) Notify(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent = append(s.Sent, n)
	return nil
}

// Count returns how many notifications have been captured.
func (s *CaptureSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Sent)
}
