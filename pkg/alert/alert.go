// Package alert delivers budget notifications to external sinks. Delivery is
// best effort: Dispatch never blocks and never returns an error to the caller.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/pario-ai/skirmish/pkg/metrics"
	"github.com/pario-ai/skirmish/pkg/models"
)

// Notifier delivers one alert.
type Notifier interface {
	Notify(ctx context.Context, a models.Alert) error
}

// Webhook POSTs the alert as JSON.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url string, client *http.Client) *Webhook {
	if client == nil {
		client = http.DefaultClient
	}
	return &Webhook{url: url, client: client}
}

// Notify implements Notifier.
func (w *Webhook) Notify(ctx context.Context, a models.Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// MessageWriter is the subset of *kafka.Writer used by Kafka.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes alerts to a topic keyed by environment.
type Kafka struct {
	writer MessageWriter
}

// NewKafka creates a Kafka notifier writing to topic.
func NewKafka(brokers []string, topic string) *Kafka {
	return NewKafkaWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	})
}

// NewKafkaWithWriter wraps an existing writer.
func NewKafkaWithWriter(w MessageWriter) *Kafka {
	return &Kafka{writer: w}
}

// Notify implements Notifier.
func (k *Kafka) Notify(ctx context.Context, a models.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(a.Environment),
		Value: data,
		Time:  a.CreatedAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(a.Kind)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, a models.Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards alerts.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, models.Alert) error { return nil }

// Dispatch sends a in the background with its own timeout. Errors and panics
// are logged and counted, never returned. The returned channel is closed when
// delivery finishes.
func Dispatch(n Notifier, a models.Alert, timeout time.Duration, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if n == nil {
		close(done)
		return done
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				metrics.AlertsTotal.WithLabelValues(a.Kind, "panic").Inc()
				logger.Error("alert sink panicked", zap.String("kind", a.Kind), zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := n.Notify(ctx, a); err != nil {
			metrics.AlertsTotal.WithLabelValues(a.Kind, "error").Inc()
			logger.Warn("alert delivery failed", zap.String("kind", a.Kind), zap.Error(err))
			return
		}
		metrics.AlertsTotal.WithLabelValues(a.Kind, "ok").Inc()
		logger.Info("alert delivered", zap.String("kind", a.Kind), zap.String("environment", a.Environment))
	}()
	return done
}
