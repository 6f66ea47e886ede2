package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"continuouscare/internal/logging"
	"continuouscare/internal/models"
)

// Publisher streams detected per-tick events to a Kafka topic. Best-effort:
// publish failures are logged and never reach the scheduler. A nil
// Publisher (no broker configured) silently drops everything.
type Publisher struct {
	writer *kafka.Writer
	logger *logging.Logger
}

// New builds a Publisher, or nil when broker is empty.
func New(broker, topic string, logger *logging.Logger) *Publisher {
	if broker == "" {
		return nil
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(broker),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
		logger: logger,
	}
}

// Publish sends one event summary keyed by username.
func (p *Publisher) Publish(ctx context.Context, username string, summary *models.EventSummary) {
	if p == nil || summary == nil || summary.Empty() {
		return
	}

	payload, err := json.Marshal(struct {
		Username string               `json:"username"`
		Time     int64                `json:"time"`
		Event    *models.EventSummary `json:"event"`
	}{username, time.Now().Unix(), summary})
	if err != nil {
		p.logger.Errorf("Marshal event for %s failed: %v", username, err)
		return
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(username),
		Value: payload,
	})
	if err != nil {
		p.logger.Errorf("Publish event for %s failed: %v", username, err)
	}
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if err := p.writer.Close(); err != nil {
		p.logger.Errorf("Kafka writer close failed: %v", err)
	}
}
