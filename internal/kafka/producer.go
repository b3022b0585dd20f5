package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/telesight/cdr-intel/internal/config"
	"github.com/telesight/cdr-intel/internal/monitoring"
)

// AlertEvent is the wire form of a monitoring alert.
type AlertEvent struct {
	AlertID     string    `json:"alertId"`
	Login       string    `json:"login"`
	TargetID    string    `json:"targetId"`
	TargetType  string    `json:"targetType"`
	TargetValue string    `json:"targetValue"`
	NewPeers    []string  `json:"newPeers"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Producer publishes monitoring alerts to the fraud-alert topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg config.KafkaConfig, logger *slog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topics.FraudAlert,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Producer{writer: writer, logger: logger}
}

// PublishAlert sends one alert, keyed by login so a user's alerts stay
// ordered within a partition.
func (p *Producer) PublishAlert(ctx context.Context, login string, alert *monitoring.Alert) error {
	event := AlertEvent{
		AlertID:     alert.ID,
		Login:       login,
		TargetID:    alert.TargetID,
		TargetType:  string(alert.TargetType),
		TargetValue: alert.TargetValue,
		NewPeers:    alert.NewPeers,
		CreatedAt:   alert.CreatedAt,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode alert event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(login),
		Value: payload,
	})
	if err != nil {
		p.logger.Error("Failed to publish alert event", "alert_id", alert.ID, "error", err)
		return fmt.Errorf("failed to publish alert event: %w", err)
	}

	p.logger.Debug("Alert event published", "alert_id", alert.ID, "login", login)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
