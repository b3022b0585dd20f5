package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/telesight/cdr-intel/internal/config"
	"github.com/telesight/cdr-intel/internal/monitoring"
)

// IngestEvent announces that a batch of CDR rows landed in the archive.
// Logins restricts the triggered refresh; empty means everyone.
type IngestEvent struct {
	SourceFile string   `json:"sourceFile"`
	Records    int      `json:"records"`
	Logins     []string `json:"logins,omitempty"`
}

// Refresher is the slice of the monitoring engine the consumer drives.
type Refresher interface {
	RefreshAll(ctx context.Context) error
	RefreshUser(ctx context.Context, login string) ([]*monitoring.Alert, error)
}

// Consumer listens on the cdr-ingested topic and triggers monitoring
// refreshes so freshly loaded traffic is correlated without waiting for
// the periodic cycle.
type Consumer struct {
	reader    *kafka.Reader
	refresher Refresher
	logger    *slog.Logger
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg config.KafkaConfig, refresher Refresher, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topics.CdrIngested,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, refresher: refresher, logger: logger}
}

// Run consumes until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Kafka consumer started", "topic", c.reader.Config().Topic)
	for {
		message, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Kafka consumer stopped")
				return nil
			}
			c.logger.Error("Failed to read message", "error", err)
			continue
		}
		c.handle(ctx, message)
	}
}

func (c *Consumer) handle(ctx context.Context, message kafka.Message) {
	var event IngestEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		// A malformed event is logged and skipped, never fatal.
		c.logger.Warn("Dropping undecodable ingest event",
			"topic", message.Topic, "offset", message.Offset, "error", err)
		return
	}

	c.logger.Info("CDR ingest event received",
		"source_file", event.SourceFile,
		"records", event.Records,
		"logins", len(event.Logins))

	if len(event.Logins) == 0 {
		if err := c.refresher.RefreshAll(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("Refresh after ingest failed", "error", err)
		}
		return
	}
	for _, login := range event.Logins {
		if _, err := c.refresher.RefreshUser(ctx, login); err != nil {
			c.logger.Error("User refresh after ingest failed", "login", login, "error", err)
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
