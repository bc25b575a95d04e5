// Package kafka provides the Kafka sender for outbound notifications, backed
// by segmentio/kafka-go. One writer serves every topic; the topic travels on
// each message.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/config"
	"github.com/segmentio/kafka-go"
)

// Producer writes pre-serialised payloads to Kafka topics.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a Producer for the configured brokers.
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              1,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer"),
	}
}

// Send writes a single message synchronously. Key drives partition hashing
// and may be empty.
func (p *Producer) Send(ctx context.Context, topic, key string, payload []byte) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish message",
			"topic", topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("publishing to kafka topic %s: %w", topic, err)
	}
	p.logger.Debug("message published",
		"topic", topic,
		"key", key,
		"value_size", len(payload),
	)
	return nil
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
