package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/config"
)

func TestNewProducerWriterSettings(t *testing.T) {
	p := NewProducer(config.KafkaConfig{Brokers: []string{"broker-a:9092"}})
	defer p.Close()

	assert.Equal(t, "broker-a:9092", p.writer.Addr.String())
	assert.IsType(t, &kafka.Hash{}, p.writer.Balancer)
	assert.Equal(t, kafka.RequireAll, p.writer.RequiredAcks)
	assert.False(t, p.writer.Async)
	assert.Empty(t, p.writer.Topic, "topic travels on each message")
}

func TestSendUnreachableBrokerFails(t *testing.T) {
	p := NewProducer(config.KafkaConfig{Brokers: []string{"127.0.0.1:1"}})
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	err := p.Send(ctx, "secondary-report-notification", "BAW:Annual", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secondary-report-notification")
}
