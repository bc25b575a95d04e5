// Package pubsub provides the Google Cloud Pub/Sub sender for outbound
// notifications. It is selected with bus.driver=pubsub as an alternative to
// the Kafka producer.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/config"
)

// Publisher sends payloads to Pub/Sub topics, caching topic handles so their
// publish batching goroutines are reused across calls.
type Publisher struct {
	client *pubsub.Client
	logger *slog.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPublisher connects to Pub/Sub. Application Default Credentials are used
// unless a credentials file is configured. extra options are appended, e.g.
// to point the client at an emulator.
func NewPublisher(ctx context.Context, cfg config.PubSubConfig, extra ...option.ClientOption) (*Publisher, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("pubsub project id is required")
	}
	opts := append([]option.ClientOption(nil), extra...)
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client for project %s: %w", cfg.ProjectID, err)
	}
	return &Publisher{
		client: client,
		logger: slog.Default().With("component", "pubsub-publisher", "project_id", cfg.ProjectID),
		topics: make(map[string]*pubsub.Topic),
	}, nil
}

// Send publishes payload and waits for the server-assigned message id. A
// non-empty key becomes the ordering key attribute.
func (p *Publisher) Send(ctx context.Context, topic, key string, payload []byte) error {
	msg := &pubsub.Message{Data: payload}
	if key != "" {
		msg.Attributes = map[string]string{"key": key}
	}
	id, err := p.topic(topic).Publish(ctx, msg).Get(ctx)
	if err != nil {
		p.logger.Error("failed to publish message", "topic", topic, "key", key, "error", err)
		return fmt.Errorf("publishing to pubsub topic %s: %w", topic, err)
	}
	p.logger.Debug("message published", "topic", topic, "message_id", id, "value_size", len(payload))
	return nil
}

func (p *Publisher) topic(name string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.client.Topic(name)
		p.topics[name] = t
	}
	return t
}

// Close stops every cached topic, flushing outstanding publishes, and closes
// the client.
func (p *Publisher) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.topics = map[string]*pubsub.Topic{}
	p.mu.Unlock()
	return p.client.Close()
}
