// Package messaging publishes notification payloads to the message bus.
// Publish never returns an error: every failure is logged and reported as
// false.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/resilience"
)

// Sender delivers one message to a topic on the underlying bus.
type Sender interface {
	Send(ctx context.Context, topic, key string, payload []byte) error
}

type Publisher struct {
	sender  Sender
	timeout time.Duration
	logger  *slog.Logger
}

func NewPublisher(sender Sender, timeout time.Duration) *Publisher {
	return &Publisher{
		sender:  sender,
		timeout: timeout,
		logger:  slog.Default().With("component", "message-publisher"),
	}
}

// Publish sends payload to topic. Empty topics or payloads are rejected
// without touching the bus.
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) bool {
	if strings.TrimSpace(topic) == "" {
		p.logger.Warn("refusing to publish without a topic")
		return false
	}
	if len(payload) == 0 {
		p.logger.Warn("refusing to publish an empty payload", "topic", topic)
		return false
	}

	key := partitionKey(payload)
	err := resilience.WithTimeout(ctx, p.timeout, "publish "+topic, func(ctx context.Context) error {
		return p.sender.Send(ctx, topic, key, payload)
	})
	if err != nil {
		p.logger.Error("failed to publish message", "topic", topic, "key", key, "error", err)
		return false
	}
	p.logger.Info("message published", "topic", topic, "key", key)
	return true
}

// partitionKey groups messages for the same airline, period and year onto
// one partition. Payloads without those fields get no key.
func partitionKey(payload []byte) string {
	var n struct {
		Airline   string     `json:"airlineICAOCode"`
		Period    string     `json:"reportingPeriod"`
		ReportUTC *time.Time `json:"reportDateUTC"`
	}
	if json.Unmarshal(payload, &n) != nil || n.Airline == "" {
		return ""
	}
	key := n.Airline + ":" + n.Period
	if n.ReportUTC != nil {
		key += fmt.Sprintf(":%d", n.ReportUTC.Year())
	}
	return key
}
