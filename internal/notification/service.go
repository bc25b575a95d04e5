package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/report"
	apperrors "github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/metrics"
)

// SecondaryReportMessage is the fixed text announcing secondary report
// generation.
const SecondaryReportMessage = "Start Secondary Report Generation!"

// Trigger selects which gate outcome publishes the notification.
type Trigger string

const (
	// TriggerComplete publishes once every core report is present.
	TriggerComplete Trigger = "complete"
	// TriggerIncomplete publishes while core reports are still missing.
	TriggerIncomplete Trigger = "incomplete"
)

func ParseTrigger(s string) (Trigger, error) {
	switch Trigger(s) {
	case TriggerComplete, TriggerIncomplete:
		return Trigger(s), nil
	case "":
		return TriggerComplete, nil
	}
	return "", fmt.Errorf("%w: notification trigger %q", apperrors.ErrInvalidInput, s)
}

// Publisher is the message bus boundary.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) bool
}

type Service struct {
	gate      *Gate
	publisher Publisher
	topic     string
	trigger   Trigger
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewService(gate *Gate, publisher Publisher, topic string, trigger Trigger, m *metrics.Metrics) *Service {
	if trigger == "" {
		trigger = TriggerComplete
	}
	return &Service{
		gate:      gate,
		publisher: publisher,
		topic:     topic,
		trigger:   trigger,
		metrics:   m,
		logger:    slog.Default().With("component", "notification-service"),
	}
}

func (s *Service) Topic() string {
	return s.topic
}

// TestAndPublishSecondaryReportNotification evaluates the completeness gate
// and publishes the secondary report message when the configured trigger
// holds. It never panics or returns an error; failures land in
// FaultMessage.
func (s *Service) TestAndPublishSecondaryReportNotification(ctx context.Context, airline string, period report.Period, currency string, year int) (resp report.NotificationActionResponse) {
	resp.Topic = s.topic
	log := logger.FromContext(ctx).With("component", "notification-service")
	defer s.recoverInto(&resp, log)

	complete := s.gate.TestAllCoreReportsAvailable(ctx, airline, period, year)
	fire := complete == (s.trigger == TriggerComplete)
	if !fire {
		log.Debug("secondary report notification not triggered",
			"airline", airline, "period", period, "year", year, "complete", complete, "trigger", s.trigger)
		s.metrics.Notification(s.topic, "skipped")
		return resp
	}

	n := report.Notification{
		AirlineICAOCode: airline,
		ReportingPeriod: period,
		Currency:        currency,
		Message:         SecondaryReportMessage,
	}
	return s.publish(ctx, log, n)
}

// PublishAdhoc sends an operator-supplied message for a business key,
// bypassing the gate. The report date is the first day of year.
func (s *Service) PublishAdhoc(ctx context.Context, airline string, period report.Period, year int, message string) (resp report.NotificationActionResponse) {
	resp.Topic = s.topic
	log := logger.FromContext(ctx).With("component", "notification-service")
	defer s.recoverInto(&resp, log)

	date := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	n := report.Notification{
		AirlineICAOCode: airline,
		ReportingPeriod: period,
		ReportDateUTC:   &date,
		Message:         message,
	}
	return s.publish(ctx, log, n)
}

func (s *Service) publish(ctx context.Context, log *slog.Logger, n report.Notification) report.NotificationActionResponse {
	resp := report.NotificationActionResponse{Topic: s.topic}
	payload, err := json.Marshal(n)
	if err != nil {
		resp.FaultMessage = fmt.Sprintf("encoding notification: %v", err)
		s.metrics.Notification(s.topic, "failed")
		return resp
	}

	resp.MessagePublished = s.publisher.Publish(ctx, s.topic, payload)
	if !resp.MessagePublished {
		resp.FaultMessage = fmt.Sprintf("%v: topic %s", apperrors.ErrPublishFailure, s.topic)
		s.metrics.Notification(s.topic, "failed")
		log.Warn("notification not published",
			"topic", s.topic, "airline", n.AirlineICAOCode, "period", n.ReportingPeriod)
		return resp
	}
	s.metrics.Notification(s.topic, "published")
	log.Info("notification published",
		"topic", s.topic, "airline", n.AirlineICAOCode, "period", n.ReportingPeriod)
	return resp
}

func (s *Service) recoverInto(resp *report.NotificationActionResponse, log *slog.Logger) {
	if r := recover(); r != nil {
		resp.MessagePublished = false
		resp.FaultMessage = fmt.Sprintf("notification panicked: %v", r)
		s.metrics.Notification(s.topic, "failed")
		log.Error("notification panicked", "panic", r, "stack", string(debug.Stack()))
	}
}
