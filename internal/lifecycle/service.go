// Package lifecycle coordinates the document store, the report index, the
// deletion orchestrator and the notification service for each inbound
// request. It owns the create ordering: a document is indexed only after the
// store has returned its id.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/report"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/token"
	apperrors "github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/metrics"
)

// Kind distinguishes raw uploads from processed (enriched) documents. Only
// processed documents can trigger the secondary report notification.
type Kind string

const (
	KindRaw       Kind = "raw"
	KindProcessed Kind = "processed"
)

type Store interface {
	CollectionURI(schemaID string) string
	DocumentURI(schemaID string, documentID uuid.UUID) string
	GetDocument(ctx context.Context, uri, token string) ([]byte, error)
	PostNewDocument(ctx context.Context, collectionURI, token string, payload []byte) docstore.PostResult
	PutDocument(ctx context.Context, uri, token string, payload []byte) bool
}

type Index interface {
	RegisterNewReport(ctx context.Context, r report.Report) report.CommandResponse
	GetReportDetail(ctx context.Context, key report.Key) (*report.Report, error)
}

type Deleter interface {
	DeleteHistoricReports(ctx context.Context, airline string, period report.Period, completedType string, year int) report.CommandResponse
	DeleteReport(ctx context.Context, schemaID string, documentID uuid.UUID) report.CommandResponse
}

type Notifier interface {
	TestAndPublishSecondaryReportNotification(ctx context.Context, airline string, period report.Period, currency string, year int) report.NotificationActionResponse
	PublishAdhoc(ctx context.Context, airline string, period report.Period, year int, message string) report.NotificationActionResponse
}

type Validator interface {
	Known(schemaID string) bool
	Validate(schemaID string, payload []byte) error
}

// Locker serialises work per name across replicas.
type Locker interface {
	WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// StoreResult describes a stored document. Indexed is false when the store
// accepted the document but the index insert failed; the document is then
// reachable by id only.
type StoreResult struct {
	DocumentID   uuid.UUID                          `json:"documentId"`
	DocumentURI  string                             `json:"documentUri"`
	RecordID     *int64                             `json:"recordId,omitempty"`
	Indexed      bool                               `json:"indexed"`
	IndexFault   string                             `json:"indexFault,omitempty"`
	Notification *report.NotificationActionResponse `json:"notification,omitempty"`
}

type Service struct {
	store     Store
	index     Index
	tokens    token.Provider
	deleter   Deleter
	notifier  Notifier
	validator Validator
	locker    Locker
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Deps bundles the collaborators. Locker and Metrics may be nil.
type Deps struct {
	Store     Store
	Index     Index
	Tokens    token.Provider
	Deleter   Deleter
	Notifier  Notifier
	Validator Validator
	Locker    Locker
	Metrics   *metrics.Metrics
}

func New(d Deps) *Service {
	return &Service{
		store:     d.Store,
		index:     d.Index,
		tokens:    d.Tokens,
		deleter:   d.Deleter,
		notifier:  d.Notifier,
		validator: d.Validator,
		locker:    d.Locker,
		metrics:   d.Metrics,
		logger:    slog.Default().With("component", "lifecycle-service"),
	}
}

// StoreDocument validates payload, writes it to the store, indexes it under
// the id the store assigned and, for processed core types, runs the
// completeness gate.
func (s *Service) StoreDocument(ctx context.Context, kind Kind, schemaID string, payload []byte) (*StoreResult, error) {
	log := logger.FromContext(ctx).With("component", "lifecycle-service", "schema_id", schemaID, "kind", kind)

	if err := s.validator.Validate(schemaID, payload); err != nil {
		return nil, err
	}
	base, err := report.ParseBase(payload)
	if err != nil {
		return nil, err
	}

	tok, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	posted := s.store.PostNewDocument(ctx, s.store.CollectionURI(schemaID), tok, payload)
	if !posted.Success {
		log.Warn("document store rejected document", "status", posted.StatusCode)
		return nil, apperrors.New(apperrors.ErrStoreUnavailable, http.StatusUnprocessableEntity, string(posted.Content))
	}

	r, err := base.Report(schema.IndexSchema(schemaID, base.Currency), posted.DocumentID)
	if err != nil {
		return nil, err
	}
	result := &StoreResult{DocumentID: posted.DocumentID, DocumentURI: posted.DocumentURI}

	registered := s.index.RegisterNewReport(ctx, r)
	if registered.Success {
		result.Indexed = true
		result.RecordID = registered.RecordID
		log.Info("document stored", "document_id", posted.DocumentID)
	} else {
		result.IndexFault = registered.FaultMessage
		log.Error("document stored but not indexed",
			"document_id", posted.DocumentID,
			"fault", registered.FaultMessage,
		)
	}
	s.metrics.DocumentStored(string(kind))

	if kind == KindProcessed && schema.Notifies(schemaID) {
		n := s.notifier.TestAndPublishSecondaryReportNotification(ctx, r.Airline, r.Period, r.Currency, r.Year())
		result.Notification = &n
	}
	return result, nil
}

func (s *Service) GetDocumentByID(ctx context.Context, schemaID string, documentID uuid.UUID) ([]byte, error) {
	if err := s.knownSchema(schemaID); err != nil {
		return nil, err
	}
	tok, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.GetDocument(ctx, s.store.DocumentURI(schemaID, documentID), tok)
}

// GetDocumentByKey returns the current document for key in currency.
func (s *Service) GetDocumentByKey(ctx context.Context, key report.Key, currency string) ([]byte, error) {
	r, uri, tok, err := s.locate(ctx, key, currency)
	if err != nil {
		return nil, err
	}
	body, err := s.store.GetDocument(ctx, uri, tok)
	if errors.Is(err, apperrors.ErrDocumentNotFound) {
		logger.FromContext(ctx).Error("index row outlived its document",
			"key", key.String(), "document_id", r.DocumentID)
	}
	return body, err
}

// DeleteReport removes one document by id from the store and the index.
func (s *Service) DeleteReport(ctx context.Context, schemaID string, documentID uuid.UUID) (report.CommandResponse, error) {
	if err := s.knownSchema(schemaID); err != nil {
		return report.CommandResponse{}, err
	}
	return s.deleter.DeleteReport(ctx, schemaID, documentID), nil
}

// DeleteHistory purges the schema family of a completed report type. When a
// locker is configured, overlapping purges of the same key are refused with
// ErrLockHeld instead of interleaving.
func (s *Service) DeleteHistory(ctx context.Context, key report.Key) (report.CommandResponse, error) {
	run := func(ctx context.Context) report.CommandResponse {
		return s.deleter.DeleteHistoricReports(ctx, key.Airline, key.Period, key.ReportType, key.Year)
	}
	if s.locker == nil {
		return run(ctx), nil
	}
	var resp report.CommandResponse
	err := s.locker.WithLock(ctx, key.LockName(), func(ctx context.Context) error {
		resp = run(ctx)
		return nil
	})
	if err != nil {
		return report.CommandResponse{}, err
	}
	return resp, nil
}

// PublishNotification sends an ad-hoc message for the business key without
// consulting the completeness gate.
func (s *Service) PublishNotification(ctx context.Context, airline string, period report.Period, year int, message string) (report.NotificationActionResponse, error) {
	if strings.TrimSpace(message) == "" {
		return report.NotificationActionResponse{}, fmt.Errorf("%w: message is required", apperrors.ErrInvalidInput)
	}
	return s.notifier.PublishAdhoc(ctx, airline, period, year, message), nil
}

// Republish re-fetches the current document for key and PUTs it back at the
// same URI so the store emits a fresh storage event. The index is not
// touched.
func (s *Service) Republish(ctx context.Context, key report.Key, currency string) (report.CommandResponse, error) {
	r, uri, tok, err := s.locate(ctx, key, currency)
	if err != nil {
		return report.CommandResponse{}, err
	}
	body, err := s.store.GetDocument(ctx, uri, tok)
	if err != nil {
		return report.CommandResponse{}, err
	}
	if !s.store.PutDocument(ctx, uri, tok, body) {
		return report.Failed(fmt.Errorf("%w: overwrite of %s refused", apperrors.ErrStoreUnavailable, uri)), nil
	}
	logger.FromContext(ctx).Info("document republished", "key", key.String(), "document_id", r.DocumentID)
	return report.Succeeded(fmt.Sprintf("republished document %s", r.DocumentID)), nil
}

func (s *Service) locate(ctx context.Context, key report.Key, currency string) (*report.Report, string, string, error) {
	if err := s.knownSchema(key.ReportType); err != nil {
		return nil, "", "", err
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = report.NativeCurrency
	}
	r, err := s.index.GetReportDetail(ctx, key.WithType(schema.IndexSchema(key.ReportType, currency)))
	if err != nil {
		return nil, "", "", err
	}
	if r == nil {
		return nil, "", "", fmt.Errorf("%w: %s", apperrors.ErrReportNotFound, key)
	}
	tok, err := s.token(ctx)
	if err != nil {
		return nil, "", "", err
	}
	return r, s.store.DocumentURI(key.ReportType, r.DocumentID), tok, nil
}

func (s *Service) knownSchema(schemaID string) error {
	if !s.validator.Known(schemaID) {
		return fmt.Errorf("%w: %q", apperrors.ErrUnknownSchema, schemaID)
	}
	return nil
}

func (s *Service) token(ctx context.Context) (string, error) {
	tok, err := s.tokens.GetValidToken(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: acquiring store token: %v", apperrors.ErrStoreUnavailable, err)
	}
	return tok, nil
}
