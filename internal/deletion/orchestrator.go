// Package deletion purges documents from the store and the report index.
//
// Each document is deleted from the store first and its index rows only
// after the store confirms, so a surviving index row always has a document
// behind it. Sweeps are best effort: a failure is recorded and the sweep
// moves on, and re-running a sweep only retries what is left.
package deletion

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/report"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/token"
	apperrors "github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/tracing"
)

// indexDeleteTimeout bounds the index half of a purge once the store has
// confirmed the delete. It runs detached from the caller's cancellation.
const indexDeleteTimeout = 10 * time.Second

// Index is the slice of the report index the orchestrator needs.
type Index interface {
	GetDocumentIdsForDeletion(ctx context.Context, key report.Key) ([]uuid.UUID, error)
	DeleteReport(ctx context.Context, documentID uuid.UUID) report.CommandResponse
}

// Store deletes documents and reports only whether the store confirmed it.
type Store interface {
	DeleteDocument(ctx context.Context, schemaID string, documentID uuid.UUID, token string) bool
}

type Orchestrator struct {
	index   Index
	store   Store
	tokens  token.Provider
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(index Index, store Store, tokens token.Provider, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		index:   index,
		store:   store,
		tokens:  tokens,
		metrics: m,
		logger:  slog.Default().With("component", "deletion-orchestrator"),
	}
}

// outcome accumulates per-item results into one CommandResponse. Success is
// the AND of every item; the fault message is the last failure seen.
type outcome struct {
	failed  bool
	fault   string
	deleted int
	total   int
}

func (o *outcome) fail(err error) {
	o.failed = true
	o.fault = err.Error()
}

func (o *outcome) merge(r report.CommandResponse, deleted, total int) {
	o.deleted += deleted
	o.total += total
	if !r.Success {
		o.failed = true
		if r.FaultMessage != "" {
			o.fault = r.FaultMessage
		}
	}
}

func (o *outcome) response(what string) report.CommandResponse {
	info := fmt.Sprintf("%s: deleted %d of %d document(s)", what, o.deleted, o.total)
	if o.failed {
		return report.CommandResponse{Information: info, FaultMessage: o.fault}
	}
	return report.Succeeded(info)
}

// DeleteHistoricReports purges every schema variant that depends on
// completedType for the airline, period and year, in the fixed family
// order. Unknown report types have nothing to purge and succeed.
func (o *Orchestrator) DeleteHistoricReports(ctx context.Context, airline string, period report.Period, completedType string, year int) (resp report.CommandResponse) {
	log := logger.FromContext(ctx).With("component", "deletion-orchestrator")
	key := report.Key{Airline: airline, Period: period, ReportType: completedType, Year: year}
	defer o.recoverInto(&resp, log, key)

	deps := schema.Dependents(completedType)
	if len(deps) == 0 {
		log.Info("no dependent schemas to purge", "key", key.String())
		o.metrics.CascadeRun("noop")
		return report.Succeeded(fmt.Sprintf("report type %q has no dependent schemas", completedType))
	}

	ctx, root := tracing.StartSpan(ctx, "delete-historic-reports", logger.RequestID(ctx))
	root.SetAttr("key", key.String())
	defer func() {
		root.End()
		root.Log(log)
	}()

	log.Info("historic report purge started", "key", key.String(), "schemas", deps)
	var out outcome
	for _, schemaID := range deps {
		if err := ctx.Err(); err != nil {
			out.fail(fmt.Errorf("purge of %s interrupted before %s: %w", key, schemaID, err))
			root.RecordError(err)
			break
		}
		r, deleted, total := o.sweep(ctx, key.WithType(schemaID))
		out.merge(r, deleted, total)
	}

	resp = out.response(key.String())
	if resp.Success {
		o.metrics.CascadeRun("success")
		log.Info("historic report purge completed", "key", key.String(), "deleted", out.deleted)
	} else {
		o.metrics.CascadeRun("partial")
		log.Warn("historic report purge incomplete",
			"key", key.String(),
			"deleted", out.deleted,
			"total", out.total,
			"fault", resp.FaultMessage,
		)
	}
	return resp
}

// DeleteHistoricRecords purges every stored version of a single schema for
// key. Running it again after success finds nothing and succeeds.
func (o *Orchestrator) DeleteHistoricRecords(ctx context.Context, key report.Key) (resp report.CommandResponse) {
	log := logger.FromContext(ctx).With("component", "deletion-orchestrator")
	defer o.recoverInto(&resp, log, key)

	resp, _, _ = o.sweep(ctx, key)
	return resp
}

func (o *Orchestrator) sweep(ctx context.Context, key report.Key) (report.CommandResponse, int, int) {
	log := logger.FromContext(ctx).With("component", "deletion-orchestrator", "key", key.String())
	ctx, span := tracing.StartChildSpan(ctx, "sweep "+key.ReportType)
	defer span.End()

	var out outcome
	ids, err := o.index.GetDocumentIdsForDeletion(ctx, key)
	if err != nil {
		o.metrics.PurgeFailed("lookup")
		log.Error("failed to list documents for purge", "error", err)
		span.RecordError(err)
		out.fail(err)
		return out.response(key.String()), 0, 0
	}
	out.total = len(ids)
	span.SetAttr("documents", len(ids))
	if len(ids) == 0 {
		return out.response(key.String()), 0, 0
	}

	tok, err := o.tokens.GetValidToken(ctx)
	if err != nil {
		o.metrics.PurgeFailed("token")
		err = fmt.Errorf("acquiring token for %s: %w", key, err)
		log.Error("failed to acquire token", "error", err)
		span.RecordError(err)
		out.fail(err)
		return out.response(key.String()), 0, len(ids)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			err = fmt.Errorf("purge of %s interrupted before %s: %w", key, id, err)
			log.Warn("purge cancelled", "document_id", id, "error", err)
			span.RecordError(err)
			out.fail(err)
			break
		}
		if err := o.purge(ctx, key.ReportType, id, tok); err != nil {
			log.Error("failed to purge document", "document_id", id, "error", err)
			span.RecordError(err)
			out.fail(err)
			continue
		}
		out.deleted++
	}
	return out.response(key.String()), out.deleted, out.total
}

// purge deletes one document from the store and then from the index. An
// index miss after a confirmed store delete is fine: the row is gone either
// way. Cancellation of ctx after the store confirmed does not stop the index
// delete, so an item is never left half purged.
func (o *Orchestrator) purge(ctx context.Context, schemaID string, id uuid.UUID, tok string) error {
	if !o.store.DeleteDocument(ctx, schemaID, id, tok) {
		o.metrics.PurgeFailed("store")
		return fmt.Errorf("%w: store did not delete %s/%s", apperrors.ErrStoreUnavailable, schemaID, id)
	}
	indexCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), indexDeleteTimeout)
	defer cancel()
	r := o.index.DeleteReport(indexCtx, id)
	if !r.Success && r.FaultMessage != "" {
		o.metrics.PurgeFailed("index")
		return fmt.Errorf("%w: %s/%s deleted from store but index delete failed: %s",
			apperrors.ErrInconsistentState, schemaID, id, r.FaultMessage)
	}
	o.metrics.DocumentPurged()
	return nil
}

// DeleteReport removes a single document by id, store first.
func (o *Orchestrator) DeleteReport(ctx context.Context, schemaID string, documentID uuid.UUID) (resp report.CommandResponse) {
	log := logger.FromContext(ctx).With("component", "deletion-orchestrator")
	defer o.recoverInto(&resp, log, report.Key{ReportType: schemaID})

	tok, err := o.tokens.GetValidToken(ctx)
	if err != nil {
		o.metrics.PurgeFailed("token")
		log.Error("failed to acquire token", "error", err)
		return report.Failed(fmt.Errorf("acquiring token: %w", err))
	}
	if err := o.purge(ctx, schemaID, documentID, tok); err != nil {
		log.Error("failed to delete document", "schema_id", schemaID, "document_id", documentID, "error", err)
		return report.Failed(err)
	}
	log.Info("document deleted", "schema_id", schemaID, "document_id", documentID)
	return report.Succeeded(fmt.Sprintf("deleted document %s/%s", schemaID, documentID))
}

func (o *Orchestrator) recoverInto(resp *report.CommandResponse, log *slog.Logger, key report.Key) {
	if r := recover(); r != nil {
		err := fmt.Errorf("%w: panic during deletion of %s: %v", apperrors.ErrInternal, key, r)
		log.Error("deletion panicked", "key", key.String(), "error", err, "stack", string(debug.Stack()))
		o.metrics.CascadeRun("panic")
		*resp = report.Failed(err)
	}
}
