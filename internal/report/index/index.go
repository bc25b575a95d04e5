// Package index is the relational lookup from business keys to document
// store identifiers. Rows are only ever inserted after the store confirmed a
// write and removed after the store confirmed a delete; the index itself
// never talks to the store.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/report"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/database"
	apperrors "github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/metrics"
)

const reportColumns = `id, airline, period, report_type, document_id, currency, exchange_rate, is_spot_rate, report_date, created`

type Index struct {
	db      *database.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func New(db *database.Client, m *metrics.Metrics) *Index {
	return &Index{
		db:      db,
		metrics: m,
		logger:  slog.Default().With("component", "report-index"),
		now:     time.Now,
	}
}

// RegisterNewReport inserts a row for a document the store has already
// accepted. Created is assigned here; the row id is returned in RecordID.
func (ix *Index) RegisterNewReport(ctx context.Context, r report.Report) report.CommandResponse {
	if r.DocumentID == uuid.Nil {
		err := fmt.Errorf("%w: document id is required", apperrors.ErrInvalidInput)
		ix.logger.Warn("refusing to index report without document id", "key", r.Key().String())
		return report.Failed(err)
	}

	created := ix.now().UTC().Truncate(time.Microsecond)
	query := ix.db.Rebind(`
		INSERT INTO reports (airline, period, report_type, report_year, document_id, currency, exchange_rate, is_spot_rate, report_date, created)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`)

	var id int64
	err := ix.db.DB.QueryRowContext(ctx, query,
		r.Airline, string(r.Period), r.ReportType, r.Year(), r.DocumentID,
		r.Currency, r.ExchangeRate, r.IsSpotRate, r.ReportDate.UTC(), created,
	).Scan(&id)
	ix.metrics.IndexOperation("register", err == nil)
	if err != nil {
		err = fmt.Errorf("%w: inserting report %s: %v", apperrors.ErrIndexUnavailable, r.DocumentID, err)
		ix.logger.Error("failed to register report",
			"key", r.Key().String(),
			"document_id", r.DocumentID,
			"error", err,
		)
		return report.Failed(err)
	}

	ix.logger.Info("report registered",
		"key", r.Key().String(),
		"document_id", r.DocumentID,
		"record_id", id,
	)
	return report.CommandResponse{
		Success:     true,
		RecordID:    &id,
		Information: fmt.Sprintf("registered document %s as record %d", r.DocumentID, id),
	}
}

// DeleteReport removes every row for documentID. Zero affected rows is an
// idempotent miss: Success is false and FaultMessage stays empty.
func (ix *Index) DeleteReport(ctx context.Context, documentID uuid.UUID) report.CommandResponse {
	res, err := ix.db.DB.ExecContext(ctx, ix.db.Rebind(`DELETE FROM reports WHERE document_id = $1`), documentID)
	var affected int64
	if err == nil {
		affected, err = res.RowsAffected()
	}
	ix.metrics.IndexOperation("delete", err == nil)
	if err != nil {
		err = fmt.Errorf("%w: deleting document %s: %v", apperrors.ErrIndexUnavailable, documentID, err)
		ix.logger.Error("failed to delete report", "document_id", documentID, "error", err)
		return report.Failed(err)
	}
	if affected == 0 {
		ix.logger.Debug("no index rows for document", "document_id", documentID)
		return report.CommandResponse{Information: fmt.Sprintf("no index rows for document %s", documentID)}
	}
	return report.Succeeded(fmt.Sprintf("deleted %d index row(s) for document %s", affected, documentID))
}

// GetReportDetail returns the current row for key, or nil when none exists.
// Current means newest Created, ties broken by the higher id.
func (ix *Index) GetReportDetail(ctx context.Context, key report.Key) (*report.Report, error) {
	query := ix.db.Rebind(`SELECT ` + reportColumns + ` FROM reports
		WHERE airline = $1 AND period = $2 AND report_type = $3 AND report_year = $4
		ORDER BY created DESC, id DESC
		LIMIT 1`)

	r, err := scanReport(ix.db.DB.QueryRowContext(ctx, query, key.Airline, string(key.Period), key.ReportType, key.Year))
	if err == sql.ErrNoRows {
		ix.metrics.IndexOperation("detail", true)
		return nil, nil
	}
	ix.metrics.IndexOperation("detail", err == nil)
	if err != nil {
		ix.logger.Error("failed to get report detail", "key", key.String(), "error", err)
		return nil, fmt.Errorf("%w: reading %s: %v", apperrors.ErrIndexUnavailable, key, err)
	}
	return r, nil
}

// GetDocumentIdsForDeletion lists every historical document id for key,
// newest first.
func (ix *Index) GetDocumentIdsForDeletion(ctx context.Context, key report.Key) ([]uuid.UUID, error) {
	query := ix.db.Rebind(`SELECT document_id FROM reports
		WHERE airline = $1 AND period = $2 AND report_type = $3 AND report_year = $4
		ORDER BY created DESC, id DESC`)

	rows, err := ix.db.DB.QueryContext(ctx, query, key.Airline, string(key.Period), key.ReportType, key.Year)
	if err != nil {
		ix.metrics.IndexOperation("list_ids", false)
		ix.logger.Error("failed to list document ids", "key", key.String(), "error", err)
		return nil, fmt.Errorf("%w: listing ids for %s: %v", apperrors.ErrIndexUnavailable, key, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	seen := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			ix.metrics.IndexOperation("list_ids", false)
			return nil, fmt.Errorf("%w: scanning document id: %v", apperrors.ErrIndexUnavailable, err)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		ix.metrics.IndexOperation("list_ids", false)
		return nil, fmt.Errorf("%w: iterating document ids: %v", apperrors.ErrIndexUnavailable, err)
	}
	ix.metrics.IndexOperation("list_ids", true)
	return ids, nil
}

// GetCoreReportKeys returns every row of any type for the airline, period
// and year. Unlike a lookup that swallows failures into an empty result, a
// failed query is logged and returned as an error wrapping
// ErrIndexUnavailable, so callers can tell "nothing indexed" from "index
// down". The completeness gate folds the error into "not complete".
func (ix *Index) GetCoreReportKeys(ctx context.Context, airline string, period report.Period, year int) ([]report.ReportKey, error) {
	query := ix.db.Rebind(`SELECT report_type, document_id, currency, created FROM reports
		WHERE airline = $1 AND period = $2 AND report_year = $3
		ORDER BY created DESC, id DESC`)

	rows, err := ix.db.DB.QueryContext(ctx, query, airline, string(period), year)
	if err != nil {
		ix.metrics.IndexOperation("core_keys", false)
		ix.logger.Error("failed to fetch core report keys",
			"airline", airline, "period", period, "year", year, "error", err)
		return nil, fmt.Errorf("%w: fetching core keys: %v", apperrors.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var keys []report.ReportKey
	for rows.Next() {
		var k report.ReportKey
		if err := rows.Scan(&k.ReportType, &k.DocumentID, &k.Currency, &k.Created); err != nil {
			ix.metrics.IndexOperation("core_keys", false)
			ix.logger.Error("failed to scan core report key", "error", err)
			return nil, fmt.Errorf("%w: scanning core key: %v", apperrors.ErrIndexUnavailable, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		ix.metrics.IndexOperation("core_keys", false)
		return nil, fmt.Errorf("%w: iterating core keys: %v", apperrors.ErrIndexUnavailable, err)
	}
	ix.metrics.IndexOperation("core_keys", true)
	return keys, nil
}

func (ix *Index) Ping(ctx context.Context) error {
	return ix.db.Ping(ctx)
}

func scanReport(row *sql.Row) (*report.Report, error) {
	var (
		r      report.Report
		period string
	)
	err := row.Scan(&r.ID, &r.Airline, &period, &r.ReportType, &r.DocumentID,
		&r.Currency, &r.ExchangeRate, &r.IsSpotRate, &r.ReportDate, &r.Created)
	if err != nil {
		return nil, err
	}
	r.Period = report.Period(period)
	return &r, nil
}
