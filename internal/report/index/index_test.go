package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/report"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/database"
	apperrors "github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/metrics"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestIndex(t *testing.T) (*Index, *database.Client) {
	t.Helper()
	db, err := database.New(config.DatabaseConfig{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "index.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(context.Background(), db))

	ix := New(db, metrics.New(prometheus.NewRegistry()))
	c := &clock{t: time.Date(2022, 3, 1, 9, 0, 0, 0, time.UTC)}
	ix.now = c.now
	return ix, db
}

func sampleReport(reportType string) report.Report {
	return report.Report{
		Airline:      "BAW",
		Period:       report.PeriodAnnual,
		ReportType:   reportType,
		DocumentID:   uuid.New(),
		Currency:     report.NativeCurrency,
		ExchangeRate: decimal.RequireFromString("1.1725"),
		IsSpotRate:   true,
		ReportDate:   time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

var baw2021 = report.Key{Airline: "BAW", Period: report.PeriodAnnual, ReportType: "income-statement", Year: 2021}

func TestMigrateIsIdempotent(t *testing.T) {
	_, db := newTestIndex(t)
	assert.NoError(t, Migrate(context.Background(), db))
}

func TestRegisterAndGetCurrentReport(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	first := sampleReport("income-statement")
	second := sampleReport("income-statement")

	resp := ix.RegisterNewReport(ctx, first)
	require.True(t, resp.Success, resp.FaultMessage)
	require.NotNil(t, resp.RecordID)
	resp = ix.RegisterNewReport(ctx, second)
	require.True(t, resp.Success, resp.FaultMessage)

	got, err := ix.GetReportDetail(ctx, baw2021)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.DocumentID, got.DocumentID)
	assert.Equal(t, *resp.RecordID, got.ID)
	assert.Equal(t, report.PeriodAnnual, got.Period)
	assert.True(t, got.ExchangeRate.Equal(decimal.RequireFromString("1.1725")))
	assert.True(t, got.IsSpotRate)
	assert.Equal(t, 2021, got.Year())
}

func TestGetReportDetailTieBreaksOnID(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()
	fixed := time.Date(2022, 3, 1, 9, 0, 0, 0, time.UTC)
	ix.now = func() time.Time { return fixed }

	a := sampleReport("income-statement")
	b := sampleReport("income-statement")
	require.True(t, ix.RegisterNewReport(ctx, a).Success)
	require.True(t, ix.RegisterNewReport(ctx, b).Success)

	got, err := ix.GetReportDetail(ctx, baw2021)
	require.NoError(t, err)
	assert.Equal(t, b.DocumentID, got.DocumentID)
}

func TestGetReportDetailAbsent(t *testing.T) {
	ix, _ := newTestIndex(t)
	got, err := ix.GetReportDetail(context.Background(), baw2021)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestRegisterRejectsNilDocumentID(t *testing.T) {
	ix, _ := newTestIndex(t)
	r := sampleReport("income-statement")
	r.DocumentID = uuid.Nil

	resp := ix.RegisterNewReport(context.Background(), r)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.FaultMessage, "document id is required")
}

func TestGetDocumentIdsForDeletionNewestFirst(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	var want []uuid.UUID
	for i := 0; i < 3; i++ {
		r := sampleReport("raw-income-statement")
		require.True(t, ix.RegisterNewReport(ctx, r).Success)
		want = append([]uuid.UUID{r.DocumentID}, want...)
	}
	require.True(t, ix.RegisterNewReport(ctx, sampleReport("income-statement")).Success)

	ids, err := ix.GetDocumentIdsForDeletion(ctx, baw2021.WithType("raw-income-statement"))
	require.NoError(t, err)
	assert.Equal(t, want, ids)

	ids, err = ix.GetDocumentIdsForDeletion(ctx, baw2021.WithType("balance-sheet"))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDeleteReportIdempotentMiss(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()
	r := sampleReport("income-statement")
	require.True(t, ix.RegisterNewReport(ctx, r).Success)

	resp := ix.DeleteReport(ctx, r.DocumentID)
	assert.True(t, resp.Success)

	resp = ix.DeleteReport(ctx, r.DocumentID)
	assert.False(t, resp.Success)
	assert.Empty(t, resp.FaultMessage)

	got, err := ix.GetReportDetail(ctx, baw2021)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetCoreReportKeysAcrossTypes(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()
	for _, typ := range []string{"input-control", "operational-data", "income-statement"} {
		require.True(t, ix.RegisterNewReport(ctx, sampleReport(typ)).Success)
	}
	other := sampleReport("balance-sheet")
	other.ReportDate = time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC)
	require.True(t, ix.RegisterNewReport(ctx, other).Success)

	keys, err := ix.GetCoreReportKeys(ctx, "BAW", report.PeriodAnnual, 2021)
	require.NoError(t, err)
	require.Len(t, keys, 3)

	var types []string
	for _, k := range keys {
		types = append(types, k.ReportType)
		assert.Equal(t, report.NativeCurrency, k.Currency)
		assert.False(t, k.Created.IsZero())
	}
	assert.ElementsMatch(t, []string{"input-control", "operational-data", "income-statement"}, types)
}

func TestClosedDatabaseSurfacesIndexUnavailable(t *testing.T) {
	ix, db := newTestIndex(t)
	require.NoError(t, db.Close())
	ctx := context.Background()

	resp := ix.RegisterNewReport(ctx, sampleReport("income-statement"))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.FaultMessage)

	resp = ix.DeleteReport(ctx, uuid.New())
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.FaultMessage)

	_, err := ix.GetCoreReportKeys(ctx, "BAW", report.PeriodAnnual, 2021)
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)

	_, err = ix.GetReportDetail(ctx, baw2021)
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)

	assert.Equal(t, 1.0, testutil.ToFloat64(ix.metrics.IndexOperationsTotal.WithLabelValues("register", "error")))
}

func TestGetCoreReportKeysEmptyIsNotAnError(t *testing.T) {
	ix, _ := newTestIndex(t)

	keys, err := ix.GetCoreReportKeys(context.Background(), "BAW", report.PeriodAnnual, 2021)
	require.NoError(t, err)
	assert.Empty(t, keys)
}
