package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/report"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/token"
	apperrors "github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/errors"
)

const validPayload = `{
	"airlineICAOCode": "DLH",
	"reportPeriod": "Q1",
	"reportDate": "2024-03-31",
	"currency": "EUR",
	"exchangeRate": "1.0",
	"isSpotRate": false
}`

type fakeStore struct {
	mu      sync.Mutex
	calls   []string
	post    docstore.PostResult
	docs    map[string][]byte
	getErr  error
	putOK   bool
	putBody []byte
}

func (f *fakeStore) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeStore) CollectionURI(schemaID string) string {
	return "https://store/" + schemaID
}

func (f *fakeStore) DocumentURI(schemaID string, id uuid.UUID) string {
	return "https://store/" + schemaID + "/" + id.String()
}

func (f *fakeStore) GetDocument(_ context.Context, uri, _ string) ([]byte, error) {
	f.record("get " + uri)
	if f.getErr != nil {
		return nil, f.getErr
	}
	body, ok := f.docs[uri]
	if !ok {
		return nil, apperrors.ErrDocumentNotFound
	}
	return body, nil
}

func (f *fakeStore) PostNewDocument(_ context.Context, uri, _ string, _ []byte) docstore.PostResult {
	f.record("post " + uri)
	return f.post
}

func (f *fakeStore) PutDocument(_ context.Context, uri, _ string, payload []byte) bool {
	f.record("put " + uri)
	f.putBody = payload
	return f.putOK
}

type fakeIndex struct {
	registered []report.Report
	register   report.CommandResponse
	detail     *report.Report
	detailErr  error
	lookedUp   []report.Key
}

func (f *fakeIndex) RegisterNewReport(_ context.Context, r report.Report) report.CommandResponse {
	f.registered = append(f.registered, r)
	return f.register
}

func (f *fakeIndex) GetReportDetail(_ context.Context, key report.Key) (*report.Report, error) {
	f.lookedUp = append(f.lookedUp, key)
	return f.detail, f.detailErr
}

type fakeDeleter struct {
	historic []report.Key
	single   []uuid.UUID
}

func (f *fakeDeleter) DeleteHistoricReports(_ context.Context, airline string, period report.Period, completedType string, year int) report.CommandResponse {
	f.historic = append(f.historic, report.Key{Airline: airline, Period: period, ReportType: completedType, Year: year})
	return report.Succeeded("deleted")
}

func (f *fakeDeleter) DeleteReport(_ context.Context, _ string, id uuid.UUID) report.CommandResponse {
	f.single = append(f.single, id)
	return report.Succeeded("deleted")
}

type fakeNotifier struct {
	tested []string
	adhoc  []string
}

func (f *fakeNotifier) TestAndPublishSecondaryReportNotification(_ context.Context, airline string, period report.Period, currency string, year int) report.NotificationActionResponse {
	f.tested = append(f.tested, airline+"/"+string(period)+"/"+currency)
	return report.NotificationActionResponse{Topic: "secondary", MessagePublished: true}
}

func (f *fakeNotifier) PublishAdhoc(_ context.Context, airline string, _ report.Period, _ int, message string) report.NotificationActionResponse {
	f.adhoc = append(f.adhoc, airline+":"+message)
	return report.NotificationActionResponse{Topic: "secondary", MessagePublished: true}
}

type fakeLocker struct {
	held  bool
	names []string
}

func (f *fakeLocker) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	f.names = append(f.names, name)
	if f.held {
		return apperrors.ErrLockHeld
	}
	return fn(ctx)
}

type failingTokens struct{}

func (failingTokens) GetValidToken(context.Context) (string, error) {
	return "", errors.New("idp down")
}

type harness struct {
	svc      *Service
	store    *fakeStore
	index    *fakeIndex
	deleter  *fakeDeleter
	notifier *fakeNotifier
}

func newHarness(t *testing.T, mutate ...func(*Deps)) *harness {
	t.Helper()
	registry := docstore.NewRegistry()
	registry.Register(func(p []byte) error {
		_, err := report.ParseBase(p)
		return err
	}, "income-statement", "balance-sheet", "cash-flow", "analysis")

	id := uuid.New()
	recordID := int64(7)
	h := &harness{
		store: &fakeStore{
			post: docstore.PostResult{Success: true, StatusCode: 201, DocumentID: id, DocumentURI: "https://store/income-statement/" + id.String()},
			docs: map[string][]byte{},
		},
		index:    &fakeIndex{register: report.CommandResponse{Success: true, RecordID: &recordID}},
		deleter:  &fakeDeleter{},
		notifier: &fakeNotifier{},
	}
	deps := Deps{
		Store:     h.store,
		Index:     h.index,
		Tokens:    token.Static("tok"),
		Deleter:   h.deleter,
		Notifier:  h.notifier,
		Validator: registry,
	}
	for _, fn := range mutate {
		fn(&deps)
	}
	h.svc = New(deps)
	return h
}

func TestStoreDocumentIndexesAfterStore(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.StoreDocument(context.Background(), KindRaw, "income-statement", []byte(validPayload))
	require.NoError(t, err)

	assert.True(t, res.Indexed)
	require.NotNil(t, res.RecordID)
	assert.Equal(t, int64(7), *res.RecordID)
	assert.Equal(t, h.store.post.DocumentID, res.DocumentID)
	assert.Nil(t, res.Notification)

	require.Len(t, h.index.registered, 1)
	r := h.index.registered[0]
	assert.Equal(t, h.store.post.DocumentID, r.DocumentID)
	assert.Equal(t, "DLH", r.Airline)
	assert.Equal(t, report.PeriodQ1, r.Period)
	assert.Equal(t, "income-statement", r.ReportType)
	assert.Equal(t, 2024, r.Year())
}

func TestStoreDocumentSkipsIndexWhenStoreRejects(t *testing.T) {
	h := newHarness(t)
	h.store.post = docstore.PostResult{Success: false, StatusCode: 400, Content: []byte(`{"error":"schema"}`)}

	_, err := h.svc.StoreDocument(context.Background(), KindRaw, "income-statement", []byte(validPayload))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.Equal(t, 422, apperrors.HTTPStatusCode(err))
	assert.Contains(t, err.Error(), `{"error":"schema"}`)
	assert.Empty(t, h.index.registered)
}

func TestStoreDocumentRejectsBeforeNetwork(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.StoreDocument(context.Background(), KindRaw, "unknown", []byte(validPayload))
	assert.ErrorIs(t, err, apperrors.ErrUnknownSchema)

	_, err = h.svc.StoreDocument(context.Background(), KindRaw, "income-statement", []byte(`{"airlineICAOCode":"DLH"}`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	assert.Empty(t, h.store.calls)
	assert.Empty(t, h.index.registered)
}

func TestStoreDocumentTokenFailure(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Tokens = failingTokens{} })

	_, err := h.svc.StoreDocument(context.Background(), KindRaw, "income-statement", []byte(validPayload))
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.Empty(t, h.store.calls)
}

func TestStoreDocumentReportsIndexFault(t *testing.T) {
	h := newHarness(t)
	h.index.register = report.CommandResponse{FaultMessage: "report index unavailable: insert"}

	res, err := h.svc.StoreDocument(context.Background(), KindRaw, "income-statement", []byte(validPayload))
	require.NoError(t, err)
	assert.False(t, res.Indexed)
	assert.Nil(t, res.RecordID)
	assert.Equal(t, "report index unavailable: insert", res.IndexFault)
}

func TestStoreDocumentProcessedRunsGate(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.StoreDocument(context.Background(), KindProcessed, "income-statement", []byte(validPayload))
	require.NoError(t, err)
	require.NotNil(t, res.Notification)
	assert.True(t, res.Notification.MessagePublished)
	assert.Equal(t, []string{"DLH/Q1/EUR"}, h.notifier.tested)

	_, err = h.svc.StoreDocument(context.Background(), KindRaw, "balance-sheet", []byte(validPayload))
	require.NoError(t, err)
	_, err = h.svc.StoreDocument(context.Background(), KindProcessed, "analysis", []byte(validPayload))
	require.NoError(t, err)
	assert.Len(t, h.notifier.tested, 1)
}

func TestGetDocumentByKey(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()
	h.index.detail = &report.Report{DocumentID: id, ReportDate: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)}
	h.store.docs["https://store/income-statement/"+id.String()] = []byte(`{"v":1}`)

	key := report.Key{Airline: "DLH", Period: report.PeriodQ1, ReportType: "income-statement", Year: 2024}
	body, err := h.svc.GetDocumentByKey(context.Background(), key, " EUR ")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(body))
	assert.Equal(t, []report.Key{key}, h.index.lookedUp)
}

func TestGetDocumentByKeyNotFound(t *testing.T) {
	h := newHarness(t)
	key := report.Key{Airline: "DLH", Period: report.PeriodQ1, ReportType: "income-statement", Year: 2024}

	_, err := h.svc.GetDocumentByKey(context.Background(), key, "")
	assert.ErrorIs(t, err, apperrors.ErrReportNotFound)
	assert.Empty(t, h.store.calls)

	h.index.detail = &report.Report{DocumentID: uuid.New()}
	_, err = h.svc.GetDocumentByKey(context.Background(), key, "")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)

	_, err = h.svc.GetDocumentByKey(context.Background(), key.WithType("nope"), "")
	assert.ErrorIs(t, err, apperrors.ErrUnknownSchema)
}

func TestGetDocumentByID(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()
	h.store.docs["https://store/balance-sheet/"+id.String()] = []byte(`{}`)

	body, err := h.svc.GetDocumentByID(context.Background(), "balance-sheet", id)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(body))
}

func TestDeleteHistoryUsesLock(t *testing.T) {
	locker := &fakeLocker{}
	h := newHarness(t, func(d *Deps) { d.Locker = locker })
	key := report.Key{Airline: "DLH", Period: report.PeriodQ1, ReportType: "income-statement", Year: 2024}

	resp, err := h.svc.DeleteHistory(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, []report.Key{key}, h.deleter.historic)
	assert.Equal(t, []string{key.LockName()}, locker.names)

	locker.held = true
	_, err = h.svc.DeleteHistory(context.Background(), key)
	assert.ErrorIs(t, err, apperrors.ErrLockHeld)
	assert.Len(t, h.deleter.historic, 1)
}

func TestDeleteHistoryWithoutLocker(t *testing.T) {
	h := newHarness(t)
	resp, err := h.svc.DeleteHistory(context.Background(), report.Key{Airline: "DLH", Period: report.PeriodAnnual, ReportType: "cash-flow", Year: 2023})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Len(t, h.deleter.historic, 1)
}

func TestDeleteReport(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()

	resp, err := h.svc.DeleteReport(context.Background(), "cash-flow", id)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, []uuid.UUID{id}, h.deleter.single)

	_, err = h.svc.DeleteReport(context.Background(), "nope", id)
	assert.ErrorIs(t, err, apperrors.ErrUnknownSchema)
}

func TestPublishNotification(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.PublishNotification(context.Background(), "DLH", report.PeriodQ1, 2024, "  ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	resp, err := h.svc.PublishNotification(context.Background(), "DLH", report.PeriodQ1, 2024, "rerun")
	require.NoError(t, err)
	assert.True(t, resp.MessagePublished)
	assert.Equal(t, []string{"DLH:rerun"}, h.notifier.adhoc)
}

func TestRepublishPutsSameBytes(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()
	uri := "https://store/income-statement/" + id.String()
	h.index.detail = &report.Report{DocumentID: id}
	h.store.docs[uri] = []byte(`{"v":2}`)
	h.store.putOK = true
	key := report.Key{Airline: "DLH", Period: report.PeriodQ1, ReportType: "income-statement", Year: 2024}

	resp, err := h.svc.Republish(context.Background(), key, "")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"get " + uri, "put " + uri}, h.store.calls)
	assert.Equal(t, `{"v":2}`, string(h.store.putBody))
	assert.Empty(t, h.index.registered)

	h.store.putOK = false
	resp, err = h.svc.Republish(context.Background(), key, "")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.FaultMessage)
}
