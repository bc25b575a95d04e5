package docstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/metrics"
)

func newTestClient(t *testing.T, h http.HandlerFunc, mutate ...func(*config.DocumentStoreConfig)) (*Client, *metrics.Metrics) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := config.DocumentStoreConfig{
		BaseURL:          srv.URL + "/documents/",
		Timeout:          2 * time.Second,
		MissingIsDeleted: true,
		RetryAttempts:    3,
		FailureThreshold: 10,
		ResetTimeout:     time.Minute,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	m := metrics.New(prometheus.NewRegistry())
	c := New(cfg, m)
	c.retry.InitialDelay = time.Millisecond
	return c, m
}

func TestDocumentURI(t *testing.T) {
	c := New(config.DocumentStoreConfig{BaseURL: "https://store.example/documents/"}, nil)
	id := uuid.MustParse("6f1c1c8e-3a7b-4a52-9f3e-2d0a0c1b5e77")
	assert.Equal(t, "https://store.example/documents/income-statement", c.CollectionURI("income-statement"))
	assert.Equal(t, "https://store.example/documents/income-statement/6f1c1c8e-3a7b-4a52-9f3e-2d0a0c1b5e77", c.DocumentURI("income-statement", id))
}

func TestPostNewDocumentUsesLocation(t *testing.T) {
	id := uuid.New()
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"a":1}`, string(body))
		w.Header().Set("Location", "/documents/income-statement/"+id.String())
		w.WriteHeader(http.StatusCreated)
	})

	res := c.PostNewDocument(context.Background(), c.CollectionURI("income-statement"), "tok", []byte(`{"a":1}`))
	require.True(t, res.Success)
	assert.Equal(t, id, res.DocumentID)
	assert.Equal(t, c.DocumentURI("income-statement", id), res.DocumentURI)
}

func TestPostNewDocumentUsesBodyURI(t *testing.T) {
	id := uuid.New()
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"uri":"https://elsewhere.example/documents/balance-sheet/` + id.String() + `"}`))
	})

	res := c.PostNewDocument(context.Background(), c.CollectionURI("balance-sheet"), "tok", []byte(`{}`))
	require.True(t, res.Success)
	assert.Equal(t, id, res.DocumentID)
}

func TestPostNewDocumentRejection(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":["lines required"]}`))
	})

	res := c.PostNewDocument(context.Background(), c.CollectionURI("balance-sheet"), "tok", []byte(`{}`))
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.JSONEq(t, `{"errors":["lines required"]}`, string(res.Content))
}

func TestPostNewDocumentWithoutIDFails(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/documents/balance-sheet/not-a-uuid")
		w.WriteHeader(http.StatusCreated)
	})

	res := c.PostNewDocument(context.Background(), c.CollectionURI("balance-sheet"), "tok", []byte(`{}`))
	assert.False(t, res.Success)
	assert.Equal(t, uuid.Nil, res.DocumentID)
}

func TestGetDocumentNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.GetDocument(context.Background(), c.DocumentURI("balance-sheet", uuid.New()), "tok")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "closed", c.BreakerState())
}

func TestGetDocumentRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	})

	body, err := c.GetDocument(context.Background(), c.DocumentURI("balance-sheet", uuid.New()), "tok")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDeleteDocument(t *testing.T) {
	tests := []struct {
		name             string
		status           int
		missingIsDeleted bool
		want             bool
	}{
		{"no content", http.StatusNoContent, true, true},
		{"ok", http.StatusOK, false, true},
		{"missing counts as deleted", http.StatusNotFound, true, true},
		{"missing is a failure", http.StatusNotFound, false, false},
		{"server error", http.StatusInternalServerError, true, false},
		{"forbidden", http.StatusForbidden, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := uuid.New()
			c, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodDelete, r.Method)
				assert.Equal(t, "/documents/raw-balance-sheet/"+id.String(), r.URL.Path)
				w.WriteHeader(tt.status)
			}, func(cfg *config.DocumentStoreConfig) { cfg.MissingIsDeleted = tt.missingIsDeleted })

			assert.Equal(t, tt.want, c.DeleteDocument(context.Background(), "raw-balance-sheet", id, "tok"))
			assert.Equal(t, 1, testutil.CollectAndCount(m.StoreRequestsTotal))
		})
	}
}

func TestDeleteDocumentTransportFailure(t *testing.T) {
	c := New(config.DocumentStoreConfig{BaseURL: "http://127.0.0.1:1/documents", Timeout: time.Second}, nil)
	assert.False(t, c.DeleteDocument(context.Background(), "balance-sheet", uuid.New(), "tok"))
}

func TestBreakerOpensOnRepeatedServerErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, func(cfg *config.DocumentStoreConfig) { cfg.FailureThreshold = 2 })

	for i := 0; i < 4; i++ {
		c.DeleteDocument(context.Background(), "balance-sheet", uuid.New(), "tok")
	}
	assert.Equal(t, "open", c.BreakerState())
	assert.Equal(t, int32(2), calls.Load())
}

func TestPutDocument(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})
	assert.True(t, c.PutDocument(context.Background(), c.DocumentURI("balance-sheet", uuid.New()), "tok", []byte(`{}`)))
}

func TestDocumentIDFromURI(t *testing.T) {
	id := uuid.New()
	got, err := DocumentIDFromURI("https://store.example/documents/income-statement/" + id.String() + "/")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = DocumentIDFromURI("")
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	errBad := errors.New("bad")
	r.Register(func([]byte) error { return errBad }, "balance-sheet")
	r.Register(nil, "share-info")

	assert.ErrorIs(t, r.Validate("balance-sheet", nil), errBad)
	assert.NoError(t, r.Validate("share-info", nil))
	assert.ErrorIs(t, r.Validate("tax-return", nil), apperrors.ErrUnknownSchema)
	assert.True(t, r.Known("share-info"))
	assert.Equal(t, []string{"balance-sheet", "share-info"}, r.Schemas())
}
