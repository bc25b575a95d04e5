package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAggregatesWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("index", PingCheck(func(context.Context) error { return nil }))
	c.Register("docstore", BreakerCheck(func() string { return "open" }))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, StatusUp, report.Components["index"].Status)
	assert.Equal(t, "circuit open", report.Components["docstore"].Message)

	c.Register("redis", PingCheck(func(context.Context) error { return errors.New("connection refused") }))
	report = c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
}

func TestReadyHandlerStatusCodes(t *testing.T) {
	c := NewChecker()
	c.Register("docstore", BreakerCheck(func() string { return "half-open" }))

	rec := httptest.NewRecorder()
	c.ReadyHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	c.Register("index", PingCheck(func(context.Context) error { return errors.New("down") }))
	rec = httptest.NewRecorder()
	c.ReadyHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusDown, report.Status)
}
