// Package router wires the report lifecycle routes and applies the middleware
// chain (RequestID → Metrics → Timeout).
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/middleware"
)

// New builds the service HTTP handler.
//
// Route table:
//
//	POST   /api/v1/raw/{schemaId}                                        → store raw document
//	POST   /api/v1/processed/{schemaId}                                  → store processed document
//	GET    /api/v1/documents/{schemaId}/{documentId}                     → document by id
//	GET    /api/v1/reports/{schemaId}/{airline}/{period}/{year}          → current document by key
//	DELETE /api/v1/admin/reports/{schemaId}/{documentId}                 → delete one document
//	DELETE /api/v1/admin/history/{airline}/{period}/{reportType}/{year}  → purge report history
//	POST   /api/v1/admin/notifications/{airline}/{period}/{year}         → ad-hoc notification
//	PUT    /api/v1/admin/republish/{schemaId}/{airline}/{period}/{year}  → re-emit storage event
//	GET    /health, /health/live, /health/ready
//
// Health probes bypass the request timeout.
func New(h *handler.Handler, checker *health.Checker, m *metrics.Metrics, requestTimeout time.Duration) http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("POST /api/v1/raw/{schemaId}", h.StoreRaw)
	api.HandleFunc("POST /api/v1/processed/{schemaId}", h.StoreProcessed)
	api.HandleFunc("GET /api/v1/documents/{schemaId}/{documentId}", h.GetDocument)
	api.HandleFunc("GET /api/v1/reports/{schemaId}/{airline}/{period}/{year}", h.GetReport)

	// Admin API
	api.HandleFunc("DELETE /api/v1/admin/reports/{schemaId}/{documentId}", h.DeleteReport)
	api.HandleFunc("DELETE /api/v1/admin/history/{airline}/{period}/{reportType}/{year}", h.DeleteHistory)
	api.HandleFunc("POST /api/v1/admin/notifications/{airline}/{period}/{year}", h.PublishNotification)
	api.HandleFunc("PUT /api/v1/admin/republish/{schemaId}/{airline}/{period}/{year}", h.Republish)

	mux := http.NewServeMux()
	mux.Handle("/api/", middleware.Timeout(requestTimeout)(api))
	mux.HandleFunc("GET /health", checker.Handler())
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)
	return chain
}
