package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// NewServer builds the metrics HTTP server. The caller owns ListenAndServe
// and Shutdown so it can supervise it alongside the API server.
func NewServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><h1>Report Lifecycle Metrics</h1><p><a href="/metrics">/metrics</a></p></body></html>`)
	})

	slog.Info("metrics server configured", "port", port)
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
