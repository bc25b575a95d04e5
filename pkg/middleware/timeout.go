package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

var timeoutBody = []byte(`{"error":"request timeout"}`)

// Timeout bounds request handling. The handler writes into a private buffer
// that is copied to the client only when it finishes inside the deadline;
// otherwise a 504 JSON body is returned. The middleware waits for the
// handler to return either way, so nothing keeps running after the request.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			tw := &timeoutWriter{header: make(http.Header)}
			done := make(chan struct{})
			var panicked any
			go func() {
				defer close(done)
				defer func() { panicked = recover() }()
				next.ServeHTTP(tw, r.WithContext(ctx))
			}()

			select {
			case <-done:
				if panicked != nil {
					panic(panicked)
				}
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					writeTimeout(w, r, timeout)
					return
				}
				tw.copyTo(w)
			case <-ctx.Done():
				tw.mu.Lock()
				tw.timedOut = true
				tw.mu.Unlock()
				writeTimeout(w, r, timeout)
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
				<-done
				if panicked != nil {
					panic(panicked)
				}
			}
		})
	}
}

func writeTimeout(w http.ResponseWriter, r *http.Request, timeout time.Duration) {
	slog.Warn("request timed out", "method", r.Method, "path", r.URL.Path, "timeout", timeout)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusGatewayTimeout)
	w.Write(timeoutBody)
}

// timeoutWriter buffers a handler's response. Its header map belongs to the
// handler goroutine; the middleware reads it only after the handler returned.
type timeoutWriter struct {
	header http.Header

	mu       sync.Mutex
	buf      bytes.Buffer
	code     int
	timedOut bool
}

func (tw *timeoutWriter) Header() http.Header {
	return tw.header
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut || tw.code != 0 {
		return
	}
	tw.code = code
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	if tw.code == 0 {
		tw.code = http.StatusOK
	}
	return tw.buf.Write(b)
}

func (tw *timeoutWriter) copyTo(w http.ResponseWriter) {
	dst := w.Header()
	for k, vv := range tw.header {
		dst[k] = vv
	}
	code := tw.code
	if code == 0 {
		code = http.StatusOK
	}
	w.WriteHeader(code)
	if tw.buf.Len() > 0 {
		w.Write(tw.buf.Bytes())
	}
}
