// Package docstore is the HTTP client for the external document store. Every
// call carries a bearer token supplied by the caller; documents live at
// {base}/{schemaId}/{documentId}.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/resilience"
)

const maxResponseBytes = 32 << 20

// StatusError is a non-2xx answer from the store.
type StatusError struct {
	Operation string
	Code      int
	Body      []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("document store %s returned %d", e.Operation, e.Code)
}

func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusNotFound {
		return apperrors.ErrDocumentNotFound
	}
	return apperrors.ErrStoreUnavailable
}

// PostResult is the outcome of creating a document. Content holds the raw
// store response so callers can relay rejections verbatim.
type PostResult struct {
	Success     bool
	StatusCode  int
	DocumentURI string
	DocumentID  uuid.UUID
	Content     []byte
}

type Client struct {
	baseURL          string
	http             *http.Client
	breaker          *resilience.CircuitBreaker
	retry            resilience.RetryConfig
	missingIsDeleted bool
	metrics          *metrics.Metrics
	logger           *slog.Logger
}

func New(cfg config.DocumentStoreConfig, m *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		breaker: resilience.NewCircuitBreaker("docstore", resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.FailureThreshold,
			ResetTimeout:     cfg.ResetTimeout,
			OnStateChange: func(name string, _, to resilience.State) {
				m.BreakerState(name, int(to))
			},
		}),
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.RetryAttempts,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Retryable:    isTransient,
		},
		missingIsDeleted: cfg.MissingIsDeleted,
		metrics:          m,
		logger:           slog.Default().With("component", "docstore-client"),
	}
}

// CollectionURI is the POST target for new documents of schemaID.
func (c *Client) CollectionURI(schemaID string) string {
	return c.baseURL + "/" + url.PathEscape(schemaID)
}

func (c *Client) DocumentURI(schemaID string, documentID uuid.UUID) string {
	return c.CollectionURI(schemaID) + "/" + documentID.String()
}

// BreakerState reports the circuit state for health checks.
func (c *Client) BreakerState() string {
	return c.breaker.GetState().String()
}

// GetDocument fetches a document body. A 404 yields an error wrapping
// ErrDocumentNotFound; anything else that is not 2xx wraps
// ErrStoreUnavailable.
func (c *Client) GetDocument(ctx context.Context, uri, token string) ([]byte, error) {
	var body []byte
	err := resilience.Retry(ctx, "docstore get", c.retry, func() error {
		return c.breaker.ExecuteCounting(func() error {
			resp, err := c.do(ctx, "get", http.MethodGet, uri, token, nil)
			if err != nil {
				return err
			}
			if !resp.ok() {
				return &StatusError{Operation: "get", Code: resp.code, Body: resp.body}
			}
			body = resp.body
			return nil
		}, isTransient)
	})
	if err != nil {
		if !errors.Is(err, apperrors.ErrDocumentNotFound) {
			c.logger.Error("failed to get document", "uri", uri, "error", err)
		}
		return nil, fmt.Errorf("getting %s: %w", uri, err)
	}
	return body, nil
}

// PostNewDocument creates a document. The new document's URI is read from
// the Location header or, failing that, a "uri" field in the JSON response;
// its last path segment must parse as a UUID.
func (c *Client) PostNewDocument(ctx context.Context, collectionURI, token string, payload []byte) PostResult {
	var res PostResult
	err := c.breaker.ExecuteCounting(func() error {
		resp, err := c.do(ctx, "post", http.MethodPost, collectionURI, token, payload)
		if err != nil {
			return err
		}
		res.StatusCode = resp.code
		res.Content = resp.body
		if !resp.ok() {
			return &StatusError{Operation: "post", Code: resp.code, Body: resp.body}
		}
		res.DocumentURI = locationOf(collectionURI, resp)
		return nil
	}, isTransient)
	if err != nil {
		c.logger.Error("failed to post document", "uri", collectionURI, "error", err)
		if len(res.Content) == 0 {
			res.Content = []byte(err.Error())
		}
		return res
	}

	id, err := DocumentIDFromURI(res.DocumentURI)
	if err != nil {
		c.logger.Error("store accepted document without a usable id",
			"uri", collectionURI,
			"document_uri", res.DocumentURI,
			"error", err,
		)
		return res
	}
	res.DocumentID = id
	res.Success = true
	return res
}

func locationOf(collectionURI string, resp response) string {
	loc := resp.location
	if loc == "" {
		var parsed struct {
			URI         string `json:"uri"`
			DocumentURI string `json:"documentUri"`
		}
		if json.Unmarshal(resp.body, &parsed) == nil {
			loc = parsed.URI
			if loc == "" {
				loc = parsed.DocumentURI
			}
		}
	}
	return resolveURI(collectionURI, loc)
}

// DeleteDocument reports whether the store confirmed the delete. It never
// returns an error; a 404 counts as deleted when the client is configured
// to treat missing documents that way.
func (c *Client) DeleteDocument(ctx context.Context, schemaID string, documentID uuid.UUID, token string) bool {
	uri := c.DocumentURI(schemaID, documentID)
	var code int
	err := c.breaker.ExecuteCounting(func() error {
		resp, err := c.do(ctx, "delete", http.MethodDelete, uri, token, nil)
		code = resp.code
		if err != nil {
			return err
		}
		if !resp.ok() {
			return &StatusError{Operation: "delete", Code: resp.code}
		}
		return nil
	}, isTransient)
	if err == nil {
		return true
	}
	if code == http.StatusNotFound && c.missingIsDeleted {
		c.logger.Info("document already absent from store", "schema_id", schemaID, "document_id", documentID)
		return true
	}
	c.logger.Warn("document store refused delete",
		"schema_id", schemaID,
		"document_id", documentID,
		"error", err,
	)
	return false
}

// PutDocument overwrites the document at uri in place.
func (c *Client) PutDocument(ctx context.Context, uri, token string, payload []byte) bool {
	err := resilience.Retry(ctx, "docstore put", c.retry, func() error {
		return c.breaker.ExecuteCounting(func() error {
			resp, err := c.do(ctx, "put", http.MethodPut, uri, token, payload)
			if err != nil {
				return err
			}
			if !resp.ok() {
				return &StatusError{Operation: "put", Code: resp.code, Body: resp.body}
			}
			return nil
		}, isTransient)
	})
	if err != nil {
		c.logger.Error("failed to put document", "uri", uri, "error", err)
		return false
	}
	return true
}

type response struct {
	code     int
	body     []byte
	location string
}

func (r response) ok() bool {
	return r.code >= 200 && r.code <= 299
}

func (c *Client) do(ctx context.Context, op, method, uri, token string, payload []byte) (response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, uri, body)
	if err != nil {
		return response{}, fmt.Errorf("building %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveStoreCall(op, 0, time.Since(start))
		return response{}, fmt.Errorf("%w: %s %s: %v", apperrors.ErrStoreUnavailable, method, uri, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.metrics.ObserveStoreCall(op, resp.StatusCode, time.Since(start))
	if err != nil {
		return response{code: resp.StatusCode}, fmt.Errorf("%w: reading %s response: %v", apperrors.ErrStoreUnavailable, op, err)
	}
	return response{code: resp.StatusCode, body: b, location: resp.Header.Get("Location")}, nil
}

// DocumentIDFromURI parses the last path segment of uri as a UUID.
func DocumentIDFromURI(uri string) (uuid.UUID, error) {
	if uri == "" {
		return uuid.Nil, errors.New("empty document uri")
	}
	u, err := url.Parse(uri)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parsing document uri: %w", err)
	}
	id, err := uuid.Parse(path.Base(strings.TrimRight(u.Path, "/")))
	if err != nil {
		return uuid.Nil, fmt.Errorf("document uri %q has no id segment: %w", uri, err)
	}
	return id, nil
}

func resolveURI(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// isTransient reports whether another attempt might succeed. Client errors
// from the store (bad payload, missing document) are final.
func isTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}
