// Package handler implements the HTTP endpoints of the report lifecycle
// service on top of lifecycle.Service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/lifecycle"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/report"
	apperrors "github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/logger"
)

// MaxDocumentBytes caps the size of a posted document.
const MaxDocumentBytes = 8 << 20

// Service is the subset of lifecycle.Service the handlers call.
type Service interface {
	StoreDocument(ctx context.Context, kind lifecycle.Kind, schemaID string, payload []byte) (*lifecycle.StoreResult, error)
	GetDocumentByID(ctx context.Context, schemaID string, documentID uuid.UUID) ([]byte, error)
	GetDocumentByKey(ctx context.Context, key report.Key, currency string) ([]byte, error)
	DeleteReport(ctx context.Context, schemaID string, documentID uuid.UUID) (report.CommandResponse, error)
	DeleteHistory(ctx context.Context, key report.Key) (report.CommandResponse, error)
	PublishNotification(ctx context.Context, airline string, period report.Period, year int, message string) (report.NotificationActionResponse, error)
	Republish(ctx context.Context, key report.Key, currency string) (report.CommandResponse, error)
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service) *Handler {
	return &Handler{
		svc:    svc,
		logger: slog.Default().With("component", "api-handler"),
	}
}

func (h *Handler) StoreRaw(w http.ResponseWriter, r *http.Request) {
	h.store(w, r, lifecycle.KindRaw)
}

func (h *Handler) StoreProcessed(w http.ResponseWriter, r *http.Request) {
	h.store(w, r, lifecycle.KindProcessed)
}

func (h *Handler) store(w http.ResponseWriter, r *http.Request, kind lifecycle.Kind) {
	ctx := r.Context()
	schemaID := r.PathValue("schemaId")

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxDocumentBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "document too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	res, err := h.svc.StoreDocument(ctx, kind, schemaID, payload)
	if err != nil {
		h.fail(ctx, w, "store document", err)
		return
	}
	w.Header().Set("Location", res.DocumentURI)
	h.writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(r.PathValue("documentId"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	body, err := h.svc.GetDocumentByID(ctx, r.PathValue("schemaId"), id)
	if err != nil {
		h.fail(ctx, w, "get document", err)
		return
	}
	h.writeRaw(w, body)
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, err := keyFromPath(r, r.PathValue("schemaId"))
	if err != nil {
		h.fail(ctx, w, "get report", err)
		return
	}
	body, err := h.svc.GetDocumentByKey(ctx, key, r.URL.Query().Get("currency"))
	if err != nil {
		h.fail(ctx, w, "get report", err)
		return
	}
	h.writeRaw(w, body)
}

func (h *Handler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(r.PathValue("documentId"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	resp, err := h.svc.DeleteReport(ctx, r.PathValue("schemaId"), id)
	if err != nil {
		h.fail(ctx, w, "delete report", err)
		return
	}
	h.writeCommand(w, resp)
}

func (h *Handler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, err := keyFromPath(r, r.PathValue("reportType"))
	if err != nil {
		h.fail(ctx, w, "delete history", err)
		return
	}
	resp, err := h.svc.DeleteHistory(ctx, key)
	if err != nil {
		h.fail(ctx, w, "delete history", err)
		return
	}
	h.writeCommand(w, resp)
}

type notificationRequest struct {
	Message string `json:"message"`
}

func (h *Handler) PublishNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, err := keyFromPath(r, "")
	if err != nil {
		h.fail(ctx, w, "publish notification", err)
		return
	}
	var req notificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	resp, err := h.svc.PublishNotification(ctx, key.Airline, key.Period, key.Year, req.Message)
	if err != nil {
		h.fail(ctx, w, "publish notification", err)
		return
	}
	status := http.StatusOK
	if !resp.MessagePublished {
		status = http.StatusBadRequest
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) Republish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, err := keyFromPath(r, r.PathValue("schemaId"))
	if err != nil {
		h.fail(ctx, w, "republish", err)
		return
	}
	resp, err := h.svc.Republish(ctx, key, r.URL.Query().Get("currency"))
	if err != nil {
		h.fail(ctx, w, "republish", err)
		return
	}
	h.writeCommand(w, resp)
}

// keyFromPath reads airline, period and year from the route.
func keyFromPath(r *http.Request, reportType string) (report.Key, error) {
	airline := strings.ToUpper(strings.TrimSpace(r.PathValue("airline")))
	if airline == "" {
		return report.Key{}, fmt.Errorf("%w: airline is required", apperrors.ErrInvalidInput)
	}
	period, err := report.ParsePeriod(r.PathValue("period"))
	if err != nil {
		return report.Key{}, err
	}
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil || year < 1 || year > 9999 {
		return report.Key{}, fmt.Errorf("%w: invalid year %q", apperrors.ErrInvalidInput, r.PathValue("year"))
	}
	return report.Key{Airline: airline, Period: period, ReportType: reportType, Year: year}, nil
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	status := apperrors.HTTPStatusCode(err)
	log := logger.FromContext(ctx)
	if status >= http.StatusInternalServerError {
		log.Error(op+" failed", "error", err, "status_code", status)
	} else {
		log.Warn(op+" rejected", "error", err, "status_code", status)
	}

	var validationErr *report.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		h.writeError(w, status, appErr.Message)
		return
	}
	if status == http.StatusInternalServerError {
		h.writeError(w, status, "internal error")
		return
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeCommand(w http.ResponseWriter, resp report.CommandResponse) {
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusBadRequest
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) writeRaw(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
