package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrReportNotFound    = errors.New("report not found")
	ErrStoreUnavailable  = errors.New("document store unavailable")
	ErrIndexUnavailable  = errors.New("report index unavailable")
	ErrInconsistentState = errors.New("index row outlived its document")
	ErrPublishFailure    = errors.New("notification publish failed")
	ErrUnknownSchema     = errors.New("unknown schema")
	ErrInvalidInput      = errors.New("invalid input")
	ErrLockHeld          = errors.New("business key is locked by another operation")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Is reports whether any error in err's chain matches target. It mirrors the
// standard library so callers need a single errors import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrReportNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnknownSchema):
		return http.StatusBadRequest
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrIndexUnavailable), errors.Is(err, ErrPublishFailure), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
