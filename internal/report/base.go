package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/errors"
)

// Base holds the fields every posted document must carry, whatever its
// schema. The rest of the document is opaque to the service.
type Base struct {
	AirlineICAOCode string          `json:"airlineICAOCode" validate:"required,len=3,alphanum"`
	ReportPeriod    string          `json:"reportPeriod" validate:"required,period"`
	ReportDate      string          `json:"reportDate" validate:"required,reportdate"`
	Currency        string          `json:"currency" validate:"required,len=3|eq=native"`
	ExchangeRate    decimal.Decimal `json:"exchangeRate"`
	IsSpotRate      bool            `json:"isSpotRate"`
}

var reportDateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// ValidationError holds per-field validation failure messages keyed by the
// JSON field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("period", func(fl validator.FieldLevel) bool {
		_, err := ParsePeriod(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("reportdate", func(fl validator.FieldLevel) bool {
		_, err := parseReportDate(fl.Field().String())
		return err == nil
	})
	return v
}

// ParseBase extracts and validates the base fields of a posted document.
func ParseBase(payload []byte) (*Base, error) {
	var b Base
	if err := json.Unmarshal(payload, &b); err != nil {
		return nil, fmt.Errorf("%w: document is not a JSON object: %v", apperrors.ErrInvalidInput, err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks the base fields and returns a *ValidationError listing
// every offending field.
func (b *Base) Validate() error {
	err := validate.Struct(b)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating document: %w", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return &ValidationError{Fields: fields}
}

// Report converts validated base fields into an index row for the stored
// document. ID and Created are left for the index to assign.
func (b *Base) Report(schemaID string, documentID uuid.UUID) (Report, error) {
	period, err := ParsePeriod(b.ReportPeriod)
	if err != nil {
		return Report{}, err
	}
	date, err := parseReportDate(b.ReportDate)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Airline:      strings.ToUpper(b.AirlineICAOCode),
		Period:       period,
		ReportType:   schemaID,
		DocumentID:   documentID,
		Currency:     b.Currency,
		ExchangeRate: b.ExchangeRate,
		IsSpotRate:   b.IsSpotRate,
		ReportDate:   date,
	}, nil
}

func parseReportDate(s string) (time.Time, error) {
	for _, layout := range reportDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: report date %q", apperrors.ErrInvalidInput, s)
}
