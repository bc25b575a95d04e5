// Package report defines the business types shared by the report index, the
// cascading deletion orchestrator and the notification gate.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/errors"
)

// NativeCurrency marks a report stored in the airline's reporting currency.
const NativeCurrency = "native"

// Period is a reporting period.
type Period string

const (
	PeriodAnnual Period = "Annual"
	PeriodQ1     Period = "Q1"
	PeriodQ2     Period = "Q2"
	PeriodQ3     Period = "Q3"
	PeriodQ4     Period = "Q4"
	PeriodH1     Period = "H1"
	PeriodH2     Period = "H2"
)

var periods = []Period{PeriodAnnual, PeriodQ1, PeriodQ2, PeriodQ3, PeriodQ4, PeriodH1, PeriodH2}

// ParsePeriod accepts any casing of a known period and returns its
// canonical form.
func ParsePeriod(s string) (Period, error) {
	for _, p := range periods {
		if strings.EqualFold(s, string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: period %q", apperrors.ErrInvalidInput, s)
}

func (p Period) String() string {
	return string(p)
}

// Key identifies a logical report instance. Several stored versions may
// share a key; the newest one is current.
type Key struct {
	Airline    string
	Period     Period
	ReportType string
	Year       int
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%d", k.Airline, k.Period, k.ReportType, k.Year)
}

// WithType returns a copy of k addressing another report type.
func (k Key) WithType(reportType string) Key {
	k.ReportType = reportType
	return k
}

// LockName names the distributed lock guarding deletions for k.
func (k Key) LockName() string {
	return "history/" + k.String()
}

// Report is one stored document version as recorded in the index.
type Report struct {
	ID           int64           `json:"id"`
	Airline      string          `json:"airline"`
	Period       Period          `json:"period"`
	ReportType   string          `json:"reportType"`
	DocumentID   uuid.UUID       `json:"documentId"`
	Currency     string          `json:"currency"`
	ExchangeRate decimal.Decimal `json:"exchangeRate"`
	IsSpotRate   bool            `json:"isSpotRate"`
	ReportDate   time.Time       `json:"reportDate"`
	Created      time.Time       `json:"created"`
}

// Year is the business year the report belongs to.
func (r Report) Year() int {
	return r.ReportDate.Year()
}

func (r Report) Key() Key {
	return Key{Airline: r.Airline, Period: r.Period, ReportType: r.ReportType, Year: r.Year()}
}

// ReportKey is the projection the completeness gate works on.
type ReportKey struct {
	ReportType string
	DocumentID uuid.UUID
	Currency   string
	Created    time.Time
}

// CommandResponse is the outcome of a mutating operation. Expected failures
// are reported here instead of as errors so callers can aggregate them.
type CommandResponse struct {
	Success      bool   `json:"success"`
	RecordID     *int64 `json:"recordId,omitempty"`
	Information  string `json:"information,omitempty"`
	FaultMessage string `json:"faultMessage,omitempty"`
}

// Succeeded builds a successful response.
func Succeeded(information string) CommandResponse {
	return CommandResponse{Success: true, Information: information}
}

// Failed builds a failed response carrying err's message.
func Failed(err error) CommandResponse {
	return CommandResponse{FaultMessage: err.Error()}
}

// NotificationActionResponse is the outcome of a notification attempt.
type NotificationActionResponse struct {
	Topic            string `json:"topic"`
	MessagePublished bool   `json:"messagePublished"`
	FaultMessage     string `json:"faultMessage,omitempty"`
}

// Notification is the message bus payload announcing that secondary report
// generation can start for a business key.
type Notification struct {
	AirlineICAOCode string     `json:"airlineICAOCode"`
	ReportingPeriod Period     `json:"reportingPeriod"`
	Currency        string     `json:"currency,omitempty"`
	ReportDateUTC   *time.Time `json:"reportDateUTC,omitempty"`
	Message         string     `json:"message"`
}
