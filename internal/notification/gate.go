// Package notification decides when secondary report generation may start
// and announces it on the message bus.
package notification

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/report"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/schema"
)

// KeySource lists every indexed report for an airline, period and year.
type KeySource interface {
	GetCoreReportKeys(ctx context.Context, airline string, period report.Period, year int) ([]report.ReportKey, error)
}

// Gate is the completeness predicate over the required core report types.
type Gate struct {
	keys     KeySource
	required []string
	logger   *slog.Logger
}

func NewGate(keys KeySource) *Gate {
	return &Gate{
		keys:     keys,
		required: schema.RequiredCoreTypes(),
		logger:   slog.Default().With("component", "completeness-gate"),
	}
}

// TestAllCoreReportsAvailable reports whether every required core type has
// at least one indexed report. It fails closed: a lookup error is false.
func (g *Gate) TestAllCoreReportsAvailable(ctx context.Context, airline string, period report.Period, year int) bool {
	keys, err := g.keys.GetCoreReportKeys(ctx, airline, period, year)
	if err != nil {
		g.logger.Warn("core report lookup failed, treating as incomplete",
			"airline", airline, "period", period, "year", year, "error", err)
		return false
	}

	present := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		present[k.ReportType] = struct{}{}
	}
	var missing []string
	for _, typ := range g.required {
		if _, ok := present[typ]; !ok {
			missing = append(missing, typ)
		}
	}
	if len(missing) > 0 {
		g.logger.Debug("core reports missing",
			"airline", airline, "period", period, "year", year, "missing", missing)
		return false
	}
	return true
}
