package index

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/database"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS reports (
		id            BIGSERIAL PRIMARY KEY,
		airline       VARCHAR(3)    NOT NULL,
		period        VARCHAR(15)   NOT NULL,
		report_type   VARCHAR(128)  NOT NULL,
		report_year   INTEGER       NOT NULL,
		document_id   UUID          NOT NULL,
		currency      VARCHAR(6)    NOT NULL,
		exchange_rate NUMERIC(19,8) NOT NULL DEFAULT 0,
		is_spot_rate  BOOLEAN       NOT NULL DEFAULT FALSE,
		report_date   TIMESTAMPTZ   NOT NULL,
		created       TIMESTAMPTZ   NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reports_key ON reports (airline, period, report_type, report_year, created DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_reports_document ON reports (document_id)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS reports (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		airline       TEXT      NOT NULL,
		period        TEXT      NOT NULL,
		report_type   TEXT      NOT NULL,
		report_year   INTEGER   NOT NULL,
		document_id   TEXT      NOT NULL,
		currency      TEXT      NOT NULL,
		exchange_rate TEXT      NOT NULL DEFAULT '0',
		is_spot_rate  BOOLEAN   NOT NULL DEFAULT 0,
		report_date   TIMESTAMP NOT NULL,
		created       TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reports_key ON reports (airline, period, report_type, report_year, created DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_reports_document ON reports (document_id)`,
}

// Migrate creates the reports table and its indexes if they do not exist.
func Migrate(ctx context.Context, db *database.Client) error {
	stmts := postgresSchema
	if db.Driver() == database.DriverSQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating report index: %w", err)
		}
	}
	return nil
}
