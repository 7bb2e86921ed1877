package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/goran-ethernal/ComplianceScanner/internal/db"
	"github.com/goran-ethernal/ComplianceScanner/internal/logger"
)

//go:embed 001_scan_state.sql
var mig001 string

// RunMigrations brings the scan state schema of db up to date.
func RunMigrations(log *logger.Logger, sqlDB *sql.DB) error {
	migrations := []db.Migration{
		{
			ID:  "001_scan_state.sql",
			SQL: mig001,
		},
	}

	return db.RunMigrationsDB(log, sqlDB, migrations)
}
