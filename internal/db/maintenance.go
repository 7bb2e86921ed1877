package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goran-ethernal/ComplianceScanner/internal/common"
	"github.com/goran-ethernal/ComplianceScanner/internal/logger"
)

const defaultCheckpointMode = "TRUNCATE"

// MaintenanceResult describes one maintenance run.
type MaintenanceResult struct {
	Duration       time.Duration
	InitialSize    int64
	FinalSize      int64
	SpaceReclaimed uint64
}

// Maintain vacuums the database and checkpoints the WAL into the main database file.
// The caller must not hold an open transaction on db.
func Maintain(ctx context.Context, db *sql.DB, dbPath string, log *logger.Logger) (MaintenanceResult, error) {
	log.Debugf("starting maintenance of %s", dbPath)
	start := time.Now().UTC()

	var result MaintenanceResult

	if err := ctx.Err(); err != nil {
		return result, err
	}

	initialSize, err := DBTotalSize(dbPath)
	if err != nil {
		log.Warnf("failed to get initial DB size: %v", err)
	}
	result.InitialSize = initialSize

	// VACUUM writes the rebuilt pages through the WAL, so the checkpoint runs after it
	var maintenanceErr error
	if err := Vacuum(db); err != nil {
		maintenanceErr = fmt.Errorf("VACUUM failed: %w", err)
	}

	if err := Checkpoint(db, defaultCheckpointMode, log); err != nil && maintenanceErr == nil {
		maintenanceErr = fmt.Errorf("WAL checkpoint failed: %w", err)
	}

	finalSize, err := DBTotalSize(dbPath)
	if err != nil {
		log.Warnf("failed to get final DB size: %v", err)
	}
	result.FinalSize = finalSize
	result.Duration = time.Since(start)

	MaintenanceLog(dbPath, result.Duration, maintenanceErr)
	if maintenanceErr != nil {
		return result, maintenanceErr
	}

	if initialSize > finalSize {
		result.SpaceReclaimed = uint64(initialSize - finalSize)
		SpaceReclaimedLog(dbPath, result.SpaceReclaimed)
		log.Infof("maintenance of %s reclaimed %d MB", dbPath, common.BytesToMB(result.SpaceReclaimed))
	}
	DBSizeLog(dbPath, finalSize)

	log.Debugf("maintenance of %s completed in %v", dbPath, result.Duration)
	return result, nil
}

// Checkpoint runs a WAL checkpoint in the given mode. It is a no-op outside WAL mode.
func Checkpoint(db *sql.DB, mode string, log *logger.Logger) error {
	isWAL, err := isWALMode(db)
	if err != nil {
		return fmt.Errorf("failed to check journal mode: %w", err)
	}
	if !isWAL {
		return nil
	}

	var busyCount, logFrames, checkpointedFrames int
	err = db.QueryRow(fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode)).
		Scan(&busyCount, &logFrames, &checkpointedFrames)
	if err != nil {
		return fmt.Errorf("failed to execute WAL checkpoint: %w", err)
	}

	WALCheckpointInc(strings.ToLower(mode))

	if busyCount > 0 {
		log.Warnf("WAL checkpoint encountered %d busy pages (some pages not checkpointed)", busyCount)
	}

	log.Debugf("WAL checkpoint complete - mode: %s, log_frames: %d, checkpointed: %d",
		mode, logFrames, checkpointedFrames)
	return nil
}

// Vacuum rebuilds the database file to reclaim space left by deleted rows.
func Vacuum(db *sql.DB) error {
	if _, err := db.Exec("VACUUM"); err != nil {
		if strings.Contains(err.Error(), "database is locked") {
			return fmt.Errorf("cannot vacuum: database is locked (retry later)")
		}
		return fmt.Errorf("vacuum failed: %w", err)
	}

	VacuumRunsInc()
	return nil
}

func isWALMode(db *sql.DB) (bool, error) {
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return false, err
	}
	return strings.EqualFold(mode, "wal"), nil
}
