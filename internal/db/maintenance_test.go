package db

import (
	"context"
	"testing"

	"github.com/goran-ethernal/ComplianceScanner/internal/logger"
	"github.com/stretchr/testify/require"
)

func TestMaintain(t *testing.T) {
	db, dbPath := setupTestDB(t, "WAL", 3000)

	_, err := db.Exec(`DELETE FROM test_table`)
	require.NoError(t, err)

	result, err := Maintain(context.Background(), db, dbPath, logger.NewNopLogger())
	require.NoError(t, err)
	require.Positive(t, result.InitialSize)
	require.LessOrEqual(t, result.FinalSize, result.InitialSize)
	require.Equal(t, uint64(result.InitialSize-result.FinalSize), result.SpaceReclaimed)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM test_table`).Scan(&count))
	require.Zero(t, count)
}

func TestMaintain_CancelledContext(t *testing.T) {
	db, dbPath := setupTestDB(t, "WAL", 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Maintain(ctx, db, dbPath, logger.NewNopLogger())
	require.ErrorIs(t, err, context.Canceled)
}

func TestCheckpoint_NonWALIsNoop(t *testing.T) {
	db, _ := setupTestDB(t, "DELETE", 10)
	require.NoError(t, Checkpoint(db, "TRUNCATE", logger.NewNopLogger()))
}
