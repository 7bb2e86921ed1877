package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ComplianceScanner/internal/logger"
	"github.com/goran-ethernal/ComplianceScanner/pkg/config"
	"github.com/russross/meddler"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T, journal string, rows int) (*sql.DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "state.db")

	dbConfig := config.DatabaseConfig{JournalMode: journal}
	dbConfig.ApplyDefaults()

	sqlDB, err := NewSQLiteDB(dbPath, dbConfig)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	_, err = sqlDB.Exec(`CREATE TABLE IF NOT EXISTS test_table (id INTEGER PRIMARY KEY, value TEXT);`)
	require.NoError(t, err)

	for i := range rows {
		_, err = sqlDB.Exec(`INSERT INTO test_table (value) VALUES (?);`, fmt.Sprintf("value_%d", i))
		require.NoError(t, err)
	}

	return sqlDB, dbPath
}

func TestNewSQLiteDB_AppliesPragmas(t *testing.T) {
	sqlDB, _ := setupTestDB(t, "WAL", 0)

	var mode string
	require.NoError(t, sqlDB.QueryRow("PRAGMA journal_mode").Scan(&mode))
	require.Equal(t, "wal", mode)

	var cacheSize int
	require.NoError(t, sqlDB.QueryRow("PRAGMA cache_size").Scan(&cacheSize))
	require.Equal(t, 10000, cacheSize)
}

func TestVacuum_Modes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		journalMode string
	}{
		{name: "WAL", journalMode: "WAL"},
		{name: "NonWAL", journalMode: "TRUNCATE"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			db, dbPath := setupTestDB(t, tc.journalMode, 2000)

			_, err := db.Exec(`DELETE FROM test_table WHERE id % 2 = 0`)
			require.NoError(t, err)
			require.NoError(t, Checkpoint(db, "TRUNCATE", logger.NewNopLogger()))

			initialSize, err := DBTotalSize(dbPath)
			require.NoError(t, err)

			require.NoError(t, Vacuum(db))
			require.NoError(t, Checkpoint(db, "TRUNCATE", logger.NewNopLogger()))

			finalSize, err := DBTotalSize(dbPath)
			require.NoError(t, err)

			require.LessOrEqual(t, finalSize, initialSize)
		})
	}
}

func TestDBTotalSize(t *testing.T) {
	testCases := []struct {
		name       string
		files      map[string]string // suffix -> content
		expectSize int64
	}{
		{
			name:       "MainOnly",
			files:      map[string]string{"": "main-db-content"},
			expectSize: int64(len("main-db-content")),
		},
		{
			name: "WithWALAndSHM",
			files: map[string]string{
				"":     "main-db",
				"-wal": "wal-content",
				"-shm": "shm-content",
			},
			expectSize: int64(len("main-db") + len("wal-content") + len("shm-content")),
		},
		{
			name:       "MissingFiles",
			files:      map[string]string{},
			expectSize: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mainPath := filepath.Join(t.TempDir(), "main.db")
			for suffix, content := range tc.files {
				require.NoError(t, os.WriteFile(mainPath+suffix, []byte(content), 0o600))
			}

			size, err := DBTotalSize(mainPath)
			require.NoError(t, err)
			require.Equal(t, tc.expectSize, size)
		})
	}
}

type meddlerRow struct {
	ID       int64           `meddler:"id,pk"`
	Contract common.Address  `meddler:"contract,address"`
	Owner    *common.Address `meddler:"owner,address"`
	TxHash   common.Hash     `meddler:"tx_hash,hash"`
}

func TestMeddlers_RoundTrip(t *testing.T) {
	db, _ := setupTestDB(t, "WAL", 0)

	_, err := db.Exec(`CREATE TABLE rows (id INTEGER PRIMARY KEY, contract TEXT, owner TEXT, tx_hash TEXT)`)
	require.NoError(t, err)

	row := &meddlerRow{
		Contract: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
		TxHash:   common.HexToHash("0xabc123"),
	}
	require.NoError(t, meddler.Insert(db, "rows", row))

	var stored string
	require.NoError(t, db.QueryRow(`SELECT contract FROM rows WHERE id = ?`, row.ID).Scan(&stored))
	require.Equal(t, "0xdAC17F958D2ee523a2206206994597C13D831ec7", stored)

	loaded := &meddlerRow{}
	require.NoError(t, meddler.Load(db, "rows", loaded, row.ID))
	require.Equal(t, row.Contract, loaded.Contract)
	require.Nil(t, loaded.Owner)
	require.Equal(t, row.TxHash, loaded.TxHash)
}
