package scanstate

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ComplianceScanner/internal/common"
	"github.com/goran-ethernal/ComplianceScanner/internal/db"
	"github.com/goran-ethernal/ComplianceScanner/internal/logger"
	"github.com/goran-ethernal/ComplianceScanner/internal/metrics"
	"github.com/goran-ethernal/ComplianceScanner/internal/migrations"
	"github.com/goran-ethernal/ComplianceScanner/pkg/config"
	pkgscanstate "github.com/goran-ethernal/ComplianceScanner/pkg/scanstate"
	"github.com/mattn/go-sqlite3"
	"github.com/russross/meddler"
)

// Compile-time check to ensure SQLiteState implements pkgscanstate.ScanState interface.
var _ pkgscanstate.ScanState = (*SQLiteState)(nil)

// EventRow is a stored event.
// Uses meddler tags for automatic struct-to-db mapping.
type EventRow struct {
	ID              int64             `meddler:"id,pk"`
	EventName       string            `meddler:"event_name"`
	ContractAddress ethcommon.Address `meddler:"contract_address,address"`
	BlockNumber     uint64            `meddler:"block_number"`
	TxHash          ethcommon.Hash    `meddler:"txhash,hash"`
	LogIndex        uint              `meddler:"log_index"`
	Timestamp       string            `meddler:"timestamp"`
	Args            map[string]string `meddler:"args,json"`
}

// checkpointRow is the singleton scan_state row.
type checkpointRow struct {
	ID               int    `meddler:"id,pk"`
	LastScannedBlock uint64 `meddler:"last_scanned_block"`
	SavedAt          int64  `meddler:"saved_at"`
}

// SQLiteState stores events in a SQLite database. Events and rollbacks are buffered
// in memory and applied together with the checkpoint in one transaction on Save,
// so the database always holds a consistent snapshot.
type SQLiteState struct {
	db      *sql.DB
	path    string
	argCols map[string]struct{}
	last    uint64
	pending []*EventRow
	// deleteFrom is the lowest block whose committed rows must be removed on the next save.
	deleteFrom *uint64
	gate       saveGate
	log        *logger.Logger
}

// NewSQLiteState opens (or creates) the database at opts.Path and brings its schema up to date.
func NewSQLiteState(opts Options, log *logger.Logger) (*SQLiteState, error) {
	opts.applyDefaults()
	opts.DB.ApplyDefaults()
	log = log.WithComponent(common.ComponentScanState)

	sqlDB, err := openStateDB(opts, log)
	if err != nil {
		if !isCorruptDatabase(err) {
			return nil, err
		}

		moved := fmt.Sprintf("%s.corrupt-%d", opts.Path, opts.Clock().Unix())
		log.Warnf("%s is not a usable database (%v), moving it to %s and starting from scratch",
			opts.Path, err, moved)
		if err := moveAside(opts.Path, moved); err != nil {
			return nil, err
		}

		if sqlDB, err = openStateDB(opts, log); err != nil {
			return nil, err
		}
	}

	cols := argColumns(opts.Columns)
	argCols := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		argCols[c] = struct{}{}
	}

	return &SQLiteState{
		db:      sqlDB,
		path:    opts.Path,
		argCols: argCols,
		gate:    newSaveGate(opts),
		log:     log,
	}, nil
}

func openStateDB(opts Options, log *logger.Logger) (*sql.DB, error) {
	sqlDB, err := db.NewSQLiteDB(opts.Path, opts.DB)
	if err != nil {
		return nil, err
	}

	if err := migrations.RunMigrations(log, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", opts.Path, err)
	}

	return sqlDB, nil
}

// isCorruptDatabase reports whether err means the file is not a readable SQLite database.
func isCorruptDatabase(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.Code == sqlite3.ErrNotADB || sqliteErr.Code == sqlite3.ErrCorrupt) {
		return true
	}

	// sql-migrate does not always wrap driver errors
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "file is not a database") || strings.Contains(msg, "database disk image is malformed")
}

// moveAside renames the database to target and drops its WAL companions.
func moveAside(path, target string) error {
	if err := os.Rename(path, target); err != nil {
		return fmt.Errorf("failed to move corrupt state %s: %w", path, err)
	}

	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s%s: %w", path, suffix, err)
		}
	}

	return nil
}

// DB returns the underlying database connection.
func (s *SQLiteState) DB() *sql.DB {
	return s.db
}

// Close closes the database. Unsaved events are lost.
func (s *SQLiteState) Close() error {
	return s.db.Close()
}

// Reset discards buffered events and schedules removal of every stored event.
func (s *SQLiteState) Reset() {
	s.last = 0
	s.pending = nil
	zero := uint64(0)
	s.deleteFrom = &zero
}

// Restore reads the checkpoint. Without a readable checkpoint the state starts from scratch.
func (s *SQLiteState) Restore() {
	var cp checkpointRow
	err := meddler.QueryRow(s.db, &cp, `SELECT * FROM scan_state WHERE id = 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.log.Infof("state starting from scratch: no checkpoint in %s", s.path)
		} else {
			s.log.Warnf("state starting from scratch: %v", err)
		}
		metrics.StateRestoreInc(config.StateFormatSQLite, "reset")
		s.Reset()
		return
	}

	s.last = cp.LastScannedBlock
	s.pending = nil
	s.deleteFrom = nil
	metrics.StateRestoreInc(config.StateFormatSQLite, "restored")
	s.log.Infof("restored state from %s: last scanned block %d", s.path, s.last)
}

// Save applies pending rollbacks and events and writes the checkpoint in one transaction.
func (s *SQLiteState) Save() error {
	start := time.Now()
	err := s.save()
	metrics.StateSaveLog(config.StateFormatSQLite, time.Since(start), err)
	if err != nil {
		return err
	}

	s.gate.mark()

	if size, err := db.DBTotalSize(s.path); err == nil {
		db.DBSizeLog(s.path, size)
	}

	return nil
}

func (s *SQLiteState) save() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	if s.deleteFrom != nil {
		if _, err := tx.Exec(`DELETE FROM scan_events WHERE block_number >= ?`, *s.deleteFrom); err != nil {
			return fmt.Errorf("failed to delete events from block %d: %w", *s.deleteFrom, err)
		}
	}

	for _, row := range s.pending {
		if err := meddler.Insert(tx, "scan_events", row); err != nil {
			return fmt.Errorf("failed to insert event %s: %w", rowID(row), err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO scan_state (id, last_scanned_block, saved_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_scanned_block = excluded.last_scanned_block,
			saved_at = excluded.saved_at
	`, s.last, s.gate.now().Unix()); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}

	s.log.Debugf("saved %d events to %s, last scanned block %d", len(s.pending), s.path, s.last)
	s.pending = nil
	s.deleteFrom = nil

	return nil
}

// Events returns the committed events in block order.
func (s *SQLiteState) Events() ([]*EventRow, error) {
	var rows []*EventRow
	err := meddler.QueryAll(s.db, &rows,
		`SELECT * FROM scan_events ORDER BY block_number, log_index, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	return rows, nil
}

// GetLastScannedBlock returns the block the next scan resumes from.
func (s *SQLiteState) GetLastScannedBlock() uint64 {
	return s.last
}

// DeleteData drops buffered events at or above sinceBlock and schedules removal
// of the stored ones for the next save.
func (s *SQLiteState) DeleteData(sinceBlock int64) {
	since := sinceBlockOf(sinceBlock)
	if since >= s.last {
		return
	}

	kept := s.pending[:0]
	for _, row := range s.pending {
		if row.BlockNumber < since {
			kept = append(kept, row)
		}
	}
	s.pending = kept

	if s.deleteFrom == nil || since < *s.deleteFrom {
		s.deleteFrom = &since
	}

	s.log.Infof("scheduled removal of events at or above block %d", since)
}

// StartChunk is a no-op.
func (s *SQLiteState) StartChunk(uint64, uint64) {}

// EndChunk records blockNumber as scanned and saves when the save interval elapsed.
func (s *SQLiteState) EndChunk(blockNumber uint64) error {
	s.last = blockNumber
	if !s.gate.due() {
		return nil
	}

	return s.Save()
}

// ProcessEvent buffers event until the next save. Arguments outside the declared columns are dropped.
func (s *SQLiteState) ProcessEvent(blockTime time.Time, event pkgscanstate.Event) (string, error) {
	id := pkgscanstate.EventID(event)

	args := make(map[string]string, len(event.Args))
	for name, value := range event.Args {
		if _, ok := s.argCols[name]; !ok {
			s.log.Warnf("dropping argument %q of %s event %s: no such column", name, event.Name, id)
			continue
		}
		args[name] = pkgscanstate.FormatValue(value)
	}

	if len(args) == 0 && len(event.Args) > 0 {
		s.log.Errorf("%s event %s matched none of the declared columns", event.Name, id)
	}

	s.pending = append(s.pending, &EventRow{
		EventName:       event.Name,
		ContractAddress: event.ContractAddress,
		BlockNumber:     event.BlockNumber,
		TxHash:          event.TxHash,
		LogIndex:        event.LogIndex,
		Timestamp:       pkgscanstate.FormatTimestamp(blockTime),
		Args:            args,
	})

	return id, nil
}

func rowID(row *EventRow) string {
	return fmt.Sprintf("%d-%s-%d", row.BlockNumber, row.TxHash.Hex(), row.LogIndex)
}
