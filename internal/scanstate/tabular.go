package scanstate

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/goran-ethernal/ComplianceScanner/internal/common"
	"github.com/goran-ethernal/ComplianceScanner/internal/logger"
	"github.com/goran-ethernal/ComplianceScanner/internal/metrics"
	"github.com/goran-ethernal/ComplianceScanner/pkg/config"
	pkgscanstate "github.com/goran-ethernal/ComplianceScanner/pkg/scanstate"
)

// Compile-time check to ensure TabularState implements pkgscanstate.ScanState interface.
var _ pkgscanstate.ScanState = (*TabularState)(nil)

type tabularRow struct {
	block  uint64
	values map[string]string
}

// TabularState keeps one row per event in memory and persists them as a CSV table.
// The last scanned block is not stored separately; on restore it is the highest
// block number in the table.
type TabularState struct {
	path     string
	declared []string
	columns  []string
	argCols  map[string]struct{}
	rows     []tabularRow
	last     uint64
	gate     saveGate
	log      *logger.Logger
}

// NewTabularState creates an empty tabular state backed by opts.Path.
func NewTabularState(opts Options, log *logger.Logger) *TabularState {
	opts.applyDefaults()

	s := &TabularState{
		path:     opts.Path,
		declared: argColumns(opts.Columns),
		gate:     newSaveGate(opts),
		log:      log.WithComponent(common.ComponentScanState),
	}
	s.Reset()

	return s
}

// Reset drops all rows and restarts from block 0 with the declared columns.
func (s *TabularState) Reset() {
	s.setColumns(slices.Clone(BaseColumns))
	s.rows = nil
	s.last = 0
}

func (s *TabularState) setColumns(header []string) {
	columns := slices.Clone(header)
	for _, c := range append(slices.Clone(BaseColumns), s.declared...) {
		if !slices.Contains(columns, c) {
			columns = append(columns, c)
		}
	}

	s.columns = columns
	s.argCols = make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if !slices.Contains(BaseColumns, c) {
			s.argCols[c] = struct{}{}
		}
	}
}

// Columns returns the table header.
func (s *TabularState) Columns() []string {
	return slices.Clone(s.columns)
}

// Len returns the number of rows held.
func (s *TabularState) Len() int {
	return len(s.rows)
}

// Restore loads the table from disk. Missing, empty or malformed files reset the state.
func (s *TabularState) Restore() {
	if err := s.restore(); err != nil {
		s.log.Warnf("state starting from scratch: %v", err)
		metrics.StateRestoreInc(config.StateFormatTabular, "reset")
		s.Reset()
		return
	}

	metrics.StateRestoreInc(config.StateFormatTabular, "restored")
	s.log.Infof("restored state from %s: %d events, last scanned block %d", s.path, len(s.rows), s.last)
}

func (s *TabularState) restore() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	if len(records) < 2 { //nolint:mnd
		return fmt.Errorf("%s holds no events", s.path)
	}

	header := records[0]
	blockIdx := slices.Index(header, ColumnBlockNumber)
	if blockIdx < 0 {
		return fmt.Errorf("%s has no %s column", s.path, ColumnBlockNumber)
	}

	rows := make([]tabularRow, 0, len(records)-1)
	var last uint64
	for i, record := range records[1:] {
		if len(record) != len(header) {
			s.log.Warnf("%s row %d: skipping ragged row with %d of %d fields", s.path, i+1, len(record), len(header))
			continue
		}

		block, err := common.ParseBlockNumber(record[blockIdx])
		if err != nil {
			return fmt.Errorf("row %d: invalid %s %q: %w", i+1, ColumnBlockNumber, record[blockIdx], err)
		}

		values := make(map[string]string, len(header))
		for j, column := range header {
			values[column] = record[j]
		}

		rows = append(rows, tabularRow{block: block, values: values})
		last = max(last, block)
	}

	if len(rows) == 0 {
		return fmt.Errorf("%s holds no complete rows", s.path)
	}

	s.setColumns(header)
	s.rows = rows
	s.last = last

	return nil
}

// Save writes the whole table to disk.
func (s *TabularState) Save() error {
	start := time.Now()
	err := s.save()
	metrics.StateSaveLog(config.StateFormatTabular, time.Since(start), err)
	if err != nil {
		return err
	}

	s.gate.mark()
	s.log.Debugf("saved %d events to %s, last scanned block %d", len(s.rows), s.path, s.last)

	return nil
}

func (s *TabularState) save() error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(s.columns); err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}

	record := make([]string, len(s.columns))
	for _, row := range s.rows {
		for i, column := range s.columns {
			record[i] = row.values[column]
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to encode row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to encode table: %w", err)
	}

	if err := common.WriteFileAtomic(s.path, buf.Bytes(), 0o644); err != nil { //nolint:mnd
		return fmt.Errorf("failed to save state: %w", err)
	}

	return nil
}

// GetLastScannedBlock returns the block the next scan resumes from.
func (s *TabularState) GetLastScannedBlock() uint64 {
	return s.last
}

// DeleteData removes rows at or above sinceBlock.
func (s *TabularState) DeleteData(sinceBlock int64) {
	since := sinceBlockOf(sinceBlock)
	if since >= s.last {
		return
	}

	before := len(s.rows)
	s.rows = slices.DeleteFunc(s.rows, func(r tabularRow) bool {
		return r.block >= since
	})

	s.log.Infof("removed %d events at or above block %d", before-len(s.rows), since)
}

// StartChunk is a no-op.
func (s *TabularState) StartChunk(uint64, uint64) {}

// EndChunk records blockNumber as scanned and saves when the save interval elapsed.
func (s *TabularState) EndChunk(blockNumber uint64) error {
	s.last = blockNumber
	if !s.gate.due() {
		return nil
	}

	return s.Save()
}

// ProcessEvent appends a row for event. Arguments without a column are dropped.
func (s *TabularState) ProcessEvent(blockTime time.Time, event pkgscanstate.Event) (string, error) {
	id := pkgscanstate.EventID(event)

	values := map[string]string{
		ColumnEventName:       event.Name,
		ColumnContractAddress: event.ContractAddress.Hex(),
		ColumnBlockNumber:     strconv.FormatUint(event.BlockNumber, 10),
		ColumnTxHash:          event.TxHash.Hex(),
		ColumnLogIndex:        strconv.FormatUint(uint64(event.LogIndex), 10),
		ColumnTimestamp:       pkgscanstate.FormatTimestamp(blockTime),
	}

	matched := 0
	for name, value := range event.Args {
		if _, ok := s.argCols[name]; !ok {
			s.log.Warnf("dropping argument %q of %s event %s: no such column", name, event.Name, id)
			continue
		}
		values[name] = pkgscanstate.FormatValue(value)
		matched++
	}

	if matched == 0 {
		s.log.Errorf("%s event %s matched none of the columns %v", event.Name, id, s.columns)
	}

	s.rows = append(s.rows, tabularRow{block: event.BlockNumber, values: values})

	return id, nil
}
