package scanstate

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goran-ethernal/ComplianceScanner/internal/common"
	"github.com/goran-ethernal/ComplianceScanner/internal/logger"
	"github.com/goran-ethernal/ComplianceScanner/internal/metrics"
	"github.com/goran-ethernal/ComplianceScanner/pkg/config"
	pkgscanstate "github.com/goran-ethernal/ComplianceScanner/pkg/scanstate"
)

// Compile-time check to ensure NestedState implements pkgscanstate.ScanState interface.
var _ pkgscanstate.ScanState = (*NestedState)(nil)

// Transfer is the record a nested state keeps per event.
type Transfer struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Value     string `json:"value"`
	Timestamp string `json:"timestamp"`
}

// nestedDocument is the on-disk layout: block -> txhash -> log index -> transfer.
type nestedDocument struct {
	LastScannedBlock uint64                                    `json:"last_scanned_block"`
	Blocks           map[string]map[string]map[string]Transfer `json:"blocks"`
}

// NestedState keeps transfer-shaped events grouped by block and transaction
// and persists them as a single JSON document.
type NestedState struct {
	path string
	doc  nestedDocument
	gate saveGate
	log  *logger.Logger
}

// NewNestedState creates an empty nested state backed by opts.Path.
func NewNestedState(opts Options, log *logger.Logger) *NestedState {
	opts.applyDefaults()

	s := &NestedState{
		path: opts.Path,
		gate: newSaveGate(opts),
		log:  log.WithComponent(common.ComponentScanState),
	}
	s.Reset()

	return s
}

// Reset drops all blocks and restarts from block 0.
func (s *NestedState) Reset() {
	s.doc = nestedDocument{Blocks: make(map[string]map[string]map[string]Transfer)}
}

// Restore loads the document from disk. Missing or malformed files reset the state.
func (s *NestedState) Restore() {
	data, err := os.ReadFile(s.path)
	if err == nil {
		var doc nestedDocument
		if err = json.Unmarshal(data, &doc); err == nil {
			if doc.Blocks == nil {
				doc.Blocks = make(map[string]map[string]map[string]Transfer)
			}
			s.doc = doc
			metrics.StateRestoreInc(config.StateFormatNested, "restored")
			s.log.Infof("restored state from %s: %d blocks, last scanned block %d",
				s.path, len(s.doc.Blocks), s.doc.LastScannedBlock)
			return
		}
	}

	s.log.Warnf("state starting from scratch: %v", err)
	metrics.StateRestoreInc(config.StateFormatNested, "reset")
	s.Reset()
}

// Save writes the whole document to disk.
func (s *NestedState) Save() error {
	start := time.Now()
	err := s.save()
	metrics.StateSaveLog(config.StateFormatNested, time.Since(start), err)
	if err != nil {
		return err
	}

	s.gate.mark()
	s.log.Debugf("saved %d blocks to %s, last scanned block %d", len(s.doc.Blocks), s.path, s.doc.LastScannedBlock)

	return nil
}

func (s *NestedState) save() error {
	data, err := json.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if err := common.WriteFileAtomic(s.path, data, 0o644); err != nil { //nolint:mnd
		return fmt.Errorf("failed to save state: %w", err)
	}

	return nil
}

// GetLastScannedBlock returns the block the next scan resumes from.
func (s *NestedState) GetLastScannedBlock() uint64 {
	return s.doc.LastScannedBlock
}

// DeleteData removes whole block entries at or above sinceBlock.
func (s *NestedState) DeleteData(sinceBlock int64) {
	since := sinceBlockOf(sinceBlock)
	if since >= s.doc.LastScannedBlock {
		return
	}

	removed := 0
	for key := range s.doc.Blocks {
		block, err := common.ParseBlockNumber(key)
		if err != nil {
			s.log.Warnf("ignoring malformed block key %q", key)
			continue
		}
		if block >= since {
			delete(s.doc.Blocks, key)
			removed++
		}
	}

	s.log.Infof("removed %d blocks at or above block %d", removed, since)
}

// Transfers returns the transfers recorded in block, keyed by txhash then log index.
func (s *NestedState) Transfers(block uint64) map[string]map[string]Transfer {
	return s.doc.Blocks[strconv.FormatUint(block, 10)]
}

// StartChunk is a no-op.
func (s *NestedState) StartChunk(uint64, uint64) {}

// EndChunk records blockNumber as scanned and saves when the save interval elapsed.
func (s *NestedState) EndChunk(blockNumber uint64) error {
	s.doc.LastScannedBlock = blockNumber
	if !s.gate.due() {
		return nil
	}

	return s.Save()
}

// ProcessEvent records event as a transfer. Events without from, to and value are rejected.
func (s *NestedState) ProcessEvent(blockTime time.Time, event pkgscanstate.Event) (string, error) {
	fields := make(map[string]string, 3) //nolint:mnd
	for _, name := range []string{"from", "to", "value"} {
		value, ok := event.Args[name]
		if !ok {
			return "", fmt.Errorf("%w: %s event %s has no %q argument",
				pkgscanstate.ErrMissingTransferField, event.Name, pkgscanstate.EventID(event), name)
		}
		fields[name] = pkgscanstate.FormatValue(value)
	}

	blockKey := strconv.FormatUint(event.BlockNumber, 10)
	txKey := event.TxHash.Hex()

	block, ok := s.doc.Blocks[blockKey]
	if !ok {
		block = make(map[string]map[string]Transfer)
		s.doc.Blocks[blockKey] = block
	}
	tx, ok := block[txKey]
	if !ok {
		tx = make(map[string]Transfer)
		block[txKey] = tx
	}

	tx[strconv.FormatUint(uint64(event.LogIndex), 10)] = Transfer{
		From:      fields["from"],
		To:        fields["to"],
		Value:     fields["value"],
		Timestamp: pkgscanstate.FormatTimestamp(blockTime),
	}

	return pkgscanstate.EventID(event), nil
}
