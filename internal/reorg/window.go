package reorg

import (
	"github.com/goran-ethernal/ComplianceScanner/internal/logger"
	"github.com/goran-ethernal/ComplianceScanner/pkg/scanstate"
)

// DefaultMargin is the number of already scanned blocks discarded on startup.
const DefaultMargin = 10

// SafetyWindow discards the most recently scanned blocks before a scan resumes,
// so events from blocks that were reorganised while the scanner was stopped are
// collected again from the canonical chain.
type SafetyWindow struct {
	margin uint64
	log    *logger.Logger
}

// NewSafetyWindow creates a safety window of margin blocks.
func NewSafetyWindow(margin uint64, log *logger.Logger) *SafetyWindow {
	return &SafetyWindow{margin: margin, log: log}
}

// Margin returns the window size in blocks.
func (w *SafetyWindow) Margin() uint64 {
	return w.margin
}

// RollbackFrom returns the first block whose data is discarded when resuming from lastScanned.
// The result is negative when the window reaches below genesis.
func (w *SafetyWindow) RollbackFrom(lastScanned uint64) int64 {
	return int64(lastScanned) - int64(w.margin) //nolint:gosec
}

// StartBlock returns the block the scan resumes from: the rollback point, but never
// below startBlock or genesis.
func (w *SafetyWindow) StartBlock(lastScanned, startBlock uint64) uint64 {
	from := w.RollbackFrom(lastScanned)
	if from < 0 {
		from = 0
	}

	return max(uint64(from), startBlock)
}

// Apply rolls state back by the margin and returns the scan start block.
func (w *SafetyWindow) Apply(job string, state scanstate.ScanState, startBlock uint64) uint64 {
	last := state.GetLastScannedBlock()
	from := w.RollbackFrom(last)

	state.DeleteData(from)

	if last > 0 && from < int64(last) { //nolint:gosec
		since := uint64(max(from, 0))
		RollbackLog(job, last-since, since)
		w.log.Infof("discarded data from block %d to resume safely after block %d", since, last)
	}

	return w.StartBlock(last, startBlock)
}

// ValidateRange returns an UpToDateError when start is past end.
func ValidateRange(start, end uint64) error {
	if start > end {
		return NewUpToDateError(start, end)
	}

	return nil
}
