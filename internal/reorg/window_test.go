package reorg

import (
	"errors"
	"testing"
	"time"

	"github.com/goran-ethernal/ComplianceScanner/internal/logger"
	"github.com/goran-ethernal/ComplianceScanner/pkg/scanstate"
	"github.com/stretchr/testify/require"
)

// recordingState is a ScanState that records rollbacks.
type recordingState struct {
	last    uint64
	deletes []int64
}

func (s *recordingState) Restore() {}
func (s *recordingState) Save() error { return nil }
func (s *recordingState) GetLastScannedBlock() uint64 { return s.last }
func (s *recordingState) DeleteData(since int64) { s.deletes = append(s.deletes, since) }
func (s *recordingState) StartChunk(uint64, uint64) {}
func (s *recordingState) EndChunk(block uint64) error { s.last = block; return nil }
func (s *recordingState) ProcessEvent(time.Time, scanstate.Event) (string, error) { return "", nil }

func TestSafetyWindow_RollbackFrom(t *testing.T) {
	w := NewSafetyWindow(DefaultMargin, logger.NewNopLogger())

	require.Equal(t, int64(90), w.RollbackFrom(100))
	require.Equal(t, int64(0), w.RollbackFrom(10))
	require.Equal(t, int64(-7), w.RollbackFrom(3))
}

func TestSafetyWindow_StartBlock(t *testing.T) {
	tests := []struct {
		name        string
		margin      uint64
		lastScanned uint64
		startBlock  uint64
		expected    uint64
	}{
		{name: "fresh state starts at the configured block", margin: 10, lastScanned: 0, startBlock: 4634748, expected: 4634748},
		{name: "resume inside the window", margin: 10, lastScanned: 4700000, startBlock: 4634748, expected: 4699990},
		{name: "window reaching below start block", margin: 10, lastScanned: 4634750, startBlock: 4634748, expected: 4634748},
		{name: "window reaching below genesis", margin: 10, lastScanned: 4, startBlock: 0, expected: 0},
		{name: "zero margin resumes at last scanned block", margin: 0, lastScanned: 500, startBlock: 1, expected: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewSafetyWindow(tt.margin, logger.NewNopLogger())
			require.Equal(t, tt.expected, w.StartBlock(tt.lastScanned, tt.startBlock))
		})
	}
}

func TestSafetyWindow_Apply(t *testing.T) {
	w := NewSafetyWindow(DefaultMargin, logger.NewNopLogger())

	state := &recordingState{last: 1000}
	start := w.Apply("usdt", state, 500)

	require.Equal(t, uint64(990), start)
	require.Equal(t, []int64{990}, state.deletes)
	require.Equal(t, uint64(1000), state.GetLastScannedBlock())
}

func TestSafetyWindow_ApplyFreshState(t *testing.T) {
	w := NewSafetyWindow(DefaultMargin, logger.NewNopLogger())

	state := &recordingState{}
	start := w.Apply("usdt", state, 500)

	require.Equal(t, uint64(500), start)
	require.Equal(t, []int64{-10}, state.deletes)
}

func TestValidateRange(t *testing.T) {
	require.NoError(t, ValidateRange(10, 20))
	require.NoError(t, ValidateRange(20, 20))

	err := ValidateRange(21, 20)
	require.Error(t, err)

	var upToDate *UpToDateError
	require.True(t, errors.As(err, &upToDate))
	require.Equal(t, uint64(21), upToDate.StartBlock)
	require.Equal(t, uint64(20), upToDate.EndBlock)
	require.Contains(t, err.Error(), "start block 21 is past end block 20")
}
