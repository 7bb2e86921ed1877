package scanstate

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/goran-ethernal/ComplianceScanner/internal/logger"
	pkgscanstate "github.com/goran-ethernal/ComplianceScanner/pkg/scanstate"
	"github.com/stretchr/testify/require"
)

func TestNestedState_SaveRestoreRoundTrip(t *testing.T) {
	opts := testOptions(t, "state.json", newFakeClock())

	s := NewNestedState(opts, logger.NewNopLogger())
	s.Restore()

	first := transferEvent(10, 0, 5)
	second := transferEvent(10, 1, 6)
	second.TxHash = first.TxHash

	_, err := s.ProcessEvent(blockTS, first)
	require.NoError(t, err)
	_, err = s.ProcessEvent(blockTS, second)
	require.NoError(t, err)
	require.NoError(t, s.EndChunk(30))

	var onDisk map[string]any
	data, err := os.ReadFile(opts.Path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &onDisk))
	require.InDelta(t, 30, onDisk["last_scanned_block"], 0)

	restored := NewNestedState(opts, logger.NewNopLogger())
	restored.Restore()
	require.Equal(t, uint64(30), restored.GetLastScannedBlock())

	transfers := restored.Transfers(10)
	require.Len(t, transfers, 1)
	require.Equal(t, map[string]Transfer{
		"0": {From: alice.Hex(), To: bob.Hex(), Value: "5", Timestamp: tsString},
		"1": {From: alice.Hex(), To: bob.Hex(), Value: "6", Timestamp: tsString},
	}, transfers[first.TxHash.Hex()])
}

func TestNestedState_RestoreFallsBackToScratch(t *testing.T) {
	for name, content := range map[string]string{
		"empty file":   "",
		"corrupt file": "{\"last_scanned_block\": 12, \"blocks\": ",
		"wrong shape":  "[1, 2, 3]",
	} {
		t.Run(name, func(t *testing.T) {
			opts := testOptions(t, "state.json", newFakeClock())
			require.NoError(t, os.WriteFile(opts.Path, []byte(content), 0o644))

			s := NewNestedState(opts, logger.NewNopLogger())
			s.Restore()
			require.Equal(t, uint64(0), s.GetLastScannedBlock())

			// a reset state accepts events
			_, err := s.ProcessEvent(blockTS, transferEvent(1, 0, 1))
			require.NoError(t, err)
		})
	}
}

func TestNestedState_RestoreWithoutBlocks(t *testing.T) {
	opts := testOptions(t, "state.json", newFakeClock())
	require.NoError(t, os.WriteFile(opts.Path, []byte(`{"last_scanned_block": 77}`), 0o644))

	s := NewNestedState(opts, logger.NewNopLogger())
	s.Restore()
	require.Equal(t, uint64(77), s.GetLastScannedBlock())

	_, err := s.ProcessEvent(blockTS, transferEvent(78, 0, 1))
	require.NoError(t, err)
	require.Len(t, s.Transfers(78), 1)
}

func TestNestedState_MissingTransferField(t *testing.T) {
	s := NewNestedState(testOptions(t, "state.json", newFakeClock()), logger.NewNopLogger())

	event := transferEvent(5, 0, 1)
	delete(event.Args, "value")

	_, err := s.ProcessEvent(blockTS, event)
	require.ErrorIs(t, err, pkgscanstate.ErrMissingTransferField)
	require.ErrorContains(t, err, `"value"`)
	require.Nil(t, s.Transfers(5))
}

func TestNestedState_DeleteData(t *testing.T) {
	s := NewNestedState(testOptions(t, "state.json", newFakeClock()), logger.NewNopLogger())

	for _, block := range []uint64{10, 11, 12} {
		_, err := s.ProcessEvent(blockTS, transferEvent(block, 0, 1))
		require.NoError(t, err)
	}
	require.NoError(t, s.EndChunk(12))

	s.DeleteData(12)
	require.NotNil(t, s.Transfers(12), "since equal to the last scanned block is a no-op")

	s.DeleteData(11)
	require.NotNil(t, s.Transfers(10))
	require.Nil(t, s.Transfers(11))
	require.Nil(t, s.Transfers(12))
	require.Equal(t, uint64(12), s.GetLastScannedBlock())
}

func TestNestedState_EndChunkTimeGate(t *testing.T) {
	clock := newFakeClock()
	opts := testOptions(t, "state.json", clock)
	s := NewNestedState(opts, logger.NewNopLogger())
	s.Restore()

	require.NoError(t, s.EndChunk(5))
	require.FileExists(t, opts.Path)
	require.NoError(t, os.Remove(opts.Path))

	clock.Advance(10 * time.Second)
	require.NoError(t, s.EndChunk(6))
	require.NoFileExists(t, opts.Path)

	clock.Advance(time.Minute)
	require.NoError(t, s.EndChunk(7))
	require.FileExists(t, opts.Path)
}

func TestNestedState_DuplicateOverwritesSameSlot(t *testing.T) {
	s := NewNestedState(testOptions(t, "state.json", newFakeClock()), logger.NewNopLogger())

	event := transferEvent(3, 1, 9)
	_, err := s.ProcessEvent(blockTS, event)
	require.NoError(t, err)
	event.Args["value"] = 10
	_, err = s.ProcessEvent(blockTS, event)
	require.NoError(t, err)

	require.Equal(t, "10", s.Transfers(3)[event.TxHash.Hex()]["1"].Value)
}
