package scanstate

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goran-ethernal/ComplianceScanner/internal/logger"
	pkgscanstate "github.com/goran-ethernal/ComplianceScanner/pkg/scanstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	return records
}

func TestTabularState_ResetColumns(t *testing.T) {
	s := NewTabularState(testOptions(t, "state.csv", newFakeClock()), logger.NewNopLogger())

	require.Equal(t,
		[]string{"event_name", "contract_address", "block_number", "txhash", "log_index", "timestamp",
			"from", "to", "value"},
		s.Columns())
	require.Equal(t, 0, s.Len())
	require.Equal(t, uint64(0), s.GetLastScannedBlock())
}

func TestTabularState_SaveRestoreRoundTrip(t *testing.T) {
	clock := newFakeClock()
	opts := testOptions(t, "state.csv", clock)

	s := NewTabularState(opts, logger.NewNopLogger())
	s.Restore()

	_, err := s.ProcessEvent(blockTS, transferEvent(10, 0, 5))
	require.NoError(t, err)
	_, err = s.ProcessEvent(blockTS, transferEvent(12, 3, 7))
	require.NoError(t, err)
	require.NoError(t, s.EndChunk(20))
	require.NoError(t, s.Save())

	records := readCSV(t, opts.Path)
	require.Len(t, records, 3)
	require.Equal(t, s.Columns(), records[0])
	assert.Equal(t, []string{
		"Transfer",
		usdt.Hex(),
		"10",
		transferEvent(10, 0, 5).TxHash.Hex(),
		"0",
		tsString,
		alice.Hex(),
		bob.Hex(),
		"5",
	}, records[1])

	restored := NewTabularState(opts, logger.NewNopLogger())
	restored.Restore()
	require.Equal(t, 2, restored.Len())
	require.Equal(t, uint64(12), restored.GetLastScannedBlock())

	// saving the restored state reproduces the file
	require.NoError(t, restored.Save())
	require.Equal(t, records, readCSV(t, opts.Path))
}

func TestTabularState_RestoreFallsBackToScratch(t *testing.T) {
	tests := []struct {
		name    string
		content *string
	}{
		{name: "missing file"},
		{name: "empty file", content: ptr("")},
		{name: "header only", content: ptr("event_name,block_number\n")},
		{name: "ragged rows", content: ptr("event_name,block_number\nTransfer,1,extra\n")},
		{name: "no block_number column", content: ptr("event_name,txhash\nTransfer,0x01\n")},
		{name: "non numeric block", content: ptr("event_name,block_number\nTransfer,abc\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t, "state.csv", newFakeClock())
			if tt.content != nil {
				require.NoError(t, os.WriteFile(opts.Path, []byte(*tt.content), 0o644))
			}

			s := NewTabularState(opts, logger.NewNopLogger())
			s.Restore()

			require.Equal(t, uint64(0), s.GetLastScannedBlock())
			require.Equal(t, 0, s.Len())
			require.Len(t, s.Columns(), len(BaseColumns)+3)
		})
	}
}

func TestTabularState_RestoreSkipsRaggedRows(t *testing.T) {
	opts := testOptions(t, "state.csv", newFakeClock())
	content := "event_name,block_number,value\n" +
		"Issue,5,100\n" +
		"Issue,9,7,extra\n" +
		"Issue,12,300\n" +
		"Issue,14\n"
	require.NoError(t, os.WriteFile(opts.Path, []byte(content), 0o644))

	s := NewTabularState(opts, logger.NewNopLogger())
	s.Restore()

	require.Equal(t, 2, s.Len())
	require.Equal(t, uint64(12), s.GetLastScannedBlock())
}

func TestTabularState_RestoreKeepsFileColumnsFirst(t *testing.T) {
	opts := testOptions(t, "state.csv", newFakeClock())
	content := "block_number,event_name,value,legacy\n7,Issue,100,x\n"
	require.NoError(t, os.WriteFile(opts.Path, []byte(content), 0o644))

	s := NewTabularState(opts, logger.NewNopLogger())
	s.Restore()

	require.Equal(t, uint64(7), s.GetLastScannedBlock())
	require.Equal(t,
		[]string{"block_number", "event_name", "value", "legacy",
			"contract_address", "txhash", "log_index", "timestamp", "from", "to"},
		s.Columns())

	// columns carried over from the file accept arguments too
	event := transferEvent(8, 0, 1)
	event.Args["legacy"] = "y"
	_, err := s.ProcessEvent(blockTS, event)
	require.NoError(t, err)
	require.NoError(t, s.Save())

	records := readCSV(t, opts.Path)
	require.Len(t, records, 3)
	require.Equal(t, []string{"7", "Issue", "100", "x", "", "", "", "", "", ""}, records[1])
	require.Equal(t, "y", records[2][3])
}

func TestTabularState_DeleteData(t *testing.T) {
	s := NewTabularState(testOptions(t, "state.csv", newFakeClock()), logger.NewNopLogger())

	for _, block := range []uint64{10, 11, 12, 13} {
		_, err := s.ProcessEvent(blockTS, transferEvent(block, 0, 1))
		require.NoError(t, err)
	}
	require.NoError(t, s.EndChunk(13))

	s.DeleteData(13)
	require.Equal(t, 4, s.Len(), "since equal to the last scanned block is a no-op")

	s.DeleteData(11)
	require.Equal(t, 1, s.Len())
	require.Equal(t, uint64(13), s.GetLastScannedBlock(), "rollback leaves the resume point alone")

	s.DeleteData(-5)
	require.Equal(t, 0, s.Len(), "negative since clamps to zero")
}

func TestTabularState_EndChunkTimeGate(t *testing.T) {
	clock := newFakeClock()
	opts := testOptions(t, "state.csv", clock)
	s := NewTabularState(opts, logger.NewNopLogger())
	s.Restore()

	_, err := s.ProcessEvent(blockTS, transferEvent(1, 0, 1))
	require.NoError(t, err)

	// first EndChunk always saves
	require.NoError(t, s.EndChunk(5))
	require.Len(t, readCSV(t, opts.Path), 2)

	_, err = s.ProcessEvent(blockTS, transferEvent(6, 0, 1))
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	require.NoError(t, s.EndChunk(10))
	require.Len(t, readCSV(t, opts.Path), 2, "save interval not yet elapsed")
	require.Equal(t, uint64(10), s.GetLastScannedBlock())

	clock.Advance(31 * time.Second)
	require.NoError(t, s.EndChunk(15))
	require.Len(t, readCSV(t, opts.Path), 3)
}

func TestTabularState_DuplicatesAreKept(t *testing.T) {
	s := NewTabularState(testOptions(t, "state.csv", newFakeClock()), logger.NewNopLogger())

	event := transferEvent(3, 1, 9)
	id1, err := s.ProcessEvent(blockTS, event)
	require.NoError(t, err)
	id2, err := s.ProcessEvent(blockTS, event)
	require.NoError(t, err)

	require.Equal(t, id1, id2)
	require.Equal(t, 2, s.Len())
}

func TestTabularState_UnmatchedArguments(t *testing.T) {
	opts := testOptions(t, "state.csv", newFakeClock())
	s := NewTabularState(opts, logger.NewNopLogger())

	event := pkgscanstate.Event{
		Name:            "AddedBlackList",
		ContractAddress: usdt,
		BlockNumber:     4,
		Args:            map[string]any{"_user": alice},
	}

	_, err := s.ProcessEvent(blockTS, event)
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())
	require.NoError(t, s.Save())

	records := readCSV(t, opts.Path)
	require.Len(t, records, 2)
	require.NotContains(t, records[0], "_user")
	require.Equal(t, "AddedBlackList", records[1][0])
	require.Equal(t, "", records[1][6])
}

func TestTabularState_SaveCreatesDirectory(t *testing.T) {
	opts := testOptions(t, "state.csv", newFakeClock())
	opts.Path = filepath.Join(filepath.Dir(opts.Path), "nested", "dir", "state.csv")

	s := NewTabularState(opts, logger.NewNopLogger())
	require.NoError(t, s.Save())
	require.FileExists(t, opts.Path)
}

func ptr[T any](v T) *T {
	return &v
}
