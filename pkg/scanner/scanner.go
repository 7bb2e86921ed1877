package scanner

import (
	"context"
	"time"
)

// Progress describes the scan state after a chunk.
type Progress struct {
	// RangeStart and RangeEnd bound the whole scan.
	RangeStart uint64
	RangeEnd   uint64
	// Current is the first block of the chunk just scanned.
	Current uint64
	// BlockTime is the time of the chunk's last block, zero when unknown.
	BlockTime time.Time
	// ChunkSize is the size the chunk was scanned with.
	ChunkSize uint64
	// EventsInChunk is the number of events recorded from the chunk.
	EventsInChunk int
}

// ProgressFunc is called after every scanned chunk.
type ProgressFunc func(Progress)

// Result summarizes a finished scan.
type Result struct {
	// EventIDs identifies the recorded events in scan order.
	EventIDs []string
	// ChunksScanned is the number of eth_getLogs ranges processed.
	ChunksScanned int
	// StartBlock and EndBlock bound the blocks actually scanned.
	StartBlock uint64
	EndBlock   uint64
	Duration   time.Duration
}

// Scanner walks a block range and feeds decoded events into a scan state.
type Scanner interface {
	// GetSuggestedScanEndBlock returns the highest block considered safe to scan.
	GetSuggestedScanEndBlock(ctx context.Context) (uint64, error)

	// DeletePotentiallyForkedBlockData discards collected data at or above sinceBlock.
	DeletePotentiallyForkedBlockData(sinceBlock int64)

	// Scan collects events in [startBlock, endBlock], calling progress after each chunk.
	Scan(ctx context.Context, startBlock, endBlock uint64, progress ProgressFunc) (*Result, error)
}
