package scanner

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/ComplianceScanner/internal/common"
	"github.com/goran-ethernal/ComplianceScanner/internal/logger"
	"github.com/goran-ethernal/ComplianceScanner/internal/metrics"
	"github.com/goran-ethernal/ComplianceScanner/internal/rpc"
	itypes "github.com/goran-ethernal/ComplianceScanner/internal/types"
	"github.com/goran-ethernal/ComplianceScanner/pkg/config"
	pkgrpc "github.com/goran-ethernal/ComplianceScanner/pkg/rpc"
	pkgscanner "github.com/goran-ethernal/ComplianceScanner/pkg/scanner"
	"github.com/goran-ethernal/ComplianceScanner/pkg/scanstate"
)

// Compile-time check to ensure Scanner implements pkgscanner.Scanner interface.
var _ pkgscanner.Scanner = (*Scanner)(nil)

// Config contains configuration for the Scanner.
type Config struct {
	// Job labels logs and metrics
	Job string

	// Address is the contract whose logs are scanned
	Address ethcommon.Address

	// Finality specifies how the scan end block is chosen
	Finality itypes.BlockFinality

	// ConfirmationLag is blocks behind head to stop at (only for "latest" mode)
	ConfirmationLag uint64

	// MinChunkSize, StartChunkSize and MaxChunkSize bound the adaptive chunk size
	MinChunkSize   uint64
	StartChunkSize uint64
	MaxChunkSize   uint64

	// ChunkSizeIncrease multiplies the chunk size after a chunk without events
	ChunkSizeIncrease float64

	// MaxRetries is the number of eth_getLogs attempts per chunk
	MaxRetries int

	// RetryDelay is the pause between eth_getLogs attempts
	RetryDelay time.Duration
}

// NewConfig builds a scanner configuration for one job.
func NewConfig(job string, address ethcommon.Address, cfg config.ScannerConfig) (Config, error) {
	cfg.ApplyDefaults()

	finality, err := itypes.ParseBlockFinality(cfg.Finality)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Job:               job,
		Address:           address,
		Finality:          finality,
		ConfirmationLag:   cfg.ConfirmationLag,
		MinChunkSize:      cfg.MinChunkSize,
		StartChunkSize:    cfg.StartChunkSize,
		MaxChunkSize:      cfg.MaxChunkSize,
		ChunkSizeIncrease: cfg.ChunkSizeIncrease,
		MaxRetries:        cfg.MaxRetries,
		RetryDelay:        cfg.RetryDelay.Duration,
	}, nil
}

// Scanner retrieves the logs of one contract chunk by chunk, decodes them and
// records them in a scan state. Chunks grow while no events are found and shrink
// back as soon as events show up.
type Scanner struct {
	cfg     Config
	rpc     pkgrpc.EthClient
	state   scanstate.ScanState
	decoder *Decoder
	log     *logger.Logger
}

// NewScanner creates a new Scanner instance.
func NewScanner(
	cfg Config,
	rpcClient pkgrpc.EthClient,
	state scanstate.ScanState,
	decoder *Decoder,
	log *logger.Logger,
) *Scanner {
	if cfg.MinChunkSize == 0 {
		cfg.MinChunkSize = 1
	}
	if cfg.MaxChunkSize < cfg.MinChunkSize {
		cfg.MaxChunkSize = cfg.MinChunkSize
	}
	cfg.StartChunkSize = clamp(cfg.StartChunkSize, cfg.MinChunkSize, cfg.MaxChunkSize)
	if cfg.ChunkSizeIncrease < 1 {
		cfg.ChunkSizeIncrease = 1
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}

	return &Scanner{
		cfg:     cfg,
		rpc:     rpcClient,
		state:   state,
		decoder: decoder,
		log:     log.WithComponent(common.ComponentScanner),
	}
}

// GetSuggestedScanEndBlock returns the last block to scan under the configured finality mode.
func (s *Scanner) GetSuggestedScanEndBlock(ctx context.Context) (uint64, error) {
	return s.cfg.Finality.EndBlock(ctx, s.rpc, s.cfg.ConfirmationLag)
}

// DeletePotentiallyForkedBlockData discards collected data at or above sinceBlock.
func (s *Scanner) DeletePotentiallyForkedBlockData(sinceBlock int64) {
	s.state.DeleteData(sinceBlock)
}

// Scan collects events in [startBlock, endBlock]. On error the result covers the
// chunks completed so far; those are already reported to the scan state.
func (s *Scanner) Scan(
	ctx context.Context, startBlock, endBlock uint64, progress pkgscanner.ProgressFunc,
) (*pkgscanner.Result, error) {
	started := time.Now()
	result := &pkgscanner.Result{StartBlock: startBlock, EndBlock: startBlock}
	if startBlock > endBlock {
		return result, nil
	}

	s.log.Infof("scanning %s from block %d to %d", s.cfg.Address.Hex(), startBlock, endBlock)

	current := startBlock
	chunkSize := s.cfg.StartChunkSize

	for current <= endBlock {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(started)
			return result, err
		}

		s.state.StartChunk(current, chunkSize)
		chunkStart := time.Now()

		estimatedEnd := min(current+chunkSize, endBlock)
		chunkEnd, logs, err := s.fetchLogs(ctx, current, estimatedEnd)
		if err != nil {
			result.Duration = time.Since(started)
			return result, err
		}

		ids, blockTime, err := s.processLogs(ctx, logs, chunkEnd, progress != nil)
		if err != nil {
			result.Duration = time.Since(started)
			return result, err
		}
		result.EventIDs = append(result.EventIDs, ids...)

		if progress != nil {
			progress(pkgscanner.Progress{
				RangeStart:    startBlock,
				RangeEnd:      endBlock,
				Current:       current,
				BlockTime:     blockTime,
				ChunkSize:     chunkSize,
				EventsInChunk: len(ids),
			})
		}

		metrics.ChunkScannedInc(s.cfg.Job, chunkEnd-current+1, time.Since(chunkStart))
		metrics.ChunkSizeSet(s.cfg.Job, chunkSize)

		chunkSize = s.nextChunkSize(chunkSize, len(ids))
		result.ChunksScanned++
		result.EndBlock = chunkEnd

		if err := s.state.EndChunk(chunkEnd); err != nil {
			result.Duration = time.Since(started)
			return result, fmt.Errorf("failed to end chunk at block %d: %w", chunkEnd, err)
		}
		metrics.LastScannedBlockSet(s.cfg.Job, chunkEnd)

		current = chunkEnd + 1
	}

	result.Duration = time.Since(started)
	s.log.Infof("scanned %d events in %d chunks from block %d to %d in %s",
		len(result.EventIDs), result.ChunksScanned, startBlock, result.EndBlock, result.Duration)

	return result, nil
}

// fetchLogs queries logs of [fromBlock, toBlock]. A failed attempt is repeated over
// half the range, or over the range the node suggests. It returns the last block
// the logs actually cover.
func (s *Scanner) fetchLogs(ctx context.Context, fromBlock, toBlock uint64) (uint64, []types.Log, error) {
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		logs, err := s.rpc.GetLogs(ctx, s.query(fromBlock, toBlock))
		if err == nil {
			return toBlock, logs, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		if attempt == s.cfg.MaxRetries {
			break
		}

		narrowed := fromBlock + (toBlock-fromBlock)/2 //nolint:mnd
		if suggestedFrom, suggestedTo, ok := rpc.SuggestedBlockRange(err); ok &&
			suggestedFrom == fromBlock && suggestedTo < toBlock {
			narrowed = suggestedTo
		}

		if rpc.IsRangeLimitError(err) {
			s.log.Warnf("eth_getLogs %d-%d exceeds node limits, retrying with %d-%d: %v",
				fromBlock, toBlock, fromBlock, narrowed, err)
		} else {
			s.log.Warnf("eth_getLogs %d-%d failed (attempt %d/%d), retrying with %d-%d in %s: %v",
				fromBlock, toBlock, attempt, s.cfg.MaxRetries, fromBlock, narrowed, s.cfg.RetryDelay, err)
		}
		metrics.GetLogsRetryInc(s.cfg.Job)

		toBlock = narrowed
		if err := sleep(ctx, s.cfg.RetryDelay); err != nil {
			return 0, nil, err
		}
	}

	metrics.ErrorsInc(common.ComponentScanner, "error")
	return 0, nil, fmt.Errorf("eth_getLogs from block %d failed after %d attempts: %w",
		fromBlock, s.cfg.MaxRetries, lastErr)
}

func (s *Scanner) query(fromBlock, toBlock uint64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []ethcommon.Address{s.cfg.Address},
		Topics:    [][]ethcommon.Hash{s.decoder.Topics()},
	}
}

// processLogs records the decoded logs in the scan state and returns their IDs
// together with the time of chunkEnd when wantEndTime is set.
func (s *Scanner) processLogs(
	ctx context.Context, logs []types.Log, chunkEnd uint64, wantEndTime bool,
) ([]string, time.Time, error) {
	live := make([]types.Log, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		live = append(live, l)
	}

	timestamps, err := s.blockTimes(ctx, live)
	if err != nil {
		return nil, time.Time{}, err
	}

	ids := make([]string, 0, len(live))
	for _, l := range live {
		event, err := s.decoder.Decode(l)
		if err != nil {
			s.log.Warnf("skipping log %d of tx %s: %v", l.Index, l.TxHash.Hex(), err)
			continue
		}

		id, err := s.state.ProcessEvent(timestamps[l.BlockNumber], event)
		if err != nil {
			metrics.ErrorsInc(common.ComponentScanState, "warning")
			s.log.Errorf("failed to record %s event %s: %v", event.Name, event.ID(), err)
			continue
		}

		metrics.EventCollectedInc(s.cfg.Job, event.Name)
		ids = append(ids, id)
	}

	if !wantEndTime {
		return ids, time.Time{}, nil
	}

	if t, ok := timestamps[chunkEnd]; ok {
		return ids, t, nil
	}

	header, err := s.rpc.GetBlockHeader(ctx, chunkEnd)
	if err != nil || header == nil {
		s.log.Debugf("no block time available for block %d: %v", chunkEnd, err)
		return ids, time.Time{}, nil
	}

	return ids, blockTime(header), nil
}

// blockTimes looks up the time of every block holding one of logs, once per block.
func (s *Scanner) blockTimes(ctx context.Context, logs []types.Log) (map[uint64]time.Time, error) {
	blocks := make([]uint64, 0, len(logs))
	for _, l := range logs {
		if !slices.Contains(blocks, l.BlockNumber) {
			blocks = append(blocks, l.BlockNumber)
		}
	}

	timestamps := make(map[uint64]time.Time, len(blocks))
	if len(blocks) == 0 {
		return timestamps, nil
	}

	headers, err := s.rpc.BatchGetBlockHeaders(ctx, blocks)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block headers: %w", err)
	}

	for _, header := range headers {
		if header == nil || header.Number == nil {
			continue
		}
		timestamps[header.Number.Uint64()] = blockTime(header)
	}

	for _, block := range blocks {
		if _, ok := timestamps[block]; !ok {
			return nil, fmt.Errorf("no header returned for block %d", block)
		}
	}

	return timestamps, nil
}

// nextChunkSize resets to the minimum after a chunk with events and grows otherwise.
func (s *Scanner) nextChunkSize(current uint64, events int) uint64 {
	if events > 0 {
		return s.cfg.MinChunkSize
	}

	return clamp(uint64(float64(current)*s.cfg.ChunkSizeIncrease), s.cfg.MinChunkSize, s.cfg.MaxChunkSize)
}

func clamp(v, lo, hi uint64) uint64 {
	return max(lo, min(v, hi))
}

func blockTime(header *types.Header) time.Time {
	return time.Unix(int64(header.Time), 0).UTC() //nolint:gosec
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
