package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ComplianceScanner/internal/abicache"
	"github.com/goran-ethernal/ComplianceScanner/internal/common"
	"github.com/goran-ethernal/ComplianceScanner/internal/logger"
	"github.com/goran-ethernal/ComplianceScanner/internal/metrics"
	"github.com/goran-ethernal/ComplianceScanner/internal/proxy"
	"github.com/goran-ethernal/ComplianceScanner/internal/reorg"
	"github.com/goran-ethernal/ComplianceScanner/internal/scanner"
	"github.com/goran-ethernal/ComplianceScanner/internal/scanstate"
	pkgabicache "github.com/goran-ethernal/ComplianceScanner/pkg/abicache"
	"github.com/goran-ethernal/ComplianceScanner/pkg/config"
	pkgrpc "github.com/goran-ethernal/ComplianceScanner/pkg/rpc"
	pkgscanner "github.com/goran-ethernal/ComplianceScanner/pkg/scanner"
)

// ErrABIUnavailable is returned when a job's contract ABI cannot be obtained.
var ErrABIUnavailable = errors.New("abi unavailable")

// JobResult summarizes one job run.
type JobResult struct {
	Job        string
	Address    ethcommon.Address
	ABIAddress ethcommon.Address
	Events     []string
	Columns    []string
	StartBlock uint64
	EndBlock   uint64
	// UpToDate is set when the resume point was already past the end block.
	UpToDate bool
	Scan     *pkgscanner.Result
}

// Collector runs the configured collection jobs one after another.
type Collector struct {
	cfg      *config.Config
	rpc      pkgrpc.EthClient
	cache    pkgabicache.Cache
	resolver *proxy.Resolver
	log      *logger.Logger
}

// New creates a new Collector.
func New(cfg *config.Config, rpcClient pkgrpc.EthClient, cache pkgabicache.Cache, log *logger.Logger) *Collector {
	return &Collector{
		cfg:      cfg,
		rpc:      rpcClient,
		cache:    cache,
		resolver: proxy.NewResolver(rpcClient, cache, log),
		log:      log.WithComponent(common.ComponentCollector),
	}
}

// Run executes every job. A failing job does not stop the others; all failures are returned joined.
func (c *Collector) Run(ctx context.Context) ([]*JobResult, error) {
	metrics.ComponentHealthSet(common.ComponentCollector, true)

	results := make([]*JobResult, 0, len(c.cfg.Jobs))
	var errs []error

	for _, job := range c.cfg.Jobs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		res, err := c.RunJob(ctx, job)
		if err != nil {
			metrics.ErrorsInc(common.ComponentCollector, "error")
			c.log.Errorf("job %s failed: %v", job.Name, err)
			errs = append(errs, fmt.Errorf("job %s: %w", job.Name, err))
			continue
		}
		results = append(results, res)
	}

	if len(errs) > 0 {
		metrics.ComponentHealthSet(common.ComponentCollector, false)
	}

	return results, errors.Join(errs...)
}

// RunJob collects the events of one contract: it resolves the ABI, negotiates the
// record columns, restores the state, rolls back the reorg safety window, scans up
// to the suggested end block and saves.
func (c *Collector) RunJob(ctx context.Context, job config.JobConfig) (*JobResult, error) {
	if !ethcommon.IsHexAddress(job.Address) {
		return nil, fmt.Errorf("invalid contract address %q", job.Address)
	}

	address := ethcommon.HexToAddress(job.Address)
	res := &JobResult{Job: job.Name, Address: address, ABIAddress: address}

	if job.ShouldFollowProxy() {
		res.ABIAddress = c.resolver.Resolve(ctx, address)
	}

	contractABI, err := c.cache.GetABI(ctx, res.ABIAddress.Hex(), job.ABIKeyword)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrABIUnavailable, res.ABIAddress.Hex(), err)
	}

	// Column negotiation reads the ABI under the contract's own key, which holds the
	// implementation ABI once a proxy was resolved.
	columnsABI, err := c.cache.GetABI(ctx, address.Hex(), job.ABIKeyword)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrABIUnavailable, address.Hex(), err)
	}

	res.Events, res.Columns, err = abicache.EventColumns(columnsABI, job.Events)
	if err != nil {
		return nil, fmt.Errorf("invalid events for %s: %w", address.Hex(), err)
	}

	decoder, err := scanner.NewDecoder(contractABI, res.Events)
	if err != nil {
		return nil, fmt.Errorf("failed to build decoder for %s: %w", res.ABIAddress.Hex(), err)
	}

	state, err := scanstate.New(job.Format, scanstate.Options{
		Path:         job.Output,
		Columns:      res.Columns,
		SaveInterval: c.cfg.State.SaveInterval.Duration,
		DB:           c.cfg.State.DB,
	}, c.log)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan state: %w", err)
	}
	if closer, ok := state.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				c.log.Errorf("failed to close scan state %s: %v", job.Output, err)
			}
		}()
	}

	state.Restore()

	scanCfg, err := scanner.NewConfig(job.Name, address, c.cfg.Scanner)
	if err != nil {
		return nil, err
	}
	sc := scanner.NewScanner(scanCfg, c.rpc, state, decoder, c.log)

	window := reorg.NewSafetyWindow(c.cfg.Scanner.GetReorgMargin(), c.log)
	res.StartBlock = window.Apply(job.Name, state, job.StartBlock)

	res.EndBlock, err = sc.GetSuggestedScanEndBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan end block: %w", err)
	}

	if err := reorg.ValidateRange(res.StartBlock, res.EndBlock); err != nil {
		var upToDate *reorg.UpToDateError
		if !errors.As(err, &upToDate) {
			return nil, err
		}
		c.log.Infof("job %s is up to date: %v", job.Name, err)
		res.UpToDate = true
		if err := state.Save(); err != nil {
			return nil, fmt.Errorf("failed to save scan state: %w", err)
		}
		return res, nil
	}

	c.log.Infof("job %s: scanning %v on %s from block %d to %d",
		job.Name, res.Events, address.Hex(), res.StartBlock, res.EndBlock)

	scanResult, scanErr := sc.Scan(ctx, res.StartBlock, res.EndBlock, c.progressLogger(job.Name))
	res.Scan = scanResult

	// completed chunks are kept even when the scan stopped early
	if err := state.Save(); err != nil {
		return nil, errors.Join(scanErr, fmt.Errorf("failed to save scan state: %w", err))
	}
	if scanErr != nil {
		return res, fmt.Errorf("scan failed: %w", scanErr)
	}

	c.log.Infof("job %s: collected %d events in %d chunks, %s",
		job.Name, len(scanResult.EventIDs), scanResult.ChunksScanned, scanResult.Duration.Round(time.Millisecond))

	return res, nil
}

func (c *Collector) progressLogger(job string) pkgscanner.ProgressFunc {
	return func(p pkgscanner.Progress) {
		when := "no block time available"
		if !p.BlockTime.IsZero() {
			when = p.BlockTime.Format("02-01-2006")
		}

		done := float64(0)
		if total := p.RangeEnd - p.RangeStart + 1; total > 0 {
			done = float64(p.Current-p.RangeStart) / float64(total) * 100 //nolint:mnd
		}

		c.log.Debugf("job %s: block %d (%s) %.1f%%, chunk size %d, %d events in chunk",
			job, p.Current, when, done, p.ChunkSize, p.EventsInChunk)
	}
}
