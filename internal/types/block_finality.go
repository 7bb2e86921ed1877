package types

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/ComplianceScanner/internal/common"
	pkgrpc "github.com/goran-ethernal/ComplianceScanner/pkg/rpc"
)

// BlockFinality represents the finality mode used to choose the last block of a scan.
type BlockFinality string

const (
	// FinalityFinalized uses the finalized block tag (highest level of finality)
	FinalityFinalized BlockFinality = "finalized"

	// FinalitySafe uses the safe block tag (medium level of finality)
	FinalitySafe BlockFinality = "safe"

	// FinalityLatest uses the latest block minus a confirmation lag
	FinalityLatest BlockFinality = "latest"
)

// String returns the string representation of BlockFinality.
func (f BlockFinality) String() string {
	return string(f)
}

// IsValid checks if the BlockFinality value is valid.
func (f BlockFinality) IsValid() bool {
	switch f {
	case FinalityFinalized, FinalitySafe, FinalityLatest:
		return true
	default:
		return false
	}
}

// ParseBlockFinality parses a string into a BlockFinality type.
func ParseBlockFinality(s string) (BlockFinality, error) {
	f := BlockFinality(common.ToLowerWithTrim(s))
	if !f.IsValid() {
		return "", fmt.Errorf("invalid block finality: %s (must be one of: finalized, safe, latest)", s)
	}
	return f, nil
}

// EndBlock returns the highest block that may be scanned under this finality mode.
// For FinalityLatest the head is reduced by lag, never below zero.
func (f BlockFinality) EndBlock(ctx context.Context, client pkgrpc.EthClient, lag uint64) (uint64, error) {
	var (
		header *types.Header
		err    error
	)

	switch f {
	case FinalityFinalized:
		header, err = client.GetFinalizedBlockHeader(ctx)
	case FinalitySafe:
		header, err = client.GetSafeBlockHeader(ctx)
	case FinalityLatest:
		header, err = client.GetLatestBlockHeader(ctx)
	default:
		return 0, fmt.Errorf("invalid block finality: %s", f)
	}

	if err != nil {
		return 0, fmt.Errorf("failed to get %s block header: %w", f, err)
	}
	if header == nil || header.Number == nil {
		return 0, fmt.Errorf("node returned no %s block header", f)
	}

	end := header.Number.Uint64()
	if f == FinalityLatest {
		if end < lag {
			return 0, nil
		}
		end -= lag
	}

	return end, nil
}
