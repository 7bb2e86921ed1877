package types

import (
	"context"
	"errors"
	"math/big"
	"testing"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/ComplianceScanner/internal/rpc/mocks"
	"github.com/stretchr/testify/require"
)

func TestBlockFinality(t *testing.T) {
	tests := []struct {
		name      string
		finality  BlockFinality
		wantValid bool
		wantStr   string
	}{
		{
			name:      "finalized",
			finality:  FinalityFinalized,
			wantValid: true,
			wantStr:   "finalized",
		},
		{
			name:      "safe",
			finality:  FinalitySafe,
			wantValid: true,
			wantStr:   "safe",
		},
		{
			name:      "latest",
			finality:  FinalityLatest,
			wantValid: true,
			wantStr:   "latest",
		},
		{
			name:      "invalid",
			finality:  BlockFinality("invalid"),
			wantValid: false,
			wantStr:   "invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.wantValid, tt.finality.IsValid())
			require.Equal(t, tt.wantStr, tt.finality.String())
		})
	}
}

func TestParseBlockFinality(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      BlockFinality
		wantError bool
	}{
		{
			name:      "finalized",
			input:     "finalized",
			want:      FinalityFinalized,
			wantError: false,
		},
		{
			name:      "safe",
			input:     "safe",
			want:      FinalitySafe,
			wantError: false,
		},
		{
			name:      "latest",
			input:     "latest",
			want:      FinalityLatest,
			wantError: false,
		},
		{
			name:      "invalid",
			input:     "invalid",
			want:      "",
			wantError: true,
		},
		{
			name:      "empty",
			input:     "",
			want:      "",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBlockFinality(tt.input)
			if tt.wantError {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				require.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseBlockFinality_Normalizes(t *testing.T) {
	got, err := ParseBlockFinality("  Finalized ")
	require.NoError(t, err)
	require.Equal(t, FinalityFinalized, got)
}

func TestBlockFinality_EndBlock(t *testing.T) {
	ctx := context.Background()
	header := func(n int64) *ethtypes.Header { return &ethtypes.Header{Number: big.NewInt(n)} }

	t.Run("latest subtracts lag", func(t *testing.T) {
		client := mocks.NewEthClient(t)
		client.EXPECT().GetLatestBlockHeader(ctx).Return(header(1000), nil)

		end, err := FinalityLatest.EndBlock(ctx, client, 1)
		require.NoError(t, err)
		require.Equal(t, uint64(999), end)
	})

	t.Run("latest lag larger than head", func(t *testing.T) {
		client := mocks.NewEthClient(t)
		client.EXPECT().GetLatestBlockHeader(ctx).Return(header(3), nil)

		end, err := FinalityLatest.EndBlock(ctx, client, 10)
		require.NoError(t, err)
		require.Zero(t, end)
	})

	t.Run("finalized ignores lag", func(t *testing.T) {
		client := mocks.NewEthClient(t)
		client.EXPECT().GetFinalizedBlockHeader(ctx).Return(header(900), nil)

		end, err := FinalityFinalized.EndBlock(ctx, client, 5)
		require.NoError(t, err)
		require.Equal(t, uint64(900), end)
	})

	t.Run("safe header error", func(t *testing.T) {
		client := mocks.NewEthClient(t)
		client.EXPECT().GetSafeBlockHeader(ctx).Return(nil, errors.New("connection refused"))

		_, err := FinalitySafe.EndBlock(ctx, client, 0)
		require.ErrorContains(t, err, "failed to get safe block header")
	})

	t.Run("invalid finality", func(t *testing.T) {
		_, err := BlockFinality("pending").EndBlock(ctx, mocks.NewEthClient(t), 0)
		require.Error(t, err)
	})
}
