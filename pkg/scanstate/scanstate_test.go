package scanstate

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestEventID(t *testing.T) {
	e := Event{
		Name:        "Transfer",
		BlockNumber: 4634748,
		TxHash:      common.HexToHash("0x01"),
		LogIndex:    7,
	}

	expected := "4634748-0x0000000000000000000000000000000000000000000000000000000000000001-7"
	require.Equal(t, expected, EventID(e))
	require.Equal(t, expected, e.ID())
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2017, 11, 28, 15, 4, 5, 0, time.FixedZone("CET", 3600))
	require.Equal(t, "2017-11-28T14:04:05Z", FormatTimestamp(ts))
}

func TestFormatValue(t *testing.T) {
	addr := common.HexToAddress("0xdac17f958d2ee523a2206206994597c13d831ec7")
	var nilInt *big.Int

	tests := []struct {
		name     string
		value    any
		expected string
	}{
		{name: "nil", value: nil, expected: ""},
		{name: "string", value: "usdt", expected: "usdt"},
		{name: "address is checksummed", value: addr, expected: "0xdAC17F958D2ee523a2206206994597C13D831ec7"},
		{name: "address pointer", value: &addr, expected: "0xdAC17F958D2ee523a2206206994597C13D831ec7"},
		{name: "big int", value: big.NewInt(1_000_000), expected: "1000000"},
		{name: "nil big int", value: nilInt, expected: ""},
		{name: "bytes", value: []byte{0xde, 0xad}, expected: "0xdead"},
		{name: "bytes32", value: [32]byte{1}, expected: "0x0100000000000000000000000000000000000000000000000000000000000000"},
		{name: "bool", value: true, expected: "true"},
		{name: "uint8", value: uint8(6), expected: "6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, FormatValue(tt.value))
		})
	}
}
