package scanstate

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrMissingTransferField is returned by states that only store transfer-shaped events
// when an event lacks one of the from, to or value arguments.
var ErrMissingTransferField = errors.New("event is missing a transfer field")

// ScanState defines the interface for persisting scan progress and the collected events.
// The scanner drives it chunk by chunk; the collector restores, rolls back and saves it.
// This abstraction allows for alternative storage formats.
type ScanState interface {
	// Restore loads the previous state from storage.
	// Any failure resets the state to an empty one starting at block 0.
	Restore()

	// Save overwrites storage with the full in-memory state.
	Save() error

	// GetLastScannedBlock returns the block the next scan resumes from.
	GetLastScannedBlock() uint64

	// DeleteData removes events at or above sinceBlock, which may have been reorganised.
	// It is a no-op when sinceBlock is not below the last scanned block.
	DeleteData(sinceBlock int64)

	// StartChunk is called before a block range is scanned.
	StartChunk(blockNumber, chunkSize uint64)

	// EndChunk records blockNumber as scanned and saves when the save interval elapsed.
	EndChunk(blockNumber uint64) error

	// ProcessEvent records a decoded event emitted in a block mined at blockTime.
	// It returns the event identifier.
	ProcessEvent(blockTime time.Time, event Event) (string, error)
}

// Event is a decoded contract log.
type Event struct {
	Name            string
	ContractAddress common.Address
	BlockNumber     uint64
	TxHash          common.Hash
	LogIndex        uint
	Args            map[string]any
}

// ID returns the event identifier.
func (e Event) ID() string {
	return EventID(e)
}

// EventID identifies an event by block number, transaction hash and log index.
func EventID(e Event) string {
	return fmt.Sprintf("%d-%s-%d", e.BlockNumber, e.TxHash.Hex(), e.LogIndex)
}

// FormatTimestamp renders a block time the way stored records carry it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// FormatValue renders a decoded event argument as a string.
func FormatValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case common.Address:
		return value.Hex()
	case *common.Address:
		if value == nil {
			return ""
		}
		return value.Hex()
	case common.Hash:
		return value.Hex()
	case [32]byte:
		return hexutil.Encode(value[:])
	case []byte:
		return hexutil.Encode(value)
	case *big.Int:
		if value == nil {
			return ""
		}
		return value.String()
	case fmt.Stringer:
		return value.String()
	default:
		return fmt.Sprint(value)
	}
}
