package scanner

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/ComplianceScanner/pkg/abicache"
	"github.com/goran-ethernal/ComplianceScanner/pkg/scanstate"
)

var (
	// ErrUnknownEvent is returned for logs whose signature is not among the decoded events.
	ErrUnknownEvent = errors.New("unknown event signature")
	// ErrAnonymousLog is returned for logs without topics.
	ErrAnonymousLog = errors.New("log has no topics")
)

// Decoder turns raw logs of selected ABI events into scan state events.
type Decoder struct {
	events map[ethcommon.Hash]abi.Event
	topics []ethcommon.Hash
}

// NewDecoder selects the events of doc named in eventNames, or every non-anonymous
// event when eventNames is empty. Overloaded events are all selected by their name.
func NewDecoder(doc abicache.ABI, eventNames []string) (*Decoder, error) {
	parsed, err := doc.Parse()
	if err != nil {
		return nil, err
	}

	d := &Decoder{events: make(map[ethcommon.Hash]abi.Event)}
	found := make(map[string]struct{})

	for _, ev := range parsed.Events {
		if ev.Anonymous {
			continue
		}
		if len(eventNames) > 0 && !slices.Contains(eventNames, ev.RawName) {
			continue
		}

		d.events[ev.ID] = ev
		d.topics = append(d.topics, ev.ID)
		found[ev.RawName] = struct{}{}
	}

	for _, name := range eventNames {
		if _, ok := found[name]; !ok {
			return nil, fmt.Errorf("event %q is not declared in the ABI", name)
		}
	}

	slices.SortFunc(d.topics, func(a, b ethcommon.Hash) int {
		return a.Cmp(b)
	})

	return d, nil
}

// Topics returns the signatures of the selected events, used as the topic0 filter.
func (d *Decoder) Topics() []ethcommon.Hash {
	return slices.Clone(d.topics)
}

// Decode unpacks both indexed and data arguments of log.
func (d *Decoder) Decode(log types.Log) (scanstate.Event, error) {
	if len(log.Topics) == 0 {
		return scanstate.Event{}, ErrAnonymousLog
	}

	ev, ok := d.events[log.Topics[0]]
	if !ok {
		return scanstate.Event{}, fmt.Errorf("%w: %s", ErrUnknownEvent, log.Topics[0].Hex())
	}

	args := make(map[string]any, len(ev.Inputs))
	if err := ev.Inputs.UnpackIntoMap(args, log.Data); err != nil {
		return scanstate.Event{}, fmt.Errorf("failed to unpack %s data: %w", ev.Name, err)
	}

	var indexed abi.Arguments
	for _, input := range ev.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, log.Topics[1:]); err != nil {
		return scanstate.Event{}, fmt.Errorf("failed to unpack %s topics: %w", ev.Name, err)
	}

	return scanstate.Event{
		Name:            ev.RawName,
		ContractAddress: log.Address,
		BlockNumber:     log.BlockNumber,
		TxHash:          log.TxHash,
		LogIndex:        log.Index,
		Args:            args,
	}, nil
}
