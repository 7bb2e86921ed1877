package abicache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ErrABINotFound is returned when neither the cache nor the registry can provide an ABI.
var ErrABINotFound = errors.New("abi not found")

// ABI is a contract ABI document: the ordered list of function and event descriptors
// exactly as the registry returned them.
type ABI []json.RawMessage

// IsEmpty reports whether the document has no descriptors. An empty ABI counts as absent.
func (a ABI) IsEmpty() bool {
	return len(a) == 0
}

// Parse decodes the document into a go-ethereum ABI.
func (a ABI) Parse() (abi.ABI, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to encode abi: %w", err)
	}

	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse abi: %w", err)
	}

	return parsed, nil
}

// Fetcher retrieves an ABI from a remote registry.
type Fetcher interface {
	// FetchABI returns the ABI registered for key, or ErrABINotFound once the retry budget is spent.
	FetchABI(ctx context.Context, key string) (ABI, error)
}

// Cache is a persistent get-or-fetch ABI store.
type Cache interface {
	// GetABI returns the ABI cached under keyword, or under the checksummed address when keyword is empty.
	// On a miss the ABI is fetched and persisted. Returns ErrABINotFound when it cannot be obtained.
	GetABI(ctx context.Context, address, keyword string) (ABI, error)

	// SetABI stores abi under key. An existing entry is replaced only when overwrite is set.
	SetABI(key string, abi ABI, overwrite bool) error
}
