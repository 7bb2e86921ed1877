package abicache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ComplianceScanner/internal/common"
	"github.com/goran-ethernal/ComplianceScanner/internal/logger"
	"github.com/goran-ethernal/ComplianceScanner/internal/metrics"
	"github.com/goran-ethernal/ComplianceScanner/pkg/abicache"
)

// Compile-time check to ensure Cache implements abicache.Cache interface.
var _ abicache.Cache = (*Cache)(nil)

// Cache is a file-backed ABI cache in front of a remote registry.
// The whole file is rewritten on every mutation.
type Cache struct {
	mu      sync.Mutex
	path    string
	entries map[string]abicache.ABI
	fetcher abicache.Fetcher
	log     *logger.Logger
}

var errCorruptCache = errors.New("failed to parse abi cache")

// NewCache loads the cache file at path. A missing, empty or unparsable file yields an empty cache.
// A nil fetcher turns every miss into abicache.ErrABINotFound.
func NewCache(path string, fetcher abicache.Fetcher, log *logger.Logger) (*Cache, error) {
	c := &Cache{
		path:    path,
		fetcher: fetcher,
		log:     log.WithComponent(common.ComponentABICache),
	}

	entries, err := c.load()
	if err != nil {
		if !errors.Is(err, errCorruptCache) {
			return nil, err
		}
		// the next store rewrites the file from memory
		c.log.Warnf("%v, starting with an empty cache", err)
		entries = make(map[string]abicache.ABI)
	}
	c.entries = entries

	c.log.Debugf("loaded %d cached ABIs from %s", len(entries), path)
	return c, nil
}

// Key returns the cache key for a lookup: the keyword when set, else the checksummed address.
func Key(address, keyword string) string {
	if keyword != "" {
		return keyword
	}
	if ethcommon.IsHexAddress(address) {
		return ethcommon.HexToAddress(address).Hex()
	}
	return address
}

// GetABI returns the cached ABI or fetches and persists it on a miss.
func (c *Cache) GetABI(ctx context.Context, address, keyword string) (abicache.ABI, error) {
	key := Key(address, keyword)

	c.mu.Lock()
	defer c.mu.Unlock()

	if abi := c.entries[key]; !abi.IsEmpty() {
		metrics.ABICacheHitInc()
		return abi, nil
	}
	metrics.ABICacheMissInc()

	if c.fetcher == nil {
		return nil, fmt.Errorf("%w: %s is not cached", abicache.ErrABINotFound, key)
	}

	c.log.Infof("fetching ABI for %s", key)
	abi, err := c.fetcher.FetchABI(ctx, key)
	if err != nil {
		return nil, err
	}
	if abi.IsEmpty() {
		return nil, fmt.Errorf("%w: registry returned an empty ABI for %s", abicache.ErrABINotFound, key)
	}

	if err := c.store(key, abi); err != nil {
		// the fetched ABI is still usable for this run
		c.log.Errorf("failed to persist ABI for %s: %v", key, err)
	}

	return abi, nil
}

// SetABI stores abi under key. With overwrite unset an existing non-empty entry is kept.
func (c *Cache) SetABI(key string, abi abicache.ABI, overwrite bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !overwrite && !c.entries[key].IsEmpty() {
		c.log.Infof("ABI for %s already cached, keeping it", key)
		return nil
	}

	return c.store(key, abi)
}

// Keys returns the cached keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Sorted(maps.Keys(c.entries))
}

// store re-reads the file, applies the entry and rewrites the whole file.
func (c *Cache) store(key string, abi abicache.ABI) error {
	entries, err := c.load()
	if err != nil {
		c.log.Warnf("cache file unreadable, rewriting it from memory: %v", err)
		entries = maps.Clone(c.entries)
	}
	entries[key] = abi
	c.entries = entries

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode abi cache: %w", err)
	}

	if err := common.WriteFileAtomic(c.path, data, 0o644); err != nil { //nolint:mnd
		return fmt.Errorf("failed to write abi cache: %w", err)
	}

	return nil
}

func (c *Cache) load() (map[string]abicache.ABI, error) {
	entries := make(map[string]abicache.ABI)

	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return entries, nil
		}
		return nil, fmt.Errorf("failed to read abi cache %s: %w", c.path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return entries, nil
	}

	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w %s: %w", errCorruptCache, c.path, err)
	}

	return entries, nil
}
