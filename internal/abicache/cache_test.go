package abicache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/goran-ethernal/ComplianceScanner/internal/abicache/mocks"
	"github.com/goran-ethernal/ComplianceScanner/internal/logger"
	"github.com/goran-ethernal/ComplianceScanner/pkg/abicache"
	"github.com/stretchr/testify/require"
)

const usdtAddress = "0xdAC17F958D2ee523a2206206994597C13D831ec7"

func readCacheFile(t *testing.T, path string) map[string]abicache.ABI {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	entries := make(map[string]abicache.ABI)
	require.NoError(t, json.Unmarshal(data, &entries))
	return entries
}

func TestKey(t *testing.T) {
	require.Equal(t, usdtAddress, Key("0xdac17f958d2ee523a2206206994597c13d831ec7", ""))
	require.Equal(t, "usdt", Key(usdtAddress, "usdt"))
	require.Equal(t, "not-an-address", Key("not-an-address", ""))
}

func TestCache_MissFetchesAndPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "abis", "cached_abis.json")
	abi := mustABI(t, testTokenABI)

	fetcher := mocks.NewFetcher(t)
	fetcher.EXPECT().FetchABI(ctx, usdtAddress).Return(abi, nil).Once()

	cache, err := NewCache(path, fetcher, logger.NewNopLogger())
	require.NoError(t, err)

	got, err := cache.GetABI(ctx, "0xdac17f958d2ee523a2206206994597c13d831ec7", "")
	require.NoError(t, err)
	require.Equal(t, abi, got)

	entries := readCacheFile(t, path)
	require.Contains(t, entries, usdtAddress)
	require.Len(t, entries[usdtAddress], len(abi))
}

func TestCache_HitAvoidsFetch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cached_abis.json")
	abi := mustABI(t, testTokenABI)

	seed, err := NewCache(path, nil, logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, seed.SetABI(usdtAddress, abi, true))

	// no expectations: any registry call fails the test
	fetcher := mocks.NewFetcher(t)

	cache, err := NewCache(path, fetcher, logger.NewNopLogger())
	require.NoError(t, err)

	for range 2 {
		got, err := cache.GetABI(ctx, usdtAddress, "")
		require.NoError(t, err)
		require.Equal(t, abi, got)
	}
}

func TestCache_KeywordLookup(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cached_abis.json")
	abi := mustABI(t, testTokenABI)

	cache, err := NewCache(path, mocks.NewFetcher(t), logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, cache.SetABI("tether", abi, true))

	got, err := cache.GetABI(ctx, usdtAddress, "tether")
	require.NoError(t, err)
	require.Equal(t, abi, got)
}

func TestCache_FetchFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cached_abis.json")

	fetcher := mocks.NewFetcher(t)
	fetcher.EXPECT().FetchABI(ctx, usdtAddress).Return(nil, abicache.ErrABINotFound).Once()

	cache, err := NewCache(path, fetcher, logger.NewNopLogger())
	require.NoError(t, err)

	_, err = cache.GetABI(ctx, usdtAddress, "")
	require.ErrorIs(t, err, abicache.ErrABINotFound)

	_, err = os.Stat(path)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCache_EmptyABIIsNotCached(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cached_abis.json")

	fetcher := mocks.NewFetcher(t)
	fetcher.EXPECT().FetchABI(ctx, usdtAddress).Return(abicache.ABI{}, nil).Twice()

	cache, err := NewCache(path, fetcher, logger.NewNopLogger())
	require.NoError(t, err)

	// an empty result is refetched on every lookup
	for range 2 {
		_, err = cache.GetABI(ctx, usdtAddress, "")
		require.ErrorIs(t, err, abicache.ErrABINotFound)
	}
	require.Empty(t, cache.Keys())
}

func TestCache_SetABIOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cached_abis.json")
	first := mustABI(t, testTokenABI)
	second := first[:1]

	cache, err := NewCache(path, nil, logger.NewNopLogger())
	require.NoError(t, err)

	require.NoError(t, cache.SetABI(usdtAddress, first, true))
	require.NoError(t, cache.SetABI(usdtAddress, second, false))
	require.Len(t, readCacheFile(t, path)[usdtAddress], len(first))

	require.NoError(t, cache.SetABI(usdtAddress, second, true))
	require.Len(t, readCacheFile(t, path)[usdtAddress], 1)
}

func TestCache_ReadModifyWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cached_abis.json")
	abi := mustABI(t, testTokenABI)

	a, err := NewCache(path, nil, logger.NewNopLogger())
	require.NoError(t, err)
	b, err := NewCache(path, nil, logger.NewNopLogger())
	require.NoError(t, err)

	require.NoError(t, a.SetABI("first", abi, true))
	require.NoError(t, b.SetABI("second", abi, true))

	entries := readCacheFile(t, path)
	require.Contains(t, entries, "first")
	require.Contains(t, entries, "second")
	require.Equal(t, []string{"first", "second"}, b.Keys())
}

func TestNewCache_CorruptFileStartsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cached_abis.json")
	abi := mustABI(t, testTokenABI)

	// a write torn in the middle of an entry
	require.NoError(t, os.WriteFile(path, []byte(`{"0xabc": [{"type":"ev`), 0o600))

	fetcher := mocks.NewFetcher(t)
	fetcher.EXPECT().FetchABI(ctx, usdtAddress).Return(abi, nil).Once()

	cache, err := NewCache(path, fetcher, logger.NewNopLogger())
	require.NoError(t, err)
	require.Empty(t, cache.Keys())

	got, err := cache.GetABI(ctx, usdtAddress, "")
	require.NoError(t, err)
	require.Equal(t, abi, got)

	// the file is rewritten whole from memory
	entries := readCacheFile(t, path)
	require.Len(t, entries, 1)
	require.Contains(t, entries, usdtAddress)
}

func TestNewCache_UnreadablePathFails(t *testing.T) {
	// a directory where the cache file should be
	_, err := NewCache(t.TempDir(), nil, logger.NewNopLogger())
	require.ErrorContains(t, err, "failed to read abi cache")
}

func TestNewCache_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cached_abis.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	cache, err := NewCache(path, nil, logger.NewNopLogger())
	require.NoError(t, err)
	require.Empty(t, cache.Keys())

	_, err = cache.GetABI(context.Background(), usdtAddress, "")
	require.ErrorIs(t, err, abicache.ErrABINotFound)
}
