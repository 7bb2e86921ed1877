package proxy

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ComplianceScanner/internal/common"
	"github.com/goran-ethernal/ComplianceScanner/internal/logger"
	"github.com/goran-ethernal/ComplianceScanner/internal/metrics"
	"github.com/goran-ethernal/ComplianceScanner/pkg/abicache"
	pkgrpc "github.com/goran-ethernal/ComplianceScanner/pkg/rpc"
)

// Slot is a storage slot that proxy conventions reserve for the implementation pointer.
type Slot struct {
	Name string
	Hash ethcommon.Hash
	// Beacon slots point at a beacon contract that reports the implementation.
	Beacon bool
}

// Slots are probed in this order; the first non-zero address wins.
var Slots = []Slot{
	{
		// bytes32(uint256(keccak256('eip1967.proxy.implementation')) - 1)
		Name: "eip1967",
		Hash: ethcommon.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc"),
	},
	{
		// bytes32(uint256(keccak256('eip1967.proxy.beacon')) - 1)
		Name:   "eip1967-beacon",
		Hash:   ethcommon.HexToHash("0xa3f0ad74e5423aebfd80d3ef4346578335a9a72aeaee59ff6cb3582b35133d50"),
		Beacon: true,
	},
	{
		// keccak256('org.zeppelinos.proxy.implementation')
		Name: "zeppelinos",
		Hash: ethcommon.HexToHash("0x7050c9e0f4ca769c69bd3a8ef740bc37934f8e2c036e5a723fd8ee048ed3f8c3"),
	},
	{
		// keccak256('PROXIABLE')
		Name: "eip1822",
		Hash: ethcommon.HexToHash("0xc5f16f0fcc639fa48a6947836d9850f504798523bf8c9a3a87d5876cf622bcf7"),
	},
	{
		Name: "trueblocks",
		Hash: ethcommon.HexToHash("0x5f3b5dfeb7b28cdbd7faba78963ee202a494e2a2cc8c9978d5e30d2aebb8c197"),
	},
}

const beaconABIJSON = `[{"inputs":[],"name":"implementation","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}]` //nolint:lll

var beaconABI = mustParseABI(beaconABIJSON)

func mustParseABI(doc string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(doc))
	if err != nil {
		panic(fmt.Sprintf("invalid built-in abi: %v", err))
	}
	return parsed
}

// Resolver finds the implementation behind proxy contracts and makes its ABI
// available under the proxy's own cache key.
type Resolver struct {
	client pkgrpc.EthClient
	cache  abicache.Cache
	log    *logger.Logger
}

// NewResolver creates a new proxy resolver.
func NewResolver(client pkgrpc.EthClient, cache abicache.Cache, log *logger.Logger) *Resolver {
	return &Resolver{
		client: client,
		cache:  cache,
		log:    log.WithComponent(common.ComponentProxyResolver),
	}
}

// Resolve returns the address whose ABI decodes events of address: the implementation
// for a recognised proxy, otherwise address itself. Slot read failures count as misses,
// so resolution never fails.
func (r *Resolver) Resolve(ctx context.Context, address ethcommon.Address) ethcommon.Address {
	impl, slot, found := r.probe(ctx, address)
	if !found {
		metrics.ProxyResolutionInc("none")
		return address
	}

	metrics.ProxyResolutionInc(slot.Name)
	r.log.Infof("proxy found: %s -> %s (%s slot)", address.Hex(), impl.Hex(), slot.Name)

	if impl != address {
		r.cacheImplementationABI(ctx, address, impl)
	}

	return impl
}

func (r *Resolver) probe(ctx context.Context, address ethcommon.Address) (ethcommon.Address, Slot, bool) {
	for _, slot := range Slots {
		if ctx.Err() != nil {
			return ethcommon.Address{}, Slot{}, false
		}

		value, err := r.client.StorageAt(ctx, address, slot.Hash, nil)
		if err != nil {
			r.log.Warnf("failed to read %s slot of %s: %v", slot.Name, address.Hex(), err)
			continue
		}

		candidate := ethcommon.BytesToAddress(value)
		if candidate == (ethcommon.Address{}) {
			continue
		}

		if slot.Beacon {
			if impl, ok := r.beaconImplementation(ctx, candidate); ok {
				candidate = impl
			}
		}

		return candidate, slot, true
	}

	return ethcommon.Address{}, Slot{}, false
}

// beaconImplementation asks a beacon contract for its current implementation.
func (r *Resolver) beaconImplementation(ctx context.Context, beacon ethcommon.Address) (ethcommon.Address, bool) {
	data, err := beaconABI.Pack("implementation")
	if err != nil {
		r.log.Errorf("failed to encode implementation() call: %v", err)
		return ethcommon.Address{}, false
	}

	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &beacon, Data: data}, nil)
	if err != nil {
		r.log.Warnf("implementation() call on beacon %s failed: %v", beacon.Hex(), err)
		return ethcommon.Address{}, false
	}

	values, err := beaconABI.Unpack("implementation", out)
	if err != nil || len(values) == 0 {
		r.log.Warnf("unexpected implementation() result from beacon %s: %v", beacon.Hex(), err)
		return ethcommon.Address{}, false
	}

	impl, ok := values[0].(ethcommon.Address)
	if !ok || impl == (ethcommon.Address{}) {
		return ethcommon.Address{}, false
	}

	return impl, true
}

// cacheImplementationABI stores the implementation ABI under the proxy address so later
// lookups for the proxy skip resolution.
func (r *Resolver) cacheImplementationABI(ctx context.Context, proxy, impl ethcommon.Address) {
	implABI, err := r.cache.GetABI(ctx, impl.Hex(), "")
	if err != nil {
		r.log.Warnf("no ABI for implementation %s of %s: %v", impl.Hex(), proxy.Hex(), err)
		return
	}

	if err := r.cache.SetABI(proxy.Hex(), implABI, true); err != nil {
		r.log.Errorf("failed to cache implementation ABI under %s: %v", proxy.Hex(), err)
	}
}
