package common

const (
	ComponentCollector     = "collector"
	ComponentScanner       = "scanner"
	ComponentScanState     = "scan-state"
	ComponentABICache      = "abi-cache"
	ComponentProxyResolver = "proxy-resolver"
	ComponentRPC           = "rpc"
	ComponentMetrics       = "metrics"
)

var AllComponents = map[string]struct{}{
	ComponentCollector:     {},
	ComponentScanner:       {},
	ComponentScanState:     {},
	ComponentABICache:      {},
	ComponentProxyResolver: {},
	ComponentRPC:           {},
	ComponentMetrics:       {},
}
