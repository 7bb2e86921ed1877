package scanstate

import (
	"fmt"
	"time"

	"github.com/goran-ethernal/ComplianceScanner/internal/logger"
	"github.com/goran-ethernal/ComplianceScanner/pkg/config"
	pkgscanstate "github.com/goran-ethernal/ComplianceScanner/pkg/scanstate"
)

// Base columns every stored record carries, in file order.
const (
	ColumnEventName       = "event_name"
	ColumnContractAddress = "contract_address"
	ColumnBlockNumber     = "block_number"
	ColumnTxHash          = "txhash"
	ColumnLogIndex        = "log_index"
	ColumnTimestamp       = "timestamp"
)

// BaseColumns lists the record fields that do not come from event arguments.
var BaseColumns = []string{
	ColumnEventName,
	ColumnContractAddress,
	ColumnBlockNumber,
	ColumnTxHash,
	ColumnLogIndex,
	ColumnTimestamp,
}

const defaultSaveInterval = 60 * time.Second

// Options configures a scan state.
type Options struct {
	// Path is the state file (tabular, nested) or database file (sqlite).
	Path string
	// Columns are the declared event argument names kept in each record.
	Columns []string
	// SaveInterval is the minimum time between two saves triggered by EndChunk.
	SaveInterval time.Duration
	// DB configures the SQLite connection of the sqlite format.
	DB config.DatabaseConfig
	// Clock overrides time.Now.
	Clock func() time.Time
}

func (o *Options) applyDefaults() {
	if o.SaveInterval <= 0 {
		o.SaveInterval = defaultSaveInterval
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// New builds the scan state variant named by format.
// The returned state is empty until Restore is called.
func New(format string, opts Options, log *logger.Logger) (pkgscanstate.ScanState, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("scan state path is required")
	}
	opts.applyDefaults()

	switch format {
	case config.StateFormatTabular, "csv":
		return NewTabularState(opts, log), nil
	case config.StateFormatNested, "json":
		return NewNestedState(opts, log), nil
	case config.StateFormatSQLite:
		state, err := NewSQLiteState(opts, log)
		if err != nil {
			return nil, err
		}
		return state, nil
	default:
		return nil, fmt.Errorf("unknown scan state format %q", format)
	}
}

// saveGate decides when EndChunk persists the state.
// A zero lastSave makes the first check due.
type saveGate struct {
	interval time.Duration
	now      func() time.Time
	lastSave time.Time
}

func newSaveGate(opts Options) saveGate {
	return saveGate{interval: opts.SaveInterval, now: opts.Clock}
}

func (g *saveGate) due() bool {
	return g.lastSave.IsZero() || g.now().Sub(g.lastSave) > g.interval
}

func (g *saveGate) mark() {
	g.lastSave = g.now()
}

// argColumns returns the declared columns that event arguments may fill.
func argColumns(declared []string) []string {
	base := make(map[string]struct{}, len(BaseColumns))
	for _, c := range BaseColumns {
		base[c] = struct{}{}
	}

	seen := make(map[string]struct{}, len(declared))
	columns := make([]string, 0, len(declared))
	for _, c := range declared {
		if _, ok := base[c]; ok {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		columns = append(columns, c)
	}

	return columns
}

func sinceBlockOf(since int64) uint64 {
	if since < 0 {
		return 0
	}
	return uint64(since)
}
