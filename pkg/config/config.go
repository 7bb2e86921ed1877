package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	internalcommon "github.com/goran-ethernal/ComplianceScanner/internal/common"
	"github.com/goran-ethernal/ComplianceScanner/internal/logger"
)

const (
	// StateFormatTabular persists scan state as a CSV table.
	StateFormatTabular = "tabular"
	// StateFormatNested persists scan state as a block/tx/log-index JSON document.
	StateFormatNested = "nested"
	// StateFormatSQLite persists scan state in a SQLite database.
	StateFormatSQLite = "sqlite"

	// DefaultABIEndpoint is the Etherscan contract API.
	DefaultABIEndpoint = "https://api.etherscan.io/api"
)

// Config represents the complete configuration for the ComplianceScanner.
type Config struct {
	// RPC contains the Ethereum node configuration
	RPC RPCConfig `yaml:"rpc" json:"rpc" toml:"rpc"`

	// ABI contains the ABI registry and cache configuration
	ABI ABIConfig `yaml:"abi" json:"abi" toml:"abi"`

	// Scanner contains block range scanning configuration
	Scanner ScannerConfig `yaml:"scanner" json:"scanner" toml:"scanner"`

	// State contains scan state persistence defaults shared by all jobs
	State StateConfig `yaml:"state" json:"state" toml:"state"`

	// Jobs lists the contracts to collect events from
	Jobs []JobConfig `yaml:"jobs" json:"jobs" toml:"jobs"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`
}

// RPCConfig represents the Ethereum node connection.
type RPCConfig struct {
	// URL is the Ethereum RPC endpoint URL
	URL string `yaml:"url" json:"url" toml:"url"`

	// Retry contains RPC retry configuration with exponential backoff
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`
}

// ApplyDefaults sets default values for optional RPC configuration fields.
func (r *RPCConfig) ApplyDefaults() {
	if r.Retry != nil {
		r.Retry.ApplyDefaults()
	}
}

// RetryConfig represents RPC retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before first retry
	InitialBackoff internalcommon.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff internalcommon.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 3
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = internalcommon.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = internalcommon.NewDuration(30 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// ABIConfig configures the remote ABI registry and the local ABI cache file.
type ABIConfig struct {
	// Endpoint is the registry URL; module/action/address query parameters are appended
	Endpoint string `yaml:"endpoint" json:"endpoint" toml:"endpoint"`

	// APIKey is sent as the apikey query parameter when set
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" toml:"api_key,omitempty"`

	// ChainID is sent as the chainid query parameter when set (multichain registries)
	ChainID uint64 `yaml:"chain_id,omitempty" json:"chain_id,omitempty" toml:"chain_id,omitempty"`

	// CachePath is the JSON file holding cached ABIs
	CachePath string `yaml:"cache_path" json:"cache_path" toml:"cache_path"`

	// Timeout bounds a single registry request
	Timeout internalcommon.Duration `yaml:"timeout" json:"timeout" toml:"timeout"`

	// MaxRetries is how many times a timed out or malformed fetch is repeated
	MaxRetries *int `yaml:"max_retries,omitempty" json:"max_retries,omitempty" toml:"max_retries,omitempty"`

	// RequestsPerSecond limits the registry request rate (0 disables limiting)
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" toml:"requests_per_second"`
}

// ApplyDefaults sets default values for optional ABI configuration fields.
func (a *ABIConfig) ApplyDefaults() {
	if a.Endpoint == "" {
		a.Endpoint = DefaultABIEndpoint
	}
	if a.CachePath == "" {
		a.CachePath = "abis/cached_abis.json"
	}
	if a.Timeout.Duration == 0 {
		a.Timeout = internalcommon.NewDuration(20 * time.Second) //nolint:mnd
	}
	if a.MaxRetries == nil {
		retries := 1
		a.MaxRetries = &retries
	}
	if a.RequestsPerSecond == 0 {
		a.RequestsPerSecond = 5
	}
}

// GetMaxRetries returns the retry budget, 1 when unset.
func (a *ABIConfig) GetMaxRetries() int {
	if a.MaxRetries == nil {
		return 1
	}
	return *a.MaxRetries
}

// ScannerConfig configures chunked log retrieval.
type ScannerConfig struct {
	// Finality specifies how the scan end block is chosen: "finalized", "safe", or "latest"
	Finality string `yaml:"finality" json:"finality" toml:"finality"`

	// ConfirmationLag is the number of blocks behind head to stop at
	// Only used when Finality is set to "latest"
	ConfirmationLag uint64 `yaml:"confirmation_lag" json:"confirmation_lag" toml:"confirmation_lag"`

	// ReorgMargin is how many already scanned blocks are discarded and rescanned on startup
	ReorgMargin *uint64 `yaml:"reorg_margin,omitempty" json:"reorg_margin,omitempty" toml:"reorg_margin,omitempty"`

	// MinChunkSize is the chunk size used after a chunk that produced events
	MinChunkSize uint64 `yaml:"min_chunk_size" json:"min_chunk_size" toml:"min_chunk_size"`

	// StartChunkSize is the first chunk size of a scan
	StartChunkSize uint64 `yaml:"start_chunk_size" json:"start_chunk_size" toml:"start_chunk_size"`

	// MaxChunkSize caps the block range per eth_getLogs call
	MaxChunkSize uint64 `yaml:"max_chunk_size" json:"max_chunk_size" toml:"max_chunk_size"`

	// ChunkSizeIncrease multiplies the chunk size after a chunk without events
	ChunkSizeIncrease float64 `yaml:"chunk_size_increase" json:"chunk_size_increase" toml:"chunk_size_increase"`

	// MaxRetries is the number of eth_getLogs retries per chunk, each halving the range
	MaxRetries int `yaml:"max_retries" json:"max_retries" toml:"max_retries"`

	// RetryDelay is the pause between eth_getLogs retries
	RetryDelay internalcommon.Duration `yaml:"retry_delay" json:"retry_delay" toml:"retry_delay"`
}

// ApplyDefaults sets default values for optional scanner configuration fields.
func (s *ScannerConfig) ApplyDefaults() {
	if s.Finality == "" {
		s.Finality = "latest"
	}
	if s.ConfirmationLag == 0 && s.Finality == "latest" {
		s.ConfirmationLag = 1
	}
	if s.ReorgMargin == nil {
		margin := uint64(10) //nolint:mnd
		s.ReorgMargin = &margin
	}
	if s.MinChunkSize == 0 {
		s.MinChunkSize = 10
	}
	if s.StartChunkSize == 0 {
		s.StartChunkSize = 20
	}
	if s.MaxChunkSize == 0 {
		s.MaxChunkSize = 100
	}
	if s.ChunkSizeIncrease == 0 {
		s.ChunkSizeIncrease = 2.0
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = 5
	}
	if s.RetryDelay.Duration == 0 {
		s.RetryDelay = internalcommon.NewDuration(3 * time.Second) //nolint:mnd
	}
}

// GetReorgMargin returns the rollback window in blocks.
func (s *ScannerConfig) GetReorgMargin() uint64 {
	if s.ReorgMargin == nil {
		return 10 //nolint:mnd
	}
	return *s.ReorgMargin
}

// Validate checks if the scanner configuration is valid.
func (s *ScannerConfig) Validate() error {
	if !slices.Contains([]string{"finalized", "safe", "latest"}, s.Finality) {
		return fmt.Errorf("scanner.finality must be one of: 'finalized', 'safe', or 'latest'")
	}
	if s.MinChunkSize > s.MaxChunkSize {
		return fmt.Errorf("scanner.min_chunk_size (%d) must not exceed scanner.max_chunk_size (%d)",
			s.MinChunkSize, s.MaxChunkSize)
	}
	if s.ChunkSizeIncrease < 1 {
		return fmt.Errorf("scanner.chunk_size_increase must be >= 1")
	}
	return nil
}

// StateConfig holds scan state persistence defaults.
type StateConfig struct {
	// Format is the default state variant: "tabular", "nested" or "sqlite"
	Format string `yaml:"format" json:"format" toml:"format"`

	// SaveInterval is the minimum time between two time-gated saves
	SaveInterval internalcommon.Duration `yaml:"save_interval" json:"save_interval" toml:"save_interval"`

	// DB contains SQLite settings used by the "sqlite" format
	DB DatabaseConfig `yaml:"db" json:"db" toml:"db"`
}

// ApplyDefaults sets default values for optional state configuration fields.
func (s *StateConfig) ApplyDefaults() {
	if s.Format == "" {
		s.Format = StateFormatTabular
	}
	if s.SaveInterval.Duration == 0 {
		s.SaveInterval = internalcommon.NewDuration(60 * time.Second) //nolint:mnd
	}
	s.DB.ApplyDefaults()
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
}

// Validate checks if the database configuration is valid.
func (d *DatabaseConfig) Validate() error {
	if !slices.Contains([]string{"WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY"}, d.JournalMode) {
		return fmt.Errorf("journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}
	if !slices.Contains([]string{"FULL", "NORMAL", "OFF"}, d.Synchronous) {
		return fmt.Errorf("synchronous must be one of: FULL, NORMAL, OFF")
	}
	return nil
}

// JobConfig describes one contract whose events are collected into one output.
type JobConfig struct {
	// Name is a unique identifier for this job
	Name string `yaml:"name" json:"name" toml:"name"`

	// Address is the contract address to scan
	Address string `yaml:"address" json:"address" toml:"address"`

	// StartBlock is the lowest block ever scanned, typically the deployment block
	StartBlock uint64 `yaml:"start_block" json:"start_block" toml:"start_block"`

	// Events lists the event names to collect
	Events []string `yaml:"events" json:"events" toml:"events"`

	// ABIKeyword overrides the ABI cache key (pre-seeded ABIs)
	ABIKeyword string `yaml:"abi_keyword,omitempty" json:"abi_keyword,omitempty" toml:"abi_keyword,omitempty"`

	// FollowProxy resolves proxy contracts to their implementation ABI
	FollowProxy *bool `yaml:"follow_proxy,omitempty" json:"follow_proxy,omitempty" toml:"follow_proxy,omitempty"`

	// Output is the state file path
	Output string `yaml:"output" json:"output" toml:"output"`

	// Format overrides state.format for this job
	Format string `yaml:"format,omitempty" json:"format,omitempty" toml:"format,omitempty"`
}

// ApplyDefaults sets default values for optional job configuration fields.
func (j *JobConfig) ApplyDefaults(state StateConfig) {
	if j.FollowProxy == nil {
		follow := true
		j.FollowProxy = &follow
	}
	if j.Format == "" {
		j.Format = state.Format
	}
}

// ShouldFollowProxy reports whether proxy resolution is enabled for the job.
func (j *JobConfig) ShouldFollowProxy() bool {
	return j.FollowProxy == nil || *j.FollowProxy
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// Available components:
	//   - collector: job orchestration
	//   - scanner: chunked log retrieval
	//   - scan-state: state persistence
	//   - abi-cache: ABI cache and registry fetches
	//   - proxy-resolver: proxy slot probing
	//   - rpc: Ethereum RPC client
	//   - metrics: metrics server
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[internalcommon.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := internalcommon.AllComponents[internalcommon.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		if _, valid := logger.ValidLogLevels[internalcommon.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if level, ok := l.ComponentLevels[component]; ok {
		return internalcommon.ToLowerWithTrim(level)
	}
	return l.GetDefaultLevel()
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	if l.DefaultLevel == "" {
		return "info"
	}
	return internalcommon.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// IsNil lets the logger package detect a typed nil config.
func (l *LoggingConfig) IsNil() bool {
	return l == nil
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	// Format: "host:port" or ":port"
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" {
			return fmt.Errorf("path is required when metrics are enabled")
		}
		if m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	c.RPC.ApplyDefaults()
	c.ABI.ApplyDefaults()
	c.Scanner.ApplyDefaults()
	c.State.ApplyDefaults()

	for i := range c.Jobs {
		c.Jobs[i].ApplyDefaults(c.State)
	}

	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}

	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.RPC.URL == "" {
		return fmt.Errorf("rpc.url is required")
	}

	if c.ABI.GetMaxRetries() < 0 {
		return fmt.Errorf("abi.max_retries must not be negative")
	}

	if err := c.Scanner.Validate(); err != nil {
		return err
	}

	if err := c.State.DB.Validate(); err != nil {
		return fmt.Errorf("state.db: %w", err)
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	if len(c.Jobs) == 0 {
		return fmt.Errorf("at least one job must be configured")
	}

	jobNames := make(map[string]bool)
	outputs := make(map[string]string)
	for i, job := range c.Jobs {
		if job.Name == "" {
			return fmt.Errorf("job[%d]: name is required", i)
		}

		if jobNames[job.Name] {
			return fmt.Errorf("job[%d]: duplicate job name '%s'", i, job.Name)
		}
		jobNames[job.Name] = true

		if !common.IsHexAddress(job.Address) {
			return fmt.Errorf("job[%d] (%s): address %q is not a valid hex address", i, job.Name, job.Address)
		}

		if len(job.Events) == 0 {
			return fmt.Errorf("job[%d] (%s): at least one event must be configured", i, job.Name)
		}

		if job.Output == "" {
			return fmt.Errorf("job[%d] (%s): output is required", i, job.Name)
		}

		if other, taken := outputs[job.Output]; taken {
			return fmt.Errorf("job[%d] (%s): output %q already used by job '%s'", i, job.Name, job.Output, other)
		}
		outputs[job.Output] = job.Name

		if !slices.Contains([]string{StateFormatTabular, StateFormatNested, StateFormatSQLite}, job.Format) {
			return fmt.Errorf("job[%d] (%s): format must be one of: tabular, nested, sqlite", i, job.Name)
		}
	}

	return nil
}
