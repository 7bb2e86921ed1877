package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ComplianceScanner/internal/abicache"
	"github.com/goran-ethernal/ComplianceScanner/internal/collector"
	"github.com/goran-ethernal/ComplianceScanner/internal/common"
	"github.com/goran-ethernal/ComplianceScanner/internal/config"
	"github.com/goran-ethernal/ComplianceScanner/internal/db"
	"github.com/goran-ethernal/ComplianceScanner/internal/logger"
	"github.com/goran-ethernal/ComplianceScanner/internal/metrics"
	"github.com/goran-ethernal/ComplianceScanner/internal/proxy"
	"github.com/goran-ethernal/ComplianceScanner/internal/rpc"
	pkgconfig "github.com/goran-ethernal/ComplianceScanner/pkg/config"
	"github.com/spf13/cobra"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║       ComplianceScanner v%s            ║
║   Stablecoin Compliance Event Collector   ║
╚═══════════════════════════════════════════╝
`
)

var (
	configPath string
	abiKeyword string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "compliance-scanner",
	Short: "ComplianceScanner - stablecoin compliance event collector",
	Long: `ComplianceScanner collects blacklist, freeze, pause and transfer events
emitted by stablecoin contracts. Each configured job scans one contract in
adaptive block chunks and persists the decoded events to a resumable state file.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runJobs,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run all configured jobs",
	RunE:  runJobs,
}

var abiCmd = &cobra.Command{
	Use:   "abi",
	Short: "Inspect the ABI cache",
}

var abiFetchCmd = &cobra.Command{
	Use:   "fetch <address>",
	Short: "Fetch a contract ABI through the cache and list its events",
	Example: `  compliance-scanner abi fetch 0xdAC17F958D2ee523a2206206994597C13D831ec7
  compliance-scanner abi fetch 0x0000000000000000000000000000000000000000 --keyword usdt`,
	Args: cobra.ExactArgs(1),
	RunE: runABIFetch,
}

var abiResolveCmd = &cobra.Command{
	Use:   "resolve <address>",
	Short: "Resolve a proxy contract to the address whose ABI describes it",
	Args:  cobra.ExactArgs(1),
	RunE:  runABIResolve,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the configuration JSON schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := json.MarshalIndent(config.Schema(), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode schema: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Scan state maintenance",
}

var stateCompactCmd = &cobra.Command{
	Use:   "compact <db-file>",
	Short: "Vacuum an SQLite scan state and checkpoint its WAL",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateCompact,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "compliance-scanner %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	abiFetchCmd.Flags().StringVar(&abiKeyword, "keyword", "", "cache key to use instead of the address")

	abiCmd.AddCommand(abiFetchCmd, abiResolveCmd)
	configCmd.AddCommand(configSchemaCmd)
	stateCmd.AddCommand(stateCompactCmd)
	rootCmd.AddCommand(runCmd, abiCmd, configCmd, stateCmd, versionCmd)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\n\nShutting down gracefully...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

func loadConfig() (*pkgconfig.Config, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newCache(cfg *pkgconfig.Config) (*abicache.Cache, error) {
	cacheLog := logger.NewComponentLoggerFromConfig(common.ComponentABICache, cfg.Logging)
	cache, err := abicache.NewCache(cfg.ABI.CachePath, abicache.NewEtherscanClient(cfg.ABI, cacheLog), cacheLog)
	if err != nil {
		return nil, fmt.Errorf("failed to open abi cache: %w", err)
	}
	return cache, nil
}

func runJobs(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	log := logger.NewComponentLoggerFromConfig(common.ComponentCollector, cfg.Logging)

	log.Info("Connecting to Ethereum node...")
	ethClient, err := rpc.NewClient(ctx, cfg.RPC.URL, cfg.RPC.Retry)
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	defer ethClient.Close()
	log.Infof("Connected to Ethereum node: %s", cfg.RPC.URL)

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics,
			logger.NewComponentLoggerFromConfig(common.ComponentMetrics, cfg.Logging))
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			// ctx may already be cancelled here
			if err := metricsServer.Stop(context.Background()); err != nil {
				log.Warnf("Failed to stop metrics server: %v", err)
			}
		}()
	}

	cache, err := newCache(cfg)
	if err != nil {
		return err
	}

	log.Infof("Running %d job(s)...", len(cfg.Jobs))
	results, runErr := collector.New(cfg, ethClient, cache, log).Run(ctx)

	for _, res := range results {
		switch {
		case res.UpToDate:
			fmt.Printf("✓ %s: up to date (start %d, end %d)\n", res.Job, res.StartBlock, res.EndBlock)
		case res.Scan != nil:
			fmt.Printf("✓ %s: %d event(s) in blocks %d-%d\n",
				res.Job, len(res.Scan.EventIDs), res.StartBlock, res.EndBlock)
		default:
			fmt.Printf("✓ %s: done\n", res.Job)
		}
	}

	if runErr != nil {
		return runErr
	}

	log.Info("ComplianceScanner finished successfully")
	return nil
}

func runABIFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	cache, err := newCache(cfg)
	if err != nil {
		return err
	}

	doc, err := cache.GetABI(ctx, args[0], abiKeyword)
	if err != nil {
		return fmt.Errorf("failed to get abi for %s: %w", args[0], err)
	}

	events, columns, err := abicache.EventColumns(doc, nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d abi entries cached under %s\n", len(doc), abicache.Key(args[0], abiKeyword))
	fmt.Fprintf(out, "events:  %s\n", strings.Join(events, ", "))
	fmt.Fprintf(out, "columns: %s\n", strings.Join(columns, ", "))
	return nil
}

func runABIResolve(cmd *cobra.Command, args []string) error {
	if !ethcommon.IsHexAddress(args[0]) {
		return fmt.Errorf("invalid contract address %q", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	ethClient, err := rpc.NewClient(ctx, cfg.RPC.URL, cfg.RPC.Retry)
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	defer ethClient.Close()

	cache, err := newCache(cfg)
	if err != nil {
		return err
	}

	resolver := proxy.NewResolver(ethClient, cache,
		logger.NewComponentLoggerFromConfig(common.ComponentProxyResolver, cfg.Logging))

	address := ethcommon.HexToAddress(args[0])
	resolved := resolver.Resolve(ctx, address)
	if resolved == address {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is not a proxy\n", address.Hex())
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", address.Hex(), resolved.Hex())
	return nil
}

func runStateCompact(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("scan state %s: %w", path, err)
	}

	var dbCfg pkgconfig.DatabaseConfig
	dbCfg.ApplyDefaults()

	database, err := db.NewSQLiteDB(path, dbCfg)
	if err != nil {
		return err
	}
	defer database.Close()

	result, err := db.Maintain(ctx, database, path, logger.NewComponentLogger(common.ComponentScanState, "info", false))
	if err != nil {
		return fmt.Errorf("failed to compact %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d MB -> %d MB in %s\n", path,
		common.BytesToMB(uint64(result.InitialSize)), common.BytesToMB(uint64(result.FinalSize)), result.Duration)
	return nil
}
