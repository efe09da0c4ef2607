/*
main.go - Application entry point

PURPOSE:
  The subtrack binary: the HTTP server plus a set of commands that work
  directly against the database (projections, import/export, demo data).

STARTUP SEQUENCE (every command):
  1. Load .env (if present) into the environment
  2. Load the TOML config, apply SUBTRACK_* overrides
  3. Apply command-line flags on top
  4. Initialize logging
  5. Open the SQLite store and build the catalog

GLOBAL FLAGS:
  --config     Config file (default: $XDG_CONFIG_HOME/subtrack/config.toml)
  --db         SQLite database path; ":memory:" for a throwaway database
  --log-level  trace, debug, info, warn, error
  --month-end  clamp or rollover

EXAMPLES:
  subtrack serve --addr :3000
  subtrack seed
  subtrack renewals 7d1c... --from 2025-01-01 --to 2025-12-31
  subtrack calendar --year 2025 --month 2
  subtrack export backup.json

SEE ALSO:
  - serve.go: HTTP server with graceful shutdown
  - commands.go: Offline commands
  - config/config.go: Configuration sources
*/
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/warp/subtrack/catalog"
	"github.com/warp/subtrack/config"
	"github.com/warp/subtrack/logging"
	"github.com/warp/subtrack/store/sqlite"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	dbPath     string
	logLevel   string
	monthEnd   string
}

// app is what a command needs once configuration is resolved.
type app struct {
	cfg     config.Config
	store   *sqlite.Store
	catalog *catalog.Catalog
}

func (a *app) Close() error {
	return a.store.Close()
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "subtrack",
		Short:         "Subscription tracker",
		Long:          "Track recurring subscriptions, project renewal dates and totals, and serve them over HTTP.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Config file (default "+config.ConfigPath()+")")
	pf.StringVar(&flags.dbPath, "db", "", "SQLite database path (overrides config)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (overrides config)")
	pf.StringVar(&flags.monthEnd, "month-end", "", "Month-end policy: clamp or rollover (overrides config)")

	root.AddCommand(
		newServeCmd(flags),
		newRenewalsCmd(flags),
		newCalendarCmd(flags),
		newSummaryCmd(flags),
		newRemindersCmd(flags),
		newAdvanceCmd(flags),
		newExportCmd(flags),
		newImportCmd(flags),
		newSeedCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "subtrack %s\n", Version)
			if GitCommit != "unknown" {
				fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", GitCommit)
			}
		},
	}
}

// loadConfig resolves configuration from every source and initializes logging.
func loadConfig(flags *globalFlags) (config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return cfg, err
	}
	if flags.dbPath != "" {
		cfg.Database.Path = flags.dbPath
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.monthEnd != "" {
		cfg.Billing.MonthEnd = flags.monthEnd
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	logging.Init(logging.Config{
		Format:    cfg.Log.Format,
		Level:     cfg.Log.Level,
		Component: "subtrack",
	})
	return cfg, nil
}

// openApp loads config, opens the store and warms the catalog.
func openApp(ctx context.Context, flags *globalFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	if dir := dbDir(cfg.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
	}
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	cat := catalog.New(store, catalog.Options{
		MonthEnd:    cfg.MonthEndPolicy(),
		Concurrency: cfg.Billing.Concurrency,
		MaxCharges:  cfg.Billing.MaxCharges,
	})
	if err := cat.Load(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("loading subscriptions: %w", err)
	}

	log.Debug().Str("db", cfg.Database.Path).Msg("Store opened")
	return &app{cfg: cfg, store: store, catalog: cat}, nil
}

func dbDir(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return ""
	}
	if dir := filepath.Dir(path); dir != "." {
		return dir
	}
	return ""
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
