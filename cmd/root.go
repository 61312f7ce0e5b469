package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pable/go-hll-metrics/internal/classify"
	"github.com/pable/go-hll-metrics/internal/config"
	"github.com/pable/go-hll-metrics/internal/logging"
	"github.com/pable/go-hll-metrics/internal/storage"
)

var (
	cfgFile           string
	envFile           string
	dbPath            string
	logLevel          string
	includeSeeding    bool
	includeIncomplete bool

	cfg      *config.Config
	logger   *slog.Logger
	closeLog = func() error { return nil }
)

var (
	cOK     = color.New(color.FgGreen, color.Bold)
	cError  = color.New(color.FgRed, color.Bold)
	cWarn   = color.New(color.FgYellow)
	cHeader = color.New(color.FgCyan, color.Bold)
)

var rootCmd = &cobra.Command{
	Use:   "hllmetrics",
	Short: "Hell Let Loose server log metrics tool",
	Long: `Ingest game-server event logs, split them into matches per server and
compute per-player statistics (KPM, growth factor, score, weighted KPM).`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: func(*cobra.Command, []string) error { return closeLog() },
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./hllmetrics.yaml or ~/.hllmetrics/hllmetrics.yaml)")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	pf.StringVar(&dbPath, "db", "", "path to SQLite database (default ~/.hllmetrics/metrics.db)")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&includeSeeding, "include-seeding", false, "count seeding games in aggregates")
	pf.BoolVar(&includeIncomplete, "include-incomplete", false, "count unfinished, unscored and tied games in aggregates")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(gamesCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(playerCmd)
	rootCmd.AddCommand(seriesCmd)
	rootCmd.AddCommand(reanalyzeCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(sqlCmd)
	rootCmd.AddCommand(dropCmd)
}

// setup loads the config, applies flag overrides and builds the logger.
func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(cfgFile, envFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		c.DBPath = dbPath
	}
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if flags.Changed("include-seeding") {
		c.Policy.IncludeSeeding = includeSeeding
	}
	if flags.Changed("include-incomplete") {
		c.Policy.IncludeIncomplete = includeIncomplete
	}
	if err := c.Validate(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return err
	}
	log, closer, err := logging.New(os.Stderr, level, c.Log.File)
	if err != nil {
		return err
	}
	cfg, logger, closeLog = c, log, closer
	slog.SetDefault(logger)
	return nil
}

func policy() classify.Policy {
	return cfg.ClassifyPolicy()
}

func openDB() (*storage.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return db, nil
}
