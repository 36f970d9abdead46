package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mechvault/mechvault/internal/bom"
	"github.com/mechvault/mechvault/internal/config"
	"github.com/mechvault/mechvault/internal/registry"
	"github.com/mechvault/mechvault/internal/rollup"
	"github.com/mechvault/mechvault/internal/storage"
	"github.com/mechvault/mechvault/internal/watcher"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	cfgPath string
	dbPath  string
)

var rootCmd = &cobra.Command{
	Use:   "mechvault",
	Short: "MechVault - product data management for mechanical CAD files",
	Long: `MechVault watches a drop folder for CAD files, hierarchy exports and
derived documents, files them into a canonical vault, and maintains item
records, BOM structure and cost estimates in SQLite.

Examples:
  # Run the ingestion daemon
  mechvault watch --config mechvault.yaml

  # Price a part and roll up an assembly
  mechvault item price csp0030 2.50
  mechvault rollup wma20120`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("MechVault %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the ingestion daemon until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}

		logger, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("failed to create data dir: %w", err)
		}

		store, err := storage.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() { _ = store.Close() }()

		reg := registry.New(store, logger)
		extractor := bom.NewExtractor(store, logger)
		runner, err := watcher.NewExtractRunner(extractor, logger,
			cfg.Extract.Workers, cfg.Extract.MaxAttempts, cfg.Extract.RetryDelay)
		if err != nil {
			return fmt.Errorf("failed to start extraction runner: %w", err)
		}

		w := watcher.New(watcher.Config{
			WatchDir:  cfg.WatchDir,
			DataDir:   cfg.DataDir,
			Debounce:  cfg.Debounce,
			Workers:   cfg.Workers,
			QueueSize: cfg.QueueSize,
		}, reg, runner, logger)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-sigChan
			logger.Info("shutting down", zap.String("signal", sig.String()))
			cancel()
		}()

		logger.Info("mechvault starting",
			zap.String("version", version),
			zap.String("db", cfg.DBPath),
			zap.String("driver", storage.DriverName))

		err = w.Run(ctx)

		// Let queued extractions finish before closing the store
		runner.Release()
		logger.Info("mechvault stopped")
		return err
	},
}

var rollupQty int64

var rollupCmd = &cobra.Command{
	Use:   "rollup <item-number>",
	Short: "Print the recursive cost rollup for an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		engine := rollup.New(store, nil)
		node, err := engine.Rollup(cmd.Context(), args[0], rollupQty)
		if err != nil {
			return err
		}
		fmt.Print(rollup.Render(node))
		return nil
	},
}

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Inspect and update item records",
}

var itemShowCmd = &cobra.Command{
	Use:   "show <item-number>",
	Short: "Show an item record and its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		ctx := cmd.Context()
		number := registry.Normalize(args[0])
		item, err := store.GetItem(ctx, number)
		if err != nil {
			return err
		}

		price := "(no price)"
		if item.PriceEst != nil {
			price = item.PriceEst.StringFixed(2)
		}
		fmt.Printf("Item:      %s\n", item.ItemNumber)
		fmt.Printf("Revision:  %s.%d\n", item.Revision, item.Iteration)
		fmt.Printf("State:     %s\n", item.LifecycleState)
		fmt.Printf("Price Est: %s\n", price)

		files, err := store.ListFilesByItem(ctx, number)
		if err != nil {
			return err
		}
		if len(files) > 0 {
			fmt.Println("Files:")
			for _, f := range files {
				fmt.Printf("  %-8s %s\n", f.FileType, f.FilePath)
			}
		}

		parents, err := store.CountParents(ctx, number)
		if err != nil {
			return err
		}
		children, err := store.ListChildren(ctx, number)
		if err != nil {
			return err
		}
		fmt.Printf("Used in %d assemblies, contains %d distinct children\n",
			parents, len(children))
		return nil
	},
}

var itemPriceCmd = &cobra.Command{
	Use:   "price <item-number> <amount>",
	Short: "Set an item's estimated unit price",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		price, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("invalid price %q: %w", args[1], err)
		}
		if price.IsNegative() {
			return fmt.Errorf("price must not be negative")
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		number := registry.Normalize(args[0])
		if err := store.SetItemPrice(cmd.Context(), number, price); err != nil {
			return err
		}
		fmt.Printf("%s price set to %s\n", number, price.StringFixed(2))
		return nil
	},
}

var itemStateCmd = &cobra.Command{
	Use:   "state <item-number> <state>",
	Short: "Set an item's lifecycle state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		number := registry.Normalize(args[0])
		if err := store.SetItemState(cmd.Context(), number, args[1]); err != nil {
			return err
		}
		fmt.Printf("%s state set to %s\n", number, args[1])
		return nil
	},
}

var queueLimit int

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the synchronization work queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending work tasks oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		tasks, err := store.ListWork(cmd.Context(), queueLimit)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println("Queue is empty")
			return nil
		}
		for _, t := range tasks {
			fmt.Printf("%6d  %-10s  %-12s  %s\n",
				t.ID, t.TaskType, t.ItemNumber, t.FilePath)
		}
		return nil
	},
}

// openStore opens the database for the one-shot commands, resolving the path
// from --db or the config file.
func openStore() (*storage.SQLiteStore, error) {
	path := dbPath
	if path == "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		path = cfg.DBPath
	}
	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return store, nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Config file path")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database file path (overrides config)")

	rollupCmd.Flags().Int64Var(&rollupQty, "qty", 1, "Number of units to cost")
	queueListCmd.Flags().IntVar(&queueLimit, "limit", 50, "Maximum tasks to list")

	itemCmd.AddCommand(itemShowCmd, itemPriceCmd, itemStateCmd)
	queueCmd.AddCommand(queueListCmd)
	rootCmd.AddCommand(versionCmd, watchCmd, rollupCmd, itemCmd, queueCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
