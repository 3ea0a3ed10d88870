// Package main implements the tsdemo binary: provisioning, sample ingestion
// and querying against Amazon Timestream.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tsdemo/tsdemo/internal/app"
	"github.com/tsdemo/tsdemo/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configFile string
	dataDir    string
	region     string
	database   string
	table      string
	outputFile string
	logLevel   string

	// appOpts are passed to every App the commands build.
	appOpts []app.Option
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(appOpts ...app.Option) *cobra.Command {
	opts := &globalOptions{appOpts: appOpts}

	rootCmd := &cobra.Command{
		Use:           "tsdemo",
		Short:         "tsdemo - Amazon Timestream sample application",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `Provision a Timestream database and table, ingest sample host metrics,
run the sample queries and print their decoded result sets.

Configuration is read from --config (YAML or JSON), then TSDEMO_* environment
variables, then command line flags, each overriding the previous.`,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flags.StringVar(&opts.dataDir, "data-dir", "", "Directory for the ledger and downloaded reports")
	flags.StringVar(&opts.region, "region", "", "AWS region (default us-east-1)")
	flags.StringVar(&opts.database, "database", "", "Timestream database name")
	flags.StringVar(&opts.table, "table", "", "Timestream table name")
	flags.StringVar(&opts.outputFile, "output-file", "", "File receiving query output (default query_results.log)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")

	rootCmd.AddCommand(
		newProvisionCmd(opts),
		newIngestCmd(opts),
		newQueryCmd(opts),
		newCancelCmd(opts),
		newCleanupCmd(opts),
		newRejectedCmd(opts),
		newHistoryCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tsdemo version %s (commit: %s)\n", version, commit)
		},
	}
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	var cfg *config.Config
	var err error

	// Start with defaults or load from file
	if opts.configFile != "" {
		cfg, err = config.LoadFromFile(opts.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Apply environment variables
	config.LoadFromEnv(cfg)

	// Apply command line flags (highest priority)
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	if opts.region != "" {
		cfg.AWS.Region = opts.region
	}
	if opts.database != "" {
		cfg.Timestream.Database = opts.database
	}
	if opts.table != "" {
		cfg.Timestream.Table = opts.table
	}
	if opts.outputFile != "" {
		cfg.Output.File = opts.outputFile
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	return cfg, nil
}

// runApp builds an App from opts and runs fn under a context cancelled by
// SIGINT or SIGTERM. The app is closed afterwards.
func runApp(cmd *cobra.Command, opts *globalOptions, mutate func(*config.Config), fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if mutate != nil {
		mutate(cfg)
	}

	application, err := app.New(cfg, opts.appOpts...)
	if err != nil {
		return err
	}
	ctx, stop := application.Lifecycle().SignalContext(cmd.Context())
	defer stop()

	runErr := fn(ctx, application)
	if err := application.Close(context.Background()); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
