// Package cli implements the eventstore command line: init, append, query, and serve.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore/sqlengine"
	"github.com/AntonStoeckl/scoped-eventstore-go/internal/config"
	"github.com/AntonStoeckl/scoped-eventstore-go/internal/logging"
	"github.com/AntonStoeckl/scoped-eventstore-go/internal/storefactory"
)

// RootOptions holds the global flags and the state loaded from them before a command runs.
type RootOptions struct {
	ConfigFile string

	viper     *viper.Viper
	bindErr   error
	Config    config.Config
	Logger    *slog.Logger
	logCloser io.Closer
}

// NewRootCommand creates the root command of the eventstore binary.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{viper: config.New()})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eventstore",
		Short: "Operate an append-only event store with query-scoped optimistic concurrency",
		Long: `Operate an append-only event store with query-scoped optimistic concurrency.

Settings come from defaults, an optional --config file (YAML or TOML),
EVENTSTORE_* environment variables (e.g. EVENTSTORE_LOG_LEVEL), and flags,
in ascending precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitUsage, "invalid flags", err)
	})

	// Global flags
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (yaml|toml)")
	flags.String("backend", config.DefaultBackend, "database backend (sqlite|pgx|sqldb|sqlx)")
	flags.String("dsn", config.DefaultDSN, "database DSN")
	flags.String("replica-dsn", "", "read replica DSN (pgx only)")
	flags.String("table", config.DefaultTable, "events table name")
	flags.String("log-level", config.DefaultLogLevel, "log level (debug|info|warn|error)")
	flags.String("log-format", config.DefaultLogFormat, "log format (text|json)")
	flags.String("log-file", "", "log to this file with rotation instead of stderr")

	opts.bindFlags(flags, map[string]string{
		config.KeyBackend:    "backend",
		config.KeyDSN:        "dsn",
		config.KeyReplicaDSN: "replica-dsn",
		config.KeyTable:      "table",
		config.KeyLogLevel:   "log-level",
		config.KeyLogFormat:  "log-format",
		config.KeyLogFile:    "log-file",
	})

	// Add subcommands
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewAppendCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// bindFlags binds flags to configuration keys, so that a flag given on the command line wins over env and file.
func (opts *RootOptions) bindFlags(flags *pflag.FlagSet, keysToFlags map[string]string) {
	for key, name := range keysToFlags {
		if err := opts.viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			opts.bindErr = errors.Join(opts.bindErr, fmt.Errorf("binding flag --%s: %w", name, err))
		}
	}
}

func (opts *RootOptions) load(cmd *cobra.Command) error {
	if opts.bindErr != nil {
		return WrapExitError(ExitFailure, "setting up flags failed", opts.bindErr)
	}

	cfg, err := config.Load(opts.viper, opts.ConfigFile)
	if err != nil {
		return exitErrorFor("loading the configuration failed", err)
	}

	logger, closer, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitUsage, "setting up logging failed", err)
	}

	opts.Config = cfg
	opts.Logger = logger
	opts.logCloser = closer

	return nil
}

func (opts *RootOptions) close() error {
	if opts.logCloser == nil {
		return nil
	}

	return opts.logCloser.Close()
}

// withStore opens the configured store, runs fn, and closes the store again.
func (opts *RootOptions) withStore(
	ctx context.Context,
	fn func(store *storefactory.Store) error,
	options ...sqlengine.Option,
) (err error) {

	options = append([]sqlengine.Option{sqlengine.WithLogger(opts.Logger)}, options...)

	store, err := storefactory.Open(ctx, opts.Config, options...)
	if err != nil {
		return WrapExitError(ExitFailure, "opening the event store failed", err)
	}

	defer func() {
		if closeErr := store.Close(); closeErr != nil && err == nil {
			err = WrapExitError(ExitFailure, "closing the event store failed", closeErr)
		}
	}()

	return fn(store)
}

// Execute runs the binary with args and returns its exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{viper: config.New()}
	defer func() { _ = opts.close() }()

	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return GetExitCode(err)
	}

	return ExitSuccess
}
