package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/GriffinCanCode/courier/internal/infrastructure/config"
	"github.com/GriffinCanCode/courier/internal/infrastructure/logging"
	"github.com/GriffinCanCode/courier/internal/infrastructure/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// flags holds overrides shared by every subcommand. Empty values leave the
// environment configuration alone.
type flags struct {
	storageDriver string
	storagePath   string
	counterKey    string
	logLevel      string
	dev           bool

	relayURL  string
	apiHost   string
	apiPort   string
	directory string
	proxy     string
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "courier",
		Short:         "Tag container requests with correlation ids and relay them to Pioneer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.storageDriver, "storage-driver", "", "counter store driver (badger, sqlite, memory)")
	pf.StringVar(&f.storagePath, "storage", "", "counter store path")
	pf.StringVar(&f.counterKey, "counter-key", "", "counter key inside the store")
	pf.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.BoolVar(&f.dev, "dev", false, "development logging")

	root.AddCommand(newServeCmd(f), newCounterCmd(f))
	return root
}

func newServeCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.relayURL, "relay-url", "", "relay WebSocket url")
	fl.StringVar(&f.apiHost, "api-host", "", "hook API listen host")
	fl.StringVar(&f.apiPort, "api-port", "", "hook API listen port")
	fl.StringVar(&f.directory, "directory", "", "container directory file")
	fl.StringVar(&f.proxy, "proxy", "", "enable the forward proxy on this address")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return err
	}

	runErr := srv.Run(ctx)
	if err := srv.Close(); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	return runErr
}

func newCounterCmd(f *flags) *cobra.Command {
	counter := &cobra.Command{
		Use:   "counter",
		Short: "Inspect or reconcile the persisted correlation counter",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the persisted counter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			store, closeStore, err := server.OpenCounterStore(cfg.Storage, zap.NewNop())
			if err != nil {
				return err
			}
			defer closeStore()

			value, found, err := store.Get(cmd.Context(), cfg.Correlation.CounterKey)
			if err != nil {
				return fmt.Errorf("read counter: %w", err)
			}
			if !found {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: unset\n", cfg.Correlation.CounterKey)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", cfg.Correlation.CounterKey, value)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set N",
		Short: "Overwrite the persisted counter; the next minted id is N+1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || value < 0 {
				return fmt.Errorf("counter must be a non-negative integer, got %q", args[0])
			}
			cfg, err := f.load()
			if err != nil {
				return err
			}
			store, closeStore, err := server.OpenCounterStore(cfg.Storage, zap.NewNop())
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.Set(cmd.Context(), cfg.Correlation.CounterKey, value); err != nil {
				return fmt.Errorf("write counter: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", cfg.Correlation.CounterKey, value)
			return nil
		},
	}

	counter.AddCommand(show, set)
	return counter
}

// load reads the environment and applies flag overrides.
func (f *flags) load() (*config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}

	if f.storageDriver != "" {
		cfg.Storage.Driver = f.storageDriver
	}
	if f.storagePath != "" {
		cfg.Storage.Path = f.storagePath
	}
	if f.counterKey != "" {
		cfg.Correlation.CounterKey = f.counterKey
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.dev {
		cfg.Logging.Development = true
	}
	if f.relayURL != "" {
		cfg.Relay.URL = f.relayURL
	}
	if f.apiHost != "" {
		cfg.API.Host = f.apiHost
	}
	if f.apiPort != "" {
		cfg.API.Port = f.apiPort
	}
	if f.directory != "" {
		cfg.Directory.Source = config.SourceFile
		cfg.Directory.Path = f.directory
	}
	if f.proxy != "" {
		cfg.Proxy.Enabled = true
		cfg.Proxy.Addr = f.proxy
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
