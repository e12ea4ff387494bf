package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:           "cwstate",
		Short:         "Watch the raw state of a CosmWasm contract",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadDotEnv(".env")
		},
	}

	root.PersistentFlags().String("config", "", "config file path")

	watchCmd := &cobra.Command{
		Use:   "watch <contract-address>",
		Short: "Poll the contract state and print every change",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}

	watchCmd.Flags().String("lcd", "", "LCD endpoint override (also OVERLOAD_LCD)")
	watchCmd.Flags().Duration("poll-interval", 5*time.Second, "time between state polls")
	watchCmd.Flags().Int("failure-threshold", 3, "consecutive failed polls before failover")
	watchCmd.Flags().Duration("probe-timeout", 5*time.Second, "endpoint health probe timeout")
	watchCmd.Flags().Duration("page-timeout", 10*time.Second, "timeout per state page")
	watchCmd.Flags().Int("page-limit", 100, "entries requested per state page")
	watchCmd.Flags().String("out", "", "append changes to this JSONL file")
	watchCmd.Flags().String("pg-dsn", "", "also record changes in Postgres")
	watchCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	watchCmd.Flags().Int("max-retries", 3, "retries for a failed change write")
	watchCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial change write retry backoff")
	watchCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(watchCmd)

	stateCmd := &cobra.Command{
		Use:   "state <contract-address>",
		Short: "Print the current contract state grouped into items and maps",
		Args:  cobra.ExactArgs(1),
		RunE:  runState,
	}

	stateCmd.Flags().String("lcd", "", "LCD endpoint override (also OVERLOAD_LCD)")
	stateCmd.Flags().Duration("probe-timeout", 5*time.Second, "endpoint health probe timeout")
	stateCmd.Flags().Duration("page-timeout", 10*time.Second, "timeout per state page")
	stateCmd.Flags().Int("page-limit", 100, "entries requested per state page")
	stateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(stateCmd)

	chainsCmd := &cobra.Command{
		Use:   "chains",
		Short: "List supported address prefixes and their endpoints",
		Args:  cobra.NoArgs,
		RunE:  runChains,
	}

	root.AddCommand(chainsCmd)

	if err := root.Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// loggedError marks an error that has already been written to the log.
type loggedError struct {
	err error
}

func (e *loggedError) Error() string { return e.err.Error() }

func (e *loggedError) Unwrap() error { return e.err }

// reportError prints err unless it has already been logged.
func reportError(w io.Writer, err error) {
	var logged *loggedError
	if errors.As(err, &logged) {
		return
	}
	fmt.Fprintln(w, "Error:", err)
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
