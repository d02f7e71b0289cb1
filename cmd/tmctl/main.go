package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/peternagy/tablemoins/internal/config"
	"github.com/peternagy/tablemoins/internal/connection"
	"github.com/peternagy/tablemoins/internal/credential"
	"github.com/peternagy/tablemoins/internal/logging"
	"github.com/peternagy/tablemoins/internal/storage"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var (
	dbPath    string
	verbosity int
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tmctl",
		Short:         "tmctl - manage tablemoins connection profiles",
		Long:          `tmctl manages the connection profiles of tablemoins and runs one-off statements against them.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "profile database path (default: config directory, or TABLEMOINS_DB_PATH)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")

	rootCmd.AddCommand(newProfileCmd(), newTestCmd(), newExecCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tmctl %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})
	return rootCmd
}

// loadConfig applies CLI overrides on top of the environment configuration.
func loadConfig() config.Config {
	cfg := config.Load()
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	switch {
	case verbosity >= 2:
		cfg.LogLevel = "trace"
	case verbosity == 1:
		cfg.LogLevel = "debug"
	}
	return cfg
}

// openService wires the profile store and cipher the same way the desktop
// app does. The returned func releases everything.
func openService(cfg config.Config) (*connection.Service, func(), error) {
	logging.Apply(cfg.LogLevel, "")

	if err := cfg.EnsureConfigDir(); err != nil {
		return nil, nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	cipher, err := credential.NewCipherFromStore(credential.NewKeyStore(filepath.Join(cfg.ConfigDir, "master.key")))
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	svc := connection.NewService(cfg, storage.NewConnectionStore(db), cipher, nil, nil)
	return svc, func() {
		svc.Shutdown(context.Background())
		db.Close()
	}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
