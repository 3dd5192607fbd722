// Command automaton runs the workflow execution engine: the periodic sweeps
// that start scheduled workflows and resume delayed runs, plus database
// maintenance subcommands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/calderio/automaton/internal/config"
	"github.com/calderio/automaton/internal/logging"
	"github.com/calderio/automaton/internal/store"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:           "automaton",
		Short:         "Durable workflow execution engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads config and builds the logger and store.
func setup(ctx context.Context) (*config.Config, *slog.Logger, store.Store, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, err
	}

	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var inner slog.Handler
	if cfg.Log.Format == "json" {
		inner = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		inner = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(logging.NewCorrelationHandler(inner))

	s, err := newStore(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, s, nil
}

func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.Database.DSN)
	default:
		return store.NewLibSQLStore(cfg.Database.DSN)
	}
}
