package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/calderio/automaton/internal/actions"
	"github.com/calderio/automaton/internal/engine"
	"github.com/calderio/automaton/internal/providers"
	"github.com/calderio/automaton/internal/scheduler"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the periodic scheduled-trigger and delayed-resume sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, logger, s, err := setup(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	registry, err := actions.NewDefaultRegistry(actions.Providers{
		Store:    s,
		Email:    &providers.LogEmailSender{Logger: logger},
		Notifier: &providers.LogNotifier{Logger: logger},
		Slack:    providers.NoSlackClient{},
		AI:       providers.NoAIProvider{},
		Webhook:  actions.WebhookConfig{DefaultTimeout: cfg.Webhook.Timeout},
	})
	if err != nil {
		return fmt.Errorf("build action registry: %w", err)
	}

	eng := engine.New(s, registry, logger)
	processor := scheduler.NewProcessor(s, eng, logger)

	c := cron.New()
	_, err = c.AddFunc(cfg.Scheduler.SweepSpec, func() {
		sweepCtx := context.Background()
		started, err := processor.ProcessScheduledWorkflows(sweepCtx)
		if err != nil {
			logger.Error("scheduled workflow sweep failed", slog.String("error", err.Error()))
		} else if started > 0 {
			logger.Info("scheduled workflow sweep finished", slog.Int("started", started))
		}
		processor.ResumeDelayedWorkflows(sweepCtx)
	})
	if err != nil {
		return fmt.Errorf("invalid sweep spec %q: %w", cfg.Scheduler.SweepSpec, err)
	}

	c.Start()
	logger.Info("automaton serving",
		slog.String("sweep_spec", cfg.Scheduler.SweepSpec),
		slog.String("database", cfg.Database.Driver))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-ctx.Done():
	case <-sig:
	}

	logger.Info("shutting down")
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}
