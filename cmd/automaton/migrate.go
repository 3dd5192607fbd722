package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, logger, s, err := setup(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
}
