package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calderio/automaton/internal/store"
	"github.com/calderio/automaton/internal/validation"
	"github.com/calderio/automaton/pkg/schema"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [workflow-id...]",
		Short: "Check stored workflow definitions against the validation rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, logger, s, err := setup(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			validator, err := validation.NewTriggerValidator()
			if err != nil {
				return err
			}

			var workflows []*schema.Workflow
			if len(args) > 0 {
				for _, id := range args {
					wf, err := s.GetWorkflow(ctx, id)
					if err != nil {
						return err
					}
					workflows = append(workflows, wf)
				}
			} else {
				all, err := s.ListWorkflows(ctx, store.WorkflowFilter{})
				if err != nil {
					return err
				}
				workflows = all
			}

			invalid := 0
			for _, wf := range workflows {
				steps, err := s.ListWorkflowSteps(ctx, wf.ID)
				if err != nil {
					return err
				}
				if err := validator.ValidateWorkflow(wf, steps); err != nil {
					invalid++
					fmt.Printf("INVALID  %s (%s): %v\n", wf.ID, wf.Name, err)
					continue
				}
				fmt.Printf("ok       %s (%s)\n", wf.ID, wf.Name)
			}

			logger.Info("validation finished",
				"workflows", len(workflows), "invalid", invalid)
			if invalid > 0 {
				return fmt.Errorf("%d workflow(s) failed validation", invalid)
			}
			return nil
		},
	}
}
