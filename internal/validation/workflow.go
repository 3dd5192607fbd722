// Package validation checks workflow definitions before they are accepted:
// trigger configs against JSON Schemas, steps against structural rules the
// schemas cannot express.
package validation

import (
	"fmt"

	"github.com/calderio/automaton/pkg/schema"
)

// ValidateWorkflow checks a workflow and its steps. Two steps sharing a
// step_order is a configuration error and is rejected outright; execution
// order would be undefined.
func (v *TriggerValidator) ValidateWorkflow(wf *schema.Workflow, steps []schema.WorkflowStep) error {
	if wf == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}
	if wf.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow name is empty")
	}
	if wf.OrganizationID == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow has no organization")
	}

	if err := v.ValidateTriggerConfig(wf.TriggerType, wf.TriggerConfig); err != nil {
		return err
	}

	return ValidateSteps(steps)
}

// ValidateSteps checks the structural step rules on their own. The engine
// runs this before creating a run, so an invalid step set never executes.
func ValidateSteps(steps []schema.WorkflowStep) error {
	seen := make(map[int]struct{}, len(steps))
	for _, step := range steps {
		if _, exists := seen[step.StepOrder]; exists {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"duplicate step_order %d", step.StepOrder)
		}
		seen[step.StepOrder] = struct{}{}

		if err := validateStep(step); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(step schema.WorkflowStep) error {
	switch step.StepType {
	case schema.StepTypeAction:
		if step.ActionType == "" {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"step %d: action step requires action_type", step.StepOrder)
		}
		if !knownActionType(step.ActionType) {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"step %d: unknown action_type %q", step.StepOrder, step.ActionType)
		}
	case schema.StepTypeCondition:
		if stepConfigString(step.Config, "field") == "" {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"step %d: condition step requires field", step.StepOrder)
		}
		if stepConfigString(step.Config, "operator") == "" {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"step %d: condition step requires operator", step.StepOrder)
		}
	case schema.StepTypeDelay:
		switch stepConfigString(step.Config, "delay_type") {
		case "minutes", "hours", "days":
		default:
			return schema.NewErrorf(schema.ErrCodeValidation,
				"step %d: delay step requires delay_type of minutes, hours, or days", step.StepOrder)
		}
	case schema.StepTypeLoop:
		if stepConfigString(step.Config, "collection_field") == "" {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"step %d: loop step requires collection_field", step.StepOrder)
		}
	default:
		return schema.NewErrorf(schema.ErrCodeValidation,
			"step %d: unknown step_type %q", step.StepOrder, step.StepType)
	}

	if step.StepType != schema.StepTypeCondition && step.ElseGotoStep != nil {
		return schema.NewError(schema.ErrCodeValidation,
			fmt.Sprintf("step %d: else_goto_step is only valid on condition steps", step.StepOrder))
	}

	return nil
}

func knownActionType(at schema.ActionType) bool {
	for _, known := range schema.ActionTypes {
		if at == known {
			return true
		}
	}
	return false
}

func stepConfigString(cfg schema.StepConfig, key string) string {
	v, _ := cfg[key].(string)
	return v
}
