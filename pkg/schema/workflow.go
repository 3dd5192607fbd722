package schema

import (
	"encoding/json"
	"time"
)

// TriggerType discriminates how a workflow is started.
type TriggerType string

const (
	TriggerTypeEvent    TriggerType = "event"
	TriggerTypeSchedule TriggerType = "schedule"
)

// StepType enumerates the kinds of steps in a workflow.
type StepType string

const (
	StepTypeAction    StepType = "action"
	StepTypeCondition StepType = "condition"
	StepTypeDelay     StepType = "delay"
	StepTypeLoop      StepType = "loop"
)

// ActionType enumerates the closed set of action step handlers.
type ActionType string

const (
	ActionSendEmail                 ActionType = "send_email"
	ActionSendNotification          ActionType = "send_notification"
	ActionSendPush                  ActionType = "send_push"
	ActionCreateContact             ActionType = "create_contact"
	ActionUpdateContact             ActionType = "update_contact"
	ActionUpdateOpportunity         ActionType = "update_opportunity"
	ActionAddTag                    ActionType = "add_tag"
	ActionRemoveTag                 ActionType = "remove_tag"
	ActionCreateProject             ActionType = "create_project"
	ActionCreateProjectFromTemplate ActionType = "create_project_from_template"
	ActionCreateActivity            ActionType = "create_activity"
	ActionWebhookCall               ActionType = "webhook_call"
	ActionSendSlack                 ActionType = "send_slack"
	ActionAIGenerate                ActionType = "ai_generate"
	ActionAICategorize              ActionType = "ai_categorize"
	ActionAISummarize               ActionType = "ai_summarize"
)

// ActionTypes lists every known action type, sorted by name.
// Used by validation to reject unknown action_type values.
var ActionTypes = []ActionType{
	ActionAICategorize,
	ActionAIGenerate,
	ActionAISummarize,
	ActionAddTag,
	ActionCreateActivity,
	ActionCreateContact,
	ActionCreateProject,
	ActionCreateProjectFromTemplate,
	ActionRemoveTag,
	ActionSendEmail,
	ActionSendNotification,
	ActionSendPush,
	ActionSendSlack,
	ActionUpdateContact,
	ActionUpdateOpportunity,
	ActionWebhookCall,
}

// RunStatus is the lifecycle state of a WorkflowRun.
// Valid transitions: running ⇄ paused, running → completed | failed.
// cancelled is set out-of-band and is terminal.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// StepStatus is the state recorded on a WorkflowRunStep log row.
type StepStatus string

const (
	StepStatusRunning StepStatus = "running"
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
	StepStatusPending StepStatus = "pending"
)

// ScheduledStepStatus is the state of a parked delay resumption.
type ScheduledStepStatus string

const (
	ScheduledStepPending   ScheduledStepStatus = "pending"
	ScheduledStepExecuted  ScheduledStepStatus = "executed"
	ScheduledStepCancelled ScheduledStepStatus = "cancelled"
)

// Workflow is a stored automation definition. It is immutable during a run;
// edits happen out-of-band through the management surfaces.
type Workflow struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	Name           string          `json:"name"`
	TriggerType    TriggerType     `json:"trigger_type"`
	TriggerConfig  json.RawMessage `json:"trigger_config,omitempty"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// StepConfig is the step-type-specific payload of a WorkflowStep.
type StepConfig map[string]any

// WorkflowStep is one step of a workflow. StepOrder defines the default
// execution sequence; ElseGotoStep is the false-branch jump target of a
// condition step (nil means fall through to the next step).
type WorkflowStep struct {
	ID           string     `json:"id"`
	WorkflowID   string     `json:"workflow_id"`
	StepOrder    int        `json:"step_order"`
	StepType     StepType   `json:"step_type"`
	ActionType   ActionType `json:"action_type,omitempty"`
	Config       StepConfig `json:"config,omitempty"`
	ElseGotoStep *int       `json:"else_goto_step,omitempty"`
}

// EventTriggerConfig configures an event-triggered workflow.
// An empty EventTypes list matches all events.
type EventTriggerConfig struct {
	EventTypes []string       `json:"event_types,omitempty"`
	EntityType string         `json:"entity_type,omitempty"`
	Filters    map[string]any `json:"filters,omitempty"`
}

// ScheduleType enumerates schedule trigger cadences.
// ScheduleCron is accepted by validation but never evaluates as due.
type ScheduleType string

const (
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
	ScheduleMonthly ScheduleType = "monthly"
	ScheduleCron    ScheduleType = "cron"
)

// ScheduleTriggerConfig configures a schedule-triggered workflow.
// Time is "HH:MM" (default 09:00). DayOfWeek uses 0=Sunday..6=Saturday
// (default Monday); DayOfMonth defaults to 1.
type ScheduleTriggerConfig struct {
	ScheduleType ScheduleType `json:"schedule_type"`
	Time         string       `json:"time,omitempty"`
	DayOfWeek    *int         `json:"day_of_week,omitempty"`
	DayOfMonth   *int         `json:"day_of_month,omitempty"`
}

// ParseEventTriggerConfig decodes a workflow's trigger_config as an event trigger.
func ParseEventTriggerConfig(raw json.RawMessage) (*EventTriggerConfig, error) {
	cfg := &EventTriggerConfig{}
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, NewError(ErrCodeValidation, "invalid event trigger config").WithCause(err)
	}
	return cfg, nil
}

// ParseScheduleTriggerConfig decodes a workflow's trigger_config as a schedule trigger.
func ParseScheduleTriggerConfig(raw json.RawMessage) (*ScheduleTriggerConfig, error) {
	if len(raw) == 0 {
		return nil, NewError(ErrCodeValidation, "schedule trigger config is empty")
	}
	cfg := &ScheduleTriggerConfig{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, NewError(ErrCodeValidation, "invalid schedule trigger config").WithCause(err)
	}
	return cfg, nil
}
