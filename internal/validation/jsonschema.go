package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/calderio/automaton/pkg/schema"
)

// Trigger config JSON Schemas, embedded as constants to avoid filesystem
// dependencies.

const eventTriggerSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://calder.io/schemas/event-trigger.json",
  "type": "object",
  "properties": {
    "event_types": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    },
    "entity_type": { "type": "string" },
    "filters": { "type": "object" }
  },
  "additionalProperties": false
}`

const scheduleTriggerSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://calder.io/schemas/schedule-trigger.json",
  "type": "object",
  "required": ["schedule_type"],
  "properties": {
    "schedule_type": {
      "type": "string",
      "enum": ["daily", "weekly", "monthly", "cron"]
    },
    "time": {
      "type": "string",
      "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]$"
    },
    "day_of_week": {
      "type": "integer",
      "minimum": 0,
      "maximum": 6
    },
    "day_of_month": {
      "type": "integer",
      "minimum": 1,
      "maximum": 31
    },
    "cron_expression": { "type": "string" }
  },
  "additionalProperties": false
}`

// TriggerValidator validates workflow trigger configs against their JSON
// Schemas. Safe for concurrent use once constructed.
type TriggerValidator struct {
	eventSchema    *jsonschema.Schema
	scheduleSchema *jsonschema.Schema
}

// NewTriggerValidator compiles the trigger config schemas.
func NewTriggerValidator() (*TriggerValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	eventSchema, err := compileResource(c, "https://calder.io/schemas/event-trigger.json", eventTriggerSchemaJSON)
	if err != nil {
		return nil, err
	}
	scheduleSchema, err := compileResource(c, "https://calder.io/schemas/schedule-trigger.json", scheduleTriggerSchemaJSON)
	if err != nil {
		return nil, err
	}

	return &TriggerValidator{
		eventSchema:    eventSchema,
		scheduleSchema: scheduleSchema,
	}, nil
}

// ValidateTriggerConfig checks a workflow's trigger config against the schema
// matching its trigger type.
func (v *TriggerValidator) ValidateTriggerConfig(triggerType schema.TriggerType, raw json.RawMessage) error {
	switch triggerType {
	case schema.TriggerTypeEvent:
		if len(raw) == 0 {
			return nil // an event trigger without config matches all events
		}
		return v.validate(v.eventSchema, raw)
	case schema.TriggerTypeSchedule:
		if len(raw) == 0 {
			return schema.NewError(schema.ErrCodeValidation, "schedule trigger requires a config")
		}
		return v.validate(v.scheduleSchema, raw)
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown trigger type %q", triggerType)
	}
}

func (v *TriggerValidator) validate(compiled *jsonschema.Schema, raw json.RawMessage) error {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "trigger config is not valid JSON").WithCause(err)
	}
	if err := compiled.Validate(doc); err != nil {
		return toEngineError(err)
	}
	return nil
}

func compileResource(c *jsonschema.Compiler, url, schemaJSON string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema %s: %w", url, err)
	}
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", url, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", url, err)
	}
	return compiled, nil
}

// toEngineError converts a jsonschema.ValidationError into an EngineError
// with the leaf violations collected into details.
func toEngineError(err error) *schema.EngineError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
