package flow

import (
	"fmt"
	"strings"
	"time"

	automation "github.com/goliatone/go-automation"
)

// Definition is the declarative form of an automation.
type Definition struct {
	Alias       string            `json:"alias" yaml:"alias"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Triggers    []automation.Step `json:"triggers,omitempty" yaml:"triggers,omitempty"`
	Conditions  []automation.Step `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Variables   []automation.Step `json:"variables,omitempty" yaml:"variables,omitempty"`
	Actions     []automation.Step `json:"actions,omitempty" yaml:"actions,omitempty"`
	Result      *automation.Step  `json:"result,omitempty" yaml:"result,omitempty"`
}

// Validate checks the structural rules a definition must satisfy before
// units are resolved.
func (d Definition) Validate() error {
	alias := strings.TrimSpace(d.Alias)
	if alias == "" {
		return automation.NewInvalidAutomationError("", "alias is required")
	}
	groups := []struct {
		name  string
		steps []automation.Step
	}{
		{"triggers", d.Triggers},
		{"conditions", d.Conditions},
		{"variables", d.Variables},
		{"actions", d.Actions},
	}
	for _, g := range groups {
		for i, step := range g.steps {
			if strings.TrimSpace(step.Unit) == "" {
				return automation.NewInvalidAutomationError(alias, fmt.Sprintf("%s[%d]: unit is required", g.name, i))
			}
		}
	}
	if d.Result != nil && strings.TrimSpace(d.Result.Unit) == "" {
		return automation.NewInvalidAutomationError(alias, "result: unit is required")
	}
	return nil
}

// Clone returns a deep copy.
func (d Definition) Clone() Definition {
	out := d
	out.Triggers = cloneSteps(d.Triggers)
	out.Conditions = cloneSteps(d.Conditions)
	out.Variables = cloneSteps(d.Variables)
	out.Actions = cloneSteps(d.Actions)
	if d.Result != nil {
		r := d.Result.Clone()
		out.Result = &r
	}
	return out
}

// DocumentOptions holds engine settings carried by a definitions document.
type DocumentOptions struct {
	// SweepSchedule is the cron expression used to evict expired paused runs.
	SweepSchedule string `json:"sweep_schedule,omitempty" yaml:"sweep_schedule,omitempty"`
	// DefaultPauseTimeout applies to pauses that do not set their own timeout.
	DefaultPauseTimeout time.Duration `json:"default_pause_timeout,omitempty" yaml:"default_pause_timeout,omitempty"`
}

// Document is a set of automation definitions loaded from YAML or JSON.
type Document struct {
	Version     string          `json:"version,omitempty" yaml:"version,omitempty"`
	Options     DocumentOptions `json:"options,omitempty" yaml:"options,omitempty"`
	Automations []Definition    `json:"automations" yaml:"automations"`
}

// Validate checks every definition and rejects duplicate aliases.
func (d Document) Validate() error {
	seen := make(map[string]struct{}, len(d.Automations))
	for _, def := range d.Automations {
		if err := def.Validate(); err != nil {
			return err
		}
		alias := strings.TrimSpace(def.Alias)
		if _, ok := seen[alias]; ok {
			return automation.NewInvalidAutomationError(alias, "duplicate alias")
		}
		seen[alias] = struct{}{}
	}
	return nil
}

func cloneSteps(in []automation.Step) []automation.Step {
	if in == nil {
		return nil
	}
	out := make([]automation.Step, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}
