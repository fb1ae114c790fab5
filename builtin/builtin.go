// Package builtin provides the core units every engine ships with: basic
// triggers and conditions, variable assignment, logging, stop signals and
// the delay, pause and wait actions.
package builtin

import (
	automation "github.com/goliatone/go-automation"
	"github.com/goliatone/go-automation/dispatcher"
	"github.com/goliatone/go-automation/registry"
)

const (
	TriggerAlways    = "always"
	TriggerEventType = "event_type"

	ConditionEquals   = "equals"
	ConditionNotEmpty = "not_empty"

	VariableSet = "set"

	ActionLog            = "log"
	ActionStop           = "stop"
	ActionDelay          = "delay"
	ActionPauseUntil     = "pause_until"
	ActionWaitForTrigger = "wait_for_trigger"

	ResultVariables = "variables"
)

// Units returns every built-in unit. wait_for_trigger resolves its trigger
// from reg and listens on bus; logger receives the log action output.
func Units(reg *registry.Registry, bus *dispatcher.Dispatcher, logger automation.Logger) []automation.Unit {
	logger = automation.NormalizeLogger(logger)
	return []automation.Unit{
		Always(),
		EventType(),
		Equals(),
		NotEmpty(),
		Set(),
		Log(logger),
		Stop(),
		Delay(),
		PauseUntil(),
		WaitForTrigger(reg, bus),
		Variables(),
	}
}

// Register adds every built-in unit to reg.
func Register(reg *registry.Registry, bus *dispatcher.Dispatcher, logger automation.Logger) error {
	return reg.Register(Units(reg, bus, logger)...)
}
