package builtin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	automation "github.com/goliatone/go-automation"
	"github.com/goliatone/go-automation/dispatcher"
	"github.com/goliatone/go-automation/registry"
)

type SetConfig struct {
	Values map[string]any `json:"values"`
}

// Set assigns each configured value as a run variable.
func Set() automation.Variable {
	return automation.NewVariable[SetConfig](VariableSet, automation.VariableFunc[SetConfig](
		func(_ context.Context, _ *automation.EventContext, cfg SetConfig) (map[string]any, error) {
			out := make(map[string]any, len(cfg.Values))
			for k, v := range cfg.Values {
				out[k] = v
			}
			return out, nil
		},
	), automation.WithDescription("assigns variables"))
}

type LogConfig struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

func (c LogConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "", "trace", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("unknown log level %q", c.Level)
}

// Log writes the rendered message to logger.
func Log(logger automation.Logger) automation.Action {
	logger = automation.NormalizeLogger(logger)
	return automation.NewAction[LogConfig](ActionLog, automation.ActionFunc[LogConfig](
		func(_ context.Context, ec *automation.EventContext, cfg LogConfig) (automation.ActionResult, error) {
			l := automation.WithLoggerFields(logger, map[string]any{
				"execution_id": ec.ExecutionID(),
				"event_type":   ec.EventType(),
			})
			switch strings.ToLower(cfg.Level) {
			case "trace":
				l.Trace(cfg.Message)
			case "debug":
				l.Debug(cfg.Message)
			case "warn":
				l.Warn(cfg.Message)
			case "error":
				l.Error(cfg.Message)
			default:
				l.Info(cfg.Message)
			}
			return automation.Continue(), nil
		},
	), automation.WithDescription("logs a message"))
}

const (
	ScopeSequence   = "sequence"
	ScopeAutomation = "automation"
)

type StopConfig struct {
	// When gates the stop; it usually carries a rendered expression.
	When   *bool  `json:"when"`
	Scope  string `json:"scope"`
	Reason string `json:"reason"`
}

func (c StopConfig) Validate() error {
	switch c.Scope {
	case "", ScopeSequence, ScopeAutomation:
		return nil
	}
	return fmt.Errorf("scope must be %q or %q", ScopeSequence, ScopeAutomation)
}

// Stop ends the action sequence, or the whole automation when scope is
// "automation".
func Stop() automation.Action {
	return automation.NewAction[StopConfig](ActionStop, automation.ActionFunc[StopConfig](
		func(_ context.Context, _ *automation.EventContext, cfg StopConfig) (automation.ActionResult, error) {
			if cfg.When != nil && !*cfg.When {
				return automation.Continue(), nil
			}
			if cfg.Scope == ScopeAutomation {
				return automation.StopAutomation(cfg.Reason), nil
			}
			return automation.StopSequence(cfg.Reason), nil
		},
	), automation.WithDescription("stops the sequence or the automation"))
}

type DelayConfig struct {
	Duration time.Duration `json:"duration"`
	Timeout  time.Duration `json:"timeout"`
}

func (c DelayConfig) Validate() error {
	if c.Duration <= 0 {
		return errors.New("duration must be positive")
	}
	return nil
}

// Delay pauses the run and schedules its resume after duration.
func Delay() automation.Action {
	return automation.NewAction[DelayConfig](ActionDelay, automation.ActionFunc[DelayConfig](
		func(_ context.Context, _ *automation.EventContext, cfg DelayConfig) (automation.ActionResult, error) {
			return automation.Pause(automation.PauseRequest{
				ResumeAfter: cfg.Duration,
				Timeout:     cfg.Timeout,
			}), nil
		},
	), automation.WithDescription("pauses the run for a duration"))
}

type PauseUntilConfig struct {
	Trigger automation.Step `json:"trigger"`
	Timeout time.Duration   `json:"timeout"`
}

func (c PauseUntilConfig) Validate() error {
	if strings.TrimSpace(c.Trigger.Unit) == "" {
		return errors.New("trigger.unit is required")
	}
	return nil
}

// PauseUntil pauses the run until a later event satisfies trigger. Template
// expressions in the trigger params render against the pausing run.
func PauseUntil() automation.Action {
	return automation.NewAction[PauseUntilConfig](ActionPauseUntil, automation.ActionFunc[PauseUntilConfig](
		func(_ context.Context, _ *automation.EventContext, cfg PauseUntilConfig) (automation.ActionResult, error) {
			trigger := cfg.Trigger.Clone()
			return automation.Pause(automation.PauseRequest{
				ResumeTrigger: &trigger,
				Timeout:       cfg.Timeout,
			}), nil
		},
	), automation.WithDescription("pauses the run until a trigger fires"))
}

const defaultWaitVariable = "triggered"

type WaitForTriggerConfig struct {
	Trigger  automation.Step `json:"trigger"`
	Timeout  time.Duration   `json:"timeout"`
	Variable string          `json:"variable"`
}

func (c WaitForTriggerConfig) Validate() error {
	if strings.TrimSpace(c.Trigger.Unit) == "" {
		return errors.New("trigger.unit is required")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

// WaitForTrigger blocks the run until an event dispatched on bus satisfies
// the trigger or the timeout elapses. The outcome is stored as a boolean
// variable ("triggered" unless configured) and the run continues.
func WaitForTrigger(reg *registry.Registry, bus *dispatcher.Dispatcher) automation.Action {
	return automation.NewAction[WaitForTriggerConfig](ActionWaitForTrigger, automation.ActionFunc[WaitForTriggerConfig](
		func(ctx context.Context, ec *automation.EventContext, cfg WaitForTriggerConfig) (automation.ActionResult, error) {
			if reg == nil || bus == nil {
				return automation.Continue(), errors.New("wait_for_trigger requires a registry and a bus")
			}
			trigger, err := reg.Trigger(cfg.Trigger.Unit)
			if err != nil {
				return automation.Continue(), err
			}

			matched, err := waitFor(ctx, bus, trigger, cfg.Trigger.Params, cfg.Timeout)
			if err != nil {
				return automation.Continue(), err
			}

			name := cfg.Variable
			if name == "" {
				name = defaultWaitVariable
			}
			ec.Set(name, matched)
			return automation.Continue(), nil
		},
	), automation.WithDescription("waits for a trigger to fire"))
}

func waitFor(ctx context.Context, bus *dispatcher.Dispatcher, trigger automation.Trigger, params automation.Params, timeout time.Duration) (bool, error) {
	fired := make(chan struct{}, 1)
	sub := bus.Subscribe("#", func(ctx context.Context, candidate *automation.EventContext) error {
		ok, err := trigger.IsTriggered(ctx, candidate, params.Clone())
		if err != nil || !ok {
			return err
		}
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	})
	defer sub.Unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-fired:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

type VariablesConfig struct {
	Keys []string `json:"keys"`
}

// Variables summarizes the run with its variables, or only the listed keys.
func Variables() automation.Result {
	return automation.NewResult[VariablesConfig](ResultVariables, automation.ResultFunc[VariablesConfig](
		func(_ context.Context, ec *automation.EventContext, cfg VariablesConfig) (any, error) {
			all := ec.Metadata()
			if len(cfg.Keys) == 0 {
				return all, nil
			}
			out := make(map[string]any, len(cfg.Keys))
			for _, k := range cfg.Keys {
				if v, ok := all[k]; ok {
					out[k] = v
				}
			}
			return out, nil
		},
	), automation.WithDescription("returns run variables"))
}
