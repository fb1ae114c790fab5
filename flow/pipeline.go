package flow

import (
	"context"
	"fmt"

	automation "github.com/goliatone/go-automation"
	"github.com/goliatone/go-automation/chain"
)

const reasonNoTrigger = "no trigger matched"

// evaluate runs one automation against ec. When checkTriggers is false the
// trigger stage is bypassed, as for direct execution.
func (o *Orchestrator) evaluate(ctx context.Context, a *Automation, ec *automation.EventContext, checkTriggers bool) (AutomationResult, error) {
	res := AutomationResult{Automation: a.alias, ExecutionID: ec.ExecutionID()}

	if checkTriggers {
		matched, err := o.triggered(ctx, a, ec)
		if err != nil {
			return res, err
		}
		if !matched {
			res.Status = StatusSkipped
			res.Reason = reasonNoTrigger
			return res, nil
		}
	}

	admitted, reason, err := o.admitted(ctx, a, ec)
	if err != nil {
		return res, err
	}
	if !admitted {
		res.Status = StatusSkipped
		res.Reason = reason
		return res, nil
	}

	if err := o.resolveVariables(ctx, a, ec); err != nil {
		return res, err
	}
	return o.runActions(ctx, a, ec, 0)
}

// triggered applies OR semantics. An automation without triggers never
// matches.
func (o *Orchestrator) triggered(ctx context.Context, a *Automation, ec *automation.EventContext) (bool, error) {
	for _, b := range a.triggers {
		ok, err := o.invokeTrigger(ctx, b, ec)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// admitted applies AND semantics; an empty list always passes.
func (o *Orchestrator) admitted(ctx context.Context, a *Automation, ec *automation.EventContext) (bool, string, error) {
	for _, b := range a.conditions {
		info := b.unit.Info()
		ok, err := o.chains.Condition.Invoke(ctx, newCall(info, b.step, ec), func(ctx context.Context, c *chain.Call) (bool, error) {
			return guarded(c, func() (bool, error) { return b.unit.IsSatisfied(ctx, c.Event, c.Params) })
		})
		if err != nil {
			return false, "", err
		}
		if !ok {
			return false, fmt.Sprintf("condition %s not satisfied", b.step.Label()), nil
		}
	}
	return true, "", nil
}

// resolveVariables runs variables in declaration order, merging each result
// into the run metadata before the next one runs.
func (o *Orchestrator) resolveVariables(ctx context.Context, a *Automation, ec *automation.EventContext) error {
	for _, b := range a.variables {
		info := b.unit.Info()
		values, err := o.chains.Variable.Invoke(ctx, newCall(info, b.step, ec), func(ctx context.Context, c *chain.Call) (map[string]any, error) {
			return guarded(c, func() (map[string]any, error) { return b.unit.Resolve(ctx, c.Event, c.Params) })
		})
		if err != nil {
			return err
		}
		ec.Merge(values)
	}
	return nil
}

// runActions executes actions from index from and applies the outcome of
// each one. It is shared by first runs and resumes.
func (o *Orchestrator) runActions(ctx context.Context, a *Automation, ec *automation.EventContext, from int) (AutomationResult, error) {
	res := AutomationResult{Automation: a.alias, ExecutionID: ec.ExecutionID()}

actions:
	for i := from; i < len(a.actions); i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		b := a.actions[i]
		info := b.unit.Info()
		out, err := o.chains.Action.Invoke(ctx, newCall(info, b.step, ec), func(ctx context.Context, c *chain.Call) (automation.ActionResult, error) {
			return guarded(c, func() (automation.ActionResult, error) { return b.unit.Execute(ctx, c.Event, c.Params) })
		})
		if err != nil {
			return res, err
		}

		switch out.Outcome {
		case automation.OutcomeStopSequence:
			res.Reason = out.Reason
			break actions
		case automation.OutcomeStopAutomation:
			res.Status = StatusStopped
			res.Reason = out.Reason
			return res, nil
		case automation.OutcomePause:
			return o.pause(ctx, a, ec, i+1, out.Pause)
		}
	}

	payload, err := o.summarize(ctx, a, ec)
	if err != nil {
		return res, err
	}
	res.Status = StatusExecuted
	res.Executed = true
	res.Payload = payload
	return res, nil
}

func (o *Orchestrator) summarize(ctx context.Context, a *Automation, ec *automation.EventContext) (any, error) {
	if a.result == nil {
		return nil, nil
	}
	b := a.result
	info := b.unit.Info()
	return o.chains.Result.Invoke(ctx, newCall(info, b.step, ec), func(ctx context.Context, c *chain.Call) (any, error) {
		return guarded(c, func() (any, error) { return b.unit.Summarize(ctx, c.Event, c.Params) })
	})
}

func (o *Orchestrator) invokeTrigger(ctx context.Context, b binding[automation.Trigger], ec *automation.EventContext) (bool, error) {
	info := b.unit.Info()
	return o.chains.Trigger.Invoke(ctx, newCall(info, b.step, ec), func(ctx context.Context, c *chain.Call) (bool, error) {
		return guarded(c, func() (bool, error) { return b.unit.IsTriggered(ctx, c.Event, c.Params) })
	})
}

// guarded is the innermost step of every unit call. Errors and panics leave
// it as unit execution errors whatever interceptors are configured.
func guarded[R any](c *chain.Call, fn func() (R, error)) (out R, err error) {
	defer func() {
		if pe := automation.RecoverPanic(recover()); pe != nil {
			var zero R
			out, err = zero, automation.NewUnitPanicError(c.Unit, c.Alias, pe)
		}
	}()
	out, err = fn()
	return out, automation.WrapUnitExecutionError(c.Unit, c.Alias, err)
}

func newCall(info automation.UnitInfo, step automation.Step, ec *automation.EventContext) chain.Call {
	return chain.Call{Unit: info, Alias: step.Label(), Event: ec, Params: step.Params}
}
