package builtin_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	automation "github.com/goliatone/go-automation"
	"github.com/goliatone/go-automation/builtin"
	"github.com/goliatone/go-automation/flow"
	"github.com/goliatone/go-automation/registry"
)

type entry struct {
	level string
	msg   string
}

type captureLogger struct {
	mu      sync.Mutex
	entries []entry
}

func (l *captureLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry{level: level, msg: msg})
}

func (l *captureLogger) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.msg)
	}
	return out
}

func (l *captureLogger) Trace(msg string, _ ...any) { l.add("trace", msg) }
func (l *captureLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *captureLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *captureLogger) Error(msg string, _ ...any) { l.add("error", msg) }
func (l *captureLogger) Fatal(msg string, _ ...any) { l.add("fatal", msg) }
func (l *captureLogger) WithContext(context.Context) automation.Logger {
	return l
}

func setup(t *testing.T, opts ...flow.Option) (*flow.Orchestrator, *captureLogger) {
	t.Helper()
	reg := registry.New()
	opts = append([]flow.Option{flow.WithLogger(automation.NewFmtLogger(io.Discard))}, opts...)
	o := flow.NewOrchestrator(reg, opts...)
	t.Cleanup(func() { _ = o.Close(context.Background()) })

	out := &captureLogger{}
	require.NoError(t, builtin.Register(reg, o.Bus(), out))
	return o, out
}

func build(t *testing.T, o *flow.Orchestrator, def flow.Definition) *flow.Automation {
	t.Helper()
	a, err := o.Builder().Build(def)
	require.NoError(t, err)
	return a
}

func logStep(message string) automation.Step {
	return automation.Step{Unit: builtin.ActionLog, Params: automation.Params{"message": message}}
}

func TestAlwaysTriggerLogsOnce(t *testing.T) {
	o, out := setup(t)
	a := build(t, o, flow.Definition{
		Alias:    "hello",
		Triggers: []automation.Step{{Unit: builtin.TriggerAlways}},
		Actions:  []automation.Step{logStep("hi")},
	})
	require.NoError(t, o.Register(a))

	o.Publish(context.Background(), automation.NewEvent("anything", nil))
	assert.Equal(t, []string{"hi"}, out.messages())

	res, err := o.ExecuteAutomation(context.Background(), a, nil)
	require.NoError(t, err)
	assert.Equal(t, flow.StatusExecuted, res.Status)
	assert.True(t, res.Executed)
}

func TestEventTypeTrigger(t *testing.T) {
	o, out := setup(t)
	require.NoError(t, o.Register(build(t, o, flow.Definition{
		Alias: "sensors",
		Triggers: []automation.Step{{
			Unit:   builtin.TriggerEventType,
			Params: automation.Params{"type": "sensor.*.reading"},
		}},
		Actions: []automation.Step{logStep("{{ ._event_type }}")},
	})))

	ctx := context.Background()
	o.Publish(ctx, automation.NewEvent("sensor.kitchen.reading", nil))
	o.Publish(ctx, automation.NewEvent("sensor.kitchen.battery", nil))
	o.Publish(ctx, automation.NewEvent("door.opened", nil))
	assert.Equal(t, []string{"sensor.kitchen.reading"}, out.messages())
}

func TestConditions(t *testing.T) {
	o, out := setup(t)
	a := build(t, o, flow.Definition{
		Alias: "guarded",
		Conditions: []automation.Step{
			{Unit: builtin.ConditionEquals, Params: automation.Params{"left": "{{ .count }}", "right": 3}},
			{Unit: builtin.ConditionNotEmpty, Params: automation.Params{"value": "{{ .name }}"}},
			{Unit: builtin.ConditionEquals, Params: automation.Params{"left": "{{ .name }}", "right": "bob", "not": true}},
		},
		Actions: []automation.Step{logStep("passed {{ .name }}")},
	})

	ctx := context.Background()
	run := func(fields map[string]any) flow.AutomationResult {
		res, err := o.ExecuteAutomation(ctx, a, automation.NewEventContext(automation.NewEvent("check", fields)))
		require.NoError(t, err)
		return res
	}

	assert.Equal(t, flow.StatusExecuted, run(map[string]any{"count": 3, "name": "ana"}).Status)
	assert.Equal(t, flow.StatusSkipped, run(map[string]any{"count": 4, "name": "ana"}).Status)
	assert.Equal(t, flow.StatusSkipped, run(map[string]any{"count": 3, "name": " "}).Status)
	assert.Equal(t, flow.StatusSkipped, run(map[string]any{"count": 3, "name": "bob"}).Status)
	assert.Equal(t, []string{"passed ana"}, out.messages())
}

func TestSetAndVariablesResult(t *testing.T) {
	o, _ := setup(t)
	a := build(t, o, flow.Definition{
		Alias: "vars",
		Variables: []automation.Step{
			{Unit: builtin.VariableSet, Params: automation.Params{"values": map[string]any{"room": "hall", "level": 2}}},
			{Unit: builtin.VariableSet, Params: automation.Params{"values": map[string]any{"label": "{{ .room }}-{{ .level }}"}}},
		},
		Result: &automation.Step{Unit: builtin.ResultVariables, Params: automation.Params{"keys": []any{"label", "room"}}},
	})

	res, err := o.ExecuteAutomation(context.Background(), a, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"label": "hall-2", "room": "hall"}, res.Payload)
}

func TestStopAction(t *testing.T) {
	o, out := setup(t)
	ctx := context.Background()

	sequence := build(t, o, flow.Definition{
		Alias: "sequence",
		Actions: []automation.Step{
			logStep("one"),
			{Unit: builtin.ActionStop, Params: automation.Params{"when": "{{ .halt }}", "reason": "halted"}},
			logStep("two"),
		},
	})
	res, err := o.ExecuteAutomation(ctx, sequence, automation.NewEventContext(automation.NewEvent("x", map[string]any{"halt": false})))
	require.NoError(t, err)
	assert.Equal(t, flow.StatusExecuted, res.Status)
	assert.Equal(t, []string{"one", "two"}, out.messages())

	res, err = o.ExecuteAutomation(ctx, sequence, automation.NewEventContext(automation.NewEvent("x", map[string]any{"halt": true})))
	require.NoError(t, err)
	assert.Equal(t, flow.StatusExecuted, res.Status)
	assert.Equal(t, "halted", res.Reason)

	whole := build(t, o, flow.Definition{
		Alias: "whole",
		Actions: []automation.Step{
			{Unit: builtin.ActionStop, Params: automation.Params{"scope": "automation"}},
			logStep("never"),
		},
	})
	res, err = o.ExecuteAutomation(ctx, whole, nil)
	require.NoError(t, err)
	assert.Equal(t, flow.StatusStopped, res.Status)
	assert.NotContains(t, out.messages(), "never")

	bad := build(t, o, flow.Definition{
		Alias:   "bad",
		Actions: []automation.Step{{Unit: builtin.ActionStop, Params: automation.Params{"scope": "everything"}}},
	})
	_, err = o.ExecuteAutomation(ctx, bad, nil)
	assert.True(t, automation.IsInvalidConfiguration(err))
}

func TestPauseUntilResumesOnEvent(t *testing.T) {
	o, out := setup(t)
	ctx := context.Background()
	require.NoError(t, o.Register(build(t, o, flow.Definition{
		Alias:    "door",
		Triggers: []automation.Step{{Unit: builtin.TriggerEventType, Params: automation.Params{"type": "door.opened"}}},
		Actions: []automation.Step{
			logStep("opened"),
			{Unit: builtin.ActionPauseUntil, Params: automation.Params{
				"trigger": map[string]any{"unit": builtin.TriggerEventType, "params": map[string]any{"type": "door.closed"}},
				"timeout": "1h",
			}},
			logStep("closed"),
		},
	})))

	o.Publish(ctx, automation.NewEvent("door.opened", nil))
	paused, err := o.Paused(ctx)
	require.NoError(t, err)
	require.Len(t, paused, 1)
	require.NotNil(t, paused[0].ResumeTrigger)
	assert.Equal(t, builtin.TriggerEventType, paused[0].ResumeTrigger.Unit)
	assert.False(t, paused[0].Deadline.IsZero())

	o.Publish(ctx, automation.NewEvent("motion", nil))
	assert.Equal(t, []string{"opened"}, out.messages())

	o.Publish(ctx, automation.NewEvent("door.closed", nil))
	assert.Equal(t, []string{"opened", "closed"}, out.messages())

	paused, err = o.Paused(ctx)
	require.NoError(t, err)
	assert.Empty(t, paused)
}

func TestDelayResumesAfterDuration(t *testing.T) {
	o, out := setup(t)
	a := build(t, o, flow.Definition{
		Alias: "later",
		Actions: []automation.Step{
			{Unit: builtin.ActionDelay, Params: automation.Params{"duration": "20ms"}},
			logStep("after"),
		},
	})

	res, err := o.ExecuteAutomation(context.Background(), a, nil)
	require.NoError(t, err)
	require.Equal(t, flow.StatusPaused, res.Status)

	require.Eventually(t, func() bool {
		return len(out.messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"after"}, out.messages())

	_, err = o.ExecuteAutomation(context.Background(), build(t, o, flow.Definition{
		Alias:   "no_duration",
		Actions: []automation.Step{{Unit: builtin.ActionDelay}},
	}), nil)
	assert.True(t, automation.IsInvalidConfiguration(err))
}

func TestWaitForTrigger(t *testing.T) {
	o, out := setup(t)
	a := build(t, o, flow.Definition{
		Alias: "waiter",
		Actions: []automation.Step{
			{Unit: builtin.ActionWaitForTrigger, Params: automation.Params{
				"trigger": map[string]any{"unit": builtin.TriggerEventType, "params": map[string]any{"type": "button.pressed"}},
				"timeout": "2s",
			}},
			logStep("pressed={{ .triggered }}"),
		},
	})

	done := make(chan flow.AutomationResult, 1)
	go func() {
		res, err := o.ExecuteAutomation(context.Background(), a, nil)
		assert.NoError(t, err)
		done <- res
	}()

	require.Eventually(t, func() bool { return o.Bus().Listeners() > 0 }, time.Second, 5*time.Millisecond)
	o.Publish(context.Background(), automation.NewEvent("button.ignored", nil))
	o.Publish(context.Background(), automation.NewEvent("button.pressed", nil))

	select {
	case res := <-done:
		assert.Equal(t, flow.StatusExecuted, res.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("wait_for_trigger did not return")
	}
	assert.Equal(t, []string{"pressed=true"}, out.messages())
	assert.Equal(t, 0, o.Bus().Listeners())
}

func TestWaitForTriggerTimeout(t *testing.T) {
	o, out := setup(t)
	a := build(t, o, flow.Definition{
		Alias: "impatient",
		Actions: []automation.Step{
			{Unit: builtin.ActionWaitForTrigger, Params: automation.Params{
				"trigger":  map[string]any{"unit": builtin.TriggerAlways},
				"timeout":  "20ms",
				"variable": "seen",
			}},
			logStep("seen={{ .seen }}"),
		},
	})

	res, err := o.ExecuteAutomation(context.Background(), a, nil)
	require.NoError(t, err)
	assert.Equal(t, flow.StatusExecuted, res.Status)
	assert.Equal(t, []string{"seen=false"}, out.messages())
}

func TestLogLevels(t *testing.T) {
	out := &captureLogger{}
	action := builtin.Log(out)
	ec := automation.NewEventContext(automation.NewEvent("x", nil))

	_, err := action.Execute(context.Background(), ec, automation.Params{"message": "careful", "level": "warn"})
	require.NoError(t, err)
	_, err = action.Execute(context.Background(), ec, automation.Params{"message": "bad", "level": "loud"})
	assert.True(t, automation.IsInvalidConfiguration(err))

	require.Len(t, out.entries, 1)
	assert.Equal(t, entry{level: "warn", msg: "careful"}, out.entries[0])
}
