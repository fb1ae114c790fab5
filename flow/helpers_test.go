package flow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	automation "github.com/goliatone/go-automation"
	"github.com/goliatone/go-automation/chain"
	"github.com/goliatone/go-automation/registry"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type markConfig struct {
	Name        string        `json:"name"`
	Outcome     string        `json:"outcome"`
	Reason      string        `json:"reason"`
	Timeout     time.Duration `json:"timeout"`
	ResumeAfter time.Duration `json:"resume_after"`
	ResumeOn    string        `json:"resume_on"`
}

type typeConfig struct {
	Type string `json:"type"`
}

type flagConfig struct {
	Value bool `json:"value"`
}

type setConfig struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type incrConfig struct {
	From string `json:"from"`
	Key  string `json:"key"`
}

// testUnits registers:
//   - triggers: always, type_is
//   - conditions: flag
//   - variables: set, incr
//   - actions: mark (records its name, returns the configured outcome)
//   - results: calls
func testUnits(t *testing.T, log *callLog) *registry.Registry {
	t.Helper()
	reg := registry.New()
	err := reg.Register(
		automation.NewTrigger[struct{}]("always", automation.TriggerFunc[struct{}](
			func(context.Context, *automation.EventContext, struct{}) (bool, error) { return true, nil },
		)),
		automation.NewTrigger[typeConfig]("type_is", automation.TriggerFunc[typeConfig](
			func(_ context.Context, ec *automation.EventContext, cfg typeConfig) (bool, error) {
				return ec.EventType() == cfg.Type, nil
			},
		)),
		automation.NewCondition[flagConfig]("flag", automation.ConditionFunc[flagConfig](
			func(_ context.Context, _ *automation.EventContext, cfg flagConfig) (bool, error) { return cfg.Value, nil },
		)),
		automation.NewVariable[setConfig]("set", automation.VariableFunc[setConfig](
			func(_ context.Context, _ *automation.EventContext, cfg setConfig) (map[string]any, error) {
				return map[string]any{cfg.Key: cfg.Value}, nil
			},
		)),
		automation.NewVariable[incrConfig]("incr", automation.VariableFunc[incrConfig](
			func(_ context.Context, ec *automation.EventContext, cfg incrConfig) (map[string]any, error) {
				v, ok := ec.Get(cfg.From)
				if !ok {
					return nil, fmt.Errorf("variable %s is not set", cfg.From)
				}
				n, ok := v.(int)
				if !ok {
					return nil, fmt.Errorf("variable %s is %T", cfg.From, v)
				}
				return map[string]any{cfg.Key: n + 1}, nil
			},
		)),
		automation.NewAction[markConfig]("mark", automation.ActionFunc[markConfig](
			func(_ context.Context, _ *automation.EventContext, cfg markConfig) (automation.ActionResult, error) {
				log.add(cfg.Name)
				switch cfg.Outcome {
				case "pause":
					req := automation.PauseRequest{Timeout: cfg.Timeout, ResumeAfter: cfg.ResumeAfter}
					if cfg.ResumeOn != "" {
						req.ResumeTrigger = &automation.Step{Unit: "type_is", Params: automation.Params{"type": cfg.ResumeOn}}
					}
					return automation.Pause(req), nil
				case "stop_sequence":
					return automation.StopSequence(cfg.Reason), nil
				case "stop_automation":
					return automation.StopAutomation(cfg.Reason), nil
				case "fail":
					return automation.Continue(), errors.New("boom")
				case "panic":
					panic("kaboom")
				}
				return automation.Continue(), nil
			},
		)),
		automation.NewResult[struct{}]("calls", automation.ResultFunc[struct{}](
			func(context.Context, *automation.EventContext, struct{}) (any, error) {
				return log.list(), nil
			},
		)),
	)
	if err != nil {
		t.Fatalf("register test units: %v", err)
	}
	return reg
}

func mark(name string, extra ...any) automation.Step {
	params := automation.Params{"name": name}
	for i := 0; i+1 < len(extra); i += 2 {
		params[extra[i].(string)] = extra[i+1]
	}
	return automation.Step{Unit: "mark", Alias: name, Params: params}
}

func step(unit string, params automation.Params) automation.Step {
	return automation.Step{Unit: unit, Params: params}
}

func newTestOrchestrator(t *testing.T, reg *registry.Registry, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithLogger(automation.NewFmtLogger(io.Discard))}, opts...)
	o := NewOrchestrator(reg, opts...)
	t.Cleanup(func() { _ = o.Close(context.Background()) })
	return o
}

func mustBuild(t *testing.T, o *Orchestrator, def Definition) *Automation {
	t.Helper()
	a, err := o.Builder().Build(def)
	if err != nil {
		t.Fatalf("build %s: %v", def.Alias, err)
	}
	return a
}

func equalCalls(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// chainSetRecording records the name param every action sees.
func chainSetRecording(order *[]string) chain.Set {
	return chain.Set{
		Action: []chain.Interceptor[automation.ActionResult]{
			func(ctx context.Context, call *chain.Call, next chain.Next[automation.ActionResult]) (automation.ActionResult, error) {
				*order = append(*order, call.Params.String("name"))
				return next(ctx, call)
			},
		},
	}
}

func (o *Orchestrator) ownerCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.owners)
}
