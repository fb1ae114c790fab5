package chain

import (
	"context"
	"reflect"
	"testing"

	automation "github.com/goliatone/go-automation"
)

func recording[R any](name string, trace *[]string) Interceptor[R] {
	return func(ctx context.Context, call *Call, next Next[R]) (R, error) {
		*trace = append(*trace, name+":before")
		res, err := next(ctx, call)
		*trace = append(*trace, name+":after")
		return res, err
	}
}

func testCall() Call {
	return Call{
		Unit:   automation.UnitInfo{Kind: automation.KindCondition, Name: "check"},
		Event:  automation.NewEventContext(automation.NewEvent("ping", nil)),
		Params: automation.Params{"value": "a"},
	}
}

func TestChainRunsInterceptorsInDeclaredOrder(t *testing.T) {
	var trace []string
	c := New(recording[bool]("first", &trace), recording[bool]("second", &trace), recording[bool]("third", &trace))

	terminal := func(context.Context, *Call) (bool, error) {
		trace = append(trace, "unit")
		return true, nil
	}

	want := []string{
		"first:before", "second:before", "third:before",
		"unit",
		"third:after", "second:after", "first:after",
	}

	for run := 0; run < 2; run++ {
		trace = nil
		ok, err := c.Invoke(context.Background(), testCall(), terminal)
		if err != nil {
			t.Fatalf("invoke %d: %v", run, err)
		}
		if !ok {
			t.Fatalf("invoke %d: expected true", run)
		}
		if !reflect.DeepEqual(trace, want) {
			t.Fatalf("invoke %d: unexpected order %v", run, trace)
		}
	}
}

func TestChainShortCircuitSuppliesResult(t *testing.T) {
	called := false
	deny := func(ctx context.Context, call *Call, next Next[bool]) (bool, error) {
		return false, nil
	}
	ok, err := New(deny).Invoke(context.Background(), testCall(), func(context.Context, *Call) (bool, error) {
		called = true
		return true, nil
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if ok || called {
		t.Fatalf("expected short-circuit false without reaching the unit")
	}
}

func TestChainParamMutationDoesNotLeak(t *testing.T) {
	original := automation.Params{"value": "a"}
	rewrite := func(ctx context.Context, call *Call, next Next[string]) (string, error) {
		call.Params["value"] = call.Params.String("value") + "!"
		return next(ctx, call)
	}
	c := New(rewrite)
	terminal := func(_ context.Context, call *Call) (string, error) {
		return call.Params.String("value"), nil
	}

	for i := 0; i < 2; i++ {
		call := testCall()
		call.Params = original
		got, err := c.Invoke(context.Background(), call, terminal)
		if err != nil {
			t.Fatalf("invoke: %v", err)
		}
		if got != "a!" {
			t.Fatalf("expected a!, got %q", got)
		}
	}
	if original["value"] != "a" {
		t.Fatalf("definition params mutated: %v", original)
	}
}

func TestChainRequiresTerminal(t *testing.T) {
	if _, err := New[bool]().Invoke(context.Background(), testCall(), nil); err == nil {
		t.Fatalf("expected error for nil terminal")
	}
}

func TestSetMergeKeepsOrder(t *testing.T) {
	var trace []string
	a := Set{Action: []Interceptor[automation.ActionResult]{recording[automation.ActionResult]("a", &trace)}}
	b := Set{Action: []Interceptor[automation.ActionResult]{recording[automation.ActionResult]("b", &trace)}}

	chains := a.Merge(b).Build()
	if chains.Action.Len() != 2 || chains.Trigger.Len() != 0 {
		t.Fatalf("unexpected chain sizes: action=%d trigger=%d", chains.Action.Len(), chains.Trigger.Len())
	}
	_, err := chains.Action.Invoke(context.Background(), testCall(), func(context.Context, *Call) (automation.ActionResult, error) {
		return automation.Continue(), nil
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	want := []string{"a:before", "b:before", "b:after", "a:after"}
	if !reflect.DeepEqual(trace, want) {
		t.Fatalf("unexpected order %v", trace)
	}
}
