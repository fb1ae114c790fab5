package chain

import (
	"context"

	apperrors "github.com/goliatone/go-errors"

	automation "github.com/goliatone/go-automation"
)

// Call describes one unit invocation as it travels through a chain.
// Interceptors may rewrite Params in place or replace it; the bag is a
// private copy owned by the invocation.
type Call struct {
	Unit   automation.UnitInfo
	Alias  string
	Event  *automation.EventContext
	Params automation.Params
}

// Label returns the alias, falling back to the unit name.
func (c *Call) Label() string {
	if c == nil {
		return ""
	}
	if c.Alias != "" {
		return c.Alias
	}
	return c.Unit.Name
}

// Fields returns the logger correlation fields of the call.
func (c *Call) Fields() map[string]any {
	if c == nil {
		return nil
	}
	return map[string]any{
		"unit_kind":    string(c.Unit.Kind),
		"unit":         c.Unit.Name,
		"alias":        c.Label(),
		"execution_id": c.Event.ExecutionID(),
		"event_type":   c.Event.EventType(),
	}
}

// Next continues the chain: the remaining interceptors and then the unit.
type Next[R any] func(ctx context.Context, call *Call) (R, error)

// Interceptor wraps a unit invocation. It calls next exactly once to
// proceed, or returns its own result to short-circuit.
type Interceptor[R any] func(ctx context.Context, call *Call, next Next[R]) (R, error)

// Terminal is the unit invocation at the end of a chain.
type Terminal[R any] func(ctx context.Context, call *Call) (R, error)

// Chain is an ordered list of interceptors for units returning R.
type Chain[R any] struct {
	interceptors []Interceptor[R]
}

// New builds a chain. The first interceptor is the outermost.
func New[R any](interceptors ...Interceptor[R]) *Chain[R] {
	out := make([]Interceptor[R], 0, len(interceptors))
	for _, i := range interceptors {
		if i != nil {
			out = append(out, i)
		}
	}
	return &Chain[R]{interceptors: out}
}

// Len returns the number of interceptors.
func (c *Chain[R]) Len() int {
	if c == nil {
		return 0
	}
	return len(c.interceptors)
}

// With returns a new chain with more interceptors appended inside the
// existing ones.
func (c *Chain[R]) With(interceptors ...Interceptor[R]) *Chain[R] {
	var base []Interceptor[R]
	if c != nil {
		base = c.interceptors
	}
	all := make([]Interceptor[R], 0, len(base)+len(interceptors))
	all = append(all, base...)
	all = append(all, interceptors...)
	return New(all...)
}

// Invoke runs I1(I2(...In(terminal))). The continuation is rebuilt on every
// call and the params are cloned first, so nothing leaks between
// invocations.
func (c *Chain[R]) Invoke(ctx context.Context, call Call, terminal Terminal[R]) (R, error) {
	if terminal == nil {
		var zero R
		return zero, apperrors.New("chain terminal is required", apperrors.CategoryBadInput).
			WithTextCode("CHAIN_TERMINAL_REQUIRED")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	call.Params = call.Params.Clone()

	next := Next[R](terminal)
	if c != nil {
		for i := len(c.interceptors) - 1; i >= 0; i-- {
			current := c.interceptors[i]
			inner := next
			next = func(ctx context.Context, call *Call) (R, error) {
				return current(ctx, call, inner)
			}
		}
	}
	return next(ctx, &call)
}
