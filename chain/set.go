package chain

import (
	automation "github.com/goliatone/go-automation"
)

// Set holds the interceptor lists applied to each unit kind.
type Set struct {
	Trigger   []Interceptor[bool]
	Condition []Interceptor[bool]
	Variable  []Interceptor[map[string]any]
	Action    []Interceptor[automation.ActionResult]
	Result    []Interceptor[any]
}

// Uniform builds a Set that applies the same behavior to every kind.
func Uniform(
	trigger Interceptor[bool],
	condition Interceptor[bool],
	variable Interceptor[map[string]any],
	action Interceptor[automation.ActionResult],
	result Interceptor[any],
) Set {
	return Set{
		Trigger:   []Interceptor[bool]{trigger},
		Condition: []Interceptor[bool]{condition},
		Variable:  []Interceptor[map[string]any]{variable},
		Action:    []Interceptor[automation.ActionResult]{action},
		Result:    []Interceptor[any]{result},
	}
}

// Merge returns a Set with other's interceptors appended after s's.
func (s Set) Merge(other Set) Set {
	return Set{
		Trigger:   concat(s.Trigger, other.Trigger),
		Condition: concat(s.Condition, other.Condition),
		Variable:  concat(s.Variable, other.Variable),
		Action:    concat(s.Action, other.Action),
		Result:    concat(s.Result, other.Result),
	}
}

// Chains is the compiled form of a Set.
type Chains struct {
	Trigger   *Chain[bool]
	Condition *Chain[bool]
	Variable  *Chain[map[string]any]
	Action    *Chain[automation.ActionResult]
	Result    *Chain[any]
}

// Build compiles the Set into one chain per kind.
func (s Set) Build() Chains {
	return Chains{
		Trigger:   New(s.Trigger...),
		Condition: New(s.Condition...),
		Variable:  New(s.Variable...),
		Action:    New(s.Action...),
		Result:    New(s.Result...),
	}
}

func concat[T any](a, b []T) []T {
	out := make([]T, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
