package automation

import (
	"context"
	"reflect"
	"strings"
)

// UnitKind names one of the five pluggable unit kinds.
type UnitKind string

const (
	KindTrigger   UnitKind = "trigger"
	KindCondition UnitKind = "condition"
	KindVariable  UnitKind = "variable"
	KindAction    UnitKind = "action"
	KindResult    UnitKind = "result"
)

// UnitInfo describes a unit to registries and interceptors.
type UnitInfo struct {
	Kind        UnitKind
	Name        string
	Description string
	// ConfigType is the type the parameter bag converts to, supplied at
	// construction through the unit's type parameter.
	ConfigType reflect.Type
	// SkipTemplates opts the unit out of template expansion, used by units
	// whose parameters are themselves executable.
	SkipTemplates bool
}

// ConfigTypeName returns a printable name for ConfigType.
func (i UnitInfo) ConfigTypeName() string {
	if i.ConfigType == nil {
		return ""
	}
	return i.ConfigType.String()
}

// Unit is the common shape of every pluggable unit.
type Unit interface {
	Info() UnitInfo
}

// Trigger decides whether an event admits an automation.
type Trigger interface {
	Unit
	IsTriggered(ctx context.Context, ec *EventContext, params Params) (bool, error)
}

// Condition guards an automation after a trigger matched.
type Condition interface {
	Unit
	IsSatisfied(ctx context.Context, ec *EventContext, params Params) (bool, error)
}

// Variable resolves values that are merged into the run metadata.
type Variable interface {
	Unit
	Resolve(ctx context.Context, ec *EventContext, params Params) (map[string]any, error)
}

// Action performs an effect and tells the pipeline how to continue.
type Action interface {
	Unit
	Execute(ctx context.Context, ec *EventContext, params Params) (ActionResult, error)
}

// Result summarizes a completed run into the automation result payload.
type Result interface {
	Unit
	Summarize(ctx context.Context, ec *EventContext, params Params) (any, error)
}

// TypedTrigger is implemented by trigger logic that works on a typed config.
type TypedTrigger[C any] interface {
	IsTriggered(ctx context.Context, ec *EventContext, cfg C) (bool, error)
}

// TypedCondition is implemented by condition logic that works on a typed config.
type TypedCondition[C any] interface {
	IsSatisfied(ctx context.Context, ec *EventContext, cfg C) (bool, error)
}

// TypedVariable is implemented by variable logic that works on a typed config.
type TypedVariable[C any] interface {
	Resolve(ctx context.Context, ec *EventContext, cfg C) (map[string]any, error)
}

// TypedAction is implemented by action logic that works on a typed config.
type TypedAction[C any] interface {
	Execute(ctx context.Context, ec *EventContext, cfg C) (ActionResult, error)
}

// TypedResult is implemented by result logic that works on a typed config.
type TypedResult[C any] interface {
	Summarize(ctx context.Context, ec *EventContext, cfg C) (any, error)
}

// TriggerFunc adapts a function to TypedTrigger.
type TriggerFunc[C any] func(ctx context.Context, ec *EventContext, cfg C) (bool, error)

func (f TriggerFunc[C]) IsTriggered(ctx context.Context, ec *EventContext, cfg C) (bool, error) {
	return f(ctx, ec, cfg)
}

// ConditionFunc adapts a function to TypedCondition.
type ConditionFunc[C any] func(ctx context.Context, ec *EventContext, cfg C) (bool, error)

func (f ConditionFunc[C]) IsSatisfied(ctx context.Context, ec *EventContext, cfg C) (bool, error) {
	return f(ctx, ec, cfg)
}

// VariableFunc adapts a function to TypedVariable.
type VariableFunc[C any] func(ctx context.Context, ec *EventContext, cfg C) (map[string]any, error)

func (f VariableFunc[C]) Resolve(ctx context.Context, ec *EventContext, cfg C) (map[string]any, error) {
	return f(ctx, ec, cfg)
}

// ActionFunc adapts a function to TypedAction.
type ActionFunc[C any] func(ctx context.Context, ec *EventContext, cfg C) (ActionResult, error)

func (f ActionFunc[C]) Execute(ctx context.Context, ec *EventContext, cfg C) (ActionResult, error) {
	return f(ctx, ec, cfg)
}

// ResultFunc adapts a function to TypedResult.
type ResultFunc[C any] func(ctx context.Context, ec *EventContext, cfg C) (any, error)

func (f ResultFunc[C]) Summarize(ctx context.Context, ec *EventContext, cfg C) (any, error) {
	return f(ctx, ec, cfg)
}

// UnitOption customizes the descriptor of a unit.
type UnitOption func(*UnitInfo)

// WithoutTemplates opts the unit out of parameter template expansion.
func WithoutTemplates() UnitOption {
	return func(i *UnitInfo) {
		i.SkipTemplates = true
	}
}

// WithDescription sets a human readable description.
func WithDescription(desc string) UnitOption {
	return func(i *UnitInfo) {
		i.Description = strings.TrimSpace(desc)
	}
}

func newInfo[C any](kind UnitKind, name string, opts []UnitOption) UnitInfo {
	info := UnitInfo{
		Kind:       kind,
		Name:       strings.TrimSpace(name),
		ConfigType: reflect.TypeFor[C](),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&info)
		}
	}
	return info
}

// NewTrigger binds typed trigger logic to a name.
func NewTrigger[C any](name string, impl TypedTrigger[C], opts ...UnitOption) Trigger {
	return &typedTrigger[C]{info: newInfo[C](KindTrigger, name, opts), impl: impl}
}

// NewCondition binds typed condition logic to a name.
func NewCondition[C any](name string, impl TypedCondition[C], opts ...UnitOption) Condition {
	return &typedCondition[C]{info: newInfo[C](KindCondition, name, opts), impl: impl}
}

// NewVariable binds typed variable logic to a name.
func NewVariable[C any](name string, impl TypedVariable[C], opts ...UnitOption) Variable {
	return &typedVariable[C]{info: newInfo[C](KindVariable, name, opts), impl: impl}
}

// NewAction binds typed action logic to a name.
func NewAction[C any](name string, impl TypedAction[C], opts ...UnitOption) Action {
	return &typedAction[C]{info: newInfo[C](KindAction, name, opts), impl: impl}
}

// NewResult binds typed result logic to a name.
func NewResult[C any](name string, impl TypedResult[C], opts ...UnitOption) Result {
	return &typedResult[C]{info: newInfo[C](KindResult, name, opts), impl: impl}
}

type typedTrigger[C any] struct {
	info UnitInfo
	impl TypedTrigger[C]
}

func (t *typedTrigger[C]) Info() UnitInfo { return t.info }

func (t *typedTrigger[C]) IsTriggered(ctx context.Context, ec *EventContext, params Params) (bool, error) {
	cfg, err := Decode[C](t.info, params)
	if err != nil {
		return false, err
	}
	return t.impl.IsTriggered(ctx, ec, cfg)
}

type typedCondition[C any] struct {
	info UnitInfo
	impl TypedCondition[C]
}

func (c *typedCondition[C]) Info() UnitInfo { return c.info }

func (c *typedCondition[C]) IsSatisfied(ctx context.Context, ec *EventContext, params Params) (bool, error) {
	cfg, err := Decode[C](c.info, params)
	if err != nil {
		return false, err
	}
	return c.impl.IsSatisfied(ctx, ec, cfg)
}

type typedVariable[C any] struct {
	info UnitInfo
	impl TypedVariable[C]
}

func (v *typedVariable[C]) Info() UnitInfo { return v.info }

func (v *typedVariable[C]) Resolve(ctx context.Context, ec *EventContext, params Params) (map[string]any, error) {
	cfg, err := Decode[C](v.info, params)
	if err != nil {
		return nil, err
	}
	return v.impl.Resolve(ctx, ec, cfg)
}

type typedAction[C any] struct {
	info UnitInfo
	impl TypedAction[C]
}

func (a *typedAction[C]) Info() UnitInfo { return a.info }

func (a *typedAction[C]) Execute(ctx context.Context, ec *EventContext, params Params) (ActionResult, error) {
	cfg, err := Decode[C](a.info, params)
	if err != nil {
		return Continue(), err
	}
	return a.impl.Execute(ctx, ec, cfg)
}

type typedResult[C any] struct {
	info UnitInfo
	impl TypedResult[C]
}

func (r *typedResult[C]) Info() UnitInfo { return r.info }

func (r *typedResult[C]) Summarize(ctx context.Context, ec *EventContext, params Params) (any, error) {
	cfg, err := Decode[C](r.info, params)
	if err != nil {
		return nil, err
	}
	return r.impl.Summarize(ctx, ec, cfg)
}
