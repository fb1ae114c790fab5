package flow

import (
	"strings"

	automation "github.com/goliatone/go-automation"
	"github.com/goliatone/go-automation/registry"
)

// Automation is a compiled, immutable automation: every step is bound to the
// unit resolved from the registry when it was built.
type Automation struct {
	alias       string
	description string
	definition  Definition

	triggers   []binding[automation.Trigger]
	conditions []binding[automation.Condition]
	variables  []binding[automation.Variable]
	actions    []binding[automation.Action]
	result     *binding[automation.Result]
}

type binding[U automation.Unit] struct {
	unit U
	step automation.Step
}

func (a *Automation) Alias() string {
	if a == nil {
		return ""
	}
	return a.alias
}

func (a *Automation) Description() string {
	if a == nil {
		return ""
	}
	return a.description
}

// Definition returns a copy of the definition the automation was built from.
func (a *Automation) Definition() Definition {
	if a == nil {
		return Definition{}
	}
	return a.definition.Clone()
}

// ActionCount returns the number of actions.
func (a *Automation) ActionCount() int {
	if a == nil {
		return 0
	}
	return len(a.actions)
}

// Builder turns definitions into automations using a unit registry.
type Builder struct {
	registry *registry.Registry
}

// NewBuilder returns a builder resolving units from reg.
func NewBuilder(reg *registry.Registry) *Builder {
	if reg == nil {
		reg = registry.New()
	}
	return &Builder{registry: reg}
}

// Build validates def and resolves each referenced unit. An unknown unit
// name fails with a UnitNotFoundError carrying the name.
func (b *Builder) Build(def Definition) (*Automation, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	def = def.Clone()
	def.Alias = strings.TrimSpace(def.Alias)

	a := &Automation{
		alias:       def.Alias,
		description: strings.TrimSpace(def.Description),
		definition:  def,
	}

	var err error
	if a.triggers, err = bindAll(def.Triggers, b.registry.Trigger); err != nil {
		return nil, err
	}
	if a.conditions, err = bindAll(def.Conditions, b.registry.Condition); err != nil {
		return nil, err
	}
	if a.variables, err = bindAll(def.Variables, b.registry.Variable); err != nil {
		return nil, err
	}
	if a.actions, err = bindAll(def.Actions, b.registry.Action); err != nil {
		return nil, err
	}
	if def.Result != nil {
		bound, err := bind(*def.Result, b.registry.Result)
		if err != nil {
			return nil, err
		}
		a.result = &bound
	}
	return a, nil
}

// BuildDocument builds every automation in doc, in document order.
func (b *Builder) BuildDocument(doc Document) ([]*Automation, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	out := make([]*Automation, 0, len(doc.Automations))
	for _, def := range doc.Automations {
		a, err := b.Build(def)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func bindAll[U automation.Unit](steps []automation.Step, lookup func(string) (U, error)) ([]binding[U], error) {
	out := make([]binding[U], 0, len(steps))
	for _, step := range steps {
		bound, err := bind(step, lookup)
		if err != nil {
			return nil, err
		}
		out = append(out, bound)
	}
	return out, nil
}

func bind[U automation.Unit](step automation.Step, lookup func(string) (U, error)) (binding[U], error) {
	unit, err := lookup(strings.TrimSpace(step.Unit))
	if err != nil {
		return binding[U]{}, err
	}
	return binding[U]{unit: unit, step: step.Clone()}, nil
}
