package registry

import (
	"fmt"

	apperrors "github.com/goliatone/go-errors"

	automation "github.com/goliatone/go-automation"
)

// Registry resolves units of every kind by name. It is populated at startup
// and handed to the flow builder.
type Registry struct {
	Triggers   *Catalog[automation.Trigger]
	Conditions *Catalog[automation.Condition]
	Variables  *Catalog[automation.Variable]
	Actions    *Catalog[automation.Action]
	Results    *Catalog[automation.Result]
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		Triggers:   NewCatalog[automation.Trigger](automation.KindTrigger),
		Conditions: NewCatalog[automation.Condition](automation.KindCondition),
		Variables:  NewCatalog[automation.Variable](automation.KindVariable),
		Actions:    NewCatalog[automation.Action](automation.KindAction),
		Results:    NewCatalog[automation.Result](automation.KindResult),
	}
}

// Register routes each unit to the catalog of its kind.
func (r *Registry) Register(units ...automation.Unit) error {
	return r.RegisterNamespaced("", units...)
}

// RegisterNamespaced registers units under namespace::name.
func (r *Registry) RegisterNamespaced(namespace string, units ...automation.Unit) error {
	var errs error
	for _, unit := range units {
		if unit == nil {
			continue
		}
		if err := r.register(namespace, unit); err != nil {
			errs = apperrors.Join(errs, err)
		}
	}
	return errs
}

func (r *Registry) register(namespace string, unit automation.Unit) error {
	info := unit.Info()
	mismatch := func() error {
		return apperrors.New(fmt.Sprintf("unit %q declares kind %s but does not implement it", info.Name, info.Kind), apperrors.CategoryBadInput).
			WithTextCode(automation.ErrCodeInvalidConfiguration)
	}

	switch info.Kind {
	case automation.KindTrigger:
		u, ok := unit.(automation.Trigger)
		if !ok {
			return mismatch()
		}
		return r.Triggers.RegisterNamespaced(namespace, u)
	case automation.KindCondition:
		u, ok := unit.(automation.Condition)
		if !ok {
			return mismatch()
		}
		return r.Conditions.RegisterNamespaced(namespace, u)
	case automation.KindVariable:
		u, ok := unit.(automation.Variable)
		if !ok {
			return mismatch()
		}
		return r.Variables.RegisterNamespaced(namespace, u)
	case automation.KindAction:
		u, ok := unit.(automation.Action)
		if !ok {
			return mismatch()
		}
		return r.Actions.RegisterNamespaced(namespace, u)
	case automation.KindResult:
		u, ok := unit.(automation.Result)
		if !ok {
			return mismatch()
		}
		return r.Results.RegisterNamespaced(namespace, u)
	default:
		return apperrors.New(fmt.Sprintf("unit %q has unknown kind %q", info.Name, info.Kind), apperrors.CategoryBadInput).
			WithTextCode(automation.ErrCodeInvalidConfiguration)
	}
}

// Trigger resolves a trigger by name.
func (r *Registry) Trigger(name string) (automation.Trigger, error) { return r.Triggers.Lookup(name) }

// Condition resolves a condition by name.
func (r *Registry) Condition(name string) (automation.Condition, error) {
	return r.Conditions.Lookup(name)
}

// Variable resolves a variable by name.
func (r *Registry) Variable(name string) (automation.Variable, error) {
	return r.Variables.Lookup(name)
}

// Action resolves an action by name.
func (r *Registry) Action(name string) (automation.Action, error) { return r.Actions.Lookup(name) }

// Result resolves a result by name.
func (r *Registry) Result(name string) (automation.Result, error) { return r.Results.Lookup(name) }

// Units lists every registered unit, grouped by kind.
func (r *Registry) Units() []automation.UnitInfo {
	var out []automation.UnitInfo
	out = append(out, r.Triggers.Infos()...)
	out = append(out, r.Conditions.Infos()...)
	out = append(out, r.Variables.Infos()...)
	out = append(out, r.Actions.Infos()...)
	out = append(out, r.Results.Infos()...)
	return out
}
