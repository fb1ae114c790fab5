package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/goliatone/go-errors"

	automation "github.com/goliatone/go-automation"
)

const ErrCodeDuplicateUnit = "UNIT_ALREADY_REGISTERED"

// Catalog stores the units of one kind by name.
type Catalog[U automation.Unit] struct {
	mu         sync.RWMutex
	kind       automation.UnitKind
	units      map[string]U
	namespacer func(string, string) string
}

// NewCatalog creates an empty catalog for kind.
func NewCatalog[U automation.Unit](kind automation.UnitKind) *Catalog[U] {
	return &Catalog[U]{
		kind:       kind,
		units:      make(map[string]U),
		namespacer: defaultNamespace,
	}
}

// SetNamespacer customizes how namespaced names are built.
func (c *Catalog[U]) SetNamespacer(fn func(string, string) string) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.namespacer = fn
}

// Register adds unit under its own name.
func (c *Catalog[U]) Register(unit U) error {
	return c.RegisterNamespaced("", unit)
}

// RegisterNamespaced adds unit under namespace::name.
func (c *Catalog[U]) RegisterNamespaced(namespace string, unit U) error {
	info := unit.Info()
	if info.Kind != c.kind {
		return apperrors.New(fmt.Sprintf("unit %q is a %s, expected %s", info.Name, info.Kind, c.kind), apperrors.CategoryBadInput).
			WithTextCode(automation.ErrCodeInvalidConfiguration)
	}
	name := strings.TrimSpace(info.Name)
	if name == "" {
		return apperrors.New(fmt.Sprintf("%s name required", c.kind), apperrors.CategoryBadInput).
			WithTextCode(automation.ErrCodeInvalidConfiguration)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.namespacer(namespace, name)
	if _, exists := c.units[key]; exists {
		return apperrors.New(fmt.Sprintf("%s %q already registered", c.kind, key), apperrors.CategoryConflict).
			WithTextCode(ErrCodeDuplicateUnit).
			WithMetadata(map[string]any{"unit_kind": string(c.kind), "unit": key})
	}
	c.units[key] = unit
	return nil
}

// Lookup resolves a unit by name, or returns an UnitNotFoundError.
func (c *Catalog[U]) Lookup(name string) (U, error) {
	var zero U
	if c == nil {
		return zero, automation.NewUnitNotFoundError("", name)
	}
	name = strings.TrimSpace(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	unit, ok := c.units[name]
	if !ok {
		return zero, automation.NewUnitNotFoundError(c.kind, name)
	}
	return unit, nil
}

// Remove deletes a unit. Removing an absent name is a no-op.
func (c *Catalog[U]) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.units, strings.TrimSpace(name))
}

// Names returns sorted unit names for deterministic listings.
func (c *Catalog[U]) Names() []string {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.units))
	for name := range c.units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Infos returns the descriptors of every unit sorted by name.
func (c *Catalog[U]) Infos() []automation.UnitInfo {
	names := c.Names()
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]automation.UnitInfo, 0, len(names))
	for _, name := range names {
		info := c.units[name].Info()
		info.Name = name
		out = append(out, info)
	}
	return out
}

// defaultNamespace concatenates namespace and id using ::, trimming whitespace.
func defaultNamespace(namespace, id string) string {
	ns := strings.TrimSpace(namespace)
	ident := strings.TrimSpace(id)
	if ns == "" {
		return ident
	}
	return ns + "::" + ident
}
