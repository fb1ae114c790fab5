package automation

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Event is the application payload an automation reacts to.
type Event interface {
	Type() string
	Fields() map[string]any
}

// GenericEvent is a map backed Event, also used when restoring persisted runs.
type GenericEvent struct {
	Name string         `json:"type"`
	Data map[string]any `json:"fields,omitempty"`
}

// NewEvent builds a GenericEvent.
func NewEvent(name string, data map[string]any) GenericEvent {
	return GenericEvent{Name: name, Data: data}
}

func (e GenericEvent) Type() string { return e.Name }

func (e GenericEvent) Fields() map[string]any { return copyMap(e.Data) }

// EventOf wraps an arbitrary value as an Event. Values that already implement
// Event are returned untouched, structs expose their fields via json tags.
func EventOf(v any) Event {
	if evt, ok := v.(Event); ok {
		return evt
	}
	return valueEvent{value: v, name: GetEventType(v)}
}

type valueEvent struct {
	value any
	name  string
}

func (e valueEvent) Type() string { return e.name }

func (e valueEvent) Fields() map[string]any {
	if e.value == nil {
		return map[string]any{}
	}
	if m, ok := e.value.(map[string]any); ok {
		return copyMap(m)
	}
	out := map[string]any{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &out,
	})
	if err != nil {
		return out
	}
	if err := dec.Decode(e.value); err != nil {
		return map[string]any{"value": e.value}
	}
	return out
}

// GetEventType returns a stable type name for an event payload.
func GetEventType(evt any) string {
	if evt == nil {
		return "unknown_type"
	}

	v := reflect.ValueOf(evt)
	if v.Kind() == reflect.Ptr && v.IsNil() {
		return "unknown_type"
	}

	// if evt implements Type() then we use that:
	if typer, ok := evt.(interface{ Type() string }); ok {
		return typer.Type()
	}

	t := reflect.TypeOf(evt)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		name = t.String()
	}
	name = toSnakeCase(name)

	pkg := t.PkgPath()
	if pkg == "" {
		return name
	}
	return pkg[strings.LastIndex(pkg, "/")+1:] + "::" + name
}

var snakeCaseRe = regexp.MustCompile("([a-z0-9])([A-Z])")

func toSnakeCase(s string) string {
	return strings.ToLower(snakeCaseRe.ReplaceAllString(s, "${1}_${2}"))
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
