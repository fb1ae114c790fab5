package automation

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Params is the untyped parameter bag of one automation step, taken
// verbatim from the definition.
type Params map[string]any

// Clone deep copies nested maps and slices so a chain may mutate the bag
// without touching the definition it came from.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

// String returns the value of key as a string, or "" when absent.
func (p Params) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Params:
		return val.Clone()
	case map[string]any:
		return map[string]any(Params(val).Clone())
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

// Validator is implemented by configs that check themselves after decoding.
type Validator interface {
	Validate() error
}

// Decode converts params into the unit's declared configuration type.
// Decoding is pure: the same bag always yields an equal value, and any
// mismatch, unknown key, or failed validation is an InvalidConfigurationError.
func Decode[C any](info UnitInfo, params Params) (C, error) {
	var cfg C
	if err := DecodeInto(params, &cfg); err != nil {
		var zero C
		return zero, NewInvalidConfigurationError(info, err)
	}
	if err := validateConfig(&cfg); err != nil {
		var zero C
		return zero, NewInvalidConfigurationError(info, err)
	}
	return cfg, nil
}

// DecodeInto decodes params into target (a pointer) with the engine's
// conversion rules: json tags, weak typing, durations, times, text values.
func DecodeInto(params Params, target any) error {
	if target == nil {
		return fmt.Errorf("decode target required")
	}
	input := map[string]any(params.Clone())
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      isStructTarget(target),
		Result:           target,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.TextUnmarshallerHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func isStructTarget(target any) bool {
	t := reflect.TypeOf(target)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t != nil && t.Kind() == reflect.Struct
}

func validateConfig(cfg any) error {
	// cfg is always a pointer, so value and pointer receivers both match.
	if v, ok := cfg.(Validator); ok {
		return v.Validate()
	}
	return nil
}

// Step references one unit in an automation definition.
type Step struct {
	Unit   string `json:"unit" yaml:"unit"`
	Alias  string `json:"alias,omitempty" yaml:"alias,omitempty"`
	Params Params `json:"params,omitempty" yaml:"params,omitempty"`
}

// Label returns the alias, falling back to the unit name.
func (s Step) Label() string {
	if alias := strings.TrimSpace(s.Alias); alias != "" {
		return alias
	}
	return strings.TrimSpace(s.Unit)
}

// Clone returns a deep copy of the step.
func (s Step) Clone() Step {
	s.Params = s.Params.Clone()
	return s
}
