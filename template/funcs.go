package template

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strings"
	"text/template"
)

// FuncMap returns the functions available to parameter templates.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"env": os.Getenv,
		"eq": func(a, b any) bool {
			return reflect.DeepEqual(a, b)
		},
		"default": func(def, value any) any {
			if isEmpty(value) {
				return def
			}
			return value
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"trim":  strings.TrimSpace,
		"toJSON": func(v any) (string, error) {
			raw, err := json.Marshal(v)
			if err != nil {
				return "", fmt.Errorf("toJSON: %w", err)
			}
			return string(raw), nil
		},
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	default:
		return rv.IsZero()
	}
}
