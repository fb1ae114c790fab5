package builtin

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	automation "github.com/goliatone/go-automation"
	"github.com/goliatone/go-automation/router"
)

// Always matches every event.
func Always() automation.Trigger {
	return automation.NewTrigger[struct{}](TriggerAlways, automation.TriggerFunc[struct{}](
		func(context.Context, *automation.EventContext, struct{}) (bool, error) {
			return true, nil
		},
	), automation.WithDescription("matches every event"))
}

type EventTypeConfig struct {
	// Type is an event type or a dotted pattern such as "sensor.*.reading".
	Type string `json:"type"`
}

func (c EventTypeConfig) Validate() error {
	if strings.TrimSpace(c.Type) == "" {
		return errors.New("type is required")
	}
	return nil
}

// EventType matches events whose type matches a pattern.
func EventType() automation.Trigger {
	return automation.NewTrigger[EventTypeConfig](TriggerEventType, automation.TriggerFunc[EventTypeConfig](
		func(_ context.Context, ec *automation.EventContext, cfg EventTypeConfig) (bool, error) {
			return router.EventTypeMatcher(strings.TrimSpace(cfg.Type), ec.EventType()), nil
		},
	), automation.WithDescription("matches events by type pattern"))
}

type EqualsConfig struct {
	Left  any  `json:"left"`
	Right any  `json:"right"`
	Not   bool `json:"not"`
}

// Equals holds when left and right are equal. Values of different types
// compare by their printed form, so a rendered "3" equals 3.
func Equals() automation.Condition {
	return automation.NewCondition[EqualsConfig](ConditionEquals, automation.ConditionFunc[EqualsConfig](
		func(_ context.Context, _ *automation.EventContext, cfg EqualsConfig) (bool, error) {
			return equal(cfg.Left, cfg.Right) != cfg.Not, nil
		},
	), automation.WithDescription("compares two values"))
}

type NotEmptyConfig struct {
	Value any `json:"value"`
}

// NotEmpty holds when value is set and not empty.
func NotEmpty() automation.Condition {
	return automation.NewCondition[NotEmptyConfig](ConditionNotEmpty, automation.ConditionFunc[NotEmptyConfig](
		func(_ context.Context, _ *automation.EventContext, cfg NotEmptyConfig) (bool, error) {
			return !isEmpty(cfg.Value), nil
		},
	), automation.WithDescription("checks that a value is present"))
}

func equal(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return strings.TrimSpace(rv.String()) == ""
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
