package interceptor

import (
	oteltrace "go.opentelemetry.io/otel/trace"

	automation "github.com/goliatone/go-automation"
	"github.com/goliatone/go-automation/chain"
	"github.com/goliatone/go-automation/runner"
	"github.com/goliatone/go-automation/template"
)

// Defaults is the standard interceptor order: recover, logging, template.
func Defaults(logger automation.Logger, renderer template.Renderer) chain.Set {
	return RecoverSet().
		Merge(LoggingSet(logger)).
		Merge(TemplateSet(renderer))
}

func RecoverSet() chain.Set {
	return chain.Uniform(
		Recover[bool](),
		Recover[bool](),
		Recover[map[string]any](),
		Recover[automation.ActionResult](),
		Recover[any](),
	)
}

func LoggingSet(logger automation.Logger) chain.Set {
	return chain.Uniform(
		Logging[bool](logger),
		Logging[bool](logger),
		Logging[map[string]any](logger),
		Logging[automation.ActionResult](logger),
		Logging[any](logger),
	)
}

func TemplateSet(renderer template.Renderer) chain.Set {
	return chain.Uniform(
		Template[bool](renderer),
		Template[bool](renderer),
		Template[map[string]any](renderer),
		Template[automation.ActionResult](renderer),
		Template[any](renderer),
	)
}

// RetrySet retries conditions, variables, actions and results. Triggers are
// evaluated for every dispatched event and are left alone.
func RetrySet(opts ...runner.Option) chain.Set {
	return chain.Set{
		Condition: []chain.Interceptor[bool]{Retry[bool](opts...)},
		Variable:  []chain.Interceptor[map[string]any]{Retry[map[string]any](opts...)},
		Action:    []chain.Interceptor[automation.ActionResult]{Retry[automation.ActionResult](opts...)},
		Result:    []chain.Interceptor[any]{Retry[any](opts...)},
	}
}

func MetricsSet(recorder automation.MetricsRecorder) chain.Set {
	return chain.Uniform(
		Metrics[bool](recorder),
		Metrics[bool](recorder),
		Metrics[map[string]any](recorder),
		Metrics[automation.ActionResult](recorder),
		Metrics[any](recorder),
	)
}

func TracingSet(tracer oteltrace.Tracer) chain.Set {
	return chain.Uniform(
		Tracing[bool](tracer),
		Tracing[bool](tracer),
		Tracing[map[string]any](tracer),
		Tracing[automation.ActionResult](tracer),
		Tracing[any](tracer),
	)
}
