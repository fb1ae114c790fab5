// Package interceptor provides the built-in cross-cutting behaviors that wrap
// unit invocations. Each constructor is generic over the unit result type;
// the *Set helpers build the same behavior for every unit kind.
package interceptor

import (
	"context"
	stderrors "errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	automation "github.com/goliatone/go-automation"
	"github.com/goliatone/go-automation/chain"
	"github.com/goliatone/go-automation/runner"
	"github.com/goliatone/go-automation/template"
)

// Recover turns a panic raised by the rest of the chain into a
// UnitExecutionError carrying the cleaned stack.
func Recover[R any]() chain.Interceptor[R] {
	return func(ctx context.Context, call *chain.Call, next chain.Next[R]) (res R, err error) {
		defer func() {
			pe := automation.RecoverPanic(recover())
			if pe == nil {
				return
			}
			var zero R
			res = zero
			err = automation.NewUnitPanicError(call.Unit, call.Alias, pe)
		}()
		return next(ctx, call)
	}
}

// Logging logs each invocation with the call correlation fields.
// Failures log at Debug: the orchestrator reports them once per run.
func Logging[R any](logger automation.Logger) chain.Interceptor[R] {
	logger = automation.NormalizeLogger(logger)
	return func(ctx context.Context, call *chain.Call, next chain.Next[R]) (R, error) {
		log := automation.WithLoggerFields(logger.WithContext(ctx), call.Fields())
		log.Trace("unit invoked")

		start := time.Now()
		res, err := next(ctx, call)
		elapsed := time.Since(start)

		if err != nil {
			log.Debug("unit failed after %s: %v", elapsed, err)
			return res, err
		}
		if ar, ok := any(res).(automation.ActionResult); ok && ar.IsSignal() {
			log.Debug("unit returned %s after %s %s", ar.Outcome, elapsed, ar.Reason)
			return res, nil
		}
		log.Debug("unit completed in %s", elapsed)
		return res, nil
	}
}

// Template expands placeholders in the parameter bag against the run data,
// unless the unit opted out.
func Template[R any](renderer template.Renderer) chain.Interceptor[R] {
	return func(ctx context.Context, call *chain.Call, next chain.Next[R]) (R, error) {
		if renderer == nil || call.Unit.SkipTemplates || len(call.Params) == 0 {
			return next(ctx, call)
		}
		expanded, err := template.Expand(renderer, call.Params, call.Event.Data())
		if err != nil {
			var zero R
			return zero, automation.NewInvalidConfigurationError(call.Unit, err)
		}
		call.Params = expanded
		return next(ctx, call)
	}
}

// Retry re-runs the rest of the chain with the runner retry policy. Every
// attempt starts from the same parameter bag. Configuration errors and
// context cancellation are not retried.
func Retry[R any](opts ...runner.Option) chain.Interceptor[R] {
	return func(ctx context.Context, call *chain.Call, next chain.Next[R]) (R, error) {
		h := runner.NewHandler(append([]runner.Option{runner.WithRetryIf(retryable)}, opts...)...)
		params := call.Params.Clone()
		return runner.RunValue(ctx, h, func(ctx context.Context) (R, error) {
			attempt := *call
			attempt.Params = params.Clone()
			return next(ctx, &attempt)
		})
	}
}

func retryable(err error) bool {
	if automation.IsInvalidConfiguration(err) || automation.IsUnitNotFound(err) {
		return false
	}
	return !stderrors.Is(err, context.Canceled) && !stderrors.Is(err, context.DeadlineExceeded)
}

// Metrics records duration and outcome of every invocation.
func Metrics[R any](recorder automation.MetricsRecorder) chain.Interceptor[R] {
	return func(ctx context.Context, call *chain.Call, next chain.Next[R]) (R, error) {
		if recorder == nil {
			return next(ctx, call)
		}
		start := time.Now()
		res, err := next(ctx, call)
		recorder.RecordUnit(call.Unit.Kind, call.Unit.Name, time.Since(start), err)
		return res, err
	}
}

// Tracing opens one span per invocation.
func Tracing[R any](tracer oteltrace.Tracer) chain.Interceptor[R] {
	return func(ctx context.Context, call *chain.Call, next chain.Next[R]) (R, error) {
		if tracer == nil {
			return next(ctx, call)
		}
		ctx, span := tracer.Start(ctx, "automation."+string(call.Unit.Kind), oteltrace.WithAttributes(
			attribute.String("automation.unit.kind", string(call.Unit.Kind)),
			attribute.String("automation.unit.name", call.Unit.Name),
			attribute.String("automation.unit.alias", call.Label()),
			attribute.String("automation.execution_id", call.Event.ExecutionID()),
			attribute.String("automation.event_type", call.Event.EventType()),
		))
		defer span.End()

		res, err := next(ctx, call)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return res, err
		}
		if ar, ok := any(res).(automation.ActionResult); ok {
			span.SetAttributes(attribute.String("automation.action.outcome", ar.Outcome.String()))
		}
		span.SetStatus(codes.Ok, "")
		return res, nil
	}
}
