package flow

import (
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"

	automation "github.com/goliatone/go-automation"
	"github.com/goliatone/go-automation/chain"
	"github.com/goliatone/go-automation/cron"
	"github.com/goliatone/go-automation/dispatcher"
	"github.com/goliatone/go-automation/template"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used for dispatch and unit logging.
func WithLogger(logger automation.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStateStore replaces the default in-memory paused state store.
func WithStateStore(store StateStore) Option {
	return func(o *Orchestrator) {
		if store != nil {
			o.store = store
		}
	}
}

// WithMetrics records run and unit measurements.
func WithMetrics(recorder automation.MetricsRecorder) Option {
	return func(o *Orchestrator) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer opens a span per unit invocation.
func WithTracer(tracer oteltrace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// WithScheduler sets the scheduler used for delayed resumes and the paused
// state sweep.
func WithScheduler(s *cron.Scheduler) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.scheduler = s
		}
	}
}

// WithBus sets the dispatcher every published event is forwarded to.
func WithBus(bus *dispatcher.Dispatcher) Option {
	return func(o *Orchestrator) {
		if bus != nil {
			o.bus = bus
		}
	}
}

// WithRenderer replaces the template renderer used for parameter expansion.
func WithRenderer(r template.Renderer) Option {
	return func(o *Orchestrator) {
		o.renderer = r
	}
}

// WithInterceptors appends interceptor sets after the built-in ones, in the
// given order.
func WithInterceptors(sets ...chain.Set) Option {
	return func(o *Orchestrator) {
		o.interceptors = append(o.interceptors, sets...)
	}
}

// WithoutDefaultInterceptors drops the built-in recover, logging and
// template interceptors.
func WithoutDefaultInterceptors() Option {
	return func(o *Orchestrator) {
		o.skipDefaults = true
	}
}

// WithEventDecoder sets how persisted events are rebuilt on resume.
func WithEventDecoder(decode automation.EventDecoder) Option {
	return func(o *Orchestrator) {
		if decode != nil {
			o.decode = decode
		}
	}
}

// WithDefaultPauseTimeout bounds pauses that carry no timeout of their own.
func WithDefaultPauseTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.defaultPauseTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}
