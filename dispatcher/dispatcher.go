package dispatcher

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/goliatone/go-errors"

	automation "github.com/goliatone/go-automation"
	"github.com/goliatone/go-automation/router"
	"github.com/goliatone/go-automation/runner"
)

const ErrCodeListenerFailed = "LISTENER_FAILED"

// Subscription removes a listener; calling Unsubscribe twice is harmless.
type Subscription = router.Subscription

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}

// Listener receives dispatched event contexts.
type Listener func(ctx context.Context, ec *automation.EventContext) error

// Dispatcher fans dispatched event contexts out to listeners subscribed by
// event type or pattern ("door.*", "#").
type Dispatcher struct {
	mux       *router.Mux[*listenerEntry]
	ExitOnErr bool
}

type listenerEntry struct {
	runner   *runner.Handler
	listener Listener
}

// Option defines the functional option signature.
type Option func(*Dispatcher)

// WithExitOnError stops a dispatch at the first failing listener.
func WithExitOnError() Option {
	return func(d *Dispatcher) {
		d.ExitOnErr = true
	}
}

// WithMatcher replaces the event type matcher.
func WithMatcher(m router.Matcher) Option {
	return func(d *Dispatcher) {
		d.mux = router.NewMux[*listenerEntry](router.WithMatcher(m))
	}
}

// NewDispatcher applies the given options to a new instance of the dispatcher.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		mux: router.NewMux[*listenerEntry](),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Subscribe registers listener for events whose type matches pattern.
// Runner options add retries or timeouts around the listener.
func (d *Dispatcher) Subscribe(pattern string, listener Listener, runnerOpts ...runner.Option) Subscription {
	if listener == nil {
		return noopSubscription{}
	}
	return d.mux.Add(pattern, &listenerEntry{
		runner:   runner.NewHandler(runnerOpts...),
		listener: listener,
	})
}

// Listeners returns the number of subscriptions.
func (d *Dispatcher) Listeners() int {
	return d.mux.Len()
}

// Dispatch calls every matching listener in subscription order. Listener
// failures are joined unless ExitOnErr is set. No lock is held while a
// listener runs, so listeners may subscribe or unsubscribe.
func (d *Dispatcher) Dispatch(ctx context.Context, ec *automation.EventContext) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return apperrors.Wrap(ctx.Err(), apperrors.CategoryExternal, "context canceled or deadline exceeded")
	}

	eventType := ec.EventType()
	var errs error
	for _, entry := range d.mux.Get(eventType) {
		err := entry.runner.Run(ctx, func(ctx context.Context) error {
			return entry.listener(ctx, ec)
		})
		if err == nil {
			continue
		}
		wrapped := apperrors.Wrap(err, apperrors.CategoryHandler, fmt.Sprintf("listener failed for event type %s", eventType)).
			WithTextCode(ErrCodeListenerFailed)
		if d.ExitOnErr {
			return wrapped
		}
		errs = errors.Join(errs, wrapped)
	}
	return errs
}
