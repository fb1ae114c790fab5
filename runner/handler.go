// Package runner calls a function under a retry and timeout policy.
package runner

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/goliatone/go-errors"

	automation "github.com/goliatone/go-automation"
)

const ErrCodeRunFailed = "RUN_FAILED"

// Attempt describes one failed call to the run function.
type Attempt struct {
	Number int
	Err    error
	// Final is set when no retry follows.
	Final bool
	Delay time.Duration
}

// Stats counts completed runs. A run covers all of its attempts.
type Stats struct {
	Runs      int
	Succeeded int
	Failed    int
	Attempts  int
}

// Handler applies its policy to every Run. It is safe for concurrent use.
type Handler struct {
	logger    automation.Logger
	backoff   Backoff
	retryIf   func(error) bool
	onFailure func(Attempt)
	onLimit   func()

	maxRetries int
	limit      int
	timeout    time.Duration
	deadline   time.Time

	mu    sync.Mutex
	stats Stats
}

func NewHandler(opts ...Option) *Handler {
	h := &Handler{backoff: Immediate()}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Run calls fn until it succeeds or the policy gives up, and returns the
// last error unchanged. Once the success limit is reached Run returns nil
// without calling fn.
func (h *Handler) Run(ctx context.Context, fn func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if h.exhausted() {
		return nil
	}

	if !h.deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, h.deadline)
		defer cancel()
	}

	var (
		err      error
		attempts int
	)
	for {
		attempts++
		if err = h.call(ctx, fn); err == nil {
			break
		}

		a := Attempt{Number: attempts, Err: err, Final: true}
		if attempts <= h.maxRetries && ctx.Err() == nil && (h.retryIf == nil || h.retryIf(err)) {
			delay, ok := h.backoff.Next(attempts-1, err)
			a.Delay, a.Final = delay, !ok
		}
		h.failed(a)
		if a.Final {
			break
		}
		if !sleep(ctx, a.Delay) {
			err = ctx.Err()
			break
		}
	}

	h.record(err, attempts)
	return err
}

func (h *Handler) call(ctx context.Context, fn func(context.Context) error) error {
	if h.timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return fn(ctx)
}

func (h *Handler) failed(a Attempt) {
	if h.logger != nil {
		if a.Final {
			h.logger.Error("run failed after %d attempt(s): %v", a.Number, a.Err)
		} else {
			h.logger.Warn("attempt %d failed, retrying in %s: %v", a.Number, a.Delay, a.Err)
		}
	}
	if h.onFailure != nil {
		h.onFailure(a)
	}
}

func (h *Handler) exhausted() bool {
	if h.limit == 0 {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats.Succeeded >= h.limit
}

func (h *Handler) record(err error, attempts int) {
	h.mu.Lock()
	h.stats.Runs++
	h.stats.Attempts += attempts
	reached := false
	if err == nil {
		h.stats.Succeeded++
		reached = h.limit > 0 && h.stats.Succeeded == h.limit
	} else {
		h.stats.Failed++
	}
	h.mu.Unlock()

	if reached && h.onLimit != nil {
		h.onLimit()
	}
}

func (h *Handler) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// RunValue runs fn through h and returns its last result.
func RunValue[R any](ctx context.Context, h *Handler, fn func(context.Context) (R, error)) (R, error) {
	var out R
	err := h.Run(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// Wrap annotates a failed attempt with the RUN_FAILED code and its number.
func Wrap(a Attempt) error {
	if a.Err == nil {
		return nil
	}
	return apperrors.Wrap(a.Err, apperrors.CategoryHandler, "run failed").
		WithTextCode(ErrCodeRunFailed).
		WithMetadata(map[string]any{"attempt": a.Number, "final": a.Final})
}
