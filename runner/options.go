package runner

import (
	"time"

	automation "github.com/goliatone/go-automation"
)

type Option func(*Handler)

// WithTimeout bounds every attempt. Retries get a fresh timeout.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.timeout = d
	}
}

// WithDeadline bounds the whole run, retries and backoff included.
func WithDeadline(t time.Time) Option {
	return func(h *Handler) {
		h.deadline = t
	}
}

func WithMaxRetries(n int) Option {
	return func(h *Handler) {
		h.maxRetries = max(n, 0)
	}
}

// WithLimit stops calling fn once it has succeeded n times. Zero means no
// limit.
func WithLimit(n int) Option {
	return func(h *Handler) {
		h.limit = max(n, 0)
	}
}

func WithBackoff(b Backoff) Option {
	return func(h *Handler) {
		if b != nil {
			h.backoff = b
		}
	}
}

// WithRetryIf limits retries to errors accepted by fn.
func WithRetryIf(fn func(error) bool) Option {
	return func(h *Handler) {
		h.retryIf = fn
	}
}

func WithLogger(l automation.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithOnFailure observes every failed attempt, the final one included.
func WithOnFailure(fn func(Attempt)) Option {
	return func(h *Handler) {
		h.onFailure = fn
	}
}

// WithOnLimit is called once, by the run that reaches the limit.
func WithOnLimit(fn func()) Option {
	return func(h *Handler) {
		h.onLimit = fn
	}
}
