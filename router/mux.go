package router

import (
	"sync"
)

type Subscription interface {
	Unsubscribe()
}

// Mux routes topics to handlers registered under exact names or patterns.
type Mux[H any] struct {
	mu      sync.RWMutex
	nextID  uint64
	entries []*Entry[H]
	match   Matcher
}

// Entry is one registration; Unsubscribe removes it.
type Entry[H any] struct {
	mux     *Mux[H]
	id      uint64
	Pattern string
	Handler H
}

func (e *Entry[H]) Unsubscribe() {
	if e == nil || e.mux == nil {
		return
	}
	e.mux.remove(e.id)
}

type Option func(*options)

type options struct {
	matcher Matcher
}

// WithMatcher replaces the pattern matcher.
func WithMatcher(m Matcher) Option {
	return func(o *options) {
		if m != nil {
			o.matcher = m
		}
	}
}

func NewMux[H any](opts ...Option) *Mux[H] {
	o := options{matcher: EventTypeMatcher}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &Mux[H]{match: o.matcher}
}

// Add registers handler under pattern.
func (m *Mux[H]) Add(pattern string, handler H) *Entry[H] {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	e := &Entry[H]{mux: m, id: m.nextID, Pattern: pattern, Handler: handler}
	m.entries = append(m.entries, e)
	return e
}

// Get returns the handlers whose pattern matches topic, in registration order.
func (m *Mux[H]) Get(topic string) []H {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []H
	for _, e := range m.entries {
		if m.match(e.Pattern, topic) {
			out = append(out, e.Handler)
		}
	}
	return out
}

// Len returns the number of registrations.
func (m *Mux[H]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Mux[H]) remove(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make([]*Entry[H], 0, len(m.entries))
	for _, e := range m.entries {
		if e.id != id {
			kept = append(kept, e)
		}
	}
	m.entries = kept
}
