package cron

import (
	"fmt"
	"strings"
	"time"

	automation "github.com/goliatone/go-automation"
)

type Option func(*Scheduler)

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithLogger(logger automation.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithVerbose forwards the cron engine's scheduling chatter at debug level.
func WithVerbose() Option {
	return func(s *Scheduler) {
		s.verbose = true
	}
}

// WithSeconds switches to six-field expressions with a leading seconds
// field.
func WithSeconds() Option {
	return func(s *Scheduler) {
		s.seconds = true
	}
}

// WithErrorHandler receives the final error of every failed job.
func WithErrorHandler(handler func(error)) Option {
	return func(s *Scheduler) {
		s.errorHandler = handler
	}
}

// cronLogger adapts automation.Logger to robfig/cron, which logs a message
// followed by key/value pairs.
type cronLogger struct {
	logger  automation.Logger
	verbose bool
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	if l.verbose {
		l.logger.Debug("cron: %s%s", msg, pairs(keysAndValues))
	}
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: %s%s: %v", msg, pairs(keysAndValues), err)
}

func pairs(kv []any) string {
	var b strings.Builder
	for i := 0; i < len(kv); i += 2 {
		if i+1 < len(kv) {
			fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
		} else {
			fmt.Fprintf(&b, " %v", kv[i])
		}
	}
	return b.String()
}
