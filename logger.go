package automation

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Logger is the engine logging contract. Messages are printf formats.
// Adapters for go-logger and zap live in the logging package.
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Fatal(msg string, args ...any)
	WithContext(ctx context.Context) Logger
}

// FieldsLogger is implemented by loggers that carry structured fields.
type FieldsLogger interface {
	WithFields(map[string]any) Logger
}

// Level orders log severities.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = [...]string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l Level) String() string {
	if l < LevelTrace || l > LevelFatal {
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel accepts level names in any case; "warning" is an alias of warn.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// FmtLogger writes one line per entry: timestamp, level, message and the
// sorted k=v fields. It is the fallback when no logger is configured and
// logs everything from trace up unless a minimum level is set.
type FmtLogger struct {
	sink   *lineSink
	min    Level
	fields map[string]any
}

type lineSink struct {
	mu  sync.Mutex
	out io.Writer
}

// NewFmtLogger writes to out, or stdout when out is nil.
func NewFmtLogger(out io.Writer) *FmtLogger {
	if out == nil {
		out = os.Stdout
	}
	return &FmtLogger{sink: &lineSink{out: out}, min: LevelTrace}
}

// WithLevel returns a copy that drops entries below threshold.
func (l *FmtLogger) WithLevel(threshold Level) *FmtLogger {
	cp := *l.orDefault()
	cp.min = threshold
	return &cp
}

func (l *FmtLogger) Trace(msg string, args ...any) { l.write(LevelTrace, msg, args) }
func (l *FmtLogger) Debug(msg string, args ...any) { l.write(LevelDebug, msg, args) }
func (l *FmtLogger) Info(msg string, args ...any)  { l.write(LevelInfo, msg, args) }
func (l *FmtLogger) Warn(msg string, args ...any)  { l.write(LevelWarn, msg, args) }
func (l *FmtLogger) Error(msg string, args ...any) { l.write(LevelError, msg, args) }
func (l *FmtLogger) Fatal(msg string, args ...any) { l.write(LevelFatal, msg, args) }

// WithContext returns l; the fmt logger has nothing to read from a context.
func (l *FmtLogger) WithContext(context.Context) Logger {
	return l.orDefault()
}

func (l *FmtLogger) WithFields(fields map[string]any) Logger {
	cp := *l.orDefault()
	cp.fields = MergeFields(cp.fields, fields)
	return &cp
}

func (l *FmtLogger) orDefault() *FmtLogger {
	if l == nil || l.sink == nil {
		return NewFmtLogger(nil)
	}
	return l
}

func (l *FmtLogger) write(level Level, msg string, args []any) {
	l = l.orDefault()
	if level < l.min {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	var b strings.Builder
	b.WriteString(time.Now().UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, " %-5s %s", level, strings.TrimSpace(msg))
	if len(l.fields) > 0 {
		b.WriteByte(' ')
		b.WriteString(formatFields(l.fields))
	}
	b.WriteByte('\n')

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	_, _ = io.WriteString(l.sink.out, b.String())
}

// NormalizeLogger returns logger, or a stdout FmtLogger when nil.
func NormalizeLogger(logger Logger) Logger {
	if logger == nil {
		return NewFmtLogger(nil)
	}
	return logger
}

// WithLoggerFields attaches fields when the logger supports them and
// returns it unchanged otherwise.
func WithLoggerFields(logger Logger, fields map[string]any) Logger {
	logger = NormalizeLogger(logger)
	if fl, ok := logger.(FieldsLogger); ok && len(fields) > 0 {
		return fl.WithFields(fields)
	}
	return logger
}

// MergeFields returns a new map with the entries of a, overridden by b.
func MergeFields(a, b map[string]any) map[string]any {
	if len(a)+len(b) == 0 {
		return nil
	}
	out := make(map[string]any, len(a)+len(b))
	for _, m := range []map[string]any{a, b} {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func formatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%v", k, fields[k])
	}
	return b.String()
}
