package logging

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	automation "github.com/goliatone/go-automation"
)

// Zap adapts a zap SugaredLogger to automation.Logger. Zap has no trace
// level, so Trace logs at Debug.
type Zap struct {
	logger *zap.SugaredLogger
}

// NewZap wraps logger. A nil logger falls back to the fmt logger.
func NewZap(logger *zap.SugaredLogger) automation.Logger {
	if logger == nil {
		return automation.NewFmtLogger(nil)
	}
	return Zap{logger: logger}
}

// NewZapLogger builds a zap logger for format "json" or "console" at level.
func NewZapLogger(format, level string) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "console", "text":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	if level = strings.TrimSpace(level); level != "" {
		if strings.EqualFold(level, "trace") {
			level = "debug"
		}
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func (l Zap) Trace(msg string, args ...any) { l.logger.Debugf(msg, args...) }
func (l Zap) Debug(msg string, args ...any) { l.logger.Debugf(msg, args...) }
func (l Zap) Info(msg string, args ...any)  { l.logger.Infof(msg, args...) }
func (l Zap) Warn(msg string, args ...any)  { l.logger.Warnf(msg, args...) }
func (l Zap) Error(msg string, args ...any) { l.logger.Errorf(msg, args...) }
func (l Zap) Fatal(msg string, args ...any) { l.logger.Fatalf(msg, args...) }

func (l Zap) WithContext(context.Context) automation.Logger { return l }

func (l Zap) WithFields(fields map[string]any) automation.Logger {
	if len(fields) == 0 {
		return l
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kv := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		kv = append(kv, k, fields[k])
	}
	return Zap{logger: l.logger.With(kv...)}
}

// Sync flushes buffered entries.
func (l Zap) Sync() error {
	return l.logger.Sync()
}
