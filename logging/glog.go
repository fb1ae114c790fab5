package logging

import (
	"context"

	"github.com/goliatone/go-logger/glog"

	automation "github.com/goliatone/go-automation"
)

// Glog adapts a go-logger glog.Logger to automation.Logger.
type Glog struct {
	logger glog.Logger
}

// NewGlog wraps logger. A nil logger falls back to the fmt logger.
func NewGlog(logger glog.Logger) automation.Logger {
	if logger == nil {
		return automation.NewFmtLogger(nil)
	}
	return Glog{logger: logger}
}

func (l Glog) Trace(msg string, args ...any) { l.logger.Trace(msg, args...) }
func (l Glog) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l Glog) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l Glog) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l Glog) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l Glog) Fatal(msg string, args ...any) { l.logger.Fatal(msg, args...) }

func (l Glog) WithContext(ctx context.Context) automation.Logger {
	return Glog{logger: l.logger.WithContext(ctx)}
}

func (l Glog) WithFields(fields map[string]any) automation.Logger {
	if fl, ok := l.logger.(glog.FieldsLogger); ok {
		return Glog{logger: fl.WithFields(fields)}
	}
	return l
}
