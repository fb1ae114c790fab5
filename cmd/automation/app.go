package main

import (
	"context"
	"database/sql"
	"io"
	"os"

	"github.com/goliatone/go-logger/glog"
	_ "github.com/mattn/go-sqlite3"

	automation "github.com/goliatone/go-automation"
	"github.com/goliatone/go-automation/builtin"
	"github.com/goliatone/go-automation/flow"
	"github.com/goliatone/go-automation/influx"
	"github.com/goliatone/go-automation/logging"
	"github.com/goliatone/go-automation/mqtt"
	"github.com/goliatone/go-automation/registry"
)

// app bundles everything a command needs. close releases it in reverse order.
type app struct {
	logger   automation.Logger
	registry *registry.Registry
	store    flow.StateStore
	orch     *flow.Orchestrator
	closers  []func()
}

type integrations struct {
	mqtt   mqtt.Client
	influx influx.Writer
}

func newApp(cli *CLI, out io.Writer, ext integrations, opts ...flow.Option) (*app, error) {
	logger, err := newLogger(cli.LogFormat, cli.LogLevel, out)
	if err != nil {
		return nil, err
	}
	a := &app{logger: logger, registry: registry.New()}

	switch cli.Store {
	case "sqlite":
		db, err := sql.Open("sqlite3", cli.DB)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
		a.closers = append(a.closers, func() { _ = db.Close() })
		a.store = flow.NewSQLiteStateStore(db, "")
	default:
		a.store = flow.NewInMemoryStateStore()
	}

	opts = append([]flow.Option{flow.WithLogger(logger), flow.WithStateStore(a.store)}, opts...)
	a.orch = flow.NewOrchestrator(a.registry, opts...)
	a.closers = append(a.closers, func() { _ = a.orch.Close(context.Background()) })

	if err := builtin.Register(a.registry, a.orch.Bus(), logger); err != nil {
		a.close()
		return nil, err
	}
	if err := a.registry.Register(mqtt.PublishAction(ext.mqtt), influx.WriteAction(ext.influx)); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// load parses the definitions document and registers its automations.
func (a *app) load(ctx context.Context, path string) ([]*flow.Automation, error) {
	doc, err := flow.LoadDocument(path)
	if err != nil {
		return nil, err
	}
	return a.orch.LoadDocument(ctx, doc)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newLogger(format, level string, out io.Writer) (automation.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	switch format {
	case "glog":
		return logging.NewGlog(glog.NewLogger(
			glog.WithWriter(out),
			glog.WithLoggerTypeJSON(),
			glog.WithLevel(level),
		)), nil
	case "json", "console":
		z, err := logging.NewZapLogger(format, level)
		if err != nil {
			return nil, err
		}
		return logging.NewZap(z), nil
	default:
		threshold, err := automation.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		return automation.NewFmtLogger(out).WithLevel(threshold), nil
	}
}
