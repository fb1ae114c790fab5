package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	automation "github.com/goliatone/go-automation"
	"github.com/goliatone/go-automation/flow"
	"github.com/goliatone/go-automation/httpapi"
	"github.com/goliatone/go-automation/influx"
	"github.com/goliatone/go-automation/metrics"
	"github.com/goliatone/go-automation/mqtt"
)

type RunCmd struct {
	Input       string `default:"-" help:"JSON-lines event file, '-' for stdin, empty to skip."`
	MetricsAddr string `help:"Serve Prometheus metrics on this address, e.g. :9100."`
	HTTPAddr    string `name:"http-addr" help:"Serve the HTTP API on this address, e.g. :8080."`
}

func (c *RunCmd) Run(ctx context.Context, cli *CLI) error {
	var ext integrations
	var opts []flow.Option

	if cli.MQTT.Broker != "" {
		client, err := mqtt.Connect(mqtt.Config{
			Broker:   cli.MQTT.Broker,
			ClientID: cli.MQTT.ClientID,
			Username: cli.MQTT.Username,
			Password: cli.MQTT.Password,
		})
		if err != nil {
			return err
		}
		defer mqtt.Disconnect(client)
		ext.mqtt = client
	}

	if cli.Influx.URL != "" {
		client, writer, err := influx.Connect(ctx, influx.Config{
			URL:    cli.Influx.URL,
			Token:  cli.Influx.Token,
			Org:    cli.Influx.Org,
			Bucket: cli.Influx.Bucket,
		})
		if err != nil {
			return err
		}
		defer client.Close()
		ext.influx = writer
	}

	var metricsHandler http.Handler
	if c.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, flow.WithMetrics(metrics.NewPrometheusRecorder(reg)))
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	a, err := newApp(cli, nil, ext, opts...)
	if err != nil {
		return err
	}
	defer a.close()

	if metricsHandler != nil {
		defer serve(c.MetricsAddr, metricsHandler, a.logger)()
	}
	if c.HTTPAddr != "" {
		api := httpapi.New(a.orch, httpapi.WithLogger(a.logger), httpapi.WithMetricsHandler(metricsHandler))
		defer serve(c.HTTPAddr, api.Handler(), a.logger)()
	}

	loaded, err := a.load(ctx, cli.Definitions)
	if err != nil {
		return err
	}
	a.logger.Info("loaded %d automations", len(loaded))

	if ext.mqtt != nil && len(cli.MQTT.Topic) > 0 {
		src := mqtt.NewSource(ext.mqtt, a.orch, mqtt.WithSourceLogger(a.logger))
		if err := src.Subscribe(cli.MQTT.Topic...); err != nil {
			return err
		}
		defer func() { _ = src.Close() }()
	}

	if c.Input != "" {
		in := io.Reader(os.Stdin)
		if c.Input != "-" {
			f, err := os.Open(c.Input)
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		n, err := consume(ctx, in, a.orch, a.logger)
		if err != nil {
			return err
		}
		a.logger.Info("processed %d events", n)
	}

	// an MQTT source or a listener keeps the process alive until signaled
	if ext.mqtt != nil || c.MetricsAddr != "" || c.HTTPAddr != "" {
		<-ctx.Done()
	}
	return nil
}

// serve listens on addr in the background and returns the shutdown func.
func serve(addr string, h http.Handler, logger automation.Logger) func() {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http listener %s: %v", addr, err)
		}
	}()
	logger.Info("listening on %s", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// consume publishes one event per JSON line: {"type": "...", "fields": {...}}.
func consume(ctx context.Context, in io.Reader, sink mqtt.Sink, logger automation.Logger) (int, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return count, nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var evt automation.GenericEvent
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			logger.Warn("skipping malformed event line: %v", err)
			continue
		}
		if strings.TrimSpace(evt.Name) == "" {
			logger.Warn("skipping event without type")
			continue
		}
		sink.Publish(ctx, evt)
		count++
	}
	return count, scanner.Err()
}

type ValidateCmd struct{}

func (c *ValidateCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := newApp(cli, nil, integrations{})
	if err != nil {
		return err
	}
	defer a.close()

	loaded, err := a.load(ctx, cli.Definitions)
	if err != nil {
		return err
	}
	for _, auto := range loaded {
		fmt.Printf("%s\t%d actions\t%s\n", auto.Alias(), auto.ActionCount(), auto.Description())
	}
	return nil
}

type PausedCmd struct{}

func (c *PausedCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := newApp(cli, nil, integrations{})
	if err != nil {
		return err
	}
	defer a.close()
	return printPaused(ctx, os.Stdout, a.orch)
}

func printPaused(ctx context.Context, out io.Writer, orch *flow.Orchestrator) error {
	paused, err := orch.Paused(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EXECUTION\tAUTOMATION\tCURSOR\tRESUME ON\tDEADLINE")
	for _, p := range paused {
		resumeOn := "-"
		if p.ResumeTrigger != nil {
			resumeOn = p.ResumeTrigger.Label()
		}
		deadline := "-"
		if !p.Deadline.IsZero() {
			deadline = p.Deadline.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", p.ExecutionID, p.Automation, p.Cursor, resumeOn, deadline)
	}
	return w.Flush()
}

type CancelCmd struct {
	ID string `arg:"" help:"Execution id to discard."`
}

func (c *CancelCmd) Run(ctx context.Context, cli *CLI) error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("execution id is required")
	}
	a, err := newApp(cli, nil, integrations{})
	if err != nil {
		return err
	}
	defer a.close()
	return a.orch.Cancel(ctx, c.ID)
}
