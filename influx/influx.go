// Package influx provides the influx_write action, which records one point
// per invocation in InfluxDB v2.
package influx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/goliatone/go-errors"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	automation "github.com/goliatone/go-automation"
)

const (
	ActionWrite = "influx_write"

	ErrCodeConnect = "INFLUX_CONNECT_FAILED"
	ErrCodeWrite   = "INFLUX_WRITE_FAILED"

	defaultPingTimeout = 5 * time.Second
)

// Writer is the part of api.WriteAPIBlocking the action uses.
type Writer interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type Config struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// Connect creates a client, checks the server answers a ping and returns a
// blocking writer for cfg.Bucket. Close the client when done.
func Connect(ctx context.Context, cfg Config) (influxdb2.Client, Writer, error) {
	if cfg.URL == "" || cfg.Bucket == "" {
		return nil, nil, apperrors.New("influx url and bucket are required", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeConnect)
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err == nil && !healthy {
		err = errors.New("server not healthy")
	}
	if err != nil {
		client.Close()
		return nil, nil, apperrors.Wrap(err, apperrors.CategoryExternal, fmt.Sprintf("connect to %s", cfg.URL)).
			WithTextCode(ErrCodeConnect)
	}
	return client, client.WriteAPIBlocking(cfg.Org, cfg.Bucket), nil
}

type WriteConfig struct {
	Measurement string            `json:"measurement"`
	Tags        map[string]string `json:"tags"`
	Fields      map[string]any    `json:"fields"`
	// Time defaults to the invocation time.
	Time time.Time `json:"time"`
}

func (c WriteConfig) Validate() error {
	if strings.TrimSpace(c.Measurement) == "" {
		return errors.New("measurement is required")
	}
	if len(c.Fields) == 0 {
		return errors.New("at least one field is required")
	}
	return nil
}

// WriteAction returns the influx_write action. Every point is tagged with
// the triggering event type. A nil writer fails every invocation.
func WriteAction(writer Writer) automation.Action {
	return automation.NewAction[WriteConfig](ActionWrite, automation.ActionFunc[WriteConfig](
		func(ctx context.Context, ec *automation.EventContext, cfg WriteConfig) (automation.ActionResult, error) {
			if writer == nil {
				return automation.Continue(), apperrors.New("influx writer not configured", apperrors.CategoryBadInput).
					WithTextCode(ErrCodeWrite)
			}
			point := NewPoint(ec, cfg, time.Now())
			if err := writer.WritePoint(ctx, point); err != nil {
				return automation.Continue(), apperrors.Wrap(err, apperrors.CategoryExternal, fmt.Sprintf("write %s", cfg.Measurement)).
					WithTextCode(ErrCodeWrite).
					WithMetadata(map[string]any{"measurement": cfg.Measurement, "execution_id": ec.ExecutionID()})
			}
			return automation.Continue(), nil
		},
	), automation.WithDescription("writes a point to InfluxDB"))
}

// NewPoint builds the point written for one invocation.
func NewPoint(ec *automation.EventContext, cfg WriteConfig, now time.Time) *write.Point {
	tags := make(map[string]string, len(cfg.Tags)+1)
	if eventType := ec.EventType(); eventType != "" {
		tags["event_type"] = eventType
	}
	for k, v := range cfg.Tags {
		tags[k] = v
	}
	ts := cfg.Time
	if ts.IsZero() {
		ts = now
	}
	return influxdb2.NewPoint(strings.TrimSpace(cfg.Measurement), tags, cfg.Fields, ts)
}
