package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	automation "github.com/goliatone/go-automation"
)

const definitions = `
automations:
  - alias: greet
    triggers:
      - unit: event_type
        params:
          type: user.*
    actions:
      - unit: log
        params:
          message: "hello {{ .name }}"
  - alias: doorbell
    triggers:
      - unit: event_type
        params:
          type: door.opened
    actions:
      - unit: pause_until
        params:
          trigger:
            unit: event_type
            params:
              type: door.closed
`

func writeDefinitions(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "automations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(definitions), 0o600))
	return path
}

func TestParseFlags(t *testing.T) {
	path := writeDefinitions(t)
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("automation"))
	require.NoError(t, err)

	kctx, err := parser.Parse([]string{"-f", path, "--store", "sqlite", "--mqtt-topic", "home/#", "--mqtt-topic", "office/#", "run", "--input=", "--http-addr", ":8080"})
	require.NoError(t, err)
	assert.Equal(t, "run", kctx.Command())
	assert.Equal(t, "sqlite", cli.Store)
	assert.Equal(t, []string{"home/#", "office/#"}, cli.MQTT.Topic)
	assert.Equal(t, "", cli.Run.Input)
	assert.Equal(t, ":8080", cli.Run.HTTPAddr)

	_, err = parser.Parse([]string{"-f", path, "--store", "postgres", "validate"})
	assert.Error(t, err)
}

func TestConsumeRunsAutomations(t *testing.T) {
	cli := &CLI{Definitions: writeDefinitions(t), Store: "memory", LogFormat: "text"}
	out := &bytes.Buffer{}
	a, err := newApp(cli, out, integrations{})
	require.NoError(t, err)
	defer a.close()

	ctx := context.Background()
	loaded, err := a.load(ctx, cli.Definitions)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	input := strings.Join([]string{
		`{"type":"user.created","fields":{"name":"ana"}}`,
		`not json`,
		``,
		`{"fields":{"name":"nobody"}}`,
		`{"type":"door.opened"}`,
	}, "\n")
	n, err := consume(ctx, strings.NewReader(input), a.orch, a.logger)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, out.String(), "hello ana")
	assert.Contains(t, out.String(), "skipping malformed event line")

	table := &bytes.Buffer{}
	require.NoError(t, printPaused(ctx, table, a.orch))
	assert.Contains(t, table.String(), "doorbell")
	assert.Contains(t, table.String(), "event_type")

	n, err = consume(ctx, strings.NewReader(`{"type":"door.closed"}`), a.orch, a.logger)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	paused, err := a.orch.Paused(ctx)
	require.NoError(t, err)
	assert.Empty(t, paused)
}

func TestSQLiteStoreSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	cli := &CLI{Definitions: writeDefinitions(t), Store: "sqlite", DB: filepath.Join(dir, "state.db"), LogFormat: "text"}
	ctx := context.Background()

	first, err := newApp(cli, &bytes.Buffer{}, integrations{})
	require.NoError(t, err)
	_, err = first.load(ctx, cli.Definitions)
	require.NoError(t, err)
	_, err = consume(ctx, strings.NewReader(`{"type":"door.opened"}`), first.orch, first.logger)
	require.NoError(t, err)
	first.close()

	second, err := newApp(cli, &bytes.Buffer{}, integrations{})
	require.NoError(t, err)
	defer second.close()
	paused, err := second.orch.Paused(ctx)
	require.NoError(t, err)
	require.Len(t, paused, 1)
	assert.Equal(t, "doorbell", paused[0].Automation)

	require.NoError(t, second.orch.Cancel(ctx, paused[0].ExecutionID))
	paused, err = second.orch.Paused(ctx)
	require.NoError(t, err)
	assert.Empty(t, paused)
}

func TestUnconfiguredIntegrationsFail(t *testing.T) {
	cli := &CLI{Store: "memory", LogFormat: "text"}
	a, err := newApp(cli, &bytes.Buffer{}, integrations{})
	require.NoError(t, err)
	defer a.close()

	action, err := a.registry.Action("mqtt_publish")
	require.NoError(t, err)
	_, err = action.Execute(context.Background(), automation.NewEventContext(nil), automation.Params{"topic": "x"})
	assert.Error(t, err)
}

func TestNewLoggerFormats(t *testing.T) {
	for _, format := range []string{"text", "glog", "json", "console"} {
		logger, err := newLogger(format, "info", &bytes.Buffer{})
		require.NoError(t, err, format)
		assert.NotNil(t, logger)
	}
	_, err := newLogger("json", "loud", nil)
	assert.Error(t, err)
	_, err = newLogger("text", "loud", nil)
	assert.Error(t, err)

	buf := &bytes.Buffer{}
	logger, err := newLogger("text", "warn", buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestConfigFileAndEnvFillFlags(t *testing.T) {
	defs := writeDefinitions(t)
	cfgPath := filepath.Join(t.TempDir(), "automation.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
definitions: `+defs+`
store: sqlite
log_format: json
mqtt:
  broker: tcp://broker:1883
  topic: [home/#, garage/#]
influx_url: http://influx:8086
`), 0o600))
	t.Setenv("AUTOMATION_LOG_LEVEL", "debug")

	v, err := loadConfig(cfgPath)
	require.NoError(t, err)

	var cli CLI
	parser, err := kong.New(&cli, kong.Name("automation"), kong.Resolvers(configResolver(v)))
	require.NoError(t, err)
	_, err = parser.Parse([]string{"--log-format", "text", "validate"})
	require.NoError(t, err)

	assert.Equal(t, defs, cli.Definitions)
	assert.Equal(t, "sqlite", cli.Store)
	assert.Equal(t, "text", cli.LogFormat, "command line wins over the file")
	assert.Equal(t, "debug", cli.LogLevel)
	assert.Equal(t, "tcp://broker:1883", cli.MQTT.Broker)
	assert.Equal(t, []string{"home/#", "garage/#"}, cli.MQTT.Topic)
	assert.Equal(t, "http://influx:8086", cli.Influx.URL)
	assert.Equal(t, "go-automation", cli.MQTT.ClientID)
}

func TestMissingExplicitConfigFails(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	_, err = loadConfig("")
	require.NoError(t, err, "searching without a file is not an error")
	assert.Equal(t, []string{"mqtt.client_id", "mqtt_client_id"}, configKeys("mqtt-client-id"))
	assert.Equal(t, []string{"store"}, configKeys("store"))
}
