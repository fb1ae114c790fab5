package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

// CLI holds the flags shared by every command.
type CLI struct {
	Definitions string `short:"f" required:"" type:"existingfile" help:"Automation definitions document (YAML or JSON)."`
	Store       string `enum:"memory,sqlite" default:"memory" help:"Paused execution store (${enum})."`
	DB          string `name:"db" default:"automation.db" help:"SQLite database path."`
	LogFormat   string `enum:"text,glog,json,console" default:"text" help:"Log output (${enum})."`
	LogLevel    string `default:"info" help:"Minimum log level."`

	MQTT   MQTTFlags   `embed:"" prefix:"mqtt-"`
	Influx InfluxFlags `embed:"" prefix:"influx-"`

	Run      RunCmd      `cmd:"" default:"withargs" help:"Process events from stdin and MQTT."`
	Validate ValidateCmd `cmd:"" help:"Validate the definitions document against the registered units."`
	Paused   PausedCmd   `cmd:"" help:"List paused executions."`
	Cancel   CancelCmd   `cmd:"" help:"Discard a paused execution."`
}

type MQTTFlags struct {
	Broker   string   `help:"MQTT broker URL, e.g. tcp://localhost:1883."`
	ClientID string   `name:"client-id" default:"go-automation" help:"MQTT client id."`
	Username string   `help:"MQTT username."`
	Password string   `help:"MQTT password."`
	Topic    []string `help:"Topic filters published as events."`
}

type InfluxFlags struct {
	URL    string `name:"url" help:"InfluxDB URL."`
	Token  string `help:"InfluxDB token."`
	Org    string `help:"InfluxDB organization."`
	Bucket string `help:"InfluxDB bucket."`
}

func main() {
	cfg, err := loadConfig(os.Getenv(envPrefix + "_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("automation"),
		kong.Description("Run declarative automations against a stream of events."),
		kong.UsageOnError(),
		kong.Resolvers(configResolver(cfg)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx.BindTo(ctx, (*context.Context)(nil))
	if err := kctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
