// Package mqtt connects the engine to an MQTT broker: a Source that turns
// subscribed messages into events and an mqtt_publish action.
package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	apperrors "github.com/goliatone/go-errors"
)

const (
	ErrCodeConnect   = "MQTT_CONNECT_FAILED"
	ErrCodeSubscribe = "MQTT_SUBSCRIBE_FAILED"
	ErrCodePublish   = "MQTT_PUBLISH_FAILED"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	maxQoS                   = 2
)

// Client is the part of paho's client the package uses. A connected
// pahomqtt.Client satisfies it.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
	Unsubscribe(topics ...string) pahomqtt.Token
}

// Config describes a broker connection.
type Config struct {
	Broker   string        `json:"broker"`
	ClientID string        `json:"client_id"`
	Username string        `json:"username"`
	Password string        `json:"password"`
	Timeout  time.Duration `json:"timeout"`
}

// Connect dials the broker with auto-reconnect enabled.
func Connect(cfg Config) (pahomqtt.Client, error) {
	if cfg.Broker == "" {
		return nil, apperrors.New("mqtt broker is required", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeConnect)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(timeout)
	opts.SetKeepAlive(defaultKeepAlive)

	client := pahomqtt.NewClient(opts)
	if err := wait(client.Connect(), timeout); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryExternal, fmt.Sprintf("connect to %s", cfg.Broker)).
			WithTextCode(ErrCodeConnect)
	}
	return client, nil
}

// Disconnect closes a client returned by Connect, letting pending work drain.
func Disconnect(client pahomqtt.Client) {
	if client != nil {
		client.Disconnect(defaultDisconnectQuiesce)
	}
}

func wait(token pahomqtt.Token, timeout time.Duration) error {
	if token == nil {
		return nil
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timeout after %s", timeout)
	}
	return token.Error()
}
