package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/goliatone/go-errors"

	automation "github.com/goliatone/go-automation"
	"github.com/goliatone/go-automation/router"
)

const ActionPublish = "mqtt_publish"

type PublishConfig struct {
	Topic string `json:"topic"`
	// Payload is sent as-is when it is a string or bytes, JSON encoded
	// otherwise. An absent payload publishes the run data.
	Payload  any           `json:"payload"`
	QoS      int           `json:"qos"`
	Retained bool          `json:"retained"`
	Timeout  time.Duration `json:"timeout"`
}

func (c PublishConfig) Validate() error {
	topic := strings.TrimSpace(c.Topic)
	if topic == "" {
		return errors.New("topic is required")
	}
	if router.IsPattern(topic) {
		return fmt.Errorf("topic %q contains wildcards", topic)
	}
	if c.QoS < 0 || c.QoS > maxQoS {
		return fmt.Errorf("qos must be between 0 and %d", maxQoS)
	}
	return nil
}

// PublishAction returns the mqtt_publish action bound to client. A nil
// client registers the action but fails every invocation.
func PublishAction(client Client) automation.Action {
	return automation.NewAction[PublishConfig](ActionPublish, automation.ActionFunc[PublishConfig](
		func(_ context.Context, ec *automation.EventContext, cfg PublishConfig) (automation.ActionResult, error) {
			if client == nil {
				return automation.Continue(), apperrors.New("mqtt client not configured", apperrors.CategoryBadInput).
					WithTextCode(ErrCodePublish)
			}
			payload, err := encodePayload(cfg.Payload, ec)
			if err != nil {
				return automation.Continue(), err
			}
			timeout := cfg.Timeout
			if timeout <= 0 {
				timeout = defaultPublishTimeout
			}
			topic := strings.TrimSpace(cfg.Topic)
			if err := wait(client.Publish(topic, byte(cfg.QoS), cfg.Retained, payload), timeout); err != nil {
				return automation.Continue(), apperrors.Wrap(err, apperrors.CategoryExternal, fmt.Sprintf("publish to %s", topic)).
					WithTextCode(ErrCodePublish).
					WithMetadata(map[string]any{"topic": topic, "execution_id": ec.ExecutionID()})
			}
			return automation.Continue(), nil
		},
	), automation.WithDescription("publishes a message to an MQTT topic"))
}

func encodePayload(payload any, ec *automation.EventContext) ([]byte, error) {
	switch v := payload.(type) {
	case nil:
		return json.Marshal(ec.Data())
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}
