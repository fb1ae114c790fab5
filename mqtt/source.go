package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	apperrors "github.com/goliatone/go-errors"

	automation "github.com/goliatone/go-automation"
	"github.com/goliatone/go-automation/router"
)

// FieldTopic and FieldPayload are the event fields every message carries;
// object payloads are merged into the fields as well.
const (
	FieldTopic   = "topic"
	FieldPayload = "payload"
)

// Sink receives the events produced by a Source. *flow.Orchestrator
// satisfies it.
type Sink interface {
	Publish(ctx context.Context, evt automation.Event)
}

type route struct {
	filter    string
	eventType string
}

// Source subscribes to topics and publishes each message as an event.
// Event types come from the first matching route, or the topic with "/"
// replaced by ".".
type Source struct {
	client Client
	sink   Sink
	logger automation.Logger
	qos    byte

	mu         sync.Mutex
	routes     []route
	subscribed []string
}

type SourceOption func(*Source)

func WithSourceLogger(logger automation.Logger) SourceOption {
	return func(s *Source) {
		s.logger = logger
	}
}

func WithQoS(qos byte) SourceOption {
	return func(s *Source) {
		if qos <= maxQoS {
			s.qos = qos
		}
	}
}

// WithRoute maps topics matching filter ("+" and "#" wildcards) to eventType.
func WithRoute(filter, eventType string) SourceOption {
	return func(s *Source) {
		s.routes = append(s.routes, route{filter: filter, eventType: eventType})
	}
}

func NewSource(client Client, sink Sink, opts ...SourceOption) *Source {
	s := &Source{client: client, sink: sink}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = automation.NormalizeLogger(s.logger)
	return s
}

// Subscribe starts receiving messages on topics.
func (s *Source) Subscribe(topics ...string) error {
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		if err := wait(s.client.Subscribe(topic, s.qos, s.handle), defaultConnectTimeout); err != nil {
			return apperrors.Wrap(err, apperrors.CategoryExternal, fmt.Sprintf("subscribe to %s", topic)).
				WithTextCode(ErrCodeSubscribe).
				WithMetadata(map[string]any{"topic": topic})
		}
		s.mu.Lock()
		s.subscribed = append(s.subscribed, topic)
		s.mu.Unlock()
	}
	return nil
}

// Close unsubscribes from every topic.
func (s *Source) Close() error {
	s.mu.Lock()
	topics := s.subscribed
	s.subscribed = nil
	s.mu.Unlock()
	if len(topics) == 0 {
		return nil
	}
	return wait(s.client.Unsubscribe(topics...), defaultConnectTimeout)
}

func (s *Source) handle(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("mqtt handler panic on %s: %v", msg.Topic(), r)
		}
	}()
	s.sink.Publish(context.Background(), s.Event(msg.Topic(), msg.Payload()))
}

// Event converts one message into an event.
func (s *Source) Event(topic string, payload []byte) automation.GenericEvent {
	fields := map[string]any{FieldTopic: topic}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		fields[FieldPayload] = string(payload)
	} else {
		fields[FieldPayload] = decoded
		if obj, ok := decoded.(map[string]any); ok {
			for k, v := range obj {
				if _, reserved := fields[k]; !reserved {
					fields[k] = v
				}
			}
		}
	}
	return automation.NewEvent(s.eventType(topic), fields)
}

func (s *Source) eventType(topic string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.routes {
		if router.TopicMatcher(r.filter, topic) {
			return r.eventType
		}
	}
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}
