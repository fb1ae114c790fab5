package automation

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	// DataKeyEventType exposes the event type name to templates.
	DataKeyEventType = "_event_type"
	// DataKeyExecutionID exposes the execution id to templates.
	DataKeyExecutionID = "_execution_id"
)

// EventContext carries one Event through an automation run.
//
// The wrapped Event is never mutated. Variables produced while evaluating a
// run are written to the metadata overlay, which is owned by the run: one
// stage writes at a time, later stages read what earlier stages stored.
type EventContext struct {
	executionID string
	event       Event

	mu       sync.RWMutex
	metadata map[string]any
}

// NewEventContext wraps evt with a freshly generated execution id.
func NewEventContext(evt Event) *EventContext {
	return &EventContext{
		executionID: NewExecutionID(),
		event:       normalizeEvent(evt),
		metadata:    make(map[string]any),
	}
}

// RestoreEventContext rebuilds a context for a run that was suspended.
func RestoreEventContext(executionID string, evt Event, metadata map[string]any) *EventContext {
	executionID = strings.TrimSpace(executionID)
	if executionID == "" {
		executionID = NewExecutionID()
	}
	md := copyMap(metadata)
	if md == nil {
		md = make(map[string]any)
	}
	return &EventContext{
		executionID: executionID,
		event:       normalizeEvent(evt),
		metadata:    md,
	}
}

// NewExecutionID returns a unique execution identifier.
func NewExecutionID() string {
	return uuid.NewString()
}

func (c *EventContext) ExecutionID() string {
	if c == nil {
		return ""
	}
	return c.executionID
}

func (c *EventContext) Event() Event {
	if c == nil {
		return GenericEvent{}
	}
	return c.event
}

// EventType is shorthand for Event().Type().
func (c *EventContext) EventType() string {
	return c.Event().Type()
}

// Get returns a metadata value.
func (c *EventContext) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.metadata[key]
	return v, ok
}

// Set stores a metadata value visible to every later stage of the run.
func (c *EventContext) Set(key string, value any) {
	if c == nil {
		return
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
}

// Merge stores every entry of values.
func (c *EventContext) Merge(values map[string]any) {
	if c == nil || len(values) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range values {
		if k = strings.TrimSpace(k); k != "" {
			c.metadata[k] = v
		}
	}
}

// Delete removes a metadata key.
func (c *EventContext) Delete(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.metadata, key)
}

// Metadata returns a copy of the metadata overlay.
func (c *EventContext) Metadata() map[string]any {
	if c == nil {
		return map[string]any{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := copyMap(c.metadata)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

// Keys returns the sorted metadata keys.
func (c *EventContext) Keys() []string {
	md := c.Metadata()
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Data is the lookup map handed to templates and matchers: event fields,
// overlaid by metadata, plus the reserved _event_type/_execution_id keys.
func (c *EventContext) Data() map[string]any {
	out := c.Event().Fields()
	if out == nil {
		out = map[string]any{}
	}
	for k, v := range c.Metadata() {
		out[k] = v
	}
	out[DataKeyEventType] = c.EventType()
	out[DataKeyExecutionID] = c.ExecutionID()
	return out
}

// Fork copies the context for an independent run: same event, copied
// metadata, new execution id.
func (c *EventContext) Fork() *EventContext {
	return RestoreEventContext(NewExecutionID(), c.Event(), c.Metadata())
}

// Snapshot captures the context in a serializable form.
func (c *EventContext) Snapshot() EventContextSnapshot {
	return EventContextSnapshot{
		ExecutionID: c.ExecutionID(),
		EventType:   c.EventType(),
		Fields:      c.Event().Fields(),
		Metadata:    c.Metadata(),
	}
}

// EventContextSnapshot is the persisted form of an EventContext.
type EventContextSnapshot struct {
	ExecutionID string         `json:"execution_id"`
	EventType   string         `json:"event_type"`
	Fields      map[string]any `json:"fields,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// EventDecoder turns a persisted event back into an application Event.
type EventDecoder func(eventType string, fields map[string]any) (Event, error)

// DecodeGenericEvent is the default EventDecoder.
func DecodeGenericEvent(eventType string, fields map[string]any) (Event, error) {
	return NewEvent(eventType, fields), nil
}

// Restore rebuilds the EventContext, using decode for the event payload.
func (s EventContextSnapshot) Restore(decode EventDecoder) (*EventContext, error) {
	if decode == nil {
		decode = DecodeGenericEvent
	}
	evt, err := decode(s.EventType, copyMap(s.Fields))
	if err != nil {
		return nil, err
	}
	return RestoreEventContext(s.ExecutionID, evt, s.Metadata), nil
}

func normalizeEvent(evt Event) Event {
	if evt == nil {
		return GenericEvent{Name: "unknown_type"}
	}
	return evt
}
