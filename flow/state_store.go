package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	automation "github.com/goliatone/go-automation"
)

// PausedExecution is the persisted state of a suspended run.
type PausedExecution struct {
	ExecutionID string `json:"execution_id"`
	Automation  string `json:"automation"`
	// Cursor is the index of the action to resume from.
	Cursor        int                             `json:"cursor"`
	Context       automation.EventContextSnapshot `json:"context"`
	ResumeTrigger *automation.Step                `json:"resume_trigger,omitempty"`
	// Deadline bounds resumability; zero means none.
	Deadline time.Time `json:"deadline,omitempty"`
	PausedAt time.Time `json:"paused_at"`
}

// Expired reports whether the deadline passed at now.
func (p PausedExecution) Expired(now time.Time) bool {
	return !p.Deadline.IsZero() && !now.Before(p.Deadline)
}

// Clone returns a deep copy.
func (p PausedExecution) Clone() PausedExecution {
	out := p
	out.Context.Fields = cloneMap(p.Context.Fields)
	out.Context.Metadata = cloneMap(p.Context.Metadata)
	if p.ResumeTrigger != nil {
		step := p.ResumeTrigger.Clone()
		out.ResumeTrigger = &step
	}
	return out
}

// StateStore persists paused executions keyed by execution id.
type StateStore interface {
	Save(ctx context.Context, paused PausedExecution) error
	// FindByID returns nil without error when the id is unknown.
	FindByID(ctx context.Context, executionID string) (*PausedExecution, error)
	FindAll(ctx context.Context) ([]PausedExecution, error)
	// Remove is a no-op for unknown ids.
	Remove(ctx context.Context, executionID string) error
}

var errExecutionIDRequired = errors.New("execution id required")

// InMemoryStateStore is a thread-safe in-memory StateStore.
type InMemoryStateStore struct {
	mu     sync.RWMutex
	paused map[string]PausedExecution
}

// NewInMemoryStateStore constructs an empty store.
func NewInMemoryStateStore() *InMemoryStateStore {
	return &InMemoryStateStore{
		paused: make(map[string]PausedExecution),
	}
}

func (s *InMemoryStateStore) Save(_ context.Context, paused PausedExecution) error {
	id := strings.TrimSpace(paused.ExecutionID)
	if id == "" {
		return automation.WrapStateStoreError("save", id, errExecutionIDRequired)
	}
	paused.ExecutionID = id
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused[id] = paused.Clone()
	return nil
}

func (s *InMemoryStateStore) FindByID(_ context.Context, executionID string) (*PausedExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.paused[strings.TrimSpace(executionID)]
	if !ok {
		return nil, nil
	}
	cp := p.Clone()
	return &cp, nil
}

// FindAll returns the paused executions ordered by pause time.
func (s *InMemoryStateStore) FindAll(_ context.Context) ([]PausedExecution, error) {
	s.mu.RLock()
	out := make([]PausedExecution, 0, len(s.paused))
	for _, p := range s.paused {
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()
	sortPaused(out)
	return out, nil
}

func (s *InMemoryStateStore) Remove(_ context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paused, strings.TrimSpace(executionID))
	return nil
}

func sortPaused(items []PausedExecution) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].PausedAt.Equal(items[j].PausedAt) {
			return items[i].ExecutionID < items[j].ExecutionID
		}
		return items[i].PausedAt.Before(items[j].PausedAt)
	})
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	return map[string]any(automation.Params(in).Clone())
}

// decodePaused reads a persisted execution. Numbers come back as int when
// they are integral and fit, float64 otherwise, so restored metadata keeps
// the types units stored.
func decodePaused(payload string) (PausedExecution, error) {
	var p PausedExecution
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return PausedExecution{}, err
	}
	p.Context.Fields = normalizeMap(p.Context.Fields)
	p.Context.Metadata = normalizeMap(p.Context.Metadata)
	if p.ResumeTrigger != nil {
		p.ResumeTrigger.Params = automation.Params(normalizeMap(p.ResumeTrigger.Params))
	}
	return p, nil
}

func normalizeMap(in map[string]any) map[string]any {
	for k, v := range in {
		in[k] = normalizeNumber(v)
	}
	return in
}

func normalizeNumber(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			if int64(int(i)) == i {
				return int(i)
			}
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		return normalizeMap(t)
	case []any:
		for i := range t {
			t[i] = normalizeNumber(t[i])
		}
		return t
	}
	return v
}
