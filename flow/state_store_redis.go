package flow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	automation "github.com/goliatone/go-automation"
)

// RedisClient is the subset of a redis client the store needs. Get returns
// an empty string for a missing key. Adapters over go-redis and similar
// clients are a few lines each.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

const defaultRedisPrefix = "automation_paused:"

var errRedisNotConfigured = errors.New("redis store not configured")

// RedisStateStore keeps one JSON value per paused execution. A value lives
// for the fixed ttl when one is set, otherwise until the run's deadline, or
// forever when the run has neither.
type RedisStateStore struct {
	client RedisClient
	ttl    time.Duration
	prefix string
}

type RedisOption func(*RedisStateStore)

// WithRedisPrefix namespaces keys, e.g. per deployment.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStateStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func NewRedisStateStore(client RedisClient, ttl time.Duration, opts ...RedisOption) *RedisStateStore {
	s := &RedisStateStore{client: client, ttl: ttl, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStateStore) Save(ctx context.Context, paused PausedExecution) error {
	paused.ExecutionID = strings.TrimSpace(paused.ExecutionID)
	err := s.ready(paused.ExecutionID)
	if err == nil {
		var raw []byte
		if raw, err = json.Marshal(paused); err == nil {
			err = s.client.Set(ctx, s.prefix+paused.ExecutionID, string(raw), s.lifetime(paused, time.Now()))
		}
	}
	return automation.WrapStateStoreError("save", paused.ExecutionID, err)
}

func (s *RedisStateStore) FindByID(ctx context.Context, executionID string) (*PausedExecution, error) {
	id := strings.TrimSpace(executionID)
	if err := s.ready(id); err != nil {
		if errors.Is(err, errExecutionIDRequired) {
			return nil, nil
		}
		return nil, automation.WrapStateStoreError("find", id, err)
	}
	p, err := s.get(ctx, s.prefix+id)
	return p, automation.WrapStateStoreError("find", id, err)
}

// FindAll lists every stored execution ordered by pause time.
func (s *RedisStateStore) FindAll(ctx context.Context) ([]PausedExecution, error) {
	if s == nil || s.client == nil {
		return nil, automation.WrapStateStoreError("find_all", "", errRedisNotConfigured)
	}
	keys, err := s.client.Keys(ctx, s.prefix+"*")
	if err != nil {
		return nil, automation.WrapStateStoreError("find_all", "", err)
	}
	out := make([]PausedExecution, 0, len(keys))
	for _, key := range keys {
		p, err := s.get(ctx, key)
		if err != nil {
			return nil, automation.WrapStateStoreError("find_all", strings.TrimPrefix(key, s.prefix), err)
		}
		if p != nil {
			out = append(out, *p)
		}
	}
	sortPaused(out)
	return out, nil
}

func (s *RedisStateStore) Remove(ctx context.Context, executionID string) error {
	id := strings.TrimSpace(executionID)
	if err := s.ready(id); err != nil {
		if errors.Is(err, errExecutionIDRequired) {
			return nil
		}
		return automation.WrapStateStoreError("remove", id, err)
	}
	return automation.WrapStateStoreError("remove", id, s.client.Del(ctx, s.prefix+id))
}

func (s *RedisStateStore) ready(id string) error {
	switch {
	case s == nil || s.client == nil:
		return errRedisNotConfigured
	case id == "":
		return errExecutionIDRequired
	}
	return nil
}

// get returns nil for a key that vanished or expired.
func (s *RedisStateStore) get(ctx context.Context, key string) (*PausedExecution, error) {
	raw, err := s.client.Get(ctx, key)
	if err != nil || strings.TrimSpace(raw) == "" {
		return nil, err
	}
	p, err := decodePaused(raw)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *RedisStateStore) lifetime(p PausedExecution, now time.Time) time.Duration {
	if s.ttl > 0 || p.Deadline.IsZero() {
		return s.ttl
	}
	// redis rejects a zero or negative expiry on SET
	return max(p.Deadline.Sub(now), time.Millisecond)
}
