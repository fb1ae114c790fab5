package flow

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	automation "github.com/goliatone/go-automation"
)

func samplePaused(id string, pausedAt time.Time) PausedExecution {
	ec := automation.RestoreEventContext(id, automation.NewEvent("door.opened", map[string]any{"room": "hall"}), map[string]any{"who": "ana"})
	return PausedExecution{
		ExecutionID:   id,
		Automation:    "porch_light",
		Cursor:        2,
		Context:       ec.Snapshot(),
		ResumeTrigger: &automation.Step{Unit: "type_is", Params: automation.Params{"type": "door.closed"}},
		Deadline:      pausedAt.Add(time.Hour),
		PausedAt:      pausedAt,
	}
}

func exerciseStore(t *testing.T, store StateStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	missing, err := store.FindByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, store.Save(ctx, samplePaused("b", base.Add(time.Second))))
	require.NoError(t, store.Save(ctx, samplePaused("a", base)))

	got, err := store.FindByID(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "porch_light", got.Automation)
	assert.Equal(t, 2, got.Cursor)
	assert.Equal(t, "door.opened", got.Context.EventType)
	assert.Equal(t, "hall", got.Context.Fields["room"])
	assert.Equal(t, "ana", got.Context.Metadata["who"])
	require.NotNil(t, got.ResumeTrigger)
	assert.Equal(t, "door.closed", got.ResumeTrigger.Params.String("type"))
	assert.True(t, got.Deadline.Equal(base.Add(time.Hour)))

	ec, err := got.Context.Restore(nil)
	require.NoError(t, err)
	assert.Equal(t, "a", ec.ExecutionID())

	all, err := store.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ExecutionID)
	assert.Equal(t, "b", all[1].ExecutionID)

	updated := samplePaused("a", base)
	updated.Cursor = 3
	require.NoError(t, store.Save(ctx, updated))
	got, err = store.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Cursor)

	require.NoError(t, store.Remove(ctx, "a"))
	require.NoError(t, store.Remove(ctx, "a"))
	got, err = store.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	err = store.Save(ctx, PausedExecution{})
	require.Error(t, err)
	assert.Equal(t, automation.ErrCodeStateStore, automation.ErrorCode(err))
}

func TestInMemoryStateStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStateStore())
}

func TestInMemoryStateStoreReturnsCopies(t *testing.T) {
	store := NewInMemoryStateStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, samplePaused("x", time.Now())))

	got, _ := store.FindByID(ctx, "x")
	got.Context.Metadata["who"] = "mallory"
	got.ResumeTrigger.Params["type"] = "other"

	again, _ := store.FindByID(ctx, "x")
	assert.Equal(t, "ana", again.Context.Metadata["who"])
	assert.Equal(t, "door.closed", again.ResumeTrigger.Params.String("type"))
}

func TestSQLiteStateStore(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	exerciseStore(t, NewSQLiteStateStore(db, ""))
}

func TestSQLiteStateStoreNotConfigured(t *testing.T) {
	store := NewSQLiteStateStore(nil, "paused")
	_, err := store.FindAll(context.Background())
	assert.Equal(t, automation.ErrCodeStateStore, automation.ErrorCode(err))
}

func TestOrchestratorWithSQLiteStore(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	log := &callLog{}
	reg := testUnits(t, log)
	store := NewSQLiteStateStore(db, "runs")
	o := newTestOrchestrator(t, reg, WithStateStore(store))
	def := Definition{
		Alias:     "durable",
		Variables: []automation.Step{step("set", automation.Params{"key": "who", "value": "ana"})},
		Actions:   []automation.Step{mark("A1", "outcome", "pause"), mark("{{ .who }}")},
	}
	res, err := o.ExecuteAutomation(context.Background(), mustBuild(t, o, def), nil)
	require.NoError(t, err)
	require.Equal(t, StatusPaused, res.Status)

	// a fresh orchestrator sharing the database resumes by alias
	restarted := newTestOrchestrator(t, reg, WithStateStore(store))
	require.NoError(t, restarted.Register(mustBuild(t, restarted, def)))
	out, err := restarted.Resume(context.Background(), res.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, out.Status)
	assert.Equal(t, []string{"A1", "ana"}, log.list())
}

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (r *fakeRedis) Get(_ context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data[key], nil
}

func (r *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = value.(string)
	r.ttls[key] = expiration
	return nil
}

func (r *fakeRedis) Del(_ context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.data, k)
		delete(r.ttls, k)
	}
	return nil
}

func (r *fakeRedis) Keys(_ context.Context, pattern string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var out []string
	for k := range r.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func TestRedisStateStore(t *testing.T) {
	exerciseStore(t, NewRedisStateStore(newFakeRedis(), 0))
}

func TestRedisStateStoreExpiration(t *testing.T) {
	client := newFakeRedis()
	ctx := context.Background()

	store := NewRedisStateStore(client, 0)
	p := samplePaused("d", time.Now())
	require.NoError(t, store.Save(ctx, p))
	ttl := client.ttls["automation_paused:d"]
	assert.True(t, ttl > 59*time.Minute && ttl <= time.Hour, "ttl follows the deadline, got %s", ttl)

	p.Deadline = time.Time{}
	require.NoError(t, store.Save(ctx, p))
	assert.Equal(t, time.Duration(0), client.ttls["automation_paused:d"])

	fixed := NewRedisStateStore(client, time.Minute)
	require.NoError(t, fixed.Save(ctx, samplePaused("e", time.Now())))
	assert.Equal(t, time.Minute, client.ttls["automation_paused:e"])
}

func TestRedisStateStorePrefixAndMisconfiguration(t *testing.T) {
	client := newFakeRedis()
	ctx := context.Background()

	store := NewRedisStateStore(client, 0, WithRedisPrefix("site-a:"))
	require.NoError(t, store.Save(ctx, samplePaused("f", time.Now())))
	_, ok := client.data["site-a:f"]
	assert.True(t, ok)

	other := NewRedisStateStore(client, 0)
	all, err := other.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "default prefix must not see site-a keys")

	var missing *RedisStateStore
	assert.Error(t, missing.Save(ctx, samplePaused("g", time.Now())))
	_, err = NewRedisStateStore(nil, 0).FindAll(ctx)
	assert.Equal(t, automation.ErrCodeStateStore, automation.ErrorCode(err))
}

func exerciseNumberTypes(t *testing.T, store StateStore) {
	t.Helper()
	ctx := context.Background()
	p := samplePaused("n", time.Now())
	p.Context.Metadata = map[string]any{
		"count":  1,
		"ratio":  0.5,
		"nested": map[string]any{"n": 2},
		"list":   []any{3, "x"},
	}
	require.NoError(t, store.Save(ctx, p))

	got, err := store.FindByID(ctx, "n")
	require.NoError(t, err)
	require.NotNil(t, got)
	meta := got.Context.Metadata
	assert.Equal(t, 1, meta["count"])
	assert.Equal(t, 0.5, meta["ratio"])
	assert.Equal(t, map[string]any{"n": 2}, meta["nested"])
	assert.Equal(t, []any{3, "x"}, meta["list"])

	n, ok := meta["count"].(int)
	assert.True(t, ok, "count restored as %T", meta["count"])
	assert.Equal(t, 1, n)
}

func TestStateStoresKeepNumberTypes(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	for name, store := range map[string]StateStore{
		"memory": NewInMemoryStateStore(),
		"sqlite": NewSQLiteStateStore(db, ""),
		"redis":  NewRedisStateStore(newFakeRedis(), 0),
	} {
		t.Run(name, func(t *testing.T) {
			exerciseNumberTypes(t, store)
		})
	}
}

func TestSQLiteStateStoreOrdersSubsecondPauses(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store := NewSQLiteStateStore(db, "")
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, samplePaused("z-first", base)))
	require.NoError(t, store.Save(ctx, samplePaused("a-second", base.Add(100*time.Millisecond))))
	require.NoError(t, store.Save(ctx, samplePaused("m-third", base.Add(time.Second))))

	all, err := store.FindAll(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, p := range all {
		ids = append(ids, p.ExecutionID)
	}
	assert.Equal(t, []string{"z-first", "a-second", "m-third"}, ids)
}

func TestSQLiteResumeKeepsIntegerVariables(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	log := &callLog{}
	reg := testUnits(t, log)
	store := NewSQLiteStateStore(db, "")
	o := newTestOrchestrator(t, reg, WithStateStore(store))
	def := Definition{
		Alias:     "counter",
		Variables: []automation.Step{step("set", automation.Params{"key": "x", "value": 1})},
		Actions:   []automation.Step{mark("A1", "outcome", "pause")},
	}
	res, err := o.ExecuteAutomation(context.Background(), mustBuild(t, o, def), nil)
	require.NoError(t, err)
	require.Equal(t, StatusPaused, res.Status)

	paused, err := o.Paused(context.Background())
	require.NoError(t, err)
	require.Len(t, paused, 1)
	ec, err := paused[0].Context.Restore(nil)
	require.NoError(t, err)
	x, _ := ec.Get("x")
	assert.IsType(t, 0, x)
	assert.Equal(t, 1, x)
}
