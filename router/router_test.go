package router

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicMatcherMQTTStyle(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		topic   string
		want    bool
	}{
		{"exact", "a/b/c", "a/b/c", true},
		{"exact mismatch", "a/b/c", "a/b/d", false},
		{"single wildcard", "a/+/c", "a/b/c", true},
		{"star alias", "a/*/c", "a/b/c", true},
		{"single wildcard too short", "a/+/c", "a/c", false},
		{"single wildcard too long", "a/+/c", "a/b/c/d", false},
		{"hash matches all", "#", "a/b/c", true},
		{"hash matches parent", "a/b/#", "a/b", true},
		{"hash must be final", "a/#/c", "a/b/c", false},
		{"empty topic", "a/b", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TopicMatcher(tc.pattern, tc.topic))
		})
	}
}

func TestEventTypeMatcherAllowsInnerHash(t *testing.T) {
	cases := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"sensor.*", "sensor.temperature", true},
		{"sensor.*", "sensor.temperature.raw", false},
		{"sensor.#", "sensor.temperature.raw", true},
		{"#.raw", "sensor.temperature.raw", true},
		{"sensor.#.raw", "sensor.raw", true},
		{"door.opened", "door.closed", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, EventTypeMatcher(tc.pattern, tc.topic), "%s vs %s", tc.pattern, tc.topic)
	}
}

func TestMuxReturnsEveryMatchingHandler(t *testing.T) {
	mux := NewMux[string]()
	mux.Add("door.opened", "exact")
	mux.Add("door.*", "wildcard")
	mux.Add("window.*", "other")
	mux.Add("#", "all")

	assert.Equal(t, []string{"exact", "wildcard", "all"}, mux.Get("door.opened"))
	assert.Equal(t, []string{"all"}, mux.Get("light.on"))
}

func TestMuxUnsubscribe(t *testing.T) {
	mux := NewMux[func()]()
	a := mux.Add("x", func() {})
	mux.Add("x", func() {})

	a.Unsubscribe()
	a.Unsubscribe()
	assert.Len(t, mux.Get("x"), 1)
	assert.Equal(t, 1, mux.Len())
}

func TestMuxConcurrentAccess(t *testing.T) {
	mux := NewMux[int](WithMatcher(TopicMatcher))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := mux.Add("home/+/state", i)
			_ = mux.Get("home/kitchen/state")
			e.Unsubscribe()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, mux.Len())
}
