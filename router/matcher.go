package router

import "strings"

// Matcher reports whether a registered pattern matches a concrete topic.
type Matcher func(pattern, topic string) bool

// MatcherOptions configures pattern matching.
type MatcherOptions struct {
	// Separator splits patterns and topics into segments. Defaults to ".".
	Separator string
	// OnlyFinalSegment restricts "#" to the last segment, MQTT style.
	OnlyFinalSegment bool
}

// NewMatcher builds a segment matcher. "+" and "*" match exactly one
// segment, "#" matches zero or more.
func NewMatcher(opts ...MatcherOptions) Matcher {
	separator := "."
	onlyFinal := false
	if len(opts) > 0 {
		if opts[0].Separator != "" {
			separator = opts[0].Separator
		}
		onlyFinal = opts[0].OnlyFinalSegment
	}

	return func(pattern, topic string) bool {
		if pattern == topic {
			return true
		}
		p := strings.Split(pattern, separator)
		t := strings.Split(topic, separator)
		if onlyFinal {
			return matchFinalHash(p, t)
		}
		return matchAnyHash(p, t)
	}
}

// EventTypeMatcher matches dotted event types such as "sensor.*.reading".
var EventTypeMatcher = NewMatcher()

// TopicMatcher matches MQTT topic filters such as "home/+/state".
var TopicMatcher = NewMatcher(MatcherOptions{Separator: "/", OnlyFinalSegment: true})

// IsPattern reports whether s contains a wildcard segment.
func IsPattern(s string) bool {
	return strings.ContainsAny(s, "*+#")
}

func matchFinalHash(pattern, topic []string) bool {
	pi, ti := 0, 0
	for pi < len(pattern) && ti < len(topic) {
		seg := pattern[pi]
		if seg == "#" {
			return pi == len(pattern)-1
		}
		if seg != topic[ti] && seg != "+" && seg != "*" {
			return false
		}
		pi++
		ti++
	}
	if pi == len(pattern) && ti == len(topic) {
		return true
	}
	// "a/b/#" also matches the parent "a/b"
	return pi == len(pattern)-1 && pattern[pi] == "#" && ti == len(topic)
}

func matchAnyHash(pattern, topic []string) bool {
	// prev[j]: pattern[:i-1] matches topic[:j]
	prev := make([]bool, len(topic)+1)
	cur := make([]bool, len(topic)+1)
	prev[0] = true

	for _, seg := range pattern {
		cur[0] = seg == "#" && prev[0]
		for j := 1; j <= len(topic); j++ {
			switch seg {
			case "#":
				cur[j] = prev[j] || cur[j-1]
			case "+", "*":
				cur[j] = prev[j-1]
			default:
				cur[j] = prev[j-1] && seg == topic[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(topic)]
}
