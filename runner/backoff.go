package runner

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff decides the pause before retry number attempt (zero based).
// Returning false gives up even when retries remain.
type Backoff interface {
	Next(attempt int, err error) (time.Duration, bool)
}

type BackoffFunc func(attempt int, err error) (time.Duration, bool)

func (f BackoffFunc) Next(attempt int, err error) (time.Duration, bool) {
	return f(attempt, err)
}

// Immediate retries without pausing.
func Immediate() Backoff {
	return Constant(0)
}

// Constant pauses d between attempts.
func Constant(d time.Duration) Backoff {
	return BackoffFunc(func(int, error) (time.Duration, bool) {
		return max(d, 0), true
	})
}

// Exponential grows the pause by Multiplier per attempt, capped at Max.
// Jitter in (0, 1] spreads each pause by up to that fraction either way.
//
//	runner.WithBackoff(runner.Exponential{
//		Initial:    100 * time.Millisecond,
//		Multiplier: 2,
//		Max:        5 * time.Second,
//		Jitter:     0.2,
//	})
type Exponential struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
	Jitter     float64
}

func (e Exponential) Next(attempt int, _ error) (time.Duration, bool) {
	if e.Initial <= 0 {
		return 0, true
	}
	mult := e.Multiplier
	if mult < 1 {
		mult = 1
	}
	limit := float64(math.MaxInt64)
	if e.Max > 0 {
		limit = float64(e.Max)
	}
	d := math.Min(float64(e.Initial)*math.Pow(mult, float64(max(attempt, 0))), limit)
	if j := math.Min(e.Jitter, 1); j > 0 {
		d += d * j * (2*rand.Float64() - 1)
	}
	// float64(MaxInt64) rounds up to 2^63, which no Duration holds
	if d >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64), true
	}
	return time.Duration(math.Max(d, 0)), true
}
