package downloader

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tardis-dev/tardis-go/internal/metrics"
)

// DefaultConcurrencyLimit is the initial and ceiling download concurrency.
const DefaultConcurrencyLimit = 60

// throttleInterval debounces limit cuts: a burst of 429s from already
// in-flight requests must not collapse the limit to the floor.
const throttleInterval = 2 * time.Second

// Limiter is the adaptive concurrency limit for slice downloads. It starts
// at the ceiling, backs off multiplicatively on 429s (at most once per
// throttleInterval) and recovers by one slot per successful fetch.
type Limiter struct {
	mu       sync.Mutex
	limit    int
	ceiling  int
	throttle rate.Sometimes
}

// NewLimiter returns a Limiter with the given ceiling (and initial limit).
// Non-positive ceilings fall back to DefaultConcurrencyLimit.
func NewLimiter(ceiling int) *Limiter {
	if ceiling <= 0 {
		ceiling = DefaultConcurrencyLimit
	}
	l := &Limiter{
		limit:    ceiling,
		ceiling:  ceiling,
		throttle: rate.Sometimes{Interval: throttleInterval},
	}
	metrics.ConcurrencyLimit.Set(float64(ceiling))
	return l
}

// Limit returns the current limit.
func (l *Limiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// OnSuccess raises the limit by one, up to the ceiling.
func (l *Limiter) OnSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit < l.ceiling {
		l.limit++
		metrics.ConcurrencyLimit.Set(float64(l.limit))
	}
}

// OnThrottle cuts the limit to 7/10 of its value, floored at 1. Repeated
// throttle events within throttleInterval are ignored.
func (l *Limiter) OnThrottle() {
	l.throttle.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.limit = l.limit * 7 / 10
		if l.limit < 1 {
			l.limit = 1
		}
		metrics.ConcurrencyLimit.Set(float64(l.limit))
	})
}
