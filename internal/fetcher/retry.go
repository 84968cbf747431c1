package fetcher

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/tardis-dev/tardis-go/internal/metrics"
)

// MaxAttempts bounds fetch attempts per slice.
const MaxAttempts = 5

// throttleDelay is the backoff after a 429: long enough to let the
// per-minute quota window roll over.
const throttleDelay = 61 * time.Second

// Reliably runs fetchAndCache with the retry policy: up to MaxAttempts
// attempts, exponential backoff with jitter, a flat 61 s wait after a 429,
// no retry on fatal HTTP statuses or logic errors, immediate propagation of
// cancellation.
func (f *Fetcher) Reliably(ctx context.Context, url, cachePath string) error {
	attempts := 0
	for {
		attempts++
		err := f.fetchAndCache(ctx, url, cachePath)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if errors.Is(err, context.Canceled) {
			return err
		}

		var he *HTTPError
		throttled := errors.As(err, &he) && he.Status == 429
		if throttled && f.OnThrottle != nil {
			f.OnThrottle()
		}
		if IsFatal(err) || attempts == MaxAttempts {
			if errors.As(err, &he) {
				metrics.FetchErrors.WithLabelValues(metrics.StatusClass(he.Status)).Inc()
			} else {
				metrics.FetchErrors.WithLabelValues(metrics.StatusClass(0)).Inc()
			}
			return err
		}

		delay := time.Duration((math.Pow(2, float64(attempts)) + rand.Float64()) * float64(time.Second))
		reason := "error"
		if throttled {
			delay = throttleDelay
			reason = "429"
		}
		metrics.FetchRetries.WithLabelValues(reason).Inc()
		f.Logger.Debug().
			Err(err).
			Dur("next_attempt_delay", delay).
			Str("path", cachePath).
			Msg("fetch and cache slice error")

		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-time.After(delay):
		}
	}
}
