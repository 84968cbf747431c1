// Package downloader is the concurrent producer of the replay pipeline: it
// enumerates every minute of a requested range and fetches the matching
// slices into the local cache, bounded by an adaptive concurrency limit.
// Consumers never receive slices from it directly; the filesystem is the
// only rendezvous.
package downloader

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/tardis-dev/tardis-go/internal/cachepath"
	"github.com/tardis-dev/tardis-go/internal/fetcher"
	"github.com/tardis-dev/tardis-go/internal/httpclient"
	"github.com/tardis-dev/tardis-go/internal/metrics"
)

// Options configure one download run. From and To must be minute-aligned
// UTC instants with From < To.
type Options struct {
	Exchange string
	From     time.Time
	To       time.Time
	Filters  []cachepath.Filter

	Endpoint string
	CacheDir string
	APIKey   string

	HTTPTimeout      time.Duration
	HTTPProxy        string
	ConcurrencyLimit int

	Logger zerolog.Logger
}

// Task is a running download. Err is valid once Done is closed.
type Task struct {
	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

// Done is closed when the download has finished, failed or been cancelled.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the download error, blocking until the task finishes.
func (t *Task) Err() error {
	<-t.done
	return t.err
}

// Failed reports a finished-with-error task without blocking. The replay
// iterator calls this on every cache readiness poll.
func (t *Task) Failed() (error, bool) {
	select {
	case <-t.done:
		return t.err, t.err != nil
	default:
		return nil, false
	}
}

// Cancel aborts the download; every in-flight fetch is cancelled and awaited
// before Done closes.
func (t *Task) Cancel() { t.cancel() }

// Start launches the download in the background and returns its Task.
func Start(ctx context.Context, opts Options) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(t.done)
		defer cancel()
		t.err = run(ctx, opts)
	}()
	return t
}

// run is the scheduling loop: keep at most Limit() fetches in flight, await
// the earliest completion when saturated, abort everything on first error.
// Every launched fetch is awaited before run returns, so no fetch outlives
// the call.
func run(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client, err := httpclient.New(opts.HTTPTimeout, opts.HTTPProxy)
	if err != nil {
		return err
	}

	filtersJSON := cachepath.Serialize(opts.Filters)
	fingerprint := cachepath.FiltersHash(opts.Filters)
	minutes := int(math.Round(opts.To.Sub(opts.From).Seconds() / 60))

	limiter := NewLimiter(opts.ConcurrencyLimit)
	f := &fetcher.Fetcher{
		Client:     client,
		APIKey:     opts.APIKey,
		Logger:     opts.Logger,
		OnThrottle: limiter.OnThrottle,
	}

	start := time.Now()
	opts.Logger.Debug().
		Str("exchange", opts.Exchange).
		Time("from", opts.From).
		Time("to", opts.To).
		Str("filters", filtersJSON).
		Int("minutes", minutes).
		Msg("fetch data started")

	results := make(chan error)
	launch := func(offset int) {
		go func() {
			metrics.InflightFetches.Inc()
			defer metrics.InflightFetches.Dec()
			sliceMinute := opts.From.Add(time.Duration(offset) * time.Minute)
			path := cachepath.SlicePath(opts.CacheDir, opts.Exchange, sliceMinute, fingerprint)
			url := fetcher.SliceURL(opts.Endpoint, opts.Exchange, opts.From, offset, filtersJSON)
			results <- f.FetchIfNotCached(ctx, url, path)
		}()
	}

	var firstErr error
	inflight := 0
	collect := func() {
		err := <-results
		inflight--
		switch {
		case err == nil:
			limiter.OnSuccess()
		case errors.Is(err, context.Canceled):
			// A fetch aborted by cancellation is not a failure.
		default:
			if firstErr == nil {
				firstErr = err
				cancel()
			}
		}
	}

	for offset := 0; offset < minutes; offset++ {
		for inflight >= limiter.Limit() && firstErr == nil {
			collect()
		}
		if firstErr != nil || ctx.Err() != nil {
			break
		}
		launch(offset)
		inflight++
	}
	for inflight > 0 {
		collect()
	}

	if firstErr != nil {
		opts.Logger.Debug().Err(firstErr).Str("exchange", opts.Exchange).Msg("fetch data aborted")
		return firstErr
	}
	if err := context.Cause(ctx); err != nil {
		return err
	}

	opts.Logger.Debug().
		Str("exchange", opts.Exchange).
		Dur("total_time", time.Since(start)).
		Msg("fetch data finished")
	return nil
}
