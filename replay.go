package tardis

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tardis-dev/tardis-go/internal/cachepath"
	"github.com/tardis-dev/tardis-go/internal/downloader"
)

// Recorded feed format: each line is
//
//	<28-byte local timestamp> <message bytes>\n
//
// The timestamp is ISO 8601 with 7-digit fractional seconds and a trailing
// Z; decoding reads only the first 26 bytes (microsecond precision).
const (
	dateMessageSplitIndex = 28
	decodedTimestampLen   = 26
	recordTimestampLayout = "2006-01-02T15:04:05.000000"
)

// sliceReadyPoll is the cache readiness poll interval of the replay
// iterator while the downloader is still producing.
const sliceReadyPoll = 100 * time.Millisecond

// maxRecordSize bounds a single recorded message. Full order-book snapshots
// run to a few megabytes.
const maxRecordSize = 64 << 20

// ReplayArgs select a replay range. From is inclusive and To exclusive;
// both are ISO 8601 date strings and get truncated to minute boundaries.
// Raw disables timestamp decoding and exposes the exact recorded bytes.
type ReplayArgs struct {
	Exchange string
	From     string
	To       string
	Filters  []Channel
	Raw      bool
}

// Response is one replayed record. In decoded mode LocalTimestamp is the
// arrival time at the recorder (microsecond UTC) and Message the JSON
// payload. In raw mode RawTimestamp holds the unparsed 28-byte timestamp
// and Message the unvalidated payload bytes.
type Response struct {
	LocalTimestamp time.Time
	RawTimestamp   []byte
	Message        json.RawMessage
}

// Iterator streams replayed records in ascending local-timestamp order.
// Usage follows bufio.Scanner: Next, Response, then Err once Next returns
// false. Close aborts the background download and must always be called.
type Iterator struct {
	cancel context.CancelFunc
	ctx    context.Context
	task   *downloader.Task

	cacheDir    string
	exchange    string
	fingerprint string
	current     time.Time
	to          time.Time
	raw         bool

	file    *os.File
	gz      *gzip.Reader
	scanner *bufio.Scanner

	resp Response
	err  error
	done bool
}

// Replay fetches the requested range into the local cache and returns an
// iterator over its records. The download runs concurrently; the iterator
// blocks only when it catches up with it.
func (c *Client) Replay(ctx context.Context, args ReplayArgs) (*Iterator, error) {
	from, to, filters, err := validateArgs(args.Exchange, args.From, args.To, args.Filters)
	if err != nil {
		return nil, err
	}
	from = from.Truncate(time.Minute)
	to = to.Truncate(time.Minute)

	ctx, cancel := context.WithCancel(ctx)
	task := downloader.Start(ctx, downloader.Options{
		Exchange:         args.Exchange,
		From:             from,
		To:               to,
		Filters:          filters,
		Endpoint:         c.opts.Endpoint,
		CacheDir:         c.opts.CacheDir,
		APIKey:           c.opts.APIKey,
		HTTPTimeout:      c.opts.HTTPTimeout,
		HTTPProxy:        c.opts.HTTPProxy,
		ConcurrencyLimit: c.opts.ConcurrencyLimit,
		Logger:           c.log,
	})
	return &Iterator{
		cancel:      cancel,
		ctx:         ctx,
		task:        task,
		cacheDir:    c.opts.CacheDir,
		exchange:    args.Exchange,
		fingerprint: cachepath.FiltersHash(filters),
		current:     from,
		to:          to,
		raw:         args.Raw,
	}, nil
}

// Next advances to the next record. It returns false at the end of the
// range or on error; Err distinguishes the two.
func (it *Iterator) Next() bool {
	if it.err != nil || it.done {
		return false
	}
	for {
		if it.scanner == nil {
			if !it.current.Before(it.to) {
				it.finish()
				return false
			}
			if err := it.openSlice(); err != nil {
				it.err = err
				return false
			}
		}
		for it.scanner.Scan() {
			line := it.scanner.Bytes()
			// Scanner strips the newline; empty records show up as a
			// stray byte or nothing at all.
			if len(line) <= 1 {
				continue
			}
			if err := it.decode(line); err != nil {
				it.err = err
				return false
			}
			return true
		}
		if err := it.scanner.Err(); err != nil {
			it.err = fmt.Errorf("tardis: read slice %s: %w", it.slicePath(), err)
			return false
		}
		it.closeSlice()
		it.current = it.current.Add(time.Minute)
	}
}

// Response returns the record produced by the last successful Next. The
// returned byte slices are owned by the caller.
func (it *Iterator) Response() Response { return it.resp }

// Err returns the first error the iterator or its downloader hit.
func (it *Iterator) Err() error { return it.err }

// Close aborts the background download and releases the open slice. Safe to
// call at any point, including after Next returned false.
func (it *Iterator) Close() error {
	it.cancel()
	it.closeSlice()
	it.done = true
	<-it.task.Done()
	return nil
}

func (it *Iterator) slicePath() string {
	return cachepath.SlicePath(it.cacheDir, it.exchange, it.current, it.fingerprint)
}

// openSlice waits until the downloader has committed the current minute's
// slice, then opens it. A downloader failure surfaces here instead of
// blocking the consumer forever.
func (it *Iterator) openSlice() error {
	path := it.slicePath()
	for {
		if err, failed := it.task.Failed(); failed {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			break
		}
		select {
		case <-it.ctx.Done():
			return context.Cause(it.ctx)
		case <-time.After(sliceReadyPoll):
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("tardis: open slice: %w", err)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("tardis: decompress slice %s: %w", path, err)
	}
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64<<10), maxRecordSize)
	it.file, it.gz, it.scanner = f, gz, scanner
	return nil
}

func (it *Iterator) closeSlice() {
	if it.file == nil {
		return
	}
	it.gz.Close()
	it.file.Close()
	it.file, it.gz, it.scanner = nil, nil, nil
}

// finish awaits the downloader so a trailing failure (the consumer can be
// faster than the last in-flight fetches) is not lost.
func (it *Iterator) finish() {
	it.done = true
	if err := it.task.Err(); err != nil && !errors.Is(err, context.Canceled) {
		it.err = err
	}
}

func (it *Iterator) decode(line []byte) error {
	if len(line) <= dateMessageSplitIndex+1 {
		return fmt.Errorf("tardis: malformed record %q in slice %s", line, it.slicePath())
	}
	// The scanner reuses its buffer; hand out copies.
	payload := append([]byte(nil), line[dateMessageSplitIndex+1:]...)

	if it.raw {
		it.resp = Response{
			RawTimestamp: append([]byte(nil), line[:dateMessageSplitIndex]...),
			Message:      payload,
		}
		return nil
	}
	ts, err := time.Parse(recordTimestampLayout, string(line[:decodedTimestampLen]))
	if err != nil {
		return fmt.Errorf("tardis: record timestamp in slice %s: %w", it.slicePath(), err)
	}
	it.resp = Response{LocalTimestamp: ts, Message: payload}
	return nil
}
