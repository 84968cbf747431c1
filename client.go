// Package tardis is a client for the tardis.dev historical cryptocurrency
// market-data API: locally cached, high-fidelity replay of recorded exchange
// WebSocket feeds in one-minute slices.
package tardis

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tardis-dev/tardis-go/internal/cachepath"
	"github.com/tardis-dev/tardis-go/internal/exchanges"
	"github.com/tardis-dev/tardis-go/internal/metacache"
)

// Channel selects one feed channel, optionally narrowed to symbols. A nil
// Symbols slice means every symbol of the channel.
type Channel struct {
	Name    string
	Symbols []string
}

// Client replays recorded market data through a local slice cache.
// A Client is safe for concurrent use.
type Client struct {
	opts Options
	log  zerolog.Logger

	metaOnce sync.Once
	meta     *metacache.Cache
	metaErr  error
}

// NewClient validates opts and returns a ready Client. No I/O happens until
// the first call that needs it.
func NewClient(opts Options) (*Client, error) {
	opts.applyDefaults()
	if opts.HTTPProxy != "" {
		if _, err := url.Parse(opts.HTTPProxy); err != nil {
			return nil, fmt.Errorf("tardis: invalid proxy URL %q: %w", opts.HTTPProxy, err)
		}
	}
	return &Client{opts: opts, log: opts.Logger}, nil
}

// ClearCache removes every cached data slice. Cached exchange metadata is
// kept; it expires on its own TTL.
func (c *Client) ClearCache() error {
	return os.RemoveAll(filepath.Join(c.opts.CacheDir, "feeds"))
}

// Close releases the metadata cache, if it was opened.
func (c *Client) Close() error {
	if c.meta != nil {
		return c.meta.Close()
	}
	return nil
}

func (c *Client) metaCache() (*metacache.Cache, error) {
	c.metaOnce.Do(func() {
		c.meta, c.metaErr = metacache.Open(c.opts.CacheDir, c.opts.MetadataTTL)
	})
	return c.meta, c.metaErr
}

// isoDateLayouts accepts the date forms the API documents: a plain date or
// a date-time, with optional fractional seconds and zone.
var isoDateLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseISODate(s string) (time.Time, error) {
	for _, layout := range isoDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("tardis: %q is not a valid ISO 8601 date string", s)
}

// validateArgs checks a replay request and returns the parsed range plus the
// normalized filter set, sorted by channel name.
func validateArgs(exchange, fromDate, toDate string, filters []Channel) (from, to time.Time, normalized []cachepath.Filter, err error) {
	if !exchanges.Valid(exchange) {
		return from, to, nil, fmt.Errorf(
			"tardis: invalid 'exchange' argument %q, available exchanges: %s",
			exchange, strJoin(exchanges.Names()))
	}
	if from, err = parseISODate(fromDate); err != nil {
		return from, to, nil, fmt.Errorf("tardis: invalid 'from' argument %q: %w", fromDate, err)
	}
	if to, err = parseISODate(toDate); err != nil {
		return from, to, nil, fmt.Errorf("tardis: invalid 'to' argument %q: %w", toDate, err)
	}
	if !from.Before(to) {
		return from, to, nil, fmt.Errorf("tardis: invalid date range: 'to' (%s) must be later than 'from' (%s)", toDate, fromDate)
	}
	for _, f := range filters {
		if !exchanges.ValidChannel(exchange, f.Name) {
			return from, to, nil, fmt.Errorf(
				"tardis: invalid channel %q for exchange %q, available channels: %s",
				f.Name, exchange, strJoin(exchanges.Channels[exchange]))
		}
		normalized = append(normalized, cachepath.Filter{Channel: f.Name, Symbols: f.Symbols})
	}
	normalized = cachepath.Normalize(normalized)
	return from, to, normalized, nil
}

func strJoin(items []string) string {
	sorted := append([]string(nil), items...)
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}
