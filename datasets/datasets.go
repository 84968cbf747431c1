// Package datasets downloads daily gzipped CSV dataset files from
// datasets.tardis.dev. Unlike the replay feed, datasets are one file per
// exchange, data type, symbol and day; files already on disk are skipped,
// so interrupted downloads resume where they stopped.
package datasets

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tardis-dev/tardis-go/internal/exchanges"
	"github.com/tardis-dev/tardis-go/internal/fetcher"
	"github.com/tardis-dev/tardis-go/internal/httpclient"
)

const (
	// DefaultEndpoint serves the dataset files.
	DefaultEndpoint = "https://datasets.tardis.dev/v1"
	// DefaultConcurrency bounds parallel file downloads.
	DefaultConcurrency = 20
	// Dataset files are large; the per-request timeout is generous.
	defaultTimeout = 30 * time.Minute
)

// FilenameFunc names the local file for one dataset day.
type FilenameFunc func(exchange, dataType string, date time.Time, symbol, format string) string

// DefaultFilename is <exchange>_<dataType>_<YYYY-MM-DD>_<symbol>.<format>.gz.
func DefaultFilename(exchange, dataType string, date time.Time, symbol, format string) string {
	return fmt.Sprintf("%s_%s_%s_%s.%s.gz", exchange, dataType, date.Format("2006-01-02"), symbol, format)
}

// Args select a dataset download. From is inclusive and To exclusive, both
// ISO 8601 dates; every day in between is fetched for every data type and
// symbol combination.
type Args struct {
	Exchange  string
	DataTypes []string
	Symbols   []string
	From      string
	To        string

	// Format of the dataset files, "csv" by default.
	Format string
	APIKey string
	// DownloadDir defaults to ./datasets.
	DownloadDir string
	Endpoint    string

	HTTPTimeout time.Duration
	HTTPProxy   string
	Concurrency int

	// GetFilename overrides DefaultFilename.
	GetFilename FilenameFunc

	Logger zerolog.Logger
}

func (a *Args) applyDefaults() {
	if a.Format == "" {
		a.Format = "csv"
	}
	if a.DownloadDir == "" {
		a.DownloadDir = "./datasets"
	}
	if a.Endpoint == "" {
		a.Endpoint = DefaultEndpoint
	}
	if a.HTTPTimeout <= 0 {
		a.HTTPTimeout = defaultTimeout
	}
	if a.Concurrency <= 0 {
		a.Concurrency = DefaultConcurrency
	}
	if a.GetFilename == nil {
		a.GetFilename = DefaultFilename
	}
}

var dateLayouts = []string{"2006-01-02T15:04:05", "2006-01-02"}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("datasets: %q is not a valid ISO 8601 date string", s)
}

func validate(a Args) (from, to time.Time, err error) {
	if !exchanges.Valid(a.Exchange) {
		return from, to, fmt.Errorf("datasets: invalid 'exchange' argument %q", a.Exchange)
	}
	if len(a.DataTypes) == 0 {
		return from, to, errors.New("datasets: at least one data type is required")
	}
	if len(a.Symbols) == 0 {
		return from, to, errors.New("datasets: at least one symbol is required")
	}
	if from, err = parseDate(a.From); err != nil {
		return from, to, err
	}
	if to, err = parseDate(a.To); err != nil {
		return from, to, err
	}
	if !from.Before(to) {
		return from, to, fmt.Errorf("datasets: 'to' (%s) must be later than 'from' (%s)", a.To, a.From)
	}
	return from, to, nil
}

// normalizeSymbol maps a symbol to its dataset file form.
func normalizeSymbol(symbol string) string {
	symbol = strings.ReplaceAll(symbol, ":", "-")
	symbol = strings.ReplaceAll(symbol, "/", "-")
	return strings.ToUpper(symbol)
}

func fileURL(endpoint, exchange, dataType string, day time.Time, symbol, format string) string {
	return endpoint + "/" + exchange + "/" + dataType + "/" + day.Format("2006/01/02") +
		"/" + symbol + "." + format + ".gz"
}

// Download fetches every requested dataset file into Args.DownloadDir.
// Files that already exist are not re-downloaded. The first failure cancels
// all in-flight downloads and is returned after they drain.
func Download(ctx context.Context, args Args) error {
	args.applyDefaults()
	from, to, err := validate(args)
	if err != nil {
		return err
	}

	client, err := httpclient.New(args.HTTPTimeout, args.HTTPProxy)
	if err != nil {
		return err
	}
	f := &fetcher.Fetcher{
		Client: client,
		APIKey: args.APIKey,
		Logger: args.Logger,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	args.Logger.Debug().
		Str("exchange", args.Exchange).
		Strs("data_types", args.DataTypes).
		Strs("symbols", args.Symbols).
		Str("from", args.From).
		Str("to", args.To).
		Msg("datasets download started")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	sem := make(chan struct{}, args.Concurrency)
loop:
	for _, rawSymbol := range args.Symbols {
		symbol := normalizeSymbol(rawSymbol)
		for _, dataType := range args.DataTypes {
			for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
				if ctx.Err() != nil {
					break loop
				}
				url := fileURL(args.Endpoint, args.Exchange, dataType, day, symbol, args.Format)
				path := filepath.Join(args.DownloadDir, args.GetFilename(args.Exchange, dataType, day, symbol, args.Format))

				sem <- struct{}{}
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer func() { <-sem }()
					if err := f.FetchIfNotCached(ctx, url, path); err != nil && !errors.Is(err, context.Canceled) {
						fail(err)
					}
				}()
			}
		}
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	if err := context.Cause(ctx); err != nil {
		return err
	}

	args.Logger.Debug().
		Str("exchange", args.Exchange).
		Dur("total_time", time.Since(start)).
		Msg("datasets download finished")
	return nil
}
