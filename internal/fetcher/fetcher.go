// Package fetcher downloads one data slice at a time: a single HTTP GET
// streamed into the cache through a nonce-named temp file, committed with an
// atomic rename. Concurrent fetchers for the same coordinate are safe: each
// writes its own temp file and the rename is the commit point.
package fetcher

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/tardis-dev/tardis-go/internal/cachepath"
	"github.com/tardis-dev/tardis-go/internal/httpclient"
	"github.com/tardis-dev/tardis-go/internal/metrics"
)

// tempSuffix marks in-progress cache writes. A file at the final path is
// always complete; partial content only ever exists under this suffix.
const tempSuffix = ".unconfirmed"

// Fetcher fetches slices for one replay call. The HTTP client is scoped to
// the call and not shared.
type Fetcher struct {
	Client *http.Client
	APIKey string
	Logger zerolog.Logger

	// OnThrottle is invoked once per observed 429, before the backoff.
	// The orchestrator hooks its adaptive limiter here. May be nil.
	OnThrottle func()
}

// SliceURL builds the feed request URL for one minute offset.
// filtersJSON is the canonical filter serialization; empty means no filter
// parameter (the canonical "[]" is also treated as absent).
func SliceURL(endpoint, exchange string, from time.Time, offset int, filtersJSON string) string {
	u := endpoint + "/v1/data-feeds/" + exchange +
		"?from=" + from.UTC().Format("2006-01-02T15:04:05") +
		"&offset=" + strconv.Itoa(offset)
	if filtersJSON != "" && filtersJSON != "[]" {
		u += "&filters=" + cachepath.EscapeQuery(filtersJSON)
	}
	return u
}

// FetchIfNotCached ensures the slice for url is present at cachePath.
// A committed file short-circuits with no network. Otherwise the slice is
// fetched with the retry policy in Reliably.
func (f *Fetcher) FetchIfNotCached(ctx context.Context, url, cachePath string) error {
	if _, err := os.Stat(cachePath); err == nil {
		metrics.CacheHits.Inc()
		f.Logger.Debug().Str("path", cachePath).Msg("data slice already in local cache")
		return nil
	}
	if err := f.Reliably(ctx, url, cachePath); err != nil {
		return err
	}
	f.Logger.Debug().Str("url", url).Str("path", cachePath).Msg("fetched data slice from the API and cached")
	return nil
}

// fetchAndCache performs one GET attempt and commits the body to cachePath.
func (f *Fetcher) fetchAndCache(ctx context.Context, url, cachePath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &LogicError{Err: err}
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}

	client := f.Client
	if client == nil {
		client = httpclient.Default()
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &HTTPError{URL: url, Status: resp.StatusCode, Body: string(body)}
	}

	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return err
	}
	tempPath := cachePath + nonceHex() + tempSuffix
	defer func() {
		// Leftover temp on any exit path (write error, rename loser) is junk.
		if _, err := os.Stat(tempPath); err == nil {
			os.Remove(tempPath)
		}
	}()

	tmp, err := os.Create(tempPath)
	if err != nil {
		return err
	}
	n, err := io.Copy(tmp, resp.Body)
	cerr := tmp.Close()
	if err != nil {
		return err
	}
	if cerr != nil {
		return cerr
	}
	metrics.BytesDownloaded.Add(float64(n))

	// Rename is the atomic commit. A loser of the commit race may fail here;
	// as long as a committed file exists its content is equally valid.
	if err := os.Rename(tempPath, cachePath); err != nil {
		if _, statErr := os.Stat(cachePath); statErr == nil {
			f.Logger.Debug().Str("path", cachePath).Msg("slice committed by concurrent fetcher")
			return nil
		}
		return fmt.Errorf("fetcher: commit %s: %w", cachePath, err)
	}
	metrics.SlicesFetched.Inc()
	return nil
}

// nonceHex returns 16 hex characters, unique per write attempt.
func nonceHex() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
