package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newFetcher(srv *httptest.Server) *Fetcher {
	return &Fetcher{Client: srv.Client(), Logger: zerolog.Nop()}
}

func slicePath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "feeds", "bitmex", "abc", "2019", "08", "01", "08", "52.json.gz")
}

func noTempFiles(t *testing.T, finalPath string) {
	t.Helper()
	dir := filepath.Dir(finalPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), tempSuffix) {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}

func TestSliceURL(t *testing.T) {
	from := time.Date(2019, 8, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		filters string
		want    string
	}{
		{"no filters", "", "https://tardis.dev/api/v1/data-feeds/bitmex?from=2019-08-01T00:00:00&offset=3"},
		{"empty filters", "[]", "https://tardis.dev/api/v1/data-feeds/bitmex?from=2019-08-01T00:00:00&offset=3"},
		{"with filters", `[{"channel":"trade","symbols":["XBTUSD"]}]`,
			"https://tardis.dev/api/v1/data-feeds/bitmex?from=2019-08-01T00:00:00&offset=3" +
				"&filters=%5B%7B%22channel%22%3A%22trade%22%2C%22symbols%22%3A%5B%22XBTUSD%22%5D%7D%5D"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SliceURL("https://tardis.dev/api", "bitmex", from, 3, tt.filters)
			if got != tt.want {
				t.Errorf("SliceURL = %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestFetchIfNotCached_cacheHit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	path := slicePath(t)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("cached"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := newFetcher(srv)
	if err := f.FetchIfNotCached(context.Background(), srv.URL, path); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("cached slice must not hit the network")
	}
}

func TestFetchIfNotCached_downloadsAndCommits(t *testing.T) {
	payload := "slice-bytes"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		if r.Header.Get("Authorization") != "Bearer key123" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	path := slicePath(t)
	f := newFetcher(srv)
	f.APIKey = "key123"
	if err := f.FetchIfNotCached(context.Background(), srv.URL, path); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != payload {
		t.Errorf("committed content = %q, want %q", got, payload)
	}
	noTempFiles(t, path)
}

func TestFetchIfNotCached_non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such exchange", http.StatusNotFound)
	}))
	defer srv.Close()

	path := slicePath(t)
	f := newFetcher(srv)
	// 404 is transient per policy; cap attempts' cost by cancelling after the
	// first backoff starts.
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	err := f.FetchIfNotCached(ctx, srv.URL, path)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, statErr := os.Stat(path); statErr == nil {
		t.Error("no file should be committed on failure")
	}
	noTempFiles(t, path)
}

func TestFetch_fatal401SingleAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := newFetcher(srv)
	err := f.FetchIfNotCached(context.Background(), srv.URL, slicePath(t))
	var he *HTTPError
	if !errors.As(err, &he) || he.Status != 401 {
		t.Fatalf("err = %v, want HTTPError 401", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("attempts = %d, want 1", calls)
	}
}

func TestFetch_fatal400SingleAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "invalid filters", http.StatusBadRequest)
	}))
	defer srv.Close()

	f := newFetcher(srv)
	err := f.FetchIfNotCached(context.Background(), srv.URL, slicePath(t))
	var he *HTTPError
	if !errors.As(err, &he) || he.Status != 400 {
		t.Fatalf("err = %v, want HTTPError 400", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("attempts = %d, want 1", calls)
	}
}

func TestFetch_400ISOHintIsRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "please provide date in ISO 8601 format", http.StatusBadRequest)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	path := slicePath(t)
	f := newFetcher(srv)
	if err := f.FetchIfNotCached(context.Background(), srv.URL, path); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("attempts = %d, want 2", calls)
	}
}

func TestFetch_onThrottleFires(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	var throttles int32
	f := newFetcher(srv)
	f.OnThrottle = func() { atomic.AddInt32(&throttles, 1) }

	// The 61 s throttle backoff is too slow for a unit test; cancel once the
	// throttle hook has fired and verify the hook observed the 429.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.FetchIfNotCached(ctx, srv.URL, slicePath(t)) }()

	deadline := time.After(5 * time.Second)
	for atomic.LoadInt32(&throttles) == 0 {
		select {
		case <-deadline:
			t.Fatal("throttle hook never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err == nil {
		t.Error("cancelled fetch should return an error")
	}
}

func TestFetch_concurrentSameCoordinate(t *testing.T) {
	payload := strings.Repeat("x", 64<<10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	path := slicePath(t)
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f := newFetcher(srv)
			errs[i] = f.Reliably(context.Background(), srv.URL, path)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("fetcher %d: %v", i, err)
		}
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(payload) {
		t.Errorf("committed size = %d, want %d", len(got), len(payload))
	}
	noTempFiles(t, path)
}

func TestHTTPError_Fatal(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   bool
	}{
		{401, "unauthorized", true},
		{400, "bad filters", true},
		{400, "from must be in ISO 8601 format", false},
		{429, "slow down", false},
		{500, "boom", false},
	}
	for _, tt := range tests {
		e := &HTTPError{Status: tt.status, Body: tt.body}
		if got := e.Fatal(); got != tt.want {
			t.Errorf("Fatal(%d, %q) = %v, want %v", tt.status, tt.body, got, tt.want)
		}
	}
}
