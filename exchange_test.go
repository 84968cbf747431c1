package tardis

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
)

func metadataClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Options{
		MetadataEndpoint: srv.URL,
		CacheDir:         t.TempDir(),
		HTTPTimeout:      5 * time.Second,
		MetadataTTL:      time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestExchangeDetails_plain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/exchanges/bitmex" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"id":"bitmex"}`))
	}))
	defer srv.Close()
	c := metadataClient(t, srv)
	defer c.Close()

	body, err := c.ExchangeDetails(context.Background(), "bitmex")
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != `{"id":"bitmex"}` {
		t.Errorf("body = %s", body)
	}
}

func TestExchangeDetails_contentEncodings(t *testing.T) {
	doc := []byte(`{"id":"deribit","availableSymbols":["BTC-PERPETUAL"]}`)
	cases := []struct {
		encoding string
		compress func([]byte) []byte
	}{
		{"gzip", func(b []byte) []byte {
			var buf bytes.Buffer
			gz := gzip.NewWriter(&buf)
			gz.Write(b)
			gz.Close()
			return buf.Bytes()
		}},
		{"br", func(b []byte) []byte {
			var buf bytes.Buffer
			br := brotli.NewWriter(&buf)
			br.Write(b)
			br.Close()
			return buf.Bytes()
		}},
	}
	for _, tc := range cases {
		t.Run(tc.encoding, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", tc.encoding)
				w.Write(tc.compress(doc))
			}))
			defer srv.Close()
			c := metadataClient(t, srv)
			defer c.Close()

			body, err := c.ExchangeDetails(context.Background(), "deribit")
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(body, doc) {
				t.Errorf("body = %s", body)
			}
		})
	}
}

func TestExchangeDetails_cached(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"id":"kraken"}`))
	}))
	defer srv.Close()
	c := metadataClient(t, srv)
	defer c.Close()

	for i := 0; i < 3; i++ {
		if _, err := c.ExchangeDetails(context.Background(), "kraken"); err != nil {
			t.Fatal(err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestExchangeDetails_unknownExchange(t *testing.T) {
	c, _ := NewClient(Options{CacheDir: t.TempDir()})
	defer c.Close()
	if _, err := c.ExchangeDetails(context.Background(), "nasdaq"); err == nil {
		t.Error("want validation error")
	}
}

func TestExchangeDetails_httpError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c := metadataClient(t, srv)
	defer c.Close()

	if _, err := c.ExchangeDetails(context.Background(), "bitmex"); err == nil {
		t.Error("want error on HTTP 503")
	}
}
