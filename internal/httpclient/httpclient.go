// Package httpclient provides the shared tuned HTTP client used by the
// slice fetcher, the datasets downloader and the exchange-metadata fetch.
package httpclient

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

const (
	DefaultTimeout         = 60 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 64
)

// Version is the client version reported to the API.
const Version = "1.0.0"

// UserAgent identifies this client to the API.
const UserAgent = "tardis-client/" + Version + " (+https://github.com/tardis-dev/tardis-go)"

var defaultClient *http.Client

func init() {
	defaultClient = &http.Client{
		Timeout:   DefaultTimeout,
		Transport: newTransport(),
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: MaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		// Slice payloads are opaque gzip stored as-is; never decompress in
		// transit and never advertise Accept-Encoding.
		DisableCompression: true,
	}
}

// Default returns the shared tuned HTTP client.
func Default() *http.Client {
	return defaultClient
}

// New returns a client scoped to one call: fresh transport, given timeout,
// optional proxy. proxyURL may be http(s)://, socks5:// or empty.
func New(timeout time.Duration, proxyURL string) (*http.Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	t := newTransport()
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("httpclient: bad proxy url %q: %w", proxyURL, err)
		}
		switch u.Scheme {
		case "http", "https":
			t.Proxy = http.ProxyURL(u)
		case "socks5", "socks5h":
			d, err := proxy.FromURL(u, proxy.Direct)
			if err != nil {
				return nil, fmt.Errorf("httpclient: socks proxy %q: %w", proxyURL, err)
			}
			cd, ok := d.(proxy.ContextDialer)
			if !ok {
				return nil, fmt.Errorf("httpclient: socks proxy %q: dialer has no context support", proxyURL)
			}
			t.DialContext = cd.DialContext
		default:
			return nil, fmt.Errorf("httpclient: unsupported proxy scheme %q", u.Scheme)
		}
	}
	return &http.Client{Timeout: timeout, Transport: t}, nil
}
