package tardis

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/tardis-dev/tardis-go/internal/downloader"
	"github.com/tardis-dev/tardis-go/internal/httpclient"
	"github.com/tardis-dev/tardis-go/internal/metacache"
)

const (
	// DefaultEndpoint serves the recorded data feeds.
	DefaultEndpoint = "https://tardis.dev/api"
	// DefaultMetadataEndpoint serves exchange metadata documents.
	DefaultMetadataEndpoint = "https://api.tardis.dev/v1"
)

// Options configure a Client. The zero value is usable: every field falls
// back to a default, and the zero Logger is disabled.
type Options struct {
	// Endpoint is the data-feed API base URL.
	Endpoint string `env:"TARDIS_ENDPOINT"`
	// MetadataEndpoint is the exchange-metadata API base URL.
	MetadataEndpoint string `env:"TARDIS_METADATA_ENDPOINT"`
	// CacheDir holds the slice cache and the metadata cache database.
	// Defaults to <os temp dir>/.tardis-cache.
	CacheDir string `env:"TARDIS_CACHE_DIR"`
	// APIKey is sent as a Bearer token; empty means anonymous access
	// (first day of each month only).
	APIKey string `env:"TARDIS_API_KEY"`

	// HTTPTimeout bounds each slice request. Defaults to 60s.
	HTTPTimeout time.Duration `env:"TARDIS_HTTP_TIMEOUT"`
	// HTTPProxy routes requests through an http, https or socks5 proxy.
	HTTPProxy string `env:"TARDIS_HTTP_PROXY"`
	// ConcurrencyLimit is the ceiling of the adaptive download
	// concurrency. Defaults to 60.
	ConcurrencyLimit int `env:"TARDIS_CONCURRENCY_LIMIT"`
	// MetadataTTL is the freshness window of cached exchange metadata.
	MetadataTTL time.Duration `env:"TARDIS_METADATA_TTL"`

	Logger zerolog.Logger `env:"-"`
}

// OptionsFromEnv builds Options from TARDIS_* environment variables.
func OptionsFromEnv() (Options, error) {
	opts, err := env.ParseAs[Options]()
	if err != nil {
		return Options{}, fmt.Errorf("tardis: options from env: %w", err)
	}
	return opts, nil
}

func (o *Options) applyDefaults() {
	if o.Endpoint == "" {
		o.Endpoint = DefaultEndpoint
	}
	if o.MetadataEndpoint == "" {
		o.MetadataEndpoint = DefaultMetadataEndpoint
	}
	if o.CacheDir == "" {
		o.CacheDir = filepath.Join(os.TempDir(), ".tardis-cache")
	}
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = httpclient.DefaultTimeout
	}
	if o.ConcurrencyLimit <= 0 {
		o.ConcurrencyLimit = downloader.DefaultConcurrencyLimit
	}
	if o.MetadataTTL <= 0 {
		o.MetadataTTL = metacache.DefaultTTL
	}
}
