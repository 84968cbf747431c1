package tardis

import (
	"path/filepath"
	"testing"
	"time"
)

func TestOptions_defaults(t *testing.T) {
	var o Options
	o.applyDefaults()
	if o.Endpoint != "https://tardis.dev/api" {
		t.Errorf("endpoint = %q", o.Endpoint)
	}
	if o.MetadataEndpoint != "https://api.tardis.dev/v1" {
		t.Errorf("metadata endpoint = %q", o.MetadataEndpoint)
	}
	if filepath.Base(o.CacheDir) != ".tardis-cache" {
		t.Errorf("cache dir = %q", o.CacheDir)
	}
	if o.HTTPTimeout != 60*time.Second {
		t.Errorf("timeout = %v", o.HTTPTimeout)
	}
	if o.ConcurrencyLimit != 60 {
		t.Errorf("concurrency limit = %d", o.ConcurrencyLimit)
	}
}

func TestOptions_explicitValuesKept(t *testing.T) {
	o := Options{
		Endpoint:         "http://localhost:8000",
		CacheDir:         "/data/tardis",
		HTTPTimeout:      time.Second,
		ConcurrencyLimit: 3,
	}
	o.applyDefaults()
	if o.Endpoint != "http://localhost:8000" || o.CacheDir != "/data/tardis" ||
		o.HTTPTimeout != time.Second || o.ConcurrencyLimit != 3 {
		t.Errorf("defaults overwrote explicit values: %+v", o)
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("TARDIS_ENDPOINT", "http://localhost:9999")
	t.Setenv("TARDIS_API_KEY", "secret")
	t.Setenv("TARDIS_HTTP_TIMEOUT", "90s")
	t.Setenv("TARDIS_CONCURRENCY_LIMIT", "12")

	o, err := OptionsFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if o.Endpoint != "http://localhost:9999" {
		t.Errorf("endpoint = %q", o.Endpoint)
	}
	if o.APIKey != "secret" {
		t.Errorf("api key = %q", o.APIKey)
	}
	if o.HTTPTimeout != 90*time.Second {
		t.Errorf("timeout = %v", o.HTTPTimeout)
	}
	if o.ConcurrencyLimit != 12 {
		t.Errorf("concurrency limit = %d", o.ConcurrencyLimit)
	}
}

func TestNewClient_badProxy(t *testing.T) {
	if _, err := NewClient(Options{HTTPProxy: "://nope"}); err == nil {
		t.Error("want error for malformed proxy URL")
	}
}
