package tardis

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/tardis-dev/tardis-go/internal/exchanges"
	"github.com/tardis-dev/tardis-go/internal/httpclient"
)

// ExchangeDetails returns the metadata document for exchange: available
// symbols, channels, incidents and recorded date ranges. Documents are
// cached locally with a TTL (Options.MetadataTTL).
func (c *Client) ExchangeDetails(ctx context.Context, exchange string) (json.RawMessage, error) {
	if !exchanges.Valid(exchange) {
		return nil, fmt.Errorf(
			"tardis: invalid 'exchange' argument %q, available exchanges: %s",
			exchange, strJoin(exchanges.Names()))
	}

	cache, err := c.metaCache()
	if err != nil {
		return nil, err
	}
	if body, ok := cache.Get(exchange); ok {
		c.log.Debug().Str("exchange", exchange).Msg("exchange details served from cache")
		return body, nil
	}

	url := c.opts.MetadataEndpoint + "/exchanges/" + exchange
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("tardis: exchange details: %w", err)
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	// The shared transport never auto-decompresses; negotiate explicitly.
	req.Header.Set("Accept-Encoding", "br, gzip")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	client, err := httpclient.New(c.opts.HTTPTimeout, c.opts.HTTPProxy)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tardis: exchange details %s: HTTP %d", exchange, resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("tardis: exchange details %s: %w", exchange, err)
		}
		defer gz.Close()
		reader = gz
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("tardis: exchange details %s: %w", exchange, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("tardis: exchange details %s: response is not valid JSON", exchange)
	}

	if err := cache.Put(exchange, body); err != nil {
		c.log.Debug().Err(err).Str("exchange", exchange).Msg("exchange details cache write failed")
	}
	return body, nil
}
