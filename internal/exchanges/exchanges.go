// Package exchanges holds the static venue and channel catalogs used for
// request validation. Channel names are opaque strings; the API rejects
// unknown ones server-side, this catalog just fails fast client-side.
package exchanges

import "sort"

// All lists every supported venue identifier.
var All = []string{
	"bitmex",
	"binance",
	"binance-futures",
	"deribit",
	"bitstamp",
	"coinbase",
	"cryptofacilities",
	"kraken",
	"bitfinex",
	"bitfinex-derivatives",
	"okex",
	"binance-jersey",
	"binance-dex",
	"ftx",
	"gemini",
	"bitflyer",
}

var binanceChannels = []string{"trade", "ticker", "depth", "miniTicker", "depthSnapshot"}

// Channels maps a venue to its known channel names.
var Channels = map[string][]string{
	"bitmex": {
		"trade", "orderBookL2", "liquidation", "connected", "announcement",
		"chat", "publicNotifications", "instrument", "settlement", "funding",
		"insurance", "orderBookL2_25", "quote", "quoteBin1m", "quoteBin5m",
		"quoteBin1h", "quoteBin1d", "tradeBin1m", "tradeBin5m", "tradeBin1h",
		"tradeBin1d",
	},
	"coinbase": {
		"subscriptions", "received", "open", "done", "match", "change",
		"l2update", "ticker", "snapshot", "last_match", "full_snapshot",
	},
	"deribit": {
		"book", "deribit_price_index", "deribit_price_ranking",
		"estimated_expiration_price", "markprice.options", "perpetual",
		"trades", "ticker", "quote",
	},
	"cryptofacilities": {"trade", "trade_snapshot", "book", "book_snapshot", "ticker", "heartbeat"},
	"bitstamp":         {"live_trades", "live_orders", "diff_order_book"},
	"kraken":           {"ticker", "trade", "book", "spread"},
	"okex": {
		"spot/ticker", "spot/trade", "spot/depth",
		"swap/ticker", "swap/trade", "swap/depth", "swap/funding_rate",
		"swap/price_range", "swap/mark_price",
		"futures/ticker", "futures/trade", "futures/depth",
		"futures/price_range", "futures/mark_price", "futures/estimated_price",
	},
	"binance":        binanceChannels,
	"binance-jersey": binanceChannels,
	"binance-dex":    {"trades", "marketDiff", "kline_1m", "ticker", "depthSnapshot"},
	"bitfinex":       {"trades", "book"},
	"ftx":            {"orderbook", "trades"},
	"gemini":         {"trade", "l2_updates", "auction_open", "auction_indicative", "auction_result"},
	"bitflyer": {
		"lightning_board_snapshot", "lightning_board", "lightning_ticker",
		"lightning_executions",
	},
	"binance-futures":      {"aggTrade", "ticker", "depth", "markPrice", "depthSnapshot"},
	"bitfinex-derivatives": {"trades", "book", "status"},
}

// Valid reports whether exchange names a supported venue.
func Valid(exchange string) bool {
	_, ok := Channels[exchange]
	return ok
}

// ValidChannel reports whether channel is known for exchange.
func ValidChannel(exchange, channel string) bool {
	for _, c := range Channels[exchange] {
		if c == channel {
			return true
		}
	}
	return false
}

// Names returns the venue list sorted ascending, for error messages.
func Names() []string {
	out := append([]string(nil), All...)
	sort.Strings(out)
	return out
}
