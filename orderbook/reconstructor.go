// Package orderbook reconstructs normalized trades and order-book deltas
// from raw recorded feed messages, maintaining per-symbol book state for the
// duration of a session.
package orderbook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tardis-dev/tardis-go/internal/cachepath"
)

// UpdateType classifies a book delta.
type UpdateType uint8

const (
	UpdateNew UpdateType = iota + 1
	UpdateChange
	UpdateDelete
)

// MessageType classifies a MarketResponse.
type MessageType uint8

const (
	Trades MessageType = iota + 1
	BookDelta
)

// Trade is one normalized trade.
type Trade struct {
	Symbol    string
	Side      string // "buy" or "sell"
	Amount    float64
	Price     float64
	Timestamp time.Time
}

// BookUpdate is one normalized book delta.
type BookUpdate struct {
	Symbol     string
	Side       Side
	Type       UpdateType
	PriceLevel float64
	Amount     float64 // 0 for UpdateDelete
}

// MarketResponse is the output of one reconstructed raw message. Exactly one
// of Trades and BookUpdates is populated, per Type. Book is the live book
// view for the items' symbol (all items of one raw message share a symbol).
type MarketResponse struct {
	LocalTimestamp time.Time
	Type           MessageType
	Trades         []Trade
	BookUpdates    []BookUpdate
	Book           *Book
}

// MarketReconstructor is a stateful per-venue transformer from decoded raw
// messages to normalized market data.
type MarketReconstructor interface {
	// Filters returns the channel filters the reconstructor needs replayed.
	Filters() []cachepath.Filter
	// Reconstruct consumes one decoded message. A nil response means the
	// message carried nothing relevant (unknown table, foreign symbols,
	// trade snapshot).
	Reconstruct(localTimestamp time.Time, message json.RawMessage) (*MarketResponse, error)
}

var reconstructors = map[string]func(symbols []string) MarketReconstructor{
	"bitmex": newBitmex,
}

// New returns the reconstructor for exchange, scoped to symbols.
func New(exchange string, symbols []string) (MarketReconstructor, error) {
	ctor, ok := reconstructors[exchange]
	if !ok {
		return nil, fmt.Errorf("orderbook: no market reconstructor for exchange %q", exchange)
	}
	return ctor(symbols), nil
}

// Supported reports whether exchange has a reconstructor.
func Supported(exchange string) bool {
	_, ok := reconstructors[exchange]
	return ok
}
