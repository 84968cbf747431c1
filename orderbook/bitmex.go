package orderbook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tardis-dev/tardis-go/internal/cachepath"
)

// bitmex reconstructs the orderBookL2 and trade channels. BitMEX book
// update and delete messages carry only a level id, so an id→price memo is
// kept from partial/insert messages. The memo grows with book cardinality
// over a session; sessions are call-scoped so this stays bounded in
// practice.
type bitmex struct {
	symbols   map[string]bool
	books     map[string]*Book
	idToPrice map[int64]float64
}

func newBitmex(symbols []string) MarketReconstructor {
	b := &bitmex{
		symbols:   make(map[string]bool, len(symbols)),
		books:     make(map[string]*Book, len(symbols)),
		idToPrice: make(map[int64]float64),
	}
	for _, s := range symbols {
		b.symbols[s] = true
		b.books[s] = NewBook()
	}
	return b
}

func (b *bitmex) Filters() []cachepath.Filter {
	symbols := make([]string, 0, len(b.symbols))
	for s := range b.symbols {
		symbols = append(symbols, s)
	}
	return []cachepath.Filter{
		{Channel: "orderBookL2", Symbols: symbols},
		{Channel: "trade", Symbols: symbols},
	}
}

type bitmexMessage struct {
	Table  string       `json:"table"`
	Action string       `json:"action"`
	Data   []bitmexItem `json:"data"`
}

type bitmexItem struct {
	Symbol    string   `json:"symbol"`
	ID        int64    `json:"id"`
	Side      string   `json:"side"`
	Size      float64  `json:"size"`
	Price     *float64 `json:"price"`
	Timestamp string   `json:"timestamp"`
}

var bitmexActionType = map[string]UpdateType{
	"partial": UpdateNew,
	"insert":  UpdateNew,
	"update":  UpdateChange,
	"delete":  UpdateDelete,
}

func (b *bitmex) Reconstruct(localTimestamp time.Time, message json.RawMessage) (*MarketResponse, error) {
	var msg bitmexMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return nil, fmt.Errorf("orderbook: bitmex message: %w", err)
	}

	isTrade := msg.Table == "trade"
	isBookDelta := msg.Table == "orderBookL2"
	if !isTrade && !isBookDelta {
		return nil, nil
	}
	// Trade partials replay trades already delivered before a reconnect;
	// passing them through would duplicate trades.
	if isTrade && msg.Action == "partial" {
		return nil, nil
	}

	res := &MarketResponse{LocalTimestamp: localTimestamp}
	if isTrade {
		res.Type = Trades
	} else {
		res.Type = BookDelta
	}

	for _, item := range msg.Data {
		// Partial snapshots can carry symbols beyond the requested set.
		if !b.symbols[item.Symbol] {
			continue
		}

		if isTrade {
			trade, err := mapBitmexTrade(item)
			if err != nil {
				return nil, err
			}
			res.Trades = append(res.Trades, trade)
			continue
		}

		if msg.Action == "partial" || msg.Action == "insert" {
			if item.Price != nil {
				b.idToPrice[item.ID] = *item.Price
			}
		}
		var priceLevel float64
		if item.Price != nil {
			priceLevel = *item.Price
		} else {
			known := false
			priceLevel, known = b.idToPrice[item.ID]
			if !known {
				// An update can precede its partial right after a reconnect;
				// without a price level there is nothing to apply.
				continue
			}
		}

		update := BookUpdate{
			Symbol:     item.Symbol,
			Side:       Ask,
			Type:       bitmexActionType[msg.Action],
			PriceLevel: priceLevel,
		}
		if item.Side == "Buy" {
			update.Side = Bid
		}
		if update.Type != UpdateDelete {
			update.Amount = item.Size
		}

		b.books[item.Symbol].apply(update)
		res.BookUpdates = append(res.BookUpdates, update)
	}

	var symbol string
	switch {
	case len(res.Trades) > 0:
		symbol = res.Trades[0].Symbol
	case len(res.BookUpdates) > 0:
		symbol = res.BookUpdates[0].Symbol
	default:
		// Every item fell outside the requested symbol set.
		return nil, nil
	}
	res.Book = b.books[symbol]
	return res, nil
}

// mapBitmexTrade normalizes one trade item. BitMEX item timestamps are
// ISO-8601 with a trailing Z.
func mapBitmexTrade(item bitmexItem) (Trade, error) {
	ts, err := time.Parse("2006-01-02T15:04:05.999999999", strings.TrimSuffix(item.Timestamp, "Z"))
	if err != nil {
		return Trade{}, fmt.Errorf("orderbook: bitmex trade timestamp %q: %w", item.Timestamp, err)
	}
	side := "sell"
	if item.Side == "Buy" {
		side = "buy"
	}
	return Trade{
		Symbol:    item.Symbol,
		Side:      side,
		Amount:    item.Size,
		Price:     pf(item.Price),
		Timestamp: ts.UTC(),
	}, nil
}

func pf(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
