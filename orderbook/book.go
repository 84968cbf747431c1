package orderbook

import (
	"encoding/json"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
)

// Side of the book a price level belongs to.
type Side string

const (
	Bid Side = "bid"
	Ask Side = "ask"
)

// Level is one price level of the book.
type Level struct {
	Price  float64
	Amount float64
}

// Book is a per-symbol order book: two price-sorted ladders. Updates are
// applied by the owning reconstructor; readers get in-order snapshots.
// A Book handed out in a MarketResponse is a live view — it reflects the
// state as of that message and must not be mutated by the caller.
type Book struct {
	bids *treemap.Map
	asks *treemap.Map
}

// NewBook returns an empty book.
func NewBook() *Book {
	return &Book{
		bids: treemap.NewWith(utils.Float64Comparator),
		asks: treemap.NewWith(utils.Float64Comparator),
	}
}

func (b *Book) side(s Side) *treemap.Map {
	if s == Bid {
		return b.bids
	}
	return b.asks
}

// apply mutates the book: DELETE removes the price level, NEW and CHANGE
// set it.
func (b *Book) apply(u BookUpdate) {
	ladder := b.side(u.Side)
	if u.Type == UpdateDelete {
		ladder.Remove(u.PriceLevel)
		return
	}
	ladder.Put(u.PriceLevel, u.Amount)
}

func levels(m *treemap.Map) []Level {
	out := make([]Level, 0, m.Size())
	it := m.Iterator()
	for it.Next() {
		out = append(out, Level{Price: it.Key().(float64), Amount: it.Value().(float64)})
	}
	return out
}

// Bids returns the bid levels in ascending price order.
func (b *Book) Bids() []Level { return levels(b.bids) }

// Asks returns the ask levels in ascending price order.
func (b *Book) Asks() []Level { return levels(b.asks) }

// BestBid returns the highest bid, if any.
func (b *Book) BestBid() (Level, bool) {
	k, v := b.bids.Max()
	if k == nil {
		return Level{}, false
	}
	return Level{Price: k.(float64), Amount: v.(float64)}, true
}

// BestAsk returns the lowest ask, if any.
func (b *Book) BestAsk() (Level, bool) {
	k, v := b.asks.Min()
	if k == nil {
		return Level{}, false
	}
	return Level{Price: k.(float64), Amount: v.(float64)}, true
}

// MarshalJSON emits the book as price-sorted bid and ask levels.
func (b *Book) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Bids []Level `json:"bids"`
		Asks []Level `json:"asks"`
	}{b.Bids(), b.Asks()})
}
