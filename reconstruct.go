package tardis

import (
	"context"

	"github.com/tardis-dev/tardis-go/orderbook"
)

// MarketIterator streams normalized market data: trades and order-book
// deltas with full book state, reconstructed from the raw recorded feed.
type MarketIterator struct {
	it   *Iterator
	rec  orderbook.MarketReconstructor
	resp *orderbook.MarketResponse
	err  error
}

// ReconstructMarket replays exchange between from and to and reconstructs
// normalized market data for symbols. The channel filters are derived from
// the venue's reconstructor.
func (c *Client) ReconstructMarket(ctx context.Context, exchange, from, to string, symbols []string) (*MarketIterator, error) {
	rec, err := orderbook.New(exchange, symbols)
	if err != nil {
		return nil, err
	}
	var filters []Channel
	for _, f := range rec.Filters() {
		filters = append(filters, Channel{Name: f.Channel, Symbols: f.Symbols})
	}
	it, err := c.Replay(ctx, ReplayArgs{Exchange: exchange, From: from, To: to, Filters: filters})
	if err != nil {
		return nil, err
	}
	return &MarketIterator{it: it, rec: rec}, nil
}

// Next advances to the next non-empty market response. Raw messages that
// reconstruct to nothing (unknown tables, foreign symbols, trade snapshots)
// are consumed silently.
func (m *MarketIterator) Next() bool {
	if m.err != nil {
		return false
	}
	for m.it.Next() {
		r := m.it.Response()
		res, err := m.rec.Reconstruct(r.LocalTimestamp, r.Message)
		if err != nil {
			m.err = err
			return false
		}
		if res == nil {
			continue
		}
		m.resp = res
		return true
	}
	return false
}

// Response returns the market response produced by the last successful Next.
func (m *MarketIterator) Response() *orderbook.MarketResponse { return m.resp }

// Err returns the first reconstruction or replay error.
func (m *MarketIterator) Err() error {
	if m.err != nil {
		return m.err
	}
	return m.it.Err()
}

// Close aborts the underlying replay.
func (m *MarketIterator) Close() error { return m.it.Close() }
