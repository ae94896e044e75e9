// Package oracle provides collateral price quotes to the position manager.
// Prices are 8-decimal fixed-point integers and every quote carries the
// time it was observed, so staleness is judged against the caller's clock
// rather than the wall clock.
package oracle

import (
	"errors"
	"math/big"
)

// ErrStaleQuote is returned when no quote exists or the freshest quote is
// older than the staleness bound.
var ErrStaleQuote = errors.New("stale quote")

// Quote is one observed collateral price.
type Quote struct {
	// Price is the collateral price with 8 decimal places.
	Price *big.Int `json:"price"`
	// ObservedAt is the unix-second timestamp the price was observed.
	ObservedAt int64 `json:"observed_at"`
}

// Adapter supplies the freshest usable quote as of a given time.
type Adapter interface {
	Quote(now int64) (Quote, error)
}

// Feed is an Adapter fed by inbound price events. It keeps only the most
// recent quote and rejects reads once that quote ages past maxAge seconds.
type Feed struct {
	maxAge int64
	latest *Quote
}

// NewFeed creates a feed with the given staleness bound in seconds.
func NewFeed(maxAge int64) *Feed {
	return &Feed{maxAge: maxAge}
}

// SetQuote records a newly observed price. Quotes older than the current
// one are dropped so replays cannot move the feed backwards.
func (f *Feed) SetQuote(q Quote) {
	if f.latest != nil && q.ObservedAt < f.latest.ObservedAt {
		return
	}
	cp := Quote{Price: new(big.Int).Set(q.Price), ObservedAt: q.ObservedAt}
	f.latest = &cp
}

// Quote returns the latest price if it is still within the staleness bound
// at the given time.
func (f *Feed) Quote(now int64) (Quote, error) {
	if f.latest == nil || now-f.latest.ObservedAt > f.maxAge {
		return Quote{}, ErrStaleQuote
	}
	return Quote{Price: new(big.Int).Set(f.latest.Price), ObservedAt: f.latest.ObservedAt}, nil
}

// Latest returns the current quote for snapshots, or nil when none exists.
func (f *Feed) Latest() *Quote {
	if f.latest == nil {
		return nil
	}
	return &Quote{Price: new(big.Int).Set(f.latest.Price), ObservedAt: f.latest.ObservedAt}
}

// Static is a fixed-price Adapter for tests.
type Static struct {
	Price *big.Int
}

// Quote returns the fixed price, observed at the asking time.
func (s Static) Quote(now int64) (Quote, error) {
	return Quote{Price: new(big.Int).Set(s.Price), ObservedAt: now}, nil
}
