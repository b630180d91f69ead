// Package model defines core data types for the market data toolkit.
//
// This package contains the fundamental structures shared by the loaders,
// the cache controller, the calendar and the resampling utilities.
// Price and volume fields use decimal.Decimal so that aggregation over long
// intraday histories never accumulates floating-point rounding error.
package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// AssetClass identifies the kind of instrument a series belongs to.
type AssetClass string

const (
	// Equity covers listed stocks and ETFs (e.g. "AAPL").
	Equity AssetClass = "equity"

	// Crypto covers crypto pairs quoted as BASE-QUOTE (e.g. "BTC-USD").
	Crypto AssetClass = "crypto"
)

// Valid reports whether a is one of the known asset classes.
func (a AssetClass) Valid() bool {
	return a == Equity || a == Crypto
}

// Bar represents one OHLCV row of a time series.
//
// Fields:
//   - Timestamp: instant the bar starts at (exchange-local or UTC)
//   - Open: first traded price of the period
//   - High: highest traded price of the period
//   - Low: lowest traded price of the period
//   - Close: last traded price of the period
//   - Volume: total volume traded during the period, non-negative
type Bar struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Series is an ordered sequence of bars keyed by timestamp.
//
// Once normalized a series is chronological with unique timestamps. Series
// are treated as values: functions that return a Series never alias the
// backing array of their input.
type Series []Bar

// Clone returns a copy of s that shares no backing storage with it.
func (s Series) Clone() Series {
	if s == nil {
		return nil
	}
	out := make(Series, len(s))
	copy(out, s)
	return out
}

// Sorted returns a chronologically sorted copy of s. Bars that share a
// timestamp keep their relative order.
func (s Series) Sorted() Series {
	out := s.Clone()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// First returns the earliest timestamp of a sorted series.
func (s Series) First() (time.Time, bool) {
	if len(s) == 0 {
		return time.Time{}, false
	}
	return s[0].Timestamp, true
}

// HighWaterMark returns the maximum timestamp in s.
func (s Series) HighWaterMark() (time.Time, bool) {
	if len(s) == 0 {
		return time.Time{}, false
	}
	hwm := s[0].Timestamp
	for _, b := range s[1:] {
		if b.Timestamp.After(hwm) {
			hwm = b.Timestamp
		}
	}
	return hwm, true
}

// Between returns the bars of s whose timestamp lies inside w.
func (s Series) Between(w FetchWindow) Series {
	out := make(Series, 0, len(s))
	for _, b := range s {
		if w.Contains(b.Timestamp) {
			out = append(out, b)
		}
	}
	return out
}

// Session is the open and close instant of one trading day on an exchange.
type Session struct {
	Exchange string    // ISO-10383 market identifier code (e.g. "XNYS")
	Date     time.Time // calendar date, midnight UTC
	Open     time.Time // session open instant
	Close    time.Time // session close instant
}

// FetchWindow is the half-open range [Start, End) requested by a caller.
type FetchWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w FetchWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Valid reports whether the window is non-empty.
func (w FetchWindow) Valid() bool {
	return !w.Start.IsZero() && w.End.After(w.Start)
}
