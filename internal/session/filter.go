// Package session restricts intraday series to exchange trading hours.
package session

import (
	"time"

	"marketdata/internal/model"
)

// WindowResolver maps instants onto exchange dates and resolves the
// trading window of a date. *calendar.Calendar satisfies it.
type WindowResolver interface {
	// SessionDate returns the exchange-local calendar date of t.
	SessionDate(t time.Time) time.Time

	// SessionWindow returns the open and close instants of date, or an
	// error when date is not a session.
	SessionWindow(date time.Time) (time.Time, time.Time, error)
}

type window struct {
	open, close time.Time
	ok          bool
}

// Filter returns the bars of s whose timestamp lies in [open, close] of
// the session on the bar's exchange-local date. Bars on non-session dates
// are dropped. Each distinct date is resolved once.
func Filter(s model.Series, r WindowResolver) model.Series {
	windows := make(map[time.Time]window)
	out := make(model.Series, 0, len(s))

	for _, b := range s {
		date := r.SessionDate(b.Timestamp)
		w, seen := windows[date]
		if !seen {
			openAt, closeAt, err := r.SessionWindow(date)
			w = window{open: openAt, close: closeAt, ok: err == nil}
			windows[date] = w
		}
		if !w.ok {
			continue
		}
		if b.Timestamp.Before(w.open) || b.Timestamp.After(w.close) {
			continue
		}
		out = append(out, b)
	}

	return out
}
