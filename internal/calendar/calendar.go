// Package calendar answers trading-session queries against a registered
// exchange schedule.
//
// Dates passed in are interpreted by their civil year, month and day;
// the wall-clock part and location are ignored. Dates returned are
// midnight UTC. Session instants are expressed in the exchange location.
package calendar

import (
	"time"

	"marketdata/internal/model"
)

// Calendar is an immutable view of one exchange schedule. It is safe for
// concurrent use.
type Calendar struct {
	id string
	s  *schedule
}

// New returns the calendar registered under the ISO-10383 identifier mic.
func New(mic string) (*Calendar, error) {
	s, err := exchanges.lookup(mic)
	if err != nil {
		return nil, err
	}
	return &Calendar{id: mic, s: s}, nil
}

// Exchange returns the identifier the calendar was requested with.
func (c *Calendar) Exchange() string { return c.id }

// Name returns the human readable exchange name.
func (c *Calendar) Name() string { return c.s.name }

// Location returns the exchange time zone.
func (c *Calendar) Location() *time.Location { return c.s.location }

// FirstDate returns the first supported calendar date.
func (c *Calendar) FirstDate() time.Time { return fromDayNumber(c.s.first) }

// LastDate returns the last supported calendar date.
func (c *Calendar) LastDate() time.Time { return fromDayNumber(c.s.last) }

// IsSession reports whether date is a trading session. Dates outside the
// supported range are never sessions.
func (c *Calendar) IsSession(date time.Time) bool {
	_, ok := c.s.index(dayNumber(date))
	return ok
}

// NextSession returns the first session strictly after date.
func (c *Calendar) NextSession(date time.Time) (time.Time, error) {
	n := dayNumber(date)
	i, ok := c.s.index(n)
	if ok {
		i++
	}
	if i >= len(c.s.sessions) {
		return time.Time{}, c.errorf("next session", date, "no session after date within supported range")
	}
	return fromDayNumber(c.s.sessions[i]), nil
}

// PreviousSession returns the last session strictly before date.
func (c *Calendar) PreviousSession(date time.Time) (time.Time, error) {
	i, _ := c.s.index(dayNumber(date))
	if i == 0 {
		return time.Time{}, c.errorf("previous session", date, "no session before date within supported range")
	}
	return fromDayNumber(c.s.sessions[i-1]), nil
}

// ShiftSessions steps delta sessions forward, or backward when delta is
// negative. A zero delta returns date unchanged.
func (c *Calendar) ShiftSessions(date time.Time, delta int) (time.Time, error) {
	out := Date(date)
	step := c.NextSession
	if delta < 0 {
		step = c.PreviousSession
		delta = -delta
	}
	for ; delta > 0; delta-- {
		var err error
		if out, err = step(out); err != nil {
			return time.Time{}, err
		}
	}
	return out, nil
}

// SessionsBetween returns every session in [start, end] in order.
func (c *Calendar) SessionsBetween(start, end time.Time) ([]time.Time, error) {
	lo, hi, err := c.span(start, end)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, hi-lo)
	for _, n := range c.s.sessions[lo:hi] {
		out = append(out, fromDayNumber(n))
	}
	return out, nil
}

// CountSessionsBetween returns the number of sessions in [start, end].
func (c *Calendar) CountSessionsBetween(start, end time.Time) (int, error) {
	lo, hi, err := c.span(start, end)
	if err != nil {
		return 0, err
	}
	return hi - lo, nil
}

func (c *Calendar) span(start, end time.Time) (int, int, error) {
	a, b := dayNumber(start), dayNumber(end)
	if a > b {
		return 0, 0, c.errorf("sessions between", start, "start is after end "+Date(end).Format(dateLayout))
	}
	if !c.s.inRange(a) {
		return 0, 0, c.errorf("sessions between", start, "outside supported range")
	}
	if !c.s.inRange(b) {
		return 0, 0, c.errorf("sessions between", end, "outside supported range")
	}
	lo, _ := c.s.index(a)
	hi, ok := c.s.index(b)
	if ok {
		hi++
	}
	return lo, hi, nil
}

// SessionWindow returns the open and close instants of session date.
func (c *Calendar) SessionWindow(date time.Time) (time.Time, time.Time, error) {
	n := dayNumber(date)
	if _, ok := c.s.index(n); !ok {
		return time.Time{}, time.Time{}, c.errorf("session window", date, "not a session")
	}
	openAt, closeAt := c.s.window(n)
	return openAt, closeAt, nil
}

// Session resolves date into a model.Session.
func (c *Calendar) Session(date time.Time) (model.Session, error) {
	openAt, closeAt, err := c.SessionWindow(date)
	if err != nil {
		return model.Session{}, err
	}
	return model.Session{Exchange: c.id, Date: Date(date), Open: openAt, Close: closeAt}, nil
}

// SessionDate maps an instant onto the exchange-local calendar date.
func (c *Calendar) SessionDate(t time.Time) time.Time {
	return Date(t.In(c.s.location))
}

// DayOfWeek returns the ISO weekday of date, Monday 1 through Sunday 7.
func DayOfWeek(date time.Time) int {
	wd := int(date.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// WeekOfMonth returns the 1-based week of month of date, with weeks
// starting on Monday. The days before the first Monday form week 1.
func WeekOfMonth(date time.Time) int {
	first := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
	offset := DayOfWeek(first) - 1
	return (date.Day()+offset-1)/7 + 1
}

func (c *Calendar) errorf(op string, date time.Time, reason string) error {
	return &CalendarError{Exchange: c.id, Op: op, Date: Date(date), Reason: reason}
}
