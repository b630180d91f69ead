package calendar

import (
	"sort"
	"time"
)

const (
	dateLayout = "2006-01-02"
	day        = 24 * time.Hour
)

// clock is a wall-clock time of day in the exchange's location.
type clock struct {
	hour, minute int
}

func (c clock) on(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.hour, c.minute, 0, 0, loc)
}

// schedule is the resolved, immutable session table of one exchange.
type schedule struct {
	mic      string
	name     string
	location *time.Location

	open       clock
	close      clock
	earlyClose clock

	// alwaysOpen sessions run midnight to midnight every calendar day
	alwaysOpen bool

	first int // first supported day number, inclusive
	last  int // last supported day number, inclusive

	sessions []int        // sorted day numbers of every session
	early    map[int]bool // day numbers closing at earlyClose
}

// rules classify the weekdays of one exchange. Dates are civil days at
// midnight UTC.
type rules interface {
	isHoliday(date time.Time) bool
	isEarlyClose(date time.Time) bool
}

type scheduleSpec struct {
	mic        string
	name       string
	location   *time.Location
	open       clock
	close      clock
	earlyClose clock
	alwaysOpen bool
	first      time.Time
	last       time.Time
	rules      rules
}

// build generates the session table for spec's supported range.
func build(spec scheduleSpec) *schedule {
	s := &schedule{
		mic:        spec.mic,
		name:       spec.name,
		location:   spec.location,
		open:       spec.open,
		close:      spec.close,
		earlyClose: spec.earlyClose,
		alwaysOpen: spec.alwaysOpen,
		first:      dayNumber(spec.first),
		last:       dayNumber(spec.last),
		early:      make(map[int]bool),
	}

	s.sessions = make([]int, 0, s.last-s.first+1)
	for n := s.first; n <= s.last; n++ {
		date := fromDayNumber(n)
		if !s.alwaysOpen {
			if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
			if spec.rules != nil {
				if spec.rules.isHoliday(date) {
					continue
				}
				if spec.rules.isEarlyClose(date) {
					s.early[n] = true
				}
			}
		}
		s.sessions = append(s.sessions, n)
	}

	return s
}

// index returns the position of day n in sessions and whether it is a session.
func (s *schedule) index(n int) (int, bool) {
	i := sort.SearchInts(s.sessions, n)
	return i, i < len(s.sessions) && s.sessions[i] == n
}

func (s *schedule) inRange(n int) bool {
	return n >= s.first && n <= s.last
}

// window returns the open and close instant of session day n.
func (s *schedule) window(n int) (time.Time, time.Time) {
	date := fromDayNumber(n)
	if s.alwaysOpen {
		open := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, s.location)
		return open, open.AddDate(0, 0, 1)
	}
	closeAt := s.close
	if s.early[n] {
		closeAt = s.earlyClose
	}
	return s.open.on(date, s.location), closeAt.on(date, s.location)
}

// unixEpoch anchors day numbers.
var unixEpoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// dayNumber counts civil days from 1970-01-01 using t's own calendar fields.
func dayNumber(t time.Time) int {
	civil := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(civil.Sub(unixEpoch) / day)
}

// fromDayNumber returns the civil date of day n as midnight UTC.
func fromDayNumber(n int) time.Time {
	return unixEpoch.AddDate(0, 0, n)
}

// Date truncates t to its civil date, expressed as midnight UTC.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
