package calendar

import (
	"time"

	exchcal "github.com/scmhub/calendar"
)

// libraryRules classify weekdays from a scmhub exchange calendar.
type libraryRules struct {
	cal *exchcal.Calendar
}

func (r libraryRules) isHoliday(date time.Time) bool {
	return r.cal.IsHoliday(r.local(date))
}

func (r libraryRules) isEarlyClose(date time.Time) bool {
	return r.cal.IsEarlyClose(r.local(date))
}

// local returns midnight of date's civil day in the calendar's location,
// the instant the library keys its holidays on.
func (r libraryRules) local(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, r.cal.Loc)
}

// newUSEquityRules builds the NYSE holiday and early-close calendar for
// [first, last] in loc. Nasdaq follows the same closures.
//
// It is assembled from the library's holiday definitions rather than its
// predefined XNYS, which counts Martin Luther King Jr. Day before 1998,
// dates the G.H.W. Bush closure to 2018-11-30 and predates the Carter
// closure.
func newUSEquityRules(name string, loc *time.Location, first, last int) libraryRules {
	c := exchcal.NewCalendar(name, loc, first, last)
	c.AddHolidays(
		// a Saturday New Year is not observed on the preceding Friday
		exchcal.NewYear.Copy().SetObservance(sundayToMonday),
		exchcal.MLKDay.Copy().SetAfterYear(1998),
		exchcal.PresidentsDay,
		exchcal.GoodFriday,
		exchcal.MemorialDay,
		exchcal.JuneteenthDay,
		exchcal.IndependenceDay,
		exchcal.LaborDay,
		exchcal.ThanksgivingDay,
		exchcal.ChristmasDay.Copy().SetObservance(nearestWorkday),
	)
	c.AddHolidays(adhocClosures()...)
	c.AddEarlyClosingDays(
		exchcal.BeforeIndependenceDay.Copy().SetAfterYear(1995).SetObservance(onlyOn(time.Monday, time.Tuesday, time.Thursday)),
		exchcal.AfterIndependenceDay.Copy().SetAfterYear(1995).SetBeforeYear(2013).SetObservance(onlyOn(time.Friday)),
		exchcal.BeforeIndependenceDay.Copy().SetAfterYear(2013).SetObservance(onlyOn(time.Wednesday)),
		exchcal.BlackFriday,
		// a Friday Christmas Eve is the observed Christmas holiday
		exchcal.ChristmasEve.Copy().SetObservance(exceptOn(time.Friday)),
	)
	return libraryRules{cal: c}
}

// adhocClosures lists unscheduled full-day closures.
func adhocClosures() []*exchcal.Holiday {
	bush := exchcal.BushSeniorMourningDay.Copy()
	bush.Month, bush.Day = time.December, 5

	carter := exchcal.FordMourningDay.Copy("President Jimmy Carter Mourning Day")
	carter.OnYear, carter.Month, carter.Day = 2025, time.January, 9

	out := []*exchcal.Holiday{
		exchcal.NixonMourningDay,
		exchcal.ReaganMourningDay,
		exchcal.FordMourningDay,
		bush,
		carter,
	}
	out = append(out, exchcal.SeptemberElevenDays...)
	return append(out, exchcal.HurricaneSandyDays...)
}

func sundayToMonday(t time.Time) time.Time {
	if t.Weekday() == time.Sunday {
		return t.AddDate(0, 0, 1)
	}
	return t
}

// nearestWorkday moves Saturday to Friday and Sunday to Monday.
func nearestWorkday(t time.Time) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, -1)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	}
	return t
}

// onlyOn keeps a date falling on one of wds and drops the rest.
func onlyOn(wds ...time.Weekday) func(time.Time) time.Time {
	return func(t time.Time) time.Time {
		for _, wd := range wds {
			if t.Weekday() == wd {
				return t
			}
		}
		return time.Time{}
	}
}

// exceptOn drops a date falling on one of wds.
func exceptOn(wds ...time.Weekday) func(time.Time) time.Time {
	return func(t time.Time) time.Time {
		for _, wd := range wds {
			if t.Weekday() == wd {
				return time.Time{}
			}
		}
		return t
	}
}

func d(year int, month time.Month, dom int) time.Time {
	return time.Date(year, month, dom, 0, 0, 0, 0, time.UTC)
}
