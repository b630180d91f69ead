package calendar

import (
	"fmt"
	"sort"
	"sync"
	"time"

	// embedded zone database so schedules resolve on hosts without one
	_ "time/tzdata"
)

// Registered exchange identifiers.
const (
	NYSE       = "XNYS"
	Nasdaq     = "XNAS"
	NYSEAlias  = "XYNS"
	AlwaysOpen = "24/7"
)

// DefaultExchange is used when a caller does not name one.
const DefaultExchange = NYSEAlias

var (
	scheduleFirst = d(1990, time.January, 1)
	scheduleLast  = d(2035, time.December, 31)
)

// aliases map an identifier onto the schedule registered under another.
var aliases = map[string]string{
	NYSEAlias: NYSE,
}

type registry struct {
	once      sync.Once
	err       error
	schedules map[string]*schedule
}

var exchanges registry

func (r *registry) load() error {
	r.once.Do(func() {
		ny, err := time.LoadLocation("America/New_York")
		if err != nil {
			r.err = fmt.Errorf("failed to load exchange location: %w", err)
			return
		}

		specs := []scheduleSpec{
			{
				mic:        NYSE,
				name:       "New York Stock Exchange",
				location:   ny,
				open:       clock{9, 30},
				close:      clock{16, 0},
				earlyClose: clock{13, 0},
				first:      scheduleFirst,
				last:       scheduleLast,
				rules:      newUSEquityRules("New York Stock Exchange", ny, scheduleFirst.Year(), scheduleLast.Year()),
			},
			{
				mic:        Nasdaq,
				name:       "Nasdaq",
				location:   ny,
				open:       clock{9, 30},
				close:      clock{16, 0},
				earlyClose: clock{13, 0},
				first:      scheduleFirst,
				last:       scheduleLast,
				rules:      newUSEquityRules("Nasdaq", ny, scheduleFirst.Year(), scheduleLast.Year()),
			},
			{
				mic:        AlwaysOpen,
				name:       "Always open",
				location:   time.UTC,
				alwaysOpen: true,
				first:      scheduleFirst,
				last:       scheduleLast,
			},
		}

		r.schedules = make(map[string]*schedule, len(specs))
		for _, spec := range specs {
			r.schedules[spec.mic] = build(spec)
		}
	})
	return r.err
}

func (r *registry) lookup(id string) (*schedule, error) {
	if err := r.load(); err != nil {
		return nil, err
	}
	if target, ok := aliases[id]; ok {
		id = target
	}
	s, ok := r.schedules[id]
	if !ok {
		return nil, &CalendarError{Exchange: id, Op: "new", Reason: "unknown exchange identifier"}
	}
	return s, nil
}

// Available lists every accepted exchange identifier, aliases included.
func Available() []string {
	out := []string{NYSE, Nasdaq, AlwaysOpen}
	for alias := range aliases {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}
