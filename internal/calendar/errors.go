package calendar

import (
	"fmt"
	"time"
)

// CalendarError reports an unknown exchange, an inverted range or a
// session lookup outside the supported schedule.
type CalendarError struct {
	Exchange string
	Op       string
	Date     time.Time
	Reason   string
}

func (e *CalendarError) Error() string {
	if e.Date.IsZero() {
		return fmt.Sprintf("calendar %s: %s: %s", e.Exchange, e.Op, e.Reason)
	}
	return fmt.Sprintf("calendar %s: %s %s: %s", e.Exchange, e.Op, e.Date.Format(dateLayout), e.Reason)
}
