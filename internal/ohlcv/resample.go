package ohlcv

import (
	"errors"
	"fmt"
	"time"

	"marketdata/internal/model"

	"github.com/go-gota/gota/dataframe"
)

// ErrInvalidInterval is returned for non-positive resampling intervals.
var ErrInvalidInterval = errors.New("resample interval must be positive")

const day = 24 * time.Hour

// Resample aggregates s into buckets of the given interval aligned in UTC.
func Resample(s model.Series, interval time.Duration) (model.Series, error) {
	return ResampleIn(s, interval, time.UTC)
}

// ResampleIn aggregates s into left-labelled buckets of the given interval.
//
// Per bucket: open is the first open, high the max high, low the min low,
// close the last close and volume the sum of volumes. Buckets without any
// input bar produce no output bar; nothing is forward-filled.
//
// Sub-day intervals align to absolute time. Intervals that are whole
// multiples of a day align to local midnight in loc, so daily bars of an
// exchange-local series start at the exchange's calendar date.
func ResampleIn(s model.Series, interval time.Duration, loc *time.Location) (model.Series, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidInterval, interval)
	}
	if loc == nil {
		loc = time.UTC
	}

	sorted := s.Sorted()
	out := make(model.Series, 0, len(sorted))

	for _, b := range sorted {
		start := bucketStart(b.Timestamp, interval, loc)

		if len(out) == 0 || !out[len(out)-1].Timestamp.Equal(start) {
			out = append(out, model.Bar{
				Timestamp: start,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    b.Volume,
			})
			continue
		}

		current := &out[len(out)-1]

		if b.High.GreaterThan(current.High) {
			current.High = b.High
		}
		if b.Low.LessThan(current.Low) {
			current.Low = b.Low
		}
		current.Close = b.Close
		current.Volume = current.Volume.Add(b.Volume)
	}

	return out, nil
}

// ResampleFrame normalizes df and resamples the result.
func ResampleFrame(df dataframe.DataFrame, interval time.Duration, opts Options) (model.Series, error) {
	s, err := Normalize(df, opts)
	if err != nil {
		return nil, err
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return ResampleIn(s, interval, loc)
}

// bucketStart returns the left edge of the bucket containing t.
func bucketStart(t time.Time, interval time.Duration, loc *time.Location) time.Time {
	if interval%day != 0 {
		return t.Truncate(interval)
	}

	local := t.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	days := int(interval / day)
	if days == 1 {
		return midnight
	}

	// count days from a fixed civil epoch so multi-day buckets are stable
	epoch := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	civil := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	n := int(civil.Sub(epoch) / day)
	offset := n % days
	if offset < 0 {
		offset += days
	}
	return midnight.AddDate(0, 0, -offset)
}
