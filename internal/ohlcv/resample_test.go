package ohlcv

import (
	"errors"
	"testing"
	"time"

	"marketdata/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minuteBars builds n one-minute bars starting at start with a rising price path.
func minuteBars(start time.Time, n int) model.Series {
	out := make(model.Series, 0, n)
	for i := 0; i < n; i++ {
		base := decimal.NewFromInt(int64(100 + i))
		out = append(out, model.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      base,
			High:      base.Add(decimal.NewFromInt(2)),
			Low:       base.Sub(decimal.NewFromInt(1)),
			Close:     base.Add(decimal.NewFromInt(1)),
			Volume:    decimal.NewFromInt(10),
		})
	}
	return out
}

func Test_ResampleFiveMinutes(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	input := minuteBars(start, 24*60)

	out, err := Resample(input, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, out, 24*12, "A full day of minutes yields 288 five-minute bars")

	for i, b := range out {
		first := input[i*5]
		last := input[i*5+4]

		assert.Equal(t, first.Timestamp, b.Timestamp, "Buckets are left-labelled")
		assert.True(t, first.Open.Equal(b.Open), "Open is the first contained open")
		assert.True(t, last.Close.Equal(b.Close), "Close is the last contained close")
		assert.True(t, last.High.Equal(b.High), "High is the max of the bucket")
		assert.True(t, first.Low.Equal(b.Low), "Low is the min of the bucket")
		assert.True(t, decimal.NewFromInt(50).Equal(b.Volume), "Volume is summed")
	}
}

func Test_ResampleSkipsEmptyBuckets(t *testing.T) {
	start := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	input := append(minuteBars(start, 3), minuteBars(start.Add(30*time.Minute), 2)...)

	out, err := Resample(input, 5*time.Minute)
	require.NoError(t, err)

	require.Len(t, out, 2, "Gaps must not be forward-filled")
	assert.Equal(t, start, out[0].Timestamp)
	assert.Equal(t, start.Add(30*time.Minute), out[1].Timestamp)
}

func Test_ResampleIdempotentAtNativeInterval(t *testing.T) {
	start := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	input := minuteBars(start, 120)

	out, err := Resample(input, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, input, out)
}

func Test_ResampleHighBoundsBucket(t *testing.T) {
	start := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	input := minuteBars(start, 90)

	for _, interval := range []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute, time.Hour} {
		out, err := Resample(input, interval)
		require.NoError(t, err)
		for _, b := range out {
			assert.True(t, b.High.GreaterThanOrEqual(b.Open))
			assert.True(t, b.High.GreaterThanOrEqual(b.Close))
			assert.True(t, b.High.GreaterThanOrEqual(b.Low))
		}
	}
}

func Test_ResampleUnsortedInput(t *testing.T) {
	start := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	input := minuteBars(start, 5)
	shuffled := model.Series{input[3], input[0], input[4], input[1], input[2]}

	out, err := Resample(shuffled, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, input[0].Open.Equal(out[0].Open), "Open follows timestamp order, not input order")
	assert.True(t, input[4].Close.Equal(out[0].Close))
	assert.Equal(t, input[3].Timestamp, shuffled[0].Timestamp, "Input is not reordered in place")
}

func Test_ResampleDailyInLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2024-01-02 09:30 and 15:59 New York belong to the same local day,
	// even though the UTC dates differ for late bars
	input := model.Series{
		minuteBars(time.Date(2024, 1, 2, 9, 30, 0, 0, ny), 1)[0],
		minuteBars(time.Date(2024, 1, 2, 19, 59, 0, 0, ny), 1)[0],
		minuteBars(time.Date(2024, 1, 3, 9, 30, 0, 0, ny), 1)[0],
	}

	out, err := ResampleIn(input, 24*time.Hour, ny)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, ny), out[0].Timestamp)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, ny), out[1].Timestamp)
	assert.True(t, decimal.NewFromInt(20).Equal(out[0].Volume))
}

func Test_ResampleInvalidInterval(t *testing.T) {
	_, err := Resample(minuteBars(time.Now(), 2), 0)
	assert.True(t, errors.Is(err, ErrInvalidInterval))
}

func Test_ResampleEmpty(t *testing.T) {
	out, err := Resample(nil, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func Test_ResampleFrame(t *testing.T) {
	records := [][]string{
		{"time", "open", "high", "low", "close", "volume"},
		{"2024-01-02 09:30:00", "10", "11", "9", "10.5", "100"},
		{"2024-01-02 09:31:00", "10.5", "12", "10", "11.5", "50"},
	}

	out, err := ResampleFrame(FrameFromRecords(records), 5*time.Minute, Options{DatetimeColumn: "time"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, decimal.NewFromInt(12).Equal(out[0].High))
	assert.True(t, decimal.NewFromInt(150).Equal(out[0].Volume))

	missing := [][]string{
		{"time", "open", "high", "low", "close"},
		{"2024-01-02 09:30:00", "10", "11", "9", "10.5"},
	}
	_, err = ResampleFrame(FrameFromRecords(missing), 5*time.Minute, Options{DatetimeColumn: "time"})
	var schemaErr *SchemaError
	assert.True(t, errors.As(err, &schemaErr), "Missing fields must fail with SchemaError")
}
