package ohlcv

import (
	"errors"
	"strings"
	"testing"
	"time"

	"marketdata/internal/model"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tiingoStyleRecords() [][]string {
	return [][]string{
		{"date", "open", "high", "low", "close", "volume", "tradesDone"},
		{"2024-01-05T23:58:00Z", "44000.5", "44010", "43990.25", "44005", "12.5", "40"},
		{"2024-01-05T23:59:00Z", "44005", "44020", "44001", "44015.75", "3.25", "17"},
	}
}

// Test_Normalize tests schema enforcement on string-typed frames
func Test_Normalize(t *testing.T) {
	tests := []struct {
		name        string
		records     [][]string
		opts        Options
		expectRows  int
		errorMsg    string
		description string
	}{
		{
			name:        "Canonical columns",
			records:     tiingoStyleRecords(),
			opts:        Options{DatetimeColumn: "date"},
			expectRows:  2,
			description: "Should normalize frame that already uses canonical names",
		},
		{
			name: "Renamed vendor columns",
			records: [][]string{
				{"t", "o", "h", "l", "c", "v"},
				{"2024-01-02 09:30:00", "185.1", "185.5", "184.9", "185.2", "1200"},
			},
			opts: Options{
				DatetimeColumn: "t",
				Rename:         map[string]string{"o": "open", "h": "high", "l": "low", "c": "close", "v": "volume"},
			},
			expectRows:  1,
			description: "Should apply the rename mapping before lookup",
		},
		{
			name: "Missing volume",
			records: [][]string{
				{"date", "open", "high", "low", "close"},
				{"2024-01-02", "1", "1", "1", "1"},
			},
			opts:        Options{DatetimeColumn: "date"},
			errorMsg:    "missing required fields: volume",
			description: "Should fail when a value field is absent",
		},
		{
			name: "Missing datetime column",
			records: [][]string{
				{"open", "high", "low", "close", "volume"},
				{"1", "1", "1", "1", "1"},
			},
			opts:        Options{DatetimeColumn: "time"},
			errorMsg:    "missing required fields: time",
			description: "Should fail when the datetime column is absent",
		},
		{
			name: "Non-numeric value",
			records: [][]string{
				{"date", "open", "high", "low", "close", "volume"},
				{"2024-01-02", "1", "abc", "1", "1", "1"},
			},
			opts:        Options{DatetimeColumn: "date"},
			errorMsg:    `column "high" row 0`,
			description: "Should fail on non-coercible values",
		},
		{
			name: "Unparseable datetime",
			records: [][]string{
				{"date", "open", "high", "low", "close", "volume"},
				{"2024-01-02", "1", "1", "1", "1", "1"},
				{"yesterday", "1", "1", "1", "1", "1"},
			},
			opts:        Options{DatetimeColumn: "date"},
			errorMsg:    `column "date" row 1`,
			description: "Should fail instead of dropping the row",
		},
		{
			name: "No datetime column configured",
			records: [][]string{
				{"date", "open", "high", "low", "close", "volume"},
				{"2024-01-02", "1", "1", "1", "1", "1"},
			},
			opts:        Options{},
			errorMsg:    "no datetime column configured",
			description: "Should require a datetime column name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Normalize(FrameFromRecords(tt.records), tt.opts)

			if tt.errorMsg != "" {
				require.Error(t, err, tt.description)
				var schemaErr *SchemaError
				assert.True(t, errors.As(err, &schemaErr), "Should be a SchemaError")
				assert.Contains(t, err.Error(), tt.errorMsg, tt.description)
				assert.Nil(t, s, "Should not return a partial result")
				return
			}

			require.NoError(t, err, tt.description)
			assert.Len(t, s, tt.expectRows)
		})
	}
}

func Test_NormalizeValues(t *testing.T) {
	s, err := Normalize(FrameFromRecords(tiingoStyleRecords()), Options{DatetimeColumn: "date"})
	require.NoError(t, err)

	first := s[0]
	assert.Equal(t, time.Date(2024, 1, 5, 23, 58, 0, 0, time.UTC), first.Timestamp.UTC())
	assert.True(t, decimal.RequireFromString("44000.5").Equal(first.Open))
	assert.True(t, decimal.RequireFromString("43990.25").Equal(first.Low))
	assert.True(t, decimal.RequireFromString("12.5").Equal(first.Volume))
}

func Test_NormalizeLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	records := [][]string{
		{"timestamp", "open", "high", "low", "close", "volume"},
		{"2024-01-02 09:30:00", "1", "1", "1", "1", "1"},
	}
	s, err := Normalize(FrameFromRecords(records), Options{DatetimeColumn: "timestamp", Location: ny})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC), s[0].Timestamp.UTC(),
		"Should interpret offset-less timestamps in the configured location")
}

func Test_NormalizeCustomParser(t *testing.T) {
	records := [][]string{
		{"ts", "open", "high", "low", "close", "volume"},
		{"1704205800", "1", "1", "1", "1", "1"},
	}
	parser := func(raw string) (time.Time, error) {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(d.IntPart(), 0).UTC(), nil
	}

	s, err := Normalize(FrameFromRecords(records), Options{DatetimeColumn: "ts", Parser: parser})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC), s[0].Timestamp)
}

func Test_NormalizeFloatColumns(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"2024-01-02T14:30:00Z"}, series.String, "date"),
		series.New([]float64{185.125}, series.Float, "open"),
		series.New([]float64{186}, series.Float, "high"),
		series.New([]float64{184}, series.Float, "low"),
		series.New([]float64{185.5}, series.Float, "close"),
		series.New([]int{1000}, series.Int, "volume"),
	)

	s, err := Normalize(df, Options{DatetimeColumn: "date"})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("185.125").Equal(s[0].Open), "Should keep full float precision")
	assert.True(t, decimal.NewFromInt(1000).Equal(s[0].Volume))
}

func Test_ReadFrameAndDropNonOHLCV(t *testing.T) {
	doc := "date,open,high,low,close,volume,vwap\n" +
		"2024-01-02,1.0000001,2,0.5,1.5,10,1.2\n"

	df := ReadFrame(strings.NewReader(doc))
	require.NoError(t, df.Err)

	trimmed := DropNonOHLCV(df, "date")
	assert.Equal(t, []string{"date", "open", "high", "low", "close", "volume"}, trimmed.Names())

	s, err := Normalize(trimmed, Options{DatetimeColumn: "date"})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1.0000001").Equal(s[0].Open), "String cells keep every digit")
}

func Test_Rename(t *testing.T) {
	df := FrameFromRecords([][]string{{"Open", "Close"}, {"1", "2"}})
	renamed := Rename(df, map[string]string{"Open": "open", "Close": "close", "Volume": "volume"})
	assert.Equal(t, []string{"open", "close"}, renamed.Names(), "Should ignore mappings for absent columns")
}

func Test_ToFrame(t *testing.T) {
	at := time.Date(2024, 1, 2, 14, 30, 0, 500, time.UTC)
	bars := model.Series{{
		Timestamp: at,
		Open:      decimal.RequireFromString("187.15"),
		High:      decimal.RequireFromString("187.3301"),
		Low:       decimal.RequireFromString("186.9"),
		Close:     decimal.RequireFromString("187.2"),
		Volume:    decimal.RequireFromString("12345.678"),
	}}

	df := ToFrame(bars, "timestamp")
	assert.Equal(t, []string{"timestamp", ColOpen, ColHigh, ColLow, ColClose, ColVolume}, df.Names())
	assert.Equal(t, "2024-01-02T14:30:00.0000005Z", df.Col("timestamp").Elem(0).String())

	back, err := Normalize(df, Options{DatetimeColumn: "timestamp"})
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.True(t, back[0].Timestamp.Equal(at))
	assert.True(t, back[0].High.Equal(bars[0].High), "Decimals survive exactly")
}
