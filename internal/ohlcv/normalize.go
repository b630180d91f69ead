// Package ohlcv normalizes raw tabular vendor data into OHLCV series and
// aggregates series into coarser fixed intervals.
//
// Tabular data arrives as a gota DataFrame: vendor CSV payloads and cache
// files both pass through Normalize, which enforces the canonical schema.
package ohlcv

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"marketdata/internal/model"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/shopspring/decimal"
)

// Canonical column names.
const (
	ColOpen   = "open"
	ColHigh   = "high"
	ColLow    = "low"
	ColClose  = "close"
	ColVolume = "volume"
)

// RequiredColumns lists the value fields every OHLCV frame must provide.
var RequiredColumns = []string{ColOpen, ColHigh, ColLow, ColClose, ColVolume}

// defaultLayouts are tried in order when no custom TimeParser is supplied.
var defaultLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// TimeParser converts a raw datetime cell into an instant.
type TimeParser func(raw string) (time.Time, error)

// Options controls how a frame is mapped onto the canonical schema.
type Options struct {
	// DatetimeColumn names the column holding the bar timestamp.
	DatetimeColumn string

	// Rename maps vendor column names to canonical ones before lookup.
	Rename map[string]string

	// Location is used for timestamps without an explicit offset. Defaults to UTC.
	Location *time.Location

	// Parser overrides the default layout-based datetime parsing.
	Parser TimeParser
}

// Normalize validates df against the OHLCV schema and converts it to a Series.
//
// The rename mapping is applied first; any of the five value fields or the
// datetime column still missing afterwards is a SchemaError. Value cells
// are coerced to decimals and datetime cells parsed to instants; a single
// bad cell fails the whole frame. Row order is preserved.
func Normalize(df dataframe.DataFrame, opts Options) (model.Series, error) {
	if df.Err != nil {
		return nil, &SchemaError{Reason: fmt.Sprintf("unreadable frame: %v", df.Err)}
	}
	if opts.DatetimeColumn == "" {
		return nil, &SchemaError{Reason: "no datetime column configured"}
	}

	df = Rename(df, opts.Rename)

	present := make(map[string]bool, df.Ncol())
	for _, name := range df.Names() {
		present[name] = true
	}
	var missing []string
	for _, name := range append([]string{opts.DatetimeColumn}, RequiredColumns...) {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	parse := opts.Parser
	if parse == nil {
		parse = layoutParser(opts.Location)
	}

	stamps := df.Col(opts.DatetimeColumn).Records()
	values := make(map[string][]decimal.Decimal, len(RequiredColumns))
	for _, name := range RequiredColumns {
		col, err := decimalColumn(df.Col(name))
		if err != nil {
			return nil, err
		}
		values[name] = col
	}

	out := make(model.Series, 0, len(stamps))
	for i, raw := range stamps {
		ts, err := parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, &SchemaError{
				Column: opts.DatetimeColumn,
				Row:    i,
				Reason: fmt.Sprintf("unparseable datetime %q: %v", raw, err),
			}
		}
		out = append(out, model.Bar{
			Timestamp: ts,
			Open:      values[ColOpen][i],
			High:      values[ColHigh][i],
			Low:       values[ColLow][i],
			Close:     values[ColClose][i],
			Volume:    values[ColVolume][i],
		})
	}

	return out, nil
}

// Rename returns df with columns renamed according to mapping (old → new).
// Entries naming absent columns are ignored.
func Rename(df dataframe.DataFrame, mapping map[string]string) dataframe.DataFrame {
	if len(mapping) == 0 {
		return df
	}
	names := df.Names()
	for _, name := range names {
		if to, ok := mapping[name]; ok && to != name {
			df = df.Rename(to, name)
		}
	}
	return df
}

// DropNonOHLCV keeps only the datetime column (if non-empty) and the five
// canonical value columns.
func DropNonOHLCV(df dataframe.DataFrame, datetimeColumn string) dataframe.DataFrame {
	keep := make([]string, 0, len(RequiredColumns)+1)
	present := make(map[string]bool, df.Ncol())
	for _, name := range df.Names() {
		present[name] = true
	}
	if datetimeColumn != "" && present[datetimeColumn] {
		keep = append(keep, datetimeColumn)
	}
	for _, name := range RequiredColumns {
		if present[name] {
			keep = append(keep, name)
		}
	}
	return df.Select(keep)
}

// FrameFromRecords builds a frame whose cells are all kept as strings.
// The first record is the header.
func FrameFromRecords(records [][]string) dataframe.DataFrame {
	return dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
}

// ReadFrame reads a CSV document into a frame whose cells are all strings.
func ReadFrame(r io.Reader) dataframe.DataFrame {
	return dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
}

// decimalColumn coerces a column to decimals. Numeric gota columns are read
// through Float() since their string form is truncated to six decimals.
func decimalColumn(s series.Series) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, s.Len())

	switch s.Type() {
	case series.Float, series.Int:
		for i, f := range s.Float() {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, &SchemaError{Column: s.Name, Row: i, Reason: "value is not finite"}
			}
			out[i] = decimal.NewFromFloat(f)
		}
	case series.String:
		for i, raw := range s.Records() {
			d, err := decimal.NewFromString(strings.TrimSpace(raw))
			if err != nil {
				return nil, &SchemaError{
					Column: s.Name,
					Row:    i,
					Reason: fmt.Sprintf("non-numeric value %q", raw),
				}
			}
			out[i] = d
		}
	default:
		return nil, &SchemaError{Column: s.Name, Reason: fmt.Sprintf("unsupported column type %s", s.Type())}
	}

	return out, nil
}

// layoutParser returns a TimeParser trying defaultLayouts, then Unix
// milliseconds, in loc.
func layoutParser(loc *time.Location) TimeParser {
	if loc == nil {
		loc = time.UTC
	}
	return func(raw string) (time.Time, error) {
		if raw == "" {
			return time.Time{}, fmt.Errorf("empty value")
		}
		for _, layout := range defaultLayouts {
			if ts, err := time.ParseInLocation(layout, raw, loc); err == nil {
				return ts, nil
			}
		}
		// epoch milliseconds carry at least 12 digits for any date after 1973
		if ms, err := decimal.NewFromString(raw); err == nil && ms.IsInteger() && len(raw) >= 12 {
			return time.UnixMilli(ms.IntPart()).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("no known layout matches")
	}
}

// ToFrame lays bars out as string columns so values round-trip exactly
// through Normalize. Timestamps are written as RFC3339Nano UTC under
// datetimeColumn.
func ToFrame(bars model.Series, datetimeColumn string) dataframe.DataFrame {
	n := len(bars)
	stamps := make([]string, n)
	opens := make([]string, n)
	highs := make([]string, n)
	lows := make([]string, n)
	closes := make([]string, n)
	volumes := make([]string, n)

	for i, b := range bars {
		stamps[i] = b.Timestamp.UTC().Format(time.RFC3339Nano)
		opens[i] = b.Open.String()
		highs[i] = b.High.String()
		lows[i] = b.Low.String()
		closes[i] = b.Close.String()
		volumes[i] = b.Volume.String()
	}

	return dataframe.New(
		series.New(stamps, series.String, datetimeColumn),
		series.New(opens, series.String, ColOpen),
		series.New(highs, series.String, ColHigh),
		series.New(lows, series.String, ColLow),
		series.New(closes, series.String, ColClose),
		series.New(volumes, series.String, ColVolume),
	)
}
