// Package volatility computes rolling realized-volatility estimators over
// OHLCV series.
//
// Every estimator returns one Point per input bar. Points before the first
// full window carry a null value. Prices are converted to float64 at this
// boundary; the estimators are statistics, not accounting.
package volatility

import (
	"errors"
	"fmt"
	"math"
	"time"

	"marketdata/internal/model"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the default annualization factor for daily bars.
const TradingDaysPerYear = 252

var (
	// ErrInvalidWindow is returned when the window is < 2 or longer than the series.
	ErrInvalidWindow = errors.New("invalid volatility window")
	// ErrNonPositivePrice is returned when a price needed for a log ratio is <= 0.
	ErrNonPositivePrice = errors.New("non-positive price")
)

// Point is one estimator output aligned with the input bar at Timestamp.
type Point struct {
	Timestamp time.Time
	Value     null.Float
}

// Options configure an estimator run.
type Options struct {
	// Window is the number of observations per estimate.
	Window int
	// Annualization scales the per-observation variance. Zero selects
	// TradingDaysPerYear.
	Annualization float64
}

func (o Options) factor() float64 {
	if o.Annualization <= 0 {
		return TradingDaysPerYear
	}
	return o.Annualization
}

// CloseToClose is the sample standard deviation of log close-to-close
// returns over Window returns, scaled by the square root of the
// annualization factor. The first Window points are null because the first
// bar has no return.
func CloseToClose(s model.Series, opts Options) ([]Point, error) {
	if err := checkWindow(len(s)-1, opts.Window); err != nil {
		return nil, err
	}
	returns := make([]float64, len(s))
	returns[0] = math.NaN()
	for i := 1; i < len(s); i++ {
		r, err := logRatio(s[i].Close, s[i-1].Close, s[i].Timestamp)
		if err != nil {
			return nil, err
		}
		returns[i] = r
	}

	scale := math.Sqrt(opts.factor())
	out := points(s)
	for i := opts.Window; i < len(s); i++ {
		out[i].Value = value(stat.StdDev(returns[i-opts.Window+1:i+1], nil) * scale)
	}
	return out, nil
}

// Parkinson estimates volatility from the high-low range.
func Parkinson(s model.Series, opts Options) ([]Point, error) {
	k := 1 / (4 * math.Ln2)
	return rangeEstimator(s, opts, func(b model.Bar) (float64, error) {
		hl, err := logRatio(b.High, b.Low, b.Timestamp)
		if err != nil {
			return 0, err
		}
		return k * hl * hl, nil
	})
}

// GarmanKlass combines the high-low range with the open-close move.
func GarmanKlass(s model.Series, opts Options) ([]Point, error) {
	k := 2*math.Ln2 - 1
	return rangeEstimator(s, opts, func(b model.Bar) (float64, error) {
		hl, err := logRatio(b.High, b.Low, b.Timestamp)
		if err != nil {
			return 0, err
		}
		co, err := logRatio(b.Close, b.Open, b.Timestamp)
		if err != nil {
			return 0, err
		}
		return 0.5*hl*hl - k*co*co, nil
	})
}

// RogersSatchell is drift independent.
func RogersSatchell(s model.Series, opts Options) ([]Point, error) {
	return rangeEstimator(s, opts, func(b model.Bar) (float64, error) {
		ho, err := logRatio(b.High, b.Open, b.Timestamp)
		if err != nil {
			return 0, err
		}
		lo, err := logRatio(b.Low, b.Open, b.Timestamp)
		if err != nil {
			return 0, err
		}
		co, err := logRatio(b.Close, b.Open, b.Timestamp)
		if err != nil {
			return 0, err
		}
		return ho*(ho-co) + lo*(lo-co), nil
	})
}

// rangeEstimator computes sqrt(N * mean(term)) over each full window.
func rangeEstimator(s model.Series, opts Options, term func(model.Bar) (float64, error)) ([]Point, error) {
	if err := checkWindow(len(s), opts.Window); err != nil {
		return nil, err
	}
	terms := make([]float64, len(s))
	for i, b := range s {
		v, err := term(b)
		if err != nil {
			return nil, err
		}
		terms[i] = v
	}

	n := opts.factor()
	out := points(s)
	for i := opts.Window - 1; i < len(terms); i++ {
		// Each window is averaged from scratch; a running sum drifts below
		// zero on flat bars that follow volatile ones.
		mean := stat.Mean(terms[i-opts.Window+1:i+1], nil)
		if mean < 0 {
			mean = 0
		}
		out[i].Value = value(math.Sqrt(n * mean))
	}
	return out, nil
}

// value wraps v, leaving NaN and infinities null.
func value(v float64) null.Float {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return null.Float{}
	}
	return null.FloatFrom(v)
}

func checkWindow(available, window int) error {
	if window < 2 || window > available {
		return fmt.Errorf("%w: window %d over %d observations", ErrInvalidWindow, window, available)
	}
	return nil
}

func logRatio(num, den decimal.Decimal, at time.Time) (float64, error) {
	if !num.IsPositive() || !den.IsPositive() {
		return 0, fmt.Errorf("%w at %s", ErrNonPositivePrice, at.Format(time.RFC3339))
	}
	return math.Log(num.InexactFloat64() / den.InexactFloat64()), nil
}

func points(s model.Series) []Point {
	out := make([]Point, len(s))
	for i, b := range s {
		out[i].Timestamp = b.Timestamp
	}
	return out
}
