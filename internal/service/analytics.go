package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketdata/internal/model"
	"marketdata/internal/vendor"
	"marketdata/internal/volatility"
)

// Estimator names accepted by Volatility.
const (
	CloseToClose   = "close-close"
	Parkinson      = "parkinson"
	GarmanKlass    = "garman-klass"
	RogersSatchell = "rogers-satchell"
)

// ErrUnknownEstimator is returned for estimator names Volatility does not know.
var ErrUnknownEstimator = errors.New("unknown volatility estimator")

var estimators = map[string]func(model.Series, volatility.Options) ([]volatility.Point, error){
	CloseToClose:   volatility.CloseToClose,
	Parkinson:      volatility.Parkinson,
	GarmanKlass:    volatility.GarmanKlass,
	RogersSatchell: volatility.RogersSatchell,
}

// Estimators lists the accepted estimator names.
func Estimators() []string {
	return []string{CloseToClose, GarmanKlass, Parkinson, RogersSatchell}
}

// Volatility fetches the bars of req and runs the named estimator over them.
func (s *BarService) Volatility(ctx context.Context, req Request, estimator string, opts volatility.Options) ([]volatility.Point, error) {
	run, ok := estimators[estimator]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownEstimator, estimator)
	}
	bars, err := s.Bars(ctx, req)
	if err != nil {
		return nil, err
	}
	return run(bars, opts)
}

// StrikeSource returns the option strikes of tickers on a trade date.
// *vendor.ORATS satisfies it.
type StrikeSource interface {
	Strikes(ctx context.Context, tradeDate time.Time, tickers ...string) ([]vendor.Strike, error)
}

// Surface builds the implied volatility surface of ticker on tradeDate.
func Surface(ctx context.Context, src StrikeSource, ticker string, tradeDate time.Time) (*volatility.Surface, error) {
	strikes, err := src.Strikes(ctx, tradeDate, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch strikes for %s: %w", ticker, err)
	}
	return volatility.NewSurface(strikes)
}
