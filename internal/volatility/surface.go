package volatility

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"marketdata/internal/vendor"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// ErrMixedSurface is returned when strikes of several tickers or trade
// dates are passed to NewSurface.
var ErrMixedSurface = errors.New("strikes span more than one ticker or trade date")

// SmilePoint is the implied volatility at one strike of an expiry.
type SmilePoint struct {
	Strike decimal.Decimal
	IV     null.Float
}

// Surface is the implied volatility surface of one ticker on one trade date.
type Surface struct {
	Ticker    string
	TradeDate string

	expiries []time.Time
	smiles   map[time.Time][]SmilePoint
}

// NewSurface builds a surface from ORATS strike rows. The implied
// volatility of a strike is the smoothed SMV vol when present, else the
// mean of the available call and put mid IVs.
func NewSurface(strikes []vendor.Strike) (*Surface, error) {
	if len(strikes) == 0 {
		return nil, errors.New("no strikes")
	}
	s := &Surface{
		Ticker:    strikes[0].Ticker,
		TradeDate: strikes[0].TradeDate,
		smiles:    make(map[time.Time][]SmilePoint),
	}
	for _, k := range strikes {
		if k.Ticker != s.Ticker || k.TradeDate != s.TradeDate {
			return nil, fmt.Errorf("%w: %s %s", ErrMixedSurface, k.Ticker, k.TradeDate)
		}
		expiry, err := k.Expiry()
		if err != nil {
			return nil, fmt.Errorf("invalid expiry for %s: %w", k.Ticker, err)
		}
		if _, ok := s.smiles[expiry]; !ok {
			s.expiries = append(s.expiries, expiry)
		}
		s.smiles[expiry] = append(s.smiles[expiry], SmilePoint{Strike: k.Strike, IV: impliedVol(k)})
	}

	sort.Slice(s.expiries, func(i, j int) bool { return s.expiries[i].Before(s.expiries[j]) })
	for _, smile := range s.smiles {
		sort.Slice(smile, func(i, j int) bool { return smile[i].Strike.LessThan(smile[j].Strike) })
	}
	return s, nil
}

func impliedVol(k vendor.Strike) null.Float {
	if k.SmvVol.Valid {
		return k.SmvVol
	}
	switch {
	case k.CallMidIV.Valid && k.PutMidIV.Valid:
		return null.FloatFrom((k.CallMidIV.Float64 + k.PutMidIV.Float64) / 2)
	case k.CallMidIV.Valid:
		return k.CallMidIV
	default:
		return k.PutMidIV
	}
}

// Expiries returns the surface expiries in ascending order.
func (s *Surface) Expiries() []time.Time {
	out := make([]time.Time, len(s.expiries))
	copy(out, s.expiries)
	return out
}

// Smile returns the strikes of expiry in ascending order.
func (s *Surface) Smile(expiry time.Time) []SmilePoint {
	smile := s.smiles[expiry]
	out := make([]SmilePoint, len(smile))
	copy(out, smile)
	return out
}

// IV returns the implied volatility at expiry and strike, null when the
// surface has no such point.
func (s *Surface) IV(expiry time.Time, strike decimal.Decimal) null.Float {
	for _, p := range s.smiles[expiry] {
		if p.Strike.Equal(strike) {
			return p.IV
		}
	}
	return null.Float{}
}
