package volatility

import (
	"fmt"

	"marketdata/internal/model"

	"gonum.org/v1/gonum/floats"
)

// IntegratedVariance estimates integrated variance from closes sampled every
// step bars, correcting for first-order serial correlation of the sampled
// returns:
//
//	v_i = x_i^2 + x_i*x_{i-1} + x_i*x_{i+1}
//
// The estimate at each sampled point is the rolling sum of v over
// period/step sampled returns. Only sampled points that have both
// neighbouring returns are emitted.
func IntegratedVariance(s model.Series, period, step int) ([]Point, error) {
	if step < 1 {
		return nil, fmt.Errorf("%w: step %d", ErrInvalidWindow, step)
	}
	window := period / step

	sampled := make(model.Series, 0, len(s)/step+1)
	for i := 0; i < len(s); i += step {
		sampled = append(sampled, s[i])
	}

	// x[i] is the log return into sampled[i]; x[0] is undefined.
	x := make([]float64, len(sampled))
	for i := 1; i < len(sampled); i++ {
		r, err := logRatio(sampled[i].Close, sampled[i-1].Close, sampled[i].Timestamp)
		if err != nil {
			return nil, err
		}
		x[i] = r
	}

	// Terms need x[i-1] and x[i+1], so they exist for i in [2, len-2].
	lo, hi := 2, len(sampled)-1
	if err := checkWindow(hi-lo, window); err != nil {
		return nil, err
	}

	out := make([]Point, 0, hi-lo)
	terms := make([]float64, 0, hi-lo)
	for i := lo; i < hi; i++ {
		terms = append(terms, x[i]*x[i]+x[i]*x[i-1]+x[i]*x[i+1])
		p := Point{Timestamp: sampled[i].Timestamp}
		if n := len(terms); n >= window {
			p.Value = value(floats.Sum(terms[n-window:]))
		}
		out = append(out, p)
	}
	return out, nil
}
