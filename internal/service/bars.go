// Package service composes the cache controllers, resampler, calendar and
// session filter into the bar retrieval pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketdata/internal/calendar"
	"marketdata/internal/model"
	"marketdata/internal/ohlcv"
	"marketdata/internal/session"
	"marketdata/internal/utils"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNoSource is returned when no bar source serves the requested asset class.
	ErrNoSource = errors.New("no bar source for asset class")
	// ErrInvalidInterval is returned for negative resample intervals.
	ErrInvalidInterval = errors.New("invalid resample interval")
)

// BarSource returns cached 1-minute bars of symbol inside w, fetching what
// is missing. *cache.Controller satisfies it.
type BarSource interface {
	Fetch(ctx context.Context, symbol string, w model.FetchWindow) (model.Series, error)
}

// Calendar resolves session windows and the exchange location used to
// align daily buckets. *calendar.Calendar satisfies it.
type Calendar interface {
	session.WindowResolver
	Location() *time.Location
}

// Request describes one bar retrieval.
type Request struct {
	Symbol     string
	AssetClass model.AssetClass
	Window     model.FetchWindow

	// Interval is the output bar width. Zero keeps the native 1-minute bars.
	Interval time.Duration

	// SessionsOnly drops bars outside the trading session of their date.
	SessionsOnly bool
}

// Option configures a BarService.
type Option func(*BarService)

// WithSource registers the source serving class.
func WithSource(class model.AssetClass, src BarSource) Option {
	return func(s *BarService) { s.sources[class] = src }
}

// WithCalendar overrides the calendar used for class.
func WithCalendar(class model.AssetClass, cal Calendar) Option {
	return func(s *BarService) { s.calendars[class] = cal }
}

// BarService serves resampled, optionally session-filtered bars.
type BarService struct {
	sources   map[model.AssetClass]BarSource
	calendars map[model.AssetClass]Calendar
	logger    zerolog.Logger
}

// NewBarService creates a BarService. Equities default to the
// DefaultExchange calendar and crypto to the always-open calendar.
func NewBarService(opts ...Option) (*BarService, error) {
	equity, err := calendar.New(calendar.DefaultExchange)
	if err != nil {
		return nil, err
	}
	crypto, err := calendar.New(calendar.AlwaysOpen)
	if err != nil {
		return nil, err
	}

	s := &BarService{
		sources: make(map[model.AssetClass]BarSource),
		calendars: map[model.AssetClass]Calendar{
			model.Equity: equity,
			model.Crypto: crypto,
		},
		logger: log.With().Str("component", "bar_service").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Bars fetches, session-filters and resamples the bars described by req.
func (s *BarService) Bars(ctx context.Context, req Request) (model.Series, error) {
	if err := utils.ValidateSymbol(req.Symbol, req.AssetClass); err != nil {
		return nil, fmt.Errorf("invalid symbol %q: %w", req.Symbol, err)
	}
	if !req.Window.Valid() {
		return nil, fmt.Errorf("invalid window [%s, %s)", req.Window.Start.Format(time.RFC3339), req.Window.End.Format(time.RFC3339))
	}
	if req.Interval < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, req.Interval)
	}
	src, ok := s.sources[req.AssetClass]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoSource, req.AssetClass)
	}
	cal := s.calendars[req.AssetClass]

	bars, err := src.Fetch(ctx, req.Symbol, req.Window)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", req.Symbol, err)
	}

	// Session membership is decided per native bar, before buckets relabel
	// timestamps to the interval boundary.
	if req.SessionsOnly {
		bars = session.Filter(bars, cal)
	}
	if req.Interval > 0 {
		if bars, err = ohlcv.ResampleIn(bars, req.Interval, cal.Location()); err != nil {
			return nil, err
		}
	}

	s.logger.Debug().
		Str("symbol", req.Symbol).
		Str("class", string(req.AssetClass)).
		Dur("interval", req.Interval).
		Bool("sessions_only", req.SessionsOnly).
		Int("bars", len(bars)).
		Msg("served bars")
	return bars, nil
}
