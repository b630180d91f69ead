// Package refresh keeps configured cache keys extended up to the present on
// a cron schedule.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"marketdata/internal/model"
	"marketdata/internal/utils"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Source extends the cache entry of (symbol, w.Start) through w.End.
// *cache.Controller satisfies it.
type Source interface {
	Fetch(ctx context.Context, symbol string, w model.FetchWindow) (model.Series, error)
}

// Job is one cache key to keep fresh.
type Job struct {
	Symbol string
	Class  model.AssetClass
	Start  time.Time
}

func (j Job) String() string {
	return fmt.Sprintf("%s/%s@%s", j.Class, j.Symbol, j.Start.UTC().Format(time.RFC3339))
}

// Config holds refresher settings.
type Config struct {
	// Schedule is a six-field cron expression with seconds.
	Schedule    string
	Concurrency int
	Jobs        []Job
}

// Refresher runs every job on each cron tick.
type Refresher struct {
	cfg        Config
	sources    map[model.AssetClass]Source
	cron       *cron.Cron
	dispatcher *Dispatcher
	now        func() time.Time
	logger     zerolog.Logger

	mu      sync.Mutex
	running bool
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithSource registers the source serving class.
func WithSource(class model.AssetClass, src Source) Option {
	return func(r *Refresher) { r.sources[class] = src }
}

// WithDispatcher publishes every job outcome to d.
func WithDispatcher(d *Dispatcher) Option {
	return func(r *Refresher) { r.dispatcher = d }
}

// WithClock overrides the clock used for the window end.
func WithClock(now func() time.Time) Option {
	return func(r *Refresher) { r.now = now }
}

// New creates a Refresher. Every job must have a valid symbol and a source
// for its asset class.
func New(cfg Config, opts ...Option) (*Refresher, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	r := &Refresher{
		cfg:     cfg,
		sources: make(map[model.AssetClass]Source),
		cron:    cron.New(cron.WithSeconds()),
		now:     time.Now,
		logger:  log.With().Str("component", "refresher").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, j := range cfg.Jobs {
		if err := utils.ValidateSymbol(j.Symbol, j.Class); err != nil {
			return nil, fmt.Errorf("job %s: %w", j, err)
		}
		if j.Start.IsZero() {
			return nil, fmt.Errorf("job %s: missing start", j)
		}
		if _, ok := r.sources[j.Class]; !ok {
			return nil, fmt.Errorf("job %s: no source for asset class %q", j, j.Class)
		}
	}

	if _, err := r.cron.AddFunc(cfg.Schedule, r.tick); err != nil {
		return nil, fmt.Errorf("register refresh schedule: %w", err)
	}
	return r, nil
}

// Start starts the cron scheduler. It returns immediately.
func (r *Refresher) Start() {
	r.cron.Start()
	r.logger.Info().Str("schedule", r.cfg.Schedule).Int("jobs", len(r.cfg.Jobs)).Msg("refresher started")
}

// Stop stops scheduling and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info().Msg("refresher stopped")
}

// tick runs one refresh unless the previous one is still in flight.
func (r *Refresher) tick() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.logger.Warn().Msg("previous refresh still running, skipping tick")
		return
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	r.RunOnce(context.Background())
}

// RunOnce refreshes every job through the current instant, at most
// Concurrency at a time. Job failures are logged and reported in the
// returned updates; they never abort the other jobs.
func (r *Refresher) RunOnce(ctx context.Context) []Update {
	end := r.now().UTC().Truncate(time.Minute)
	updates := make([]Update, len(r.cfg.Jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, j := range r.cfg.Jobs {
		g.Go(func() error {
			updates[i] = r.refresh(ctx, j, end)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, u := range updates {
		if u.Err != nil {
			failed++
		}
	}
	r.logger.Info().Int("jobs", len(updates)).Int("failed", failed).Time("end", end).Msg("refresh complete")
	return updates
}

func (r *Refresher) refresh(ctx context.Context, j Job, end time.Time) Update {
	u := Update{Job: j, RunAt: end}
	logger := r.logger.With().Str("job", j.String()).Logger()

	if !end.After(j.Start) {
		logger.Debug().Msg("job starts in the future, nothing to refresh")
		return u
	}

	bars, err := r.sources[j.Class].Fetch(ctx, j.Symbol, model.FetchWindow{Start: j.Start, End: end})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn().Err(err).Msg("refresh cancelled")
		} else {
			logger.Error().Err(err).Msg("refresh failed")
		}
		u.Err = err
	} else {
		u.Bars = len(bars)
		if hwm, ok := bars.HighWaterMark(); ok {
			u.HighWaterMark = hwm
		}
		logger.Info().Int("bars", u.Bars).Time("hwm", u.HighWaterMark).Msg("refreshed")
	}

	if r.dispatcher != nil {
		if err := r.dispatcher.Publish(u); err != nil {
			logger.Warn().Err(err).Msg("failed to publish update")
		}
	}
	return u
}
