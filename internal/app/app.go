// Package app wires configuration into the cache controllers, vendor
// adapters and services shared by the command line tools.
package app

import (
	"fmt"
	"os"
	"time"

	"marketdata/internal/cache"
	"marketdata/internal/calendar"
	"marketdata/internal/config"
	"marketdata/internal/model"
	"marketdata/internal/refresh"
	"marketdata/internal/service"
	"marketdata/internal/vendor"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// pagedFetcher is a cache.PageFetcher that knows its page size.
type pagedFetcher interface {
	cache.PageFetcher
	PageLimit() int
}

// App holds the components built from one configuration.
type App struct {
	Config      *config.Config
	Store       *cache.Store
	Calendar    *calendar.Calendar
	Controllers map[model.AssetClass]*cache.Controller
	Bars        *service.BarService
}

// SetupLogging configures the global zerolog logger.
func SetupLogging(level string, pretty bool) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(lvl)
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return nil
}

// New builds the cache store and one controller per asset class whose
// vendor has a credential. An asset class without credentials is left
// unserved; requesting it fails with service.ErrNoSource.
func New(cfg *config.Config) (*App, error) {
	store, err := cache.NewStore(cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	cal, err := calendar.New(cfg.Exchange)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:      cfg,
		Store:       store,
		Calendar:    cal,
		Controllers: make(map[model.AssetClass]*cache.Controller),
	}

	fetchers := make(map[model.AssetClass]pagedFetcher)
	if cfg.Vendors.Tiingo.APIKey != "" {
		t, err := vendor.NewTiingo(cfg.Vendors.Tiingo.Adapter())
		if err != nil {
			return nil, err
		}
		fetchers[model.Crypto] = t
	}
	if f, err := equityFetcher(cfg); err != nil {
		return nil, err
	} else if f != nil {
		fetchers[model.Equity] = f
	}

	opts := []service.Option{service.WithCalendar(model.Equity, cal)}
	for class, f := range fetchers {
		c, err := cache.NewController(class, f, store, a.controllerOptions(f)...)
		if err != nil {
			return nil, err
		}
		a.Controllers[class] = c
		opts = append(opts, service.WithSource(class, c))
		log.Info().Str("class", string(class)).Int("page_limit", f.PageLimit()).Msg("controller ready")
	}

	if a.Bars, err = service.NewBarService(opts...); err != nil {
		return nil, err
	}
	return a, nil
}

func equityFetcher(cfg *config.Config) (pagedFetcher, error) {
	switch cfg.Equity {
	case "alpha_vantage":
		if cfg.Vendors.AlphaVantage.APIKey == "" {
			return nil, nil
		}
		return vendor.NewAlphaVantage(cfg.Vendors.AlphaVantage.Adapter())
	default:
		if cfg.Vendors.Massive.APIKey == "" {
			return nil, nil
		}
		return vendor.NewMassive(cfg.Vendors.Massive.Adapter())
	}
}

func (a *App) controllerOptions(f pagedFetcher) []cache.Option {
	fetch := a.Config.Fetch
	opts := []cache.Option{cache.WithPageLimit(f.PageLimit())}
	if fetch.PageDelay > 0 {
		opts = append(opts, cache.WithPacer(cache.FixedDelay(fetch.PageDelay)))
	}
	if fetch.RetryAttempts > 0 {
		opts = append(opts, cache.WithRetry(cache.RetryPolicy{
			MaxAttempts: fetch.RetryAttempts + 1,
			Backoff:     cache.ExponentialBackoff(fetch.RetryBackoff, fetch.RetryMaxDelay),
		}))
	}
	return opts
}

// ORATS builds the options data client.
func (a *App) ORATS() (*vendor.ORATS, error) {
	return vendor.NewORATS(a.Config.Vendors.ORATS.Adapter())
}

// FRED builds the macro series client.
func (a *App) FRED() (*vendor.FRED, error) {
	return vendor.NewFRED(a.Config.Vendors.FRED.Adapter())
}

// Refresher builds the scheduled refresher over the configured jobs.
func (a *App) Refresher(d *refresh.Dispatcher) (*refresh.Refresher, error) {
	rc := a.Config.Refresh
	jobs := make([]refresh.Job, len(rc.Jobs))
	for i, j := range rc.Jobs {
		jobs[i] = refresh.Job{Symbol: j.Symbol, Class: j.Class, Start: j.Start}
	}

	opts := []refresh.Option{refresh.WithDispatcher(d)}
	for class, c := range a.Controllers {
		opts = append(opts, refresh.WithSource(class, c))
	}
	return refresh.New(refresh.Config{Schedule: rc.Cron, Concurrency: rc.Concurrency, Jobs: jobs}, opts...)
}
