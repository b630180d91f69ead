// Package cache implements the incremental fetch-and-cache controller.
//
// The controller keeps one flat CSV entry per (symbol, asset class, window
// start) key. A request whose window ends at or before the entry's
// high-water mark is served from disk. A request reaching past it fetches
// only the missing tail from the vendor, appends it strictly after the
// high-water mark and atomically replaces the entry.
//
// Per key, the entry moves through the states:
//
//	Absent -> Cached(hwm) -> Extending -> Cached(hwm')
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"marketdata/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// defaultTick is the native interval of cached series.
	defaultTick = time.Minute

	// defaultPageLimit bounds each vendor page (5000 one-minute bars).
	defaultPageLimit = 5000
)

// State is the lifecycle state of one cache entry.
type State int

const (
	// StateAbsent means no entry has been persisted for the key.
	StateAbsent State = iota

	// StateCached means a persisted entry with a high-water mark exists.
	StateCached

	// StateExtending means a fetch beyond the high-water mark is in flight.
	StateExtending
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateCached:
		return "cached"
	case StateExtending:
		return "extending"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Option configures a Controller.
type Option func(*Controller)

// WithTick sets the native bar interval used to step between pages.
func WithTick(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.pagination.Tick = d
		}
	}
}

// WithPageLimit sets the maximum number of bars requested per page.
func WithPageLimit(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.pagination.Limit = n
		}
	}
}

// WithPacer sets the delay policy between page requests.
func WithPacer(p Pacer) Option {
	return func(c *Controller) {
		if p != nil {
			c.pagination.Pacer = p
		}
	}
}

// WithRetry sets the retry policy for retryable page failures.
func WithRetry(r RetryPolicy) Option {
	return func(c *Controller) {
		c.pagination.Retry = r
	}
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// Controller serves fetch windows from the cache store and fills the
// missing tail from a vendor. It is safe for concurrent use; callers on
// the same key are serialized.
type Controller struct {
	// class is the asset class of every key this controller owns.
	class model.AssetClass

	// fetcher retrieves vendor pages.
	fetcher PageFetcher

	// store persists entries.
	store *Store

	// pagination holds page size, tick, pacing and retry settings.
	pagination Pagination

	// locks serializes work per key.
	locks keyLocks

	// mu guards states.
	mu     sync.Mutex
	states map[Key]State

	logger zerolog.Logger
}

// NewController returns a controller for keys of class backed by fetcher
// and store.
func NewController(class model.AssetClass, fetcher PageFetcher, store *Store, opts ...Option) (*Controller, error) {
	if !class.Valid() {
		return nil, fmt.Errorf("unsupported asset class %q", class)
	}
	if fetcher == nil {
		return nil, ErrNilFetcher
	}
	if store == nil {
		return nil, ErrNilStore
	}

	c := &Controller{
		class:   class,
		fetcher: fetcher,
		store:   store,
		pagination: Pagination{
			Limit: defaultPageLimit,
			Tick:  defaultTick,
			Pacer: NoDelay(),
		},
		states: make(map[Key]State),
		logger: log.With().Str("component", "cache").Str("class", string(class)).Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Class returns the asset class served by the controller.
func (c *Controller) Class() model.AssetClass { return c.class }

// Store returns the underlying store.
func (c *Controller) Store() *Store { return c.store }

// State returns the last observed state of key. Keys the controller has
// not touched report StateAbsent.
func (c *Controller) State(key Key) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[key]
}

func (c *Controller) setState(logger zerolog.Logger, key Key, s State) {
	c.mu.Lock()
	prev := c.states[key]
	c.states[key] = s
	c.mu.Unlock()

	if prev != s {
		logger.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("Cache state transition")
	}
}

// Fetch returns the bars of symbol inside w, fetching from the vendor
// only what the cache entry keyed by w.Start does not already hold.
func (c *Controller) Fetch(ctx context.Context, symbol string, w model.FetchWindow) (model.Series, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("%w: [%s, %s)", ErrInvalidWindow, w.Start, w.End)
	}

	key := NewKey(symbol, c.class, w.Start)
	unlock := c.locks.lock(key)
	defer unlock()

	logger := c.logger.With().
		Str("run_id", uuid.NewString()).
		Str("key", key.String()).
		Logger()

	cached, found, err := c.store.Load(key)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load cache entry")
		return nil, err
	}

	if !found {
		c.setState(logger, key, StateAbsent)
		return c.fill(ctx, logger, key, w)
	}

	hwm, _ := cached.HighWaterMark()
	c.setState(logger, key, StateCached)

	if !w.End.After(hwm) {
		logger.Debug().Time("hwm", hwm).Msg("Window covered by cache")
		return cached.Between(w), nil
	}

	return c.extend(ctx, logger, key, w, cached, hwm)
}

// fill fetches the full window of an absent entry.
func (c *Controller) fill(ctx context.Context, logger zerolog.Logger, key Key, w model.FetchWindow) (model.Series, error) {
	logger.Info().Time("start", w.Start).Time("end", w.End).Msg("Fetching full window")

	fetched, err := Paginate(ctx, c.fetcher, key.Symbol, w.Start, w.End, c.pagination)
	if err != nil {
		logger.Error().Err(err).Msg("Full window fetch failed")
		return nil, err
	}
	if len(fetched) == 0 {
		logger.Warn().Msg("Vendor returned no bars, nothing persisted")
		return model.Series{}, nil
	}

	if err := c.store.Save(key, fetched); err != nil {
		logger.Error().Err(err).Msg("Failed to persist cache entry")
		return nil, err
	}

	hwm, _ := fetched.HighWaterMark()
	c.setState(logger, key, StateCached)
	logger.Info().Int("bars", len(fetched)).Time("hwm", hwm).Msg("Cache entry created")

	return fetched.Between(w), nil
}

// extend fetches (hwm, w.End] and appends it to the cached entry.
func (c *Controller) extend(ctx context.Context, logger zerolog.Logger, key Key, w model.FetchWindow, cached model.Series, hwm time.Time) (model.Series, error) {
	c.setState(logger, key, StateExtending)
	extended := false
	defer func() {
		if !extended {
			c.setState(logger, key, StateCached)
		}
	}()

	from := hwm.Add(c.pagination.Tick)
	logger.Info().Time("hwm", hwm).Time("from", from).Time("end", w.End).Msg("Extending cache entry")

	fetched, err := Paginate(ctx, c.fetcher, key.Symbol, from, w.End, c.pagination)
	if err != nil {
		logger.Error().Err(err).Msg("Extension fetch failed")
		return nil, err
	}

	merged, err := Append(key, cached, hwm, fetched)
	if err != nil {
		logger.Error().Err(err).Msg("Rejected extension")
		return nil, err
	}

	if len(fetched) > 0 {
		if err := c.store.Save(key, merged); err != nil {
			logger.Error().Err(err).Msg("Failed to persist extended entry")
			return nil, err
		}
	}

	extended = true
	c.setState(logger, key, StateCached)
	newHWM, _ := merged.HighWaterMark()
	logger.Info().Int("appended", len(fetched)).Time("hwm", newHWM).Msg("Cache entry extended")

	return merged.Between(w), nil
}

// keyLocks hands out one mutex per key.
type keyLocks struct {
	mu    sync.Mutex
	locks map[Key]*sync.Mutex
}

func (k *keyLocks) lock(key Key) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[Key]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
