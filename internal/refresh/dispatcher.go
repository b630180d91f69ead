package refresh

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Update is the outcome of refreshing one job.
type Update struct {
	Job           Job
	RunAt         time.Time // window end of the refresh
	HighWaterMark time.Time // latest bar after the refresh, zero when empty
	Bars          int       // bars in the refreshed window
	Err           error
}

// Subscriber receives updates for a set of symbols.
//
// A subscriber with no symbols receives every update.
type Subscriber struct {
	id      int64               // unique identifier for the subscriber
	ch      chan Update         // buffered channel for update delivery
	symbols map[string]struct{} // upper-cased symbols of interest
}

// Updates returns the delivery channel. It is closed on unsubscribe or
// dispatcher shutdown.
func (s *Subscriber) Updates() <-chan Update { return s.ch }

func (s *Subscriber) wants(symbol string) bool {
	if len(s.symbols) == 0 {
		return true
	}
	_, ok := s.symbols[strings.ToUpper(symbol)]
	return ok
}

// DispatcherConfig holds configuration parameters for the Dispatcher.
type DispatcherConfig struct {
	MaxSymbolsAllowed int // maximum symbols per subscription, zero for no limit
	BufferSize        int // per-subscriber buffer, defaults to 100
}

// Dispatcher fans refresh updates out to subscribers.
//
// A single goroutine owns the subscribers map; subscription changes and
// updates reach it through channels.
type Dispatcher struct {
	cfg              DispatcherConfig
	subscribers      map[int64]*Subscriber // owned by the dispatch goroutine
	subscriptionCh   chan *Subscriber
	unsubscriptionCh chan *Subscriber
	updateCh         chan Update
	started          atomic.Bool
	randIDGen        *rand.Rand
}

// NewDispatcher creates a new Dispatcher instance with the provided configuration.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	return &Dispatcher{
		cfg:              cfg,
		subscribers:      make(map[int64]*Subscriber),
		subscriptionCh:   make(chan *Subscriber, 10),
		unsubscriptionCh: make(chan *Subscriber, 10),
		updateCh:         make(chan Update, cfg.BufferSize),
		randIDGen:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Subscribe registers interest in symbols, or in every symbol when none
// are given.
func (b *Dispatcher) Subscribe(symbols ...string) (*Subscriber, error) {
	if !b.started.Load() {
		return nil, errors.New("dispatcher not started")
	}
	if b.cfg.MaxSymbolsAllowed > 0 && len(symbols) > b.cfg.MaxSymbolsAllowed {
		return nil, fmt.Errorf("too many symbols: %d (max %d)", len(symbols), b.cfg.MaxSymbolsAllowed)
	}

	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		if s == "" {
			return nil, errors.New("symbol cannot be empty")
		}
		set[strings.ToUpper(s)] = struct{}{}
	}

	sub := &Subscriber{
		id:      b.randIDGen.Int63(),
		ch:      make(chan Update, b.cfg.BufferSize),
		symbols: set,
	}

	select {
	case b.subscriptionCh <- sub:
	default:
		return nil, errors.New("subscription channel is full")
	}
	return sub, nil
}

// Unsubscribe removes a subscriber from the dispatcher.
func (b *Dispatcher) Unsubscribe(sub *Subscriber) error {
	select {
	case b.unsubscriptionCh <- sub:
		return nil
	default:
		return errors.New("subscription channel is full")
	}
}

// Publish queues u for delivery without blocking.
func (b *Dispatcher) Publish(u Update) error {
	if !b.started.Load() {
		return errors.New("dispatcher not started")
	}
	select {
	case b.updateCh <- u:
		return nil
	default:
		return errors.New("update channel is full")
	}
}

// StartDispatching starts the goroutine that owns the subscribers and
// delivers updates until ctx is done.
func (b *Dispatcher) StartDispatching(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return errors.New("dispatcher already started")
	}

	go func() {
		defer func() {
			for _, sub := range b.subscribers {
				close(sub.ch)
			}
			b.subscribers = make(map[int64]*Subscriber)
		}()

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("dispatcher stopped")
				return
			case sub := <-b.subscriptionCh:
				b.subscribers[sub.id] = sub
			case sub := <-b.unsubscriptionCh:
				if _, ok := b.subscribers[sub.id]; ok {
					delete(b.subscribers, sub.id)
					close(sub.ch)
				}
			case u := <-b.updateCh:
				b.dispatch(u)
			}
		}
	}()
	return nil
}

// dispatch delivers u to every interested subscriber. A full subscriber
// buffer loses its oldest update.
func (b *Dispatcher) dispatch(u Update) {
	for _, sub := range b.subscribers {
		if !sub.wants(u.Job.Symbol) {
			continue
		}
		select {
		case sub.ch <- u:
		default:
			log.Warn().Int64("subscriber", sub.id).Msg("subscriber is too slow, dropping oldest buffered update")
			// the subscriber may drain the buffer meanwhile; neither step may block
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- u:
			default:
			}
		}
	}
}
