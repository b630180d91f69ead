package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func update(symbol string, bars int) Update {
	return Update{Job: Job{Symbol: symbol}, Bars: bars}
}

func startedDispatcher(t *testing.T, cfg DispatcherConfig) (*Dispatcher, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	d := NewDispatcher(cfg)
	require.NoError(t, d.StartDispatching(ctx))
	return d, cancel
}

func Test_DispatcherLifecycle(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{})

	_, err := d.Subscribe("AAPL")
	assert.Error(t, err, "Should not subscribe before start")
	assert.Error(t, d.Publish(update("AAPL", 1)), "Should not publish before start")

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.StartDispatching(ctx))
	assert.Error(t, d.StartDispatching(ctx), "Should only start once")

	sub, err := d.Subscribe()
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	cancel()
	select {
	case _, ok := <-sub.Updates():
		assert.False(t, ok, "Shutdown closes subscriber channels")
	case <-time.After(time.Second):
		t.Fatal("Subscriber channel should close on shutdown")
	}
}

func Test_DispatcherSubscribeValidation(t *testing.T) {
	d, cancel := startedDispatcher(t, DispatcherConfig{MaxSymbolsAllowed: 2})
	defer cancel()

	_, err := d.Subscribe("AAPL", "MSFT", "NVDA")
	assert.Error(t, err, "Should enforce the symbol limit")

	_, err = d.Subscribe("AAPL", "")
	assert.Error(t, err, "Should reject empty symbols")
}

// Test_DispatcherDistribution tests symbol filtering of updates
func Test_DispatcherDistribution(t *testing.T) {
	d, cancel := startedDispatcher(t, DispatcherConfig{})
	defer cancel()

	btc, err := d.Subscribe("BTC-USD", "ETH-USD")
	require.NoError(t, err)
	aapl, err := d.Subscribe("aapl")
	require.NoError(t, err)
	all, err := d.Subscribe()
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	tests := []struct {
		name              string
		update            Update
		expectedReceivers []*Subscriber
		description       string
	}{
		{
			name:              "Crypto update",
			update:            update("BTC-USD", 5),
			expectedReceivers: []*Subscriber{btc, all},
			description:       "Should deliver to the crypto and catch-all subscribers",
		},
		{
			name:              "Equity update",
			update:            update("AAPL", 7),
			expectedReceivers: []*Subscriber{aapl, all},
			description:       "Symbol matching ignores case",
		},
		{
			name:              "Unwatched symbol",
			update:            update("MSFT", 1),
			expectedReceivers: []*Subscriber{all},
			description:       "Only the catch-all subscriber sees unwatched symbols",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, d.Publish(tt.update))
			time.Sleep(10 * time.Millisecond)

			for _, sub := range []*Subscriber{btc, aapl, all} {
				expected := false
				for _, r := range tt.expectedReceivers {
					if sub == r {
						expected = true
					}
				}
				if expected {
					select {
					case got := <-sub.Updates():
						assert.Equal(t, tt.update.Bars, got.Bars, tt.description)
					case <-time.After(100 * time.Millisecond):
						t.Errorf("Subscriber should have received update within timeout")
					}
				} else {
					select {
					case got := <-sub.Updates():
						t.Errorf("Subscriber should not have received update: %+v", got)
					default:
					}
				}
			}
		})
	}
}

func Test_DispatcherUnsubscribe(t *testing.T) {
	d, cancel := startedDispatcher(t, DispatcherConfig{})
	defer cancel()

	sub, err := d.Subscribe("AAPL")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, d.Unsubscribe(sub))
	time.Sleep(10 * time.Millisecond)

	_, ok := <-sub.Updates()
	assert.False(t, ok, "Unsubscribe closes the channel")
	assert.NoError(t, d.Publish(update("AAPL", 1)), "Publishing after unsubscribe is harmless")
}

func Test_DispatcherSlowSubscriber(t *testing.T) {
	d, cancel := startedDispatcher(t, DispatcherConfig{BufferSize: 5})
	defer cancel()

	sub, err := d.Subscribe("AAPL")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	for i := 0; i < 8; i++ {
		require.NoError(t, d.Publish(update("AAPL", i)))
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	require.Len(t, sub.ch, 5, "Subscriber buffer stays at capacity")
	received := make([]int, 0, 5)
	for len(sub.ch) > 0 {
		received = append(received, (<-sub.ch).Bars)
	}
	assert.Equal(t, []int{3, 4, 5, 6, 7}, received, "Oldest updates are dropped")
}

// Test_DispatchNeverBlocks covers a subscriber that empties its buffer
// between the failed send and the drop of the oldest update
func Test_DispatchNeverBlocks(t *testing.T) {
	tests := []struct {
		name        string
		ch          chan Update
		expectLen   int
		description string
	}{
		{name: "Drained buffer", ch: make(chan Update), expectLen: 0, description: "Nothing to drop and nowhere to send"},
		{name: "Full buffer of one", ch: make(chan Update, 1), expectLen: 1, description: "The oldest update makes room for the newest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(DispatcherConfig{BufferSize: 1})
			sub := &Subscriber{id: 1, ch: tt.ch}
			d.subscribers[sub.id] = sub
			if cap(tt.ch) > 0 {
				tt.ch <- update("AAPL", 1)
			}

			done := make(chan struct{})
			go func() {
				d.dispatch(update("AAPL", 2))
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("dispatch blocked on a slow subscriber")
			}
			require.Len(t, tt.ch, tt.expectLen, tt.description)
			if tt.expectLen > 0 {
				assert.Equal(t, 2, (<-tt.ch).Bars, tt.description)
			}
		})
	}
}

func Test_DispatcherBufferOfOne(t *testing.T) {
	d, cancel := startedDispatcher(t, DispatcherConfig{BufferSize: 1})
	defer cancel()

	sub, err := d.Subscribe("AAPL")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	// a concurrent reader keeps racing the dispatcher for the single slot
	stop := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			select {
			case <-stop:
				return
			case <-sub.Updates():
			}
		}
	}()

	for i := 0; i < 200; i++ {
		require.NoError(t, d.Publish(update("AAPL", i)))
	}
	close(stop)
	<-drained

	// the dispatcher still serves new subscriptions
	other, err := d.Subscribe("MSFT")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, d.Publish(update("MSFT", 7)))

	select {
	case u := <-other.Updates():
		assert.Equal(t, 7, u.Bars)
	case <-time.After(time.Second):
		t.Fatal("dispatcher stopped delivering")
	}
}
