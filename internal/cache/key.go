package cache

import (
	"fmt"
	"strings"
	"time"

	"marketdata/internal/model"
)

// keyTimeLayout renders window starts in file names.
const keyTimeLayout = "20060102T150405Z"

// Key identifies one cache entry: a symbol of an asset class fetched from
// a fixed window start.
type Key struct {
	Symbol string
	Class  model.AssetClass
	Start  time.Time
}

// NewKey builds the key of symbol for a window starting at start.
func NewKey(symbol string, class model.AssetClass, start time.Time) Key {
	return Key{Symbol: symbol, Class: class, Start: start.UTC()}
}

// String renders the key for logs and errors.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s@%s", k.Class, k.Symbol, k.Start.UTC().Format(time.RFC3339))
}

// FileName returns the deterministic file name of the entry, for example
// "btc-usd_crypto_20240101T000000Z_1min.csv".
func (k Key) FileName() string {
	return fmt.Sprintf("%s_%s_%s_1min.csv", sanitize(k.Symbol), k.Class, k.Start.UTC().Format(keyTimeLayout))
}

// sanitize lower-cases s and replaces anything outside [a-z0-9.-] with '_'.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
