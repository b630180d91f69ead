package cache

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidWindow is returned for empty or inverted fetch windows.
	ErrInvalidWindow = errors.New("invalid fetch window")

	// ErrNilFetcher is returned when a controller is built without a page fetcher.
	ErrNilFetcher = errors.New("page fetcher is required")

	// ErrNilStore is returned when a controller is built without a store.
	ErrNilStore = errors.New("cache store is required")
)

// ConsistencyError is returned when merging fetched bars would produce an
// overlapping, duplicated or out-of-order series. The cache entry is left
// at its last persisted state.
type ConsistencyError struct {
	Key    string
	At     time.Time
	Reason string
}

func (e *ConsistencyError) Error() string {
	if e.At.IsZero() {
		return fmt.Sprintf("cache consistency error for %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("cache consistency error for %s at %s: %s", e.Key, e.At.UTC().Format(time.RFC3339Nano), e.Reason)
}
