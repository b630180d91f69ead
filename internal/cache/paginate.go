package cache

import (
	"context"
	"fmt"
	"time"

	"marketdata/internal/model"
)

// PageFetcher pulls one bounded page of bars from a vendor.
type PageFetcher interface {
	// FetchPage returns up to limit bars starting at or after start,
	// ordered, and whether more data may follow the page.
	FetchPage(ctx context.Context, symbol string, start time.Time, limit int) (model.Series, bool, error)
}

// PageFetcherFunc adapts a function to the PageFetcher interface.
type PageFetcherFunc func(ctx context.Context, symbol string, start time.Time, limit int) (model.Series, bool, error)

// FetchPage calls f.
func (f PageFetcherFunc) FetchPage(ctx context.Context, symbol string, start time.Time, limit int) (model.Series, bool, error) {
	return f(ctx, symbol, start, limit)
}

// Pagination configures sequential page retrieval.
type Pagination struct {
	// Limit is the maximum number of bars per page.
	Limit int

	// Tick is the native bar interval; the next page starts one tick
	// after the last bar of the previous page.
	Tick time.Duration

	// Pacer gates every page request after the first.
	Pacer Pacer

	// Retry is applied to each page request.
	Retry RetryPolicy
}

// Paginate fetches pages of symbol from start until end is reached or a
// page reports no more data. An empty page that reports more data is a gap
// in the vendor's history; paging resumes Limit ticks after its start. The
// result is sorted and checked for duplicate timestamps. A page that does not
// advance past its requested start is a *ConsistencyError. ctx is checked
// between pages.
func Paginate(ctx context.Context, f PageFetcher, symbol string, start, end time.Time, p Pagination) (model.Series, error) {
	if p.Limit <= 0 {
		return nil, fmt.Errorf("page limit must be positive, got %d", p.Limit)
	}
	if p.Tick <= 0 {
		return nil, fmt.Errorf("tick must be positive, got %s", p.Tick)
	}
	pacer := p.Pacer
	if pacer == nil {
		pacer = NoDelay()
	}

	var out model.Series
	for pageStart, page := start, 0; pageStart.Before(end); page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if page > 0 {
			if err := pacer.Wait(ctx); err != nil {
				return nil, err
			}
		}

		var (
			rows    model.Series
			hasMore bool
		)
		err := p.Retry.do(ctx, func() error {
			var err error
			rows, hasMore, err = f.FetchPage(ctx, symbol, pageStart, p.Limit)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch page %d of %s from %s: %w",
				page, symbol, pageStart.UTC().Format(time.RFC3339), err)
		}
		if len(rows) == 0 {
			if !hasMore {
				break
			}
			pageStart = pageStart.Add(time.Duration(p.Limit) * p.Tick)
			continue
		}

		out = append(out, rows...)

		last, _ := rows.HighWaterMark()
		if last.Before(pageStart) {
			return nil, &ConsistencyError{
				Key:    symbol,
				At:     last,
				Reason: fmt.Sprintf("page %d does not advance past %s", page, pageStart.UTC().Format(time.RFC3339)),
			}
		}
		if !hasMore {
			break
		}
		pageStart = last.Add(p.Tick)
	}

	out = out.Sorted()
	for i := 1; i < len(out); i++ {
		if out[i].Timestamp.Equal(out[i-1].Timestamp) {
			return nil, &ConsistencyError{Key: symbol, At: out[i].Timestamp, Reason: "duplicate timestamp across pages"}
		}
	}

	return out, nil
}

// Append extends cached with fetched bars that all lie strictly after the
// high-water mark hwm. The inputs are not modified.
func Append(key Key, cached model.Series, hwm time.Time, fetched model.Series) (model.Series, error) {
	if len(fetched) == 0 {
		return cached.Clone(), nil
	}

	fetched = fetched.Sorted()
	if first := fetched[0].Timestamp; !first.After(hwm) {
		return nil, &ConsistencyError{
			Key:    key.String(),
			At:     first,
			Reason: fmt.Sprintf("fetched bars overlap high-water mark %s", hwm.UTC().Format(time.RFC3339Nano)),
		}
	}
	for i := 1; i < len(fetched); i++ {
		if !fetched[i].Timestamp.After(fetched[i-1].Timestamp) {
			return nil, &ConsistencyError{Key: key.String(), At: fetched[i].Timestamp, Reason: "duplicate timestamp in fetched bars"}
		}
	}

	merged := make(model.Series, 0, len(cached)+len(fetched))
	merged = append(merged, cached...)
	merged = append(merged, fetched...)
	return merged, nil
}
