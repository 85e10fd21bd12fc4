package candle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/sync/errgroup"

	"tickbase/internal/model"
	"tickbase/internal/store"
)

// Builder reads ranges of ticks and writes OHLCV candles. One chunk is read,
// aggregated and written before the next begins, so peak memory is bounded
// by the densest chunk regardless of the overall range.
type Builder struct {
	ticks     store.TickStore
	candles   store.CandleStore
	loc       *time.Location
	chunkDays int
}

// NewBuilder wires a candle builder. chunkDays below 1 falls back to 1.
func NewBuilder(ticks store.TickStore, candles store.CandleStore, loc *time.Location, chunkDays int) *Builder {
	if chunkDays < 1 {
		chunkDays = 1
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{ticks: ticks, candles: candles, loc: loc, chunkDays: chunkDays}
}

// Build produces candles for every interval over [from, to). Zero bounds are
// derived from the earliest/latest stored tick. Intervals build concurrently
// up to the given limit; each interval is sequential across its chunks.
func (b *Builder) Build(ctx context.Context, instrument string, intervals []Interval, from, to time.Time, concurrency int) (model.BatchResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	from, to, err := b.resolveRange(ctx, instrument, from, to)
	if err != nil {
		return model.BatchResult{}, err
	}

	var (
		mu    sync.Mutex
		total model.BatchResult
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, iv := range intervals {
		iv := iv
		g.Go(func() error {
			res, err := b.buildInterval(ctx, instrument, iv, from, to)
			if err != nil {
				return fmt.Errorf("build %s %s: %w", instrument, iv, err)
			}
			mu.Lock()
			total.Add(res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return total, err
	}
	return total, nil
}

func (b *Builder) resolveRange(ctx context.Context, instrument string, from, to time.Time) (time.Time, time.Time, error) {
	var err error
	if from.IsZero() {
		from, err = b.ticks.FindEarliest(ctx, instrument)
		if err != nil {
			return from, to, fmt.Errorf("derive range start for %s: %w", instrument, err)
		}
	}
	if to.IsZero() {
		latest, err := b.ticks.FindLatest(ctx, instrument)
		if err != nil {
			return from, to, fmt.Errorf("derive range end for %s: %w", instrument, err)
		}
		// The range is half-open; nudge past the last tick so it is included.
		to = latest.Add(time.Millisecond)
	}
	if !to.After(from) {
		return from, to, fmt.Errorf("empty build range for %s: from %s, to %s", instrument, from, to)
	}
	return from, to, nil
}

func (b *Builder) buildInterval(ctx context.Context, instrument string, iv Interval, from, to time.Time) (model.BatchResult, error) {
	var total model.BatchResult
	for _, chunk := range b.chunksFor(iv, from, to) {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		ticks, err := b.ticks.QueryRange(ctx, instrument, chunk.from, chunk.to)
		if err != nil {
			return total, err
		}
		if len(ticks) == 0 {
			continue
		}
		candles := Aggregate(instrument, iv, b.loc, ticks)
		res, err := b.candles.InsertBatch(ctx, candles)
		if err != nil {
			return total, err
		}
		total.Add(res)
		logx.WithContext(ctx).Infof("built %d candles for %s %s chunk [%s, %s): %d new, %d duplicate",
			len(candles), instrument, iv, chunk.from.Format(time.RFC3339), chunk.to.Format(time.RFC3339),
			res.Inserted, res.Duplicates)
	}
	return total, nil
}

type timeRange struct {
	from, to time.Time
}

// chunksFor partitions [from, to) into windows whose edges sit on bucket
// boundaries of iv in the builder's timezone. Sub-day buckets never straddle
// a local midnight, so midnight-aligned chunks suffice; multi-day buckets
// need chunk edges on their own bucket starts and a step that is a multiple
// of the bucket span.
func (b *Builder) chunksFor(iv Interval, from, to time.Time) []timeRange {
	step := b.chunkDays
	var boundary time.Time
	if iv.Unit == UnitDay {
		if rem := step % iv.N; rem != 0 {
			step += iv.N - rem
		}
		boundary = iv.BucketStart(from, b.loc)
	} else {
		y, m, d := from.In(b.loc).Date()
		boundary = time.Date(y, m, d, 0, 0, 0, 0, b.loc)
	}

	var chunks []timeRange
	for boundary.Before(to) {
		next := boundary.AddDate(0, 0, step)
		start, end := boundary, next
		if start.Before(from) {
			start = from
		}
		if end.After(to) {
			end = to
		}
		if end.After(start) {
			chunks = append(chunks, timeRange{from: start, to: end})
		}
		boundary = next
	}
	return chunks
}
