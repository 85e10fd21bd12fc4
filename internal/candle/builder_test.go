package candle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickbase/internal/model"
	"tickbase/internal/store"
)

func seedTicks(t *testing.T, st *store.MemTickStore, ticks []model.Tick) {
	t.Helper()
	_, err := st.InsertBatch(context.Background(), model.ContractFutures, ticks)
	require.NoError(t, err)
}

func spanTicks(instrument string, from time.Time, count int, step time.Duration) []model.Tick {
	ticks := make([]model.Tick, 0, count)
	for i := 0; i < count; i++ {
		ticks = append(ticks, tick(instrument, from.Add(time.Duration(i)*step), 100+float64(i%7), 1))
	}
	return ticks
}

func TestBuilderBuildsAllIntervals(t *testing.T) {
	ticks := store.NewMemTickStore()
	candles := store.NewMemCandleStore()
	from := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	seedTicks(t, ticks, spanTicks("BTCUSD", from, 48*60, time.Minute)) // two full days

	b := NewBuilder(ticks, candles, time.UTC, 1)
	ivs := []Interval{MustInterval("M1"), MustInterval("H1"), MustInterval("D1")}
	res, err := b.Build(context.Background(), "BTCUSD", ivs, from, from.AddDate(0, 0, 2), 2)
	require.NoError(t, err)

	assert.Equal(t, 48*60+48+2, res.Inserted)
	assert.Zero(t, res.Duplicates)
	assert.Zero(t, res.Lost)

	days, err := candles.QueryRange(context.Background(), "BTCUSD", "D1", from, from.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, int64(24*60), days[0].TradeCount)
}

func TestBuilderRebuildIsIdempotent(t *testing.T) {
	ticks := store.NewMemTickStore()
	candles := store.NewMemCandleStore()
	from := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	seedTicks(t, ticks, spanTicks("BTCUSD", from, 120, time.Minute))

	b := NewBuilder(ticks, candles, time.UTC, 1)
	ivs := []Interval{MustInterval("M5")}

	first, err := b.Build(context.Background(), "BTCUSD", ivs, from, from.Add(2*time.Hour), 1)
	require.NoError(t, err)
	assert.Equal(t, 24, first.Inserted)

	second, err := b.Build(context.Background(), "BTCUSD", ivs, from, from.Add(2*time.Hour), 1)
	require.NoError(t, err)
	assert.Zero(t, second.Inserted)
	assert.Equal(t, 24, second.Duplicates)
	assert.Len(t, candles.All(), 24)
}

func TestBuilderChunkingDoesNotChangeCandles(t *testing.T) {
	from := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 6)
	ivs := []Interval{MustInterval("H4"), MustInterval("D1"), MustInterval("D2")}

	build := func(chunkDays int) map[string]model.Candle {
		ticks := store.NewMemTickStore()
		candles := store.NewMemCandleStore()
		seedTicks(t, ticks, spanTicks("BTCUSD", from, 6*24*4, 15*time.Minute))
		b := NewBuilder(ticks, candles, time.UTC, chunkDays)
		_, err := b.Build(context.Background(), "BTCUSD", ivs, from, to, 1)
		require.NoError(t, err)
		return candles.All()
	}

	whole := build(7)
	chunked := build(1)
	require.Equal(t, len(whole), len(chunked))
	for id, want := range whole {
		got, ok := chunked[id]
		require.True(t, ok, "candle %s missing from chunked build", id)
		assert.True(t, want.Open.Equal(got.Open), "%s open", id)
		assert.True(t, want.High.Equal(got.High), "%s high", id)
		assert.True(t, want.Low.Equal(got.Low), "%s low", id)
		assert.True(t, want.Close.Equal(got.Close), "%s close", id)
		assert.True(t, want.Volume.Equal(got.Volume), "%s volume", id)
		assert.Equal(t, want.TradeCount, got.TradeCount, "%s count", id)
	}
}

func TestBuilderDerivesRangeFromStore(t *testing.T) {
	ticks := store.NewMemTickStore()
	candles := store.NewMemCandleStore()
	first := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	last := first.Add(90 * time.Minute)
	seedTicks(t, ticks, []model.Tick{
		tick("BTCUSD", first, 100, 1),
		tick("BTCUSD", last, 105, 2),
	})

	b := NewBuilder(ticks, candles, time.UTC, 1)
	res, err := b.Build(context.Background(), "BTCUSD", []Interval{MustInterval("H1")}, time.Time{}, time.Time{}, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)

	got, err := candles.QueryRange(context.Background(), "BTCUSD", "H1", first.Add(-time.Hour), last.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, last, got[1].LastTickTime)
}

func TestBuilderEmptyStoreFails(t *testing.T) {
	b := NewBuilder(store.NewMemTickStore(), store.NewMemCandleStore(), time.UTC, 1)
	_, err := b.Build(context.Background(), "BTCUSD", []Interval{MustInterval("M1")}, time.Time{}, time.Time{}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNoTicks)
}

func TestChunksForCoverRangeOnBucketEdges(t *testing.T) {
	b := NewBuilder(store.NewMemTickStore(), store.NewMemCandleStore(), time.UTC, 1)
	iv := MustInterval("D3")
	from := time.Date(2025, 8, 2, 6, 0, 0, 0, time.UTC)
	to := time.Date(2025, 8, 14, 0, 0, 0, 0, time.UTC)

	chunks := b.chunksFor(iv, from, to)
	require.NotEmpty(t, chunks)
	assert.Equal(t, from, chunks[0].from)
	assert.Equal(t, to, chunks[len(chunks)-1].to)
	for i := 1; i < len(chunks); i++ {
		// Contiguous, and every interior edge sits on a D3 bucket start.
		assert.Equal(t, chunks[i-1].to, chunks[i].from)
		edge := chunks[i].from
		assert.Equal(t, edge, iv.BucketStart(edge, time.UTC), "edge %s", edge)
	}
}
