// Package store persists ticks and candles. All writes are duplicate-tolerant
// batch inserts keyed on deterministic ids, which is what makes re-imports
// and candle rebuilds idempotent.
package store

import (
	"context"
	"errors"
	"time"

	"tickbase/internal/model"
)

// ErrNoTicks is returned by FindEarliest/FindLatest when the store holds no
// ticks for the instrument.
var ErrNoTicks = errors.New("store: no ticks for instrument")

// TickStore is the append-only trade storage, partitioned by contract family.
type TickStore interface {
	// InsertBatch inserts ticks into the family's partition. Rows whose id
	// already exists are counted as duplicates, not errors.
	InsertBatch(ctx context.Context, family model.ContractType, ticks []model.Tick) (model.BatchResult, error)
	FindEarliest(ctx context.Context, instrument string) (time.Time, error)
	FindLatest(ctx context.Context, instrument string) (time.Time, error)
	// QueryRange returns the instrument's ticks with timestamp in [from, to),
	// sorted by timestamp ascending.
	QueryRange(ctx context.Context, instrument string, from, to time.Time) ([]model.Tick, error)
}

// CandleStore is the keyed candle storage. Re-inserting an identical candle
// is a duplicate-skip.
type CandleStore interface {
	InsertBatch(ctx context.Context, candles []model.Candle) (model.BatchResult, error)
	QueryRange(ctx context.Context, instrument, interval string, from, to time.Time) ([]model.Candle, error)
}
