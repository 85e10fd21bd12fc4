package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is the OHLCV summary of all ticks inside one timezone-aligned
// bucket for one instrument and interval. Emitted whole or not at all.
type Candle struct {
	ID            string
	Instrument    string
	Interval      string
	BucketStart   time.Time
	LocalDatetime string
	Open          decimal.Decimal
	High          decimal.Decimal
	Low           decimal.Decimal
	Close         decimal.Decimal
	Volume        decimal.Decimal
	TradeCount    int64
	FirstTickTime time.Time
	LastTickTime  time.Time
}

// CandleID derives the deterministic candle identifier. Rebuilding the same
// bucket always produces the same id, so rebuilds upsert instead of piling up.
func CandleID(instrument, interval string, bucketStart time.Time) string {
	sum := sha256.Sum256([]byte(
		instrument + "|" + interval + "|" + CanonicalTime(bucketStart),
	))
	return hex.EncodeToString(sum[:])
}

// BatchResult reports the outcome of one duplicate-tolerant batch insert.
type BatchResult struct {
	Inserted   int
	Duplicates int
	Lost       int
}

// Add folds another batch outcome into the receiver.
func (r *BatchResult) Add(other BatchResult) {
	r.Inserted += other.Inserted
	r.Duplicates += other.Duplicates
	r.Lost += other.Lost
}
