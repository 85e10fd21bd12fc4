package candle

import (
	"time"

	"tickbase/internal/model"
)

const localLayout = "2006-01-02T15:04:05-07:00"

// Aggregate groups ticks into per-bucket OHLCV candles. Ticks must be sorted
// by timestamp; open and close follow that order. One candle is emitted per
// non-empty bucket.
func Aggregate(instrument string, iv Interval, loc *time.Location, ticks []model.Tick) []model.Candle {
	if len(ticks) == 0 {
		return nil
	}
	candles := make([]model.Candle, 0, 16)
	var cur *model.Candle
	var curStart time.Time

	for i := range ticks {
		t := &ticks[i]
		start := iv.BucketStart(t.Timestamp, loc)
		if cur == nil || !start.Equal(curStart) {
			candles = append(candles, newCandle(instrument, iv, loc, start, t))
			cur = &candles[len(candles)-1]
			curStart = start
			continue
		}
		if t.Price.GreaterThan(cur.High) {
			cur.High = t.Price
		}
		if t.Price.LessThan(cur.Low) {
			cur.Low = t.Price
		}
		cur.Close = t.Price
		cur.Volume = cur.Volume.Add(t.Size)
		cur.TradeCount++
		cur.LastTickTime = t.Timestamp
	}
	return candles
}

func newCandle(instrument string, iv Interval, loc *time.Location, start time.Time, t *model.Tick) model.Candle {
	return model.Candle{
		ID:            model.CandleID(instrument, iv.String(), start),
		Instrument:    instrument,
		Interval:      iv.String(),
		BucketStart:   start.UTC(),
		LocalDatetime: start.In(loc).Format(localLayout),
		Open:          t.Price,
		High:          t.Price,
		Low:           t.Price,
		Close:         t.Price,
		Volume:        t.Size,
		TradeCount:    1,
		FirstTickTime: t.Timestamp,
		LastTickTime:  t.Timestamp,
	}
}
