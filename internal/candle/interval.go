// Package candle buckets stored ticks into fixed-interval OHLCV candles.
// Bucket boundaries are aligned to the target timezone's local clock, not
// raw UTC, so a "day" candle covers a local calendar day.
package candle

import (
	"fmt"
	"strconv"
	"time"
)

// Unit is the base granularity of an interval.
type Unit byte

const (
	UnitMinute Unit = 'M'
	UnitHour   Unit = 'H'
	UnitDay    Unit = 'D'
)

// Interval is one candle granularity, e.g. M1, H4, D1.
type Interval struct {
	Unit Unit
	N    int
}

// ParseInterval parses an interval spec of the form M<n>, H<n> or D<n>.
func ParseInterval(spec string) (Interval, error) {
	if len(spec) < 2 {
		return Interval{}, fmt.Errorf("invalid interval %q", spec)
	}
	unit := Unit(spec[0])
	switch unit {
	case UnitMinute, UnitHour, UnitDay:
	default:
		return Interval{}, fmt.Errorf("invalid interval %q: unit must be M, H or D", spec)
	}
	n, err := strconv.Atoi(spec[1:])
	if err != nil || n <= 0 {
		return Interval{}, fmt.Errorf("invalid interval %q: bad bin size", spec)
	}
	switch unit {
	case UnitMinute:
		if n > 24*60 {
			return Interval{}, fmt.Errorf("invalid interval %q: more than a day of minutes", spec)
		}
	case UnitHour:
		if n > 24 {
			return Interval{}, fmt.Errorf("invalid interval %q: more than a day of hours", spec)
		}
	}
	return Interval{Unit: unit, N: n}, nil
}

// MustInterval parses a spec or panics; for tests and literals.
func MustInterval(spec string) Interval {
	iv, err := ParseInterval(spec)
	if err != nil {
		panic(err)
	}
	return iv
}

func (iv Interval) String() string {
	return string(iv.Unit) + strconv.Itoa(iv.N)
}

// BucketStart truncates an instant to its bucket's start on the local clock
// of loc. Sub-day buckets are anchored at the local midnight of the tick's
// day; day buckets are anchored on the local calendar's epoch day count.
func (iv Interval) BucketStart(ts time.Time, loc *time.Location) time.Time {
	local := ts.In(loc)
	year, month, day := local.Date()
	switch iv.Unit {
	case UnitMinute:
		totalMin := local.Hour()*60 + local.Minute()
		totalMin -= totalMin % iv.N
		return time.Date(year, month, day, totalMin/60, totalMin%60, 0, 0, loc)
	case UnitHour:
		hour := local.Hour()
		hour -= hour % iv.N
		return time.Date(year, month, day, hour, 0, 0, 0, loc)
	default:
		ord := dayOrdinal(year, month, day)
		ord -= floorMod(ord, iv.N)
		y, m, d := ordinalDate(ord)
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
}

// dayOrdinal counts local calendar days since the Unix epoch, independent of
// timezone offsets.
func dayOrdinal(year int, month time.Month, day int) int {
	return int(time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

func ordinalDate(ord int) (int, time.Month, int) {
	y, m, d := time.Unix(int64(ord)*86400, 0).UTC().Date()
	return y, m, d
}

func floorMod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
