// Package timeparse reconstructs absolute UTC instants from the timestamp
// column of exchange dumps. Rows carry either full date-times or bare
// wall-clock times; the latter are resolved against a per-file current day
// with a midnight-rollover heuristic.
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnparseable marks a timestamp value no strategy could handle. Import
// jobs treat this as fatal for the file: a corrupt timestamp means the
// resolver's current-day state can no longer be trusted for later rows.
var ErrUnparseable = errors.New("timeparse: unparseable timestamp")

// rollbackTolerance is how far seconds-of-day may move backwards before a
// time-only row is taken to have crossed midnight.
const rollbackTolerance = 2 * time.Second

var fullLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006-01-02",
}

var timeOnlyLayouts = []string{
	"15:04:05.999999999",
	"15:04",
}

var filenameDay = regexp.MustCompile(`(\d{4})-(\d{2})(?:-(\d{2}))?`)

// Resolver carries the mutable day-tracking state for one import job. One
// resolver per file; sharing a resolver across concurrent files would let
// their rollover state corrupt each other.
type Resolver struct {
	day     time.Time // UTC midnight of the current day
	lastSec time.Duration
	seen    bool
}

// NewResolver seeds a resolver with the given start day (truncated to UTC
// midnight).
func NewResolver(day time.Time) *Resolver {
	y, m, d := day.UTC().Date()
	return &Resolver{day: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// NewResolverForFile seeds a resolver for a source file. A zero explicit day
// falls back to a YYYY-MM-DD or YYYY-MM substring of the path, then to the
// current UTC day.
func NewResolverForFile(path string, explicit time.Time) *Resolver {
	if !explicit.IsZero() {
		return NewResolver(explicit)
	}
	if day, ok := DayFromPath(path); ok {
		return NewResolver(day)
	}
	return NewResolver(time.Now().UTC())
}

// DayFromPath extracts a seed day from a file path. A YYYY-MM match without
// a day component resolves to the first of that month.
func DayFromPath(path string) (time.Time, bool) {
	m := filenameDay.FindStringSubmatch(path)
	if m == nil {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day := 1
	if m[3] != "" {
		day, _ = strconv.Atoi(m[3])
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

// Resolve turns one raw timestamp value into an absolute UTC instant,
// truncated to millisecond precision. Full date-times are tried first, then
// time-only values against the resolver's current day.
func (r *Resolver) Resolve(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrUnparseable)
	}
	if ts, ok := parseFull(raw); ok {
		return ts.Truncate(time.Millisecond), nil
	}
	if ts, ok := r.resolveTimeOnly(raw); ok {
		return ts.Truncate(time.Millisecond), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseable, raw)
}

func parseFull(raw string) (time.Time, bool) {
	for _, layout := range fullLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return ts.UTC(), true
		}
	}
	return parseEpoch(raw)
}

// parseEpoch accepts integer unix timestamps, disambiguated by digit count:
// seconds (10), milliseconds (13) or microseconds (16).
func parseEpoch(raw string) (time.Time, bool) {
	if len(raw) != 10 && len(raw) != 13 && len(raw) != 16 {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}, false
	}
	switch len(raw) {
	case 10:
		return time.Unix(n, 0).UTC(), true
	case 13:
		return time.UnixMilli(n).UTC(), true
	default:
		return time.UnixMicro(n).UTC(), true
	}
}

func (r *Resolver) resolveTimeOnly(raw string) (time.Time, bool) {
	for _, layout := range timeOnlyLayouts {
		clock, err := time.ParseInLocation(layout, raw, time.UTC)
		if err != nil {
			continue
		}
		ofDay := time.Duration(clock.Hour())*time.Hour +
			time.Duration(clock.Minute())*time.Minute +
			time.Duration(clock.Second())*time.Second +
			time.Duration(clock.Nanosecond())
		if r.seen && ofDay < r.lastSec-rollbackTolerance {
			r.day = r.day.AddDate(0, 0, 1)
		}
		r.lastSec = ofDay
		r.seen = true
		return r.day.Add(ofDay), true
	}
	return time.Time{}, false
}
