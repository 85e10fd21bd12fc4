package cache

import (
	"strings"
	"time"
)

// Namespace is the Redis key prefix for the tickbase pipeline.
const Namespace = "tickbase"

// TTLClass represents a config-driven TTL bucket.
type TTLClass string

const (
	TTLShort  TTLClass = "short"
	TTLMedium TTLClass = "medium"
	TTLLong   TTLClass = "long"
)

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// NewTTLSet converts per-class TTL seconds into durations. Zero selects the
// class default, negative disables the class.
func NewTTLSet(short, medium, long int) TTLSet {
	return TTLSet{
		Short:  durationOrDefault(short, 10*time.Second),
		Medium: durationOrDefault(medium, time.Minute),
		Long:   durationOrDefault(long, 5*time.Minute),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds < 0 {
		return 0
	}
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Duration returns the configured duration for the given TTL class.
func (t TTLSet) Duration(class TTLClass) time.Duration {
	switch class {
	case TTLShort:
		return t.Short
	case TTLMedium:
		return t.Medium
	case TTLLong:
		return t.Long
	default:
		return 0
	}
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// --- Tick Extreme Keys ------------------------------------------------------

// TickEarliestKey caches the earliest stored tick timestamp per instrument.
func TickEarliestKey(instrument string) string {
	return formatKey("ticks", "earliest", instrument)
}

// TickLatestKey caches the latest stored tick timestamp per instrument.
func TickLatestKey(instrument string) string {
	return formatKey("ticks", "latest", instrument)
}

// TickExtremesTTL returns the TTL for tick extreme lookups. Extremes only
// move when an import lands, so a short TTL keeps the builder's derived
// ranges fresh enough.
func TickExtremesTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLShort)
}
