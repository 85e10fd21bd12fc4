package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Role is the side of the trade counterparty recorded in the dump.
type Role string

const (
	RoleMaker Role = "maker"
	RoleTaker Role = "taker"
)

// ParseRole normalises the role/side column values seen across dump formats.
func ParseRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "maker", "m", "sell":
		return RoleMaker, true
	case "taker", "t", "buy":
		return RoleTaker, true
	default:
		return "", false
	}
}

// Provenance records where a tick came from, for audit and debugging.
type Provenance struct {
	SourceFile string
	RowNumber  int
}

// Tick is one executed trade. Created once at import time, never mutated.
type Tick struct {
	ID         string
	Timestamp  time.Time
	Price      decimal.Decimal
	Size       decimal.Decimal
	Role       Role
	Meta       *InstrumentMeta
	Provenance Provenance
}

// CanonicalTime serialises an instant for identifier hashing: UTC,
// millisecond precision, fixed layout. Changing this breaks every stored id.
func CanonicalTime(t time.Time) string {
	return t.UTC().Truncate(time.Millisecond).Format("2006-01-02T15:04:05.000Z07:00")
}

// TickID derives the deterministic tick identifier from the logical trade
// tuple. Two imports of the same trade always collide on the same id, which
// is what makes re-imports duplicate-skips instead of duplicates.
func TickID(instrument string, ts time.Time, price, size decimal.Decimal, role Role) string {
	sum := sha256.Sum256([]byte(
		instrument + "|" + CanonicalTime(ts) + "|" + price.String() + "|" + size.String() + "|" + string(role),
	))
	return hex.EncodeToString(sum[:])
}
