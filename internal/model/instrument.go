package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContractType partitions instruments into store families.
type ContractType string

const (
	ContractFutures ContractType = "FUT"
	ContractOptions ContractType = "OPT"
)

// OptionType is the option kind for OPT instruments.
type OptionType string

const (
	OptionCall OptionType = "C"
	OptionPut  OptionType = "P"
)

// InstrumentMeta is the structured metadata derived from an instrument
// symbol. It is immutable and shared by reference across all ticks of the
// same instrument within an import.
type InstrumentMeta struct {
	Instrument   string
	Asset        string
	ContractType ContractType
	OptionType   OptionType      // OPT only
	Strike       decimal.Decimal // OPT only
	Expiry       time.Time       // OPT only, date at UTC midnight
	Currency     string
}
