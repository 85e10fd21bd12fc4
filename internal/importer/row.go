package importer

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tickbase/internal/model"
	"tickbase/internal/symbol"
	"tickbase/internal/timeparse"
)

// columns maps the dump's header to the fields the pipeline needs. Dumps use
// inconsistent column names; everything is normalised here, before any
// business logic sees a row.
type columns struct {
	symbol    int
	timestamp int
	role      int
	price     int
	size      int
}

func mapColumns(header []string) (columns, error) {
	find := func(names ...string) int {
		for i, h := range header {
			clean := strings.ToLower(strings.TrimSpace(h))
			for _, name := range names {
				if clean == name {
					return i
				}
			}
		}
		return -1
	}
	cols := columns{
		symbol:    find("product_symbol", "symbol"),
		timestamp: find("timestamp", "time"),
		role:      find("buyer_role", "side"),
		price:     find("price"),
		size:      find("size", "qty", "quantity"),
	}
	var missing []string
	for name, idx := range map[string]int{
		"symbol": cols.symbol, "timestamp": cols.timestamp,
		"role": cols.role, "price": cols.price, "size": cols.size,
	} {
		if idx < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return cols, fmt.Errorf("header missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

// parseRow turns one CSV record into a tick. ok=false means the row failed
// validation or classification and should be dropped; a non-nil error means
// the timestamp was unparseable, which is fatal for the file.
func parseRow(record []string, cols columns, resolver *timeparse.Resolver, metas map[string]*model.InstrumentMeta, file string, rowNum int) (model.Tick, bool, error) {
	field := func(i int) string {
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	rawSymbol := field(cols.symbol)
	rawTs := field(cols.timestamp)
	rawRole := field(cols.role)
	rawPrice := field(cols.price)
	rawSize := field(cols.size)
	if rawSymbol == "" || rawTs == "" || rawRole == "" || rawPrice == "" || rawSize == "" {
		return model.Tick{}, false, nil
	}

	price, err := decimal.NewFromString(rawPrice)
	if err != nil || price.Sign() <= 0 {
		return model.Tick{}, false, nil
	}
	size, err := decimal.NewFromString(rawSize)
	if err != nil || size.Sign() <= 0 {
		return model.Tick{}, false, nil
	}
	role, ok := model.ParseRole(rawRole)
	if !ok {
		return model.Tick{}, false, nil
	}

	meta, ok := metas[rawSymbol]
	if !ok {
		parsed, recognized := symbol.Parse(rawSymbol)
		if !recognized {
			return model.Tick{}, false, nil
		}
		meta = parsed
		metas[rawSymbol] = meta
	}

	ts, err := resolver.Resolve(rawTs)
	if err != nil {
		return model.Tick{}, false, err
	}

	return model.Tick{
		ID:        model.TickID(meta.Instrument, ts, price, size, role),
		Timestamp: ts,
		Price:     price,
		Size:      size,
		Role:      role,
		Meta:      meta,
		Provenance: model.Provenance{
			SourceFile: file,
			RowNumber:  rowNum,
		},
	}, true, nil
}
