package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "tickbase/internal/cache"
	"tickbase/internal/model"
	"tickbase/internal/symbol"
)

// maxInsertRows keeps multi-row inserts well under the Postgres parameter
// limit (65535) at 14 columns per tick.
const maxInsertRows = 500

const tickColumns = `id, instrument, asset, contract_type, option_type, strike, expiry, currency, ts, price, size, role, source_file, row_number`

// TickTables names the per-family tick tables.
type TickTables struct {
	Futures string
	Options string
}

// PgTickStore persists ticks to Postgres, one table per contract family,
// with optional Redis caching of per-instrument extremes.
type PgTickStore struct {
	conn   sqlx.SqlConn
	tables TickTables
	cache  gocache.Cache
	ttl    cachekeys.TTLSet
}

// NewPgTickStore wires a tick store. Cache may be nil.
func NewPgTickStore(conn sqlx.SqlConn, tables TickTables, cache gocache.Cache, ttl cachekeys.TTLSet) *PgTickStore {
	if tables.Futures == "" {
		tables.Futures = "fut_ticks"
	}
	if tables.Options == "" {
		tables.Options = "opt_ticks"
	}
	return &PgTickStore{conn: conn, tables: tables, cache: cache, ttl: ttl}
}

func (s *PgTickStore) tableForFamily(family model.ContractType) (string, error) {
	switch family {
	case model.ContractFutures:
		return s.tables.Futures, nil
	case model.ContractOptions:
		return s.tables.Options, nil
	default:
		return "", fmt.Errorf("store: unknown contract family %q", family)
	}
}

func (s *PgTickStore) tableForInstrument(instrument string) (string, error) {
	meta, ok := symbol.Parse(instrument)
	if !ok {
		return "", fmt.Errorf("store: unrecognized instrument %q", instrument)
	}
	return s.tableForFamily(meta.ContractType)
}

// InsertBatch bulk-inserts ticks with ON CONFLICT DO NOTHING. Rows already
// present collide on id and are counted as duplicates. A failed sub-insert is
// logged and its rows counted as lost; the rest of the batch proceeds.
func (s *PgTickStore) InsertBatch(ctx context.Context, family model.ContractType, ticks []model.Tick) (model.BatchResult, error) {
	var res model.BatchResult
	if len(ticks) == 0 {
		return res, nil
	}
	table, err := s.tableForFamily(family)
	if err != nil {
		return res, err
	}
	for start := 0; start < len(ticks); start += maxInsertRows {
		end := start + maxInsertRows
		if end > len(ticks) {
			end = len(ticks)
		}
		chunk := ticks[start:end]
		inserted, err := s.insertChunk(ctx, table, chunk)
		if err != nil {
			logx.WithContext(ctx).Errorf("tick insert into %s failed, %d rows lost: %v", table, len(chunk), err)
			res.Lost += len(chunk)
			continue
		}
		res.Inserted += inserted
		res.Duplicates += len(chunk) - inserted
	}
	if res.Inserted > 0 {
		seen := make(map[string]struct{}, 1)
		for i := range ticks {
			inst := ticks[i].Meta.Instrument
			if _, ok := seen[inst]; ok {
				continue
			}
			seen[inst] = struct{}{}
			s.invalidateExtremes(ctx, inst)
		}
	}
	return res, nil
}

func (s *PgTickStore) insertChunk(ctx context.Context, table string, chunk []model.Tick) (int, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, tickColumns)
	args := make([]any, 0, len(chunk)*14)
	for i, t := range chunk {
		if i > 0 {
			sb.WriteByte(',')
		}
		base := i * 14
		sb.WriteByte('(')
		for j := 1; j <= 14; j++ {
			if j > 1 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, "$%d", base+j)
		}
		sb.WriteByte(')')

		meta := t.Meta
		optType := sql.NullString{String: string(meta.OptionType), Valid: meta.OptionType != ""}
		strike := decimal.NullDecimal{Decimal: meta.Strike, Valid: meta.ContractType == model.ContractOptions}
		expiry := sql.NullTime{Time: meta.Expiry, Valid: !meta.Expiry.IsZero()}
		args = append(args,
			t.ID,
			meta.Instrument,
			meta.Asset,
			string(meta.ContractType),
			optType,
			strike,
			expiry,
			meta.Currency,
			t.Timestamp.UTC(),
			t.Price,
			t.Size,
			string(t.Role),
			t.Provenance.SourceFile,
			t.Provenance.RowNumber,
		)
	}
	sb.WriteString(" ON CONFLICT (id) DO NOTHING")

	result, err := s.conn.ExecCtx(ctx, sb.String(), args...)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// FindEarliest returns the timestamp of the instrument's first stored tick.
func (s *PgTickStore) FindEarliest(ctx context.Context, instrument string) (time.Time, error) {
	return s.findExtreme(ctx, instrument, "MIN", cachekeys.TickEarliestKey(instrument))
}

// FindLatest returns the timestamp of the instrument's last stored tick.
func (s *PgTickStore) FindLatest(ctx context.Context, instrument string) (time.Time, error) {
	return s.findExtreme(ctx, instrument, "MAX", cachekeys.TickLatestKey(instrument))
}

func (s *PgTickStore) findExtreme(ctx context.Context, instrument, agg, key string) (time.Time, error) {
	if ms, ok := s.getCachedMs(ctx, key); ok {
		return time.UnixMilli(ms).UTC(), nil
	}
	table, err := s.tableForInstrument(instrument)
	if err != nil {
		return time.Time{}, err
	}
	query := fmt.Sprintf("SELECT %s(ts) FROM %s WHERE instrument = $1", agg, table)
	var ts sql.NullTime
	if err := s.conn.QueryRowCtx(ctx, &ts, query, instrument); err != nil {
		return time.Time{}, fmt.Errorf("query %s(ts) for %s: %w", agg, instrument, err)
	}
	if !ts.Valid {
		return time.Time{}, ErrNoTicks
	}
	s.setCachedMs(ctx, key, ts.Time.UnixMilli())
	return ts.Time.UTC(), nil
}

type tickRow struct {
	Id           string              `db:"id"`
	Instrument   string              `db:"instrument"`
	Asset        string              `db:"asset"`
	ContractType string              `db:"contract_type"`
	OptionType   sql.NullString      `db:"option_type"`
	Strike       decimal.NullDecimal `db:"strike"`
	Expiry       sql.NullTime        `db:"expiry"`
	Currency     string              `db:"currency"`
	Ts           time.Time           `db:"ts"`
	Price        decimal.Decimal     `db:"price"`
	Size         decimal.Decimal     `db:"size"`
	Role         string              `db:"role"`
	SourceFile   string              `db:"source_file"`
	RowNumber    int64               `db:"row_number"`
}

// QueryRange returns ticks in [from, to) sorted by timestamp; the id breaks
// ties so ordering is stable across runs.
func (s *PgTickStore) QueryRange(ctx context.Context, instrument string, from, to time.Time) ([]model.Tick, error) {
	table, err := s.tableForInstrument(instrument)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE instrument = $1 AND ts >= $2 AND ts < $3 ORDER BY ts ASC, id ASC",
		tickColumns, table,
	)
	var rows []tickRow
	if err := s.conn.QueryRowsCtx(ctx, &rows, query, instrument, from.UTC(), to.UTC()); err != nil {
		return nil, fmt.Errorf("query tick range for %s: %w", instrument, err)
	}

	ticks := make([]model.Tick, 0, len(rows))
	var meta *model.InstrumentMeta
	for i := range rows {
		row := &rows[i]
		if meta == nil {
			meta = metaFromRow(row)
		}
		ticks = append(ticks, model.Tick{
			ID:        row.Id,
			Timestamp: row.Ts.UTC(),
			Price:     row.Price,
			Size:      row.Size,
			Role:      model.Role(row.Role),
			Meta:      meta,
			Provenance: model.Provenance{
				SourceFile: row.SourceFile,
				RowNumber:  int(row.RowNumber),
			},
		})
	}
	return ticks, nil
}

func metaFromRow(row *tickRow) *model.InstrumentMeta {
	meta := &model.InstrumentMeta{
		Instrument:   row.Instrument,
		Asset:        row.Asset,
		ContractType: model.ContractType(row.ContractType),
		Currency:     row.Currency,
	}
	if row.OptionType.Valid {
		meta.OptionType = model.OptionType(row.OptionType.String)
	}
	if row.Strike.Valid {
		meta.Strike = row.Strike.Decimal
	}
	if row.Expiry.Valid {
		meta.Expiry = row.Expiry.Time.UTC()
	}
	return meta
}

// --- extremes cache ---------------------------------------------------------

func (s *PgTickStore) getCachedMs(ctx context.Context, key string) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	var ms int64
	if err := s.cache.GetCtx(ctx, key, &ms); err != nil {
		if !s.cache.IsNotFound(err) {
			logx.WithContext(ctx).Errorf("get cache %s: %v", key, err)
		}
		return 0, false
	}
	return ms, true
}

func (s *PgTickStore) setCachedMs(ctx context.Context, key string, ms int64) {
	if s.cache == nil {
		return
	}
	ttl := cachekeys.TickExtremesTTL(s.ttl)
	if ttl <= 0 {
		return
	}
	if err := s.cache.SetWithExpireCtx(ctx, key, ms, ttl); err != nil {
		logx.WithContext(ctx).Errorf("set cache %s: %v", key, err)
	}
}

func (s *PgTickStore) invalidateExtremes(ctx context.Context, instrument string) {
	if s.cache == nil {
		return
	}
	for _, key := range []string{cachekeys.TickEarliestKey(instrument), cachekeys.TickLatestKey(instrument)} {
		if err := s.cache.DelCtx(ctx, key); err != nil && !s.cache.IsNotFound(err) {
			logx.WithContext(ctx).Errorf("del cache %s: %v", key, err)
		}
	}
}
