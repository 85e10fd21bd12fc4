package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickbase/internal/checkpoint"
	"tickbase/internal/model"
	"tickbase/internal/store"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeGzipFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

const sampleDump = `product_symbol,timestamp,buyer_role,price,size
BTCUSD,2025-08-01T12:00:00Z,taker,65000.5,0.01
BTCUSD,2025-08-01T12:00:01Z,maker,65001,0.02
P-BTC-116000-010825,2025-08-01T12:00:02Z,taker,1200,1
`

func runImport(t *testing.T, st store.TickStore, opts Options, sources ...Source) []FileReport {
	t.Helper()
	reports, err := New(st, opts).Run(context.Background(), sources)
	require.NoError(t, err)
	return reports
}

func TestImportFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dump.csv", sampleDump)
	st := store.NewMemTickStore()

	reports := runImport(t, st, Options{}, Source{Pattern: path})
	require.Len(t, reports, 1)

	rep := reports[0]
	require.NoError(t, rep.Err)
	assert.Equal(t, 3, rep.Inserted)
	assert.Zero(t, rep.Duplicates)
	assert.Zero(t, rep.Dropped)
	assert.Equal(t, 3, st.Count())
}

func TestImportIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dump.csv", sampleDump)
	st := store.NewMemTickStore()

	runImport(t, st, Options{}, Source{Pattern: path})
	reports := runImport(t, st, Options{}, Source{Pattern: path})

	rep := reports[0]
	require.NoError(t, rep.Err)
	assert.Zero(t, rep.Inserted)
	assert.Equal(t, 3, rep.Duplicates)
	assert.Equal(t, 3, st.Count())
}

func TestImportGzip(t *testing.T) {
	dir := t.TempDir()
	path := writeGzipFile(t, dir, "dump.csv.gz", sampleDump)
	st := store.NewMemTickStore()

	reports := runImport(t, st, Options{}, Source{Pattern: path})
	require.NoError(t, reports[0].Err)
	assert.Equal(t, 3, reports[0].Inserted)
}

func TestImportDropsInvalidRows(t *testing.T) {
	dump := `symbol,time,side,price,qty
BTCUSD,2025-08-01T12:00:00Z,buy,65000,0.01
BTCUSD,2025-08-01T12:00:01Z,buy,-1,0.01
BTCUSD,2025-08-01T12:00:02Z,buy,65000,0
BTCUSD,2025-08-01T12:00:03Z,hold,65000,0.01
WEIRD-SYMBOL,2025-08-01T12:00:04Z,buy,65000,0.01
BTCUSD,,buy,65000,0.01
BTCUSD,2025-08-01T12:00:06Z,sell,65002,0.03
`
	dir := t.TempDir()
	path := writeFile(t, dir, "dump.csv", dump)
	st := store.NewMemTickStore()

	reports := runImport(t, st, Options{}, Source{Pattern: path})
	rep := reports[0]
	require.NoError(t, rep.Err)
	assert.Equal(t, 2, rep.Inserted)
	assert.Equal(t, 5, rep.Dropped)
}

func TestImportAbortsOnUnparseableTimestamp(t *testing.T) {
	dump := `product_symbol,timestamp,buyer_role,price,size
BTCUSD,2025-08-01T12:00:00Z,taker,65000,0.01
BTCUSD,yesterday at noon,taker,65001,0.01
BTCUSD,2025-08-01T12:00:02Z,taker,65002,0.01
`
	dir := t.TempDir()
	path := writeFile(t, dir, "dump.csv", dump)
	st := store.NewMemTickStore()

	reports := runImport(t, st, Options{}, Source{Pattern: path})
	rep := reports[0]
	require.Error(t, rep.Err)
	assert.Contains(t, rep.Err.Error(), "row 3")
	// The valid row before the failure still lands in the store.
	assert.Equal(t, 1, rep.Inserted)
	assert.Equal(t, 1, st.Count())
}

func TestImportMissingColumnsFailsFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dump.csv", "symbol,price\nBTCUSD,65000\n")
	st := store.NewMemTickStore()

	reports := runImport(t, st, Options{}, Source{Pattern: path})
	require.Error(t, reports[0].Err)
	assert.Contains(t, reports[0].Err.Error(), "missing required columns")
	assert.Zero(t, st.Count())
}

func TestImportTimeOnlyUsesSourceSeedDay(t *testing.T) {
	dump := `product_symbol,timestamp,buyer_role,price,size
BTCUSD,09:30:00,taker,65000,0.01
`
	dir := t.TempDir()
	path := writeFile(t, dir, "dump.csv", dump)
	st := store.NewMemTickStore()

	day := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	reports := runImport(t, st, Options{}, Source{Pattern: path, StartDay: day})
	require.NoError(t, reports[0].Err)

	ticks, err := st.QueryRange(context.Background(), "BTCUSD", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, time.Date(2025, 8, 1, 9, 30, 0, 0, time.UTC), ticks[0].Timestamp.UTC())
}

func TestImportFailedFileDoesNotStopSiblings(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.csv", "symbol,price\nBTCUSD,1\n")
	writeFile(t, dir, "b.csv", sampleDump)
	st := store.NewMemTickStore()

	reports := runImport(t, st, Options{}, Source{Pattern: filepath.Join(dir, "*.csv")})
	require.Len(t, reports, 2)
	assert.Error(t, reports[0].Err)
	require.NoError(t, reports[1].Err)
	assert.Equal(t, 3, reports[1].Inserted)
}

func TestImportSkipsCheckpointedFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dump.csv", sampleDump)
	cp, err := checkpoint.NewStore(t.TempDir())
	require.NoError(t, err)
	st := store.NewMemTickStore()

	first := runImport(t, st, Options{Checkpoints: cp}, Source{Pattern: path})
	require.NoError(t, first[0].Err)
	assert.False(t, first[0].Skipped)

	second := runImport(t, st, Options{Checkpoints: cp}, Source{Pattern: path})
	assert.True(t, second[0].Skipped)
	assert.Zero(t, second[0].Inserted)
	assert.Equal(t, 3, st.Count())
}

// slowStore bounds-checks batch sizes and delays every flush, so the producer
// must block on the hand-off channel rather than buffer rows.
type slowStore struct {
	mu       sync.Mutex
	inner    *store.MemTickStore
	maxBatch int
	limit    int
	t        *testing.T
}

func (s *slowStore) InsertBatch(ctx context.Context, family model.ContractType, ticks []model.Tick) (model.BatchResult, error) {
	s.mu.Lock()
	if len(ticks) > s.maxBatch {
		s.maxBatch = len(ticks)
	}
	if len(ticks) > s.limit {
		s.t.Errorf("batch of %d exceeds limit %d", len(ticks), s.limit)
	}
	s.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	return s.inner.InsertBatch(ctx, family, ticks)
}

func (s *slowStore) FindEarliest(ctx context.Context, instrument string) (time.Time, error) {
	return s.inner.FindEarliest(ctx, instrument)
}

func (s *slowStore) FindLatest(ctx context.Context, instrument string) (time.Time, error) {
	return s.inner.FindLatest(ctx, instrument)
}

func (s *slowStore) QueryRange(ctx context.Context, instrument string, from, to time.Time) ([]model.Tick, error) {
	return s.inner.QueryRange(ctx, instrument, from, to)
}

func TestImportBoundsBatchesUnderSlowStore(t *testing.T) {
	var dump = "product_symbol,timestamp,buyer_role,price,size\n"
	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 500; i++ {
		dump += fmt.Sprintf("BTCUSD,%s,taker,%d,0.01\n", base.Add(time.Duration(i)*time.Second).Format(time.RFC3339), 65000+i)
	}
	dir := t.TempDir()
	path := writeFile(t, dir, "dump.csv", dump)

	st := &slowStore{inner: store.NewMemTickStore(), limit: 50, t: t}
	reports := runImport(t, st, Options{BatchSize: 50}, Source{Pattern: path})

	rep := reports[0]
	require.NoError(t, rep.Err)
	assert.Equal(t, 500, rep.Inserted)
	assert.Equal(t, 500, st.inner.Count())
	assert.LessOrEqual(t, st.maxBatch, 50)
}

// failStore rejects every flush.
type failStore struct{ store.MemTickStore }

func (s *failStore) InsertBatch(context.Context, model.ContractType, []model.Tick) (model.BatchResult, error) {
	return model.BatchResult{}, errors.New("connection refused")
}

func TestImportCountsLostRowsOnStoreFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dump.csv", sampleDump)

	reports := runImport(t, &failStore{}, Options{}, Source{Pattern: path})
	rep := reports[0]
	require.NoError(t, rep.Err)
	assert.Zero(t, rep.Inserted)
	assert.Equal(t, 3, rep.Lost)
}

func TestImportDoesNotCheckpointFilesWithLostRows(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dump.csv", sampleDump)
	cp, err := checkpoint.NewStore(t.TempDir())
	require.NoError(t, err)

	// Every flush fails: the rows are lost but the file-level error is nil.
	first := runImport(t, &failStore{}, Options{Checkpoints: cp}, Source{Pattern: path})
	require.NoError(t, first[0].Err)
	require.Equal(t, 3, first[0].Lost)

	// The retry against a healthy store must re-read the file, not skip it.
	st := store.NewMemTickStore()
	second := runImport(t, st, Options{Checkpoints: cp}, Source{Pattern: path})
	assert.False(t, second[0].Skipped)
	assert.Equal(t, 3, second[0].Inserted)
	assert.Equal(t, 3, st.Count())
}
