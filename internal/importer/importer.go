// Package importer streams raw exchange tick dumps into the tick store.
// Each file is one sequential producer feeding a bounded hand-off to a flush
// loop, so peak memory stays at one batch regardless of file size.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/sync/errgroup"

	"tickbase/internal/checkpoint"
	"tickbase/internal/model"
	"tickbase/internal/store"
	"tickbase/internal/timeparse"
)

// Options configures an import run.
type Options struct {
	BatchSize          int
	MaxConcurrentFiles int
	FlushInterval      time.Duration
	// StartDay seeds time-only timestamp resolution for every file; per-source
	// days take precedence, file-path inference is the fallback.
	StartDay time.Time
	// Checkpoints, when set, lets a re-run skip files already fully imported.
	Checkpoints *checkpoint.Store
}

// Source is one glob pattern with an optional seed day override.
type Source struct {
	Pattern  string
	StartDay time.Time
}

// FileReport is the per-file outcome of an import.
type FileReport struct {
	File       string
	Inserted   int
	Duplicates int
	Dropped    int
	Lost       int
	Skipped    bool // completed in an earlier run (checkpoint hit)
	Err        error
}

// Importer ingests tick dump files into the tick store.
type Importer struct {
	store store.TickStore
	opts  Options
}

// New wires an importer. Zero option fields get conservative defaults.
func New(st store.TickStore, opts Options) *Importer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5000
	}
	if opts.MaxConcurrentFiles <= 0 {
		opts.MaxConcurrentFiles = 1
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	return &Importer{store: st, opts: opts}
}

// Run expands every source pattern and imports the matched files, up to
// MaxConcurrentFiles in parallel. A failed file is reported and does not
// stop its siblings; only context cancellation stops the run early.
func (imp *Importer) Run(ctx context.Context, sources []Source) ([]FileReport, error) {
	type job struct {
		path     string
		startDay time.Time
	}
	var jobs []job
	seen := map[string]struct{}{}
	for _, src := range sources {
		matches, err := filepath.Glob(src.Pattern)
		if err != nil {
			return nil, fmt.Errorf("bad glob pattern %q: %w", src.Pattern, err)
		}
		for _, path := range matches {
			if _, dup := seen[path]; dup {
				continue
			}
			seen[path] = struct{}{}
			day := src.StartDay
			if day.IsZero() {
				day = imp.opts.StartDay
			}
			jobs = append(jobs, job{path: path, startDay: day})
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].path < jobs[j].path })

	reports := make([]FileReport, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(imp.opts.MaxConcurrentFiles)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				reports[i] = FileReport{File: j.path, Err: err}
				return nil
			}
			if rec, ok := imp.checkpointFor(j.path); ok {
				logx.WithContext(ctx).Infof("skipping %s: imported %s (%d rows)",
					j.path, rec.CompletedAt.Format(time.RFC3339), rec.Inserted)
				reports[i] = FileReport{File: j.path, Skipped: true}
				return nil
			}
			rep := imp.importFile(ctx, j.path, j.startDay)
			reports[i] = rep
			// Lost rows are only recoverable by re-reading the file, so a
			// file with losses must not be checkpointed as done.
			if rep.Err == nil && rep.Lost == 0 {
				imp.saveCheckpoint(rep)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}
	return reports, nil
}

func (imp *Importer) checkpointFor(path string) (*checkpoint.Record, bool) {
	if imp.opts.Checkpoints == nil {
		return nil, false
	}
	return imp.opts.Checkpoints.Load(path)
}

func (imp *Importer) saveCheckpoint(rep FileReport) {
	if imp.opts.Checkpoints == nil {
		return
	}
	err := imp.opts.Checkpoints.Save(checkpoint.Record{
		File:        rep.File,
		Inserted:    rep.Inserted,
		Duplicates:  rep.Duplicates,
		Dropped:     rep.Dropped,
		CompletedAt: time.Now().UTC(),
	})
	if err != nil {
		logx.Errorf("save checkpoint for %s: %v", rep.File, err)
	}
}

type flushTotals struct {
	inserted   int
	duplicates int
	lost       int
}

func (imp *Importer) importFile(ctx context.Context, path string, startDay time.Time) FileReport {
	rep := FileReport{File: path}

	f, err := os.Open(path)
	if err != nil {
		rep.Err = fmt.Errorf("open %s: %w", path, err)
		return rep
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			rep.Err = fmt.Errorf("gunzip %s: %w", path, err)
			return rep
		}
		defer zr.Close()
		reader = zr
	}

	cr := csv.NewReader(reader)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		rep.Err = fmt.Errorf("read header of %s: %w", path, err)
		return rep
	}
	cols, err := mapColumns(header)
	if err != nil {
		rep.Err = fmt.Errorf("%s: %w", path, err)
		return rep
	}

	resolver := timeparse.NewResolverForFile(path, startDay)
	metas := map[string]*model.InstrumentMeta{}

	// Unbuffered hand-off: the producer blocks whenever the flush loop is
	// busy, bounding unflushed rows to one batch plus the row in flight.
	rows := make(chan model.Tick)
	done := make(chan flushTotals, 1)
	go imp.flushLoop(ctx, rows, done)

	var fatal error
	rowNum := 1 // header consumed
produce:
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				rowNum++
				rep.Dropped++
				continue
			}
			fatal = fmt.Errorf("read %s: %w", path, err)
			break
		}
		rowNum++

		tick, ok, err := parseRow(record, cols, resolver, metas, path, rowNum)
		if err != nil {
			fatal = fmt.Errorf("%s row %d: %w", path, rowNum, err)
			break
		}
		if !ok {
			rep.Dropped++
			continue
		}
		select {
		case rows <- tick:
		case <-ctx.Done():
			fatal = ctx.Err()
			break produce
		}
	}
	close(rows)
	totals := <-done

	rep.Inserted = totals.inserted
	rep.Duplicates = totals.duplicates
	rep.Lost = totals.lost
	rep.Err = fatal
	return rep
}

// flushLoop drains the row channel into per-family batches and flushes when
// the combined pending size reaches one batch or the flush interval elapses.
// Flushing happens inline, which is what pauses the producer.
func (imp *Importer) flushLoop(ctx context.Context, rows <-chan model.Tick, done chan<- flushTotals) {
	batches := map[model.ContractType][]model.Tick{}
	pending := 0
	var totals flushTotals

	flush := func() {
		for family, batch := range batches {
			if len(batch) == 0 {
				continue
			}
			res, err := imp.store.InsertBatch(ctx, family, batch)
			if err != nil {
				logx.WithContext(ctx).Errorf("flush %d %s ticks failed, rows lost: %v", len(batch), family, err)
				totals.lost += len(batch)
			} else {
				totals.inserted += res.Inserted
				totals.duplicates += res.Duplicates
				totals.lost += res.Lost
			}
			batches[family] = batch[:0]
		}
		pending = 0
	}

	ticker := time.NewTicker(imp.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case tick, ok := <-rows:
			if !ok {
				flush()
				done <- totals
				return
			}
			family := tick.Meta.ContractType
			batches[family] = append(batches[family], tick)
			pending++
			if pending >= imp.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			if pending > 0 {
				flush()
			}
		}
	}
}
