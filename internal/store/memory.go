package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"tickbase/internal/model"
)

// MemTickStore is an in-memory TickStore used by tests and dry runs. It
// mirrors the duplicate-tolerant semantics of the Postgres store.
type MemTickStore struct {
	mu    sync.Mutex
	ticks map[model.ContractType]map[string]model.Tick
}

func NewMemTickStore() *MemTickStore {
	return &MemTickStore{ticks: map[model.ContractType]map[string]model.Tick{
		model.ContractFutures: {},
		model.ContractOptions: {},
	}}
}

func (s *MemTickStore) InsertBatch(_ context.Context, family model.ContractType, ticks []model.Tick) (model.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res model.BatchResult
	part := s.ticks[family]
	if part == nil {
		part = map[string]model.Tick{}
		s.ticks[family] = part
	}
	for _, t := range ticks {
		if _, dup := part[t.ID]; dup {
			res.Duplicates++
			continue
		}
		part[t.ID] = t
		res.Inserted++
	}
	return res, nil
}

func (s *MemTickStore) FindEarliest(_ context.Context, instrument string) (time.Time, error) {
	return s.extreme(instrument, func(a, b time.Time) bool { return a.Before(b) })
}

func (s *MemTickStore) FindLatest(_ context.Context, instrument string) (time.Time, error) {
	return s.extreme(instrument, func(a, b time.Time) bool { return a.After(b) })
}

func (s *MemTickStore) extreme(instrument string, better func(a, b time.Time) bool) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best time.Time
	found := false
	for _, part := range s.ticks {
		for _, t := range part {
			if t.Meta.Instrument != instrument {
				continue
			}
			if !found || better(t.Timestamp, best) {
				best = t.Timestamp
				found = true
			}
		}
	}
	if !found {
		return time.Time{}, ErrNoTicks
	}
	return best, nil
}

func (s *MemTickStore) QueryRange(_ context.Context, instrument string, from, to time.Time) ([]model.Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Tick
	for _, part := range s.ticks {
		for _, t := range part {
			if t.Meta.Instrument != instrument {
				continue
			}
			if t.Timestamp.Before(from) || !t.Timestamp.Before(to) {
				continue
			}
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Count reports the total number of stored ticks.
func (s *MemTickStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, part := range s.ticks {
		n += len(part)
	}
	return n
}

// MemCandleStore is an in-memory CandleStore with duplicate-tolerant inserts.
type MemCandleStore struct {
	mu      sync.Mutex
	candles map[string]model.Candle
}

func NewMemCandleStore() *MemCandleStore {
	return &MemCandleStore{candles: map[string]model.Candle{}}
}

func (s *MemCandleStore) InsertBatch(_ context.Context, candles []model.Candle) (model.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res model.BatchResult
	for _, c := range candles {
		if _, dup := s.candles[c.ID]; dup {
			res.Duplicates++
			continue
		}
		s.candles[c.ID] = c
		res.Inserted++
	}
	return res, nil
}

func (s *MemCandleStore) QueryRange(_ context.Context, instrument, interval string, from, to time.Time) ([]model.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Candle
	for _, c := range s.candles {
		if c.Instrument != instrument || c.Interval != interval {
			continue
		}
		if c.BucketStart.Before(from) || !c.BucketStart.Before(to) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketStart.Before(out[j].BucketStart) })
	return out, nil
}

// All returns every stored candle keyed by id.
func (s *MemCandleStore) All() map[string]model.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.Candle, len(s.candles))
	for k, v := range s.candles {
		out[k] = v
	}
	return out
}
