package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"FinChart/internal/domain/models"
	domrepo "FinChart/internal/domain/repository"
)

// MemoryBarStore keeps bars in process. It backs tests and the default
// single-binary setup, optionally seeded from a JSON file of bars.
type MemoryBarStore struct {
	mu   sync.RWMutex
	bars map[string][]models.Bar // symbol:interval -> ascending by time
	now  func() time.Time
}

type MemoryOption func(*MemoryBarStore)

// WithMemoryClock pins "now" so lookback windows are deterministic.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryBarStore) { s.now = now }
}

func NewMemoryBarStore(opts ...MemoryOption) *MemoryBarStore {
	s := &MemoryBarStore{bars: make(map[string][]models.Bar), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadFile seeds the store from a JSON array of bars.
func (s *MemoryBarStore) LoadFile(ctx context.Context, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var bars []models.Bar
	if err := json.Unmarshal(b, &bars); err != nil {
		return fmt.Errorf("parse seed: %w", err)
	}
	return s.StoreBatch(ctx, bars)
}

func (s *MemoryBarStore) Init(context.Context) error { return nil }

func (s *MemoryBarStore) StoreBatch(_ context.Context, bars []models.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]struct{})
	for _, b := range bars {
		if !validBar(b) {
			continue
		}
		b.Symbol = normalizeSymbol(b.Symbol)
		b.Time = b.Time.UTC()
		k := memKey(b.Symbol, b.Interval)
		s.bars[k] = upsertBar(s.bars[k], b)
		touched[k] = struct{}{}
	}
	for k := range touched {
		list := s.bars[k]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Time.Before(list[j].Time) })
	}
	return nil
}

func upsertBar(list []models.Bar, b models.Bar) []models.Bar {
	for i := range list {
		if list[i].Time.Equal(b.Time) {
			list[i] = b
			return list
		}
	}
	return append(list, b)
}

func (s *MemoryBarStore) Query(_ context.Context, symbol, interval string, from, to time.Time) ([]models.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.bars[memKey(normalizeSymbol(symbol), interval)]
	lo := sort.Search(len(list), func(i int) bool { return !list[i].Time.Before(from) })
	out := make([]models.Bar, 0, len(list)-lo)
	for _, b := range list[lo:] {
		if b.Time.After(to) {
			break
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *MemoryBarStore) Ticks(ctx context.Context, symbol string, g models.Granularity) ([]models.RawPricePoint, error) {
	return ticksFromStore(ctx, s, s.now(), symbol, g)
}

func (s *MemoryBarStore) Health(context.Context) error { return nil }

func (s *MemoryBarStore) Close() error { return nil }

func memKey(symbol, interval string) string { return symbol + ":" + interval }

var _ domrepo.TickStorage = (*MemoryBarStore)(nil)
