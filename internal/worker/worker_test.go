package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"smallCapScanner/internal/model"
)

type fakeFetcher struct {
	caps     map[string]float64
	fail     map[string]bool
	panics   map[string]bool
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeFetcher) MarketCap(ctx context.Context, symbol string) (model.Lookup, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panics[symbol] {
		panic("boom")
	}
	if f.fail[symbol] {
		return model.Missing(), errors.New("lookup failed")
	}
	v, ok := f.caps[symbol]
	if !ok {
		return model.Missing(), nil
	}
	return model.Found(v), nil
}

func runPool(t *testing.T, cfg Config, f CapFetcher, symbols []string) []model.CapResult {
	t.Helper()
	jobs := make(chan string)
	results := make(chan model.CapResult)
	pool := NewPool(cfg, f, jobs, results)

	var out []model.CapResult
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for r := range results {
			out = append(out, r)
		}
	}()
	go pool.Run(context.Background())
	for _, s := range symbols {
		jobs <- s
	}
	close(jobs)
	wg.Wait()
	return out
}

func TestPoolIsolatesFailures(t *testing.T) {
	f := &fakeFetcher{
		caps:   map[string]float64{"A": 1e9, "B": 5e9, "C": 3e8, "E": 2e8},
		fail:   map[string]bool{"D": true},
		panics: map[string]bool{"P": true},
	}
	out := runPool(t, DefaultConfig(), f, []string{"A", "B", "C", "D", "E", "P", "Z"})
	var got []string
	for _, r := range out {
		got = append(got, r.Symbol)
	}
	sort.Strings(got)
	want := []string{"A", "B", "C", "E"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestPoolAppliesFilterAndCountsAll(t *testing.T) {
	f := &fakeFetcher{caps: map[string]float64{"A": 1, "B": 2, "C": 3}}
	var last atomic.Int64
	cfg := Config{
		Concurrency: 2,
		Filter:      func(r model.CapResult) bool { return r.MarketCap.OK && r.MarketCap.Value >= 2 },
		OnProcessed: func(n int64) {
			for {
				cur := last.Load()
				if n <= cur || last.CompareAndSwap(cur, n) {
					return
				}
			}
		},
	}
	out := runPool(t, cfg, f, []string{"A", "B", "C", "X"})
	if len(out) != 2 {
		t.Errorf("len(out) = %d, want 2", len(out))
	}
	if last.Load() != 4 {
		t.Errorf("processed = %d, want 4", last.Load())
	}
}

func TestPoolRespectsConcurrency(t *testing.T) {
	caps := map[string]float64{}
	var symbols []string
	for i := 0; i < 40; i++ {
		s := string(rune('A'+i%26)) + string(rune('a'+i/26))
		caps[s] = 1
		symbols = append(symbols, s)
	}
	f := &fakeFetcher{caps: caps, delay: 5 * time.Millisecond}
	out := runPool(t, Config{Concurrency: 3}, f, symbols)
	if len(out) != len(symbols) {
		t.Errorf("len(out) = %d, want %d", len(out), len(symbols))
	}
	if m := f.maxSeen.Load(); m > 3 {
		t.Errorf("max in flight = %d, want <= 3", m)
	}
}

func TestPoolStopsOnCancel(t *testing.T) {
	f := &fakeFetcher{caps: map[string]float64{"A": 1}}
	jobs := make(chan string)
	results := make(chan model.CapResult)
	pool := NewPool(DefaultConfig(), f, jobs, results)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after cancel")
	}
	if _, ok := <-results; ok {
		t.Error("results should be closed")
	}
}
