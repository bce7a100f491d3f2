package universe

import (
	"context"
	"errors"
	"fmt"

	"smallCapScanner/internal/filter"
	"smallCapScanner/internal/model"
	"smallCapScanner/internal/trace"
	"smallCapScanner/internal/worker"
)

const (
	defaultWorkers       = 10
	defaultProgressEvery = 500
	jobChannelBuffer     = 50
)

// Source 构建股票池所需的数据源能力。
type Source interface {
	ListedSymbols(ctx context.Context) ([]string, error)
	MarketCap(ctx context.Context, symbol string) (model.Lookup, error)
}

type BuilderConfig struct {
	Path          string
	Workers       int
	ProgressEvery int
}

// Builder 一次性任务：下载清单 -> 并发查市值 -> 保留小盘股 -> 覆盖写文件。手动触发，不在扫描循环内运行。
type Builder struct {
	cfg BuilderConfig
	src Source
}

func NewBuilder(cfg BuilderConfig, src Source) *Builder {
	if src == nil {
		panic("universe: source must not be nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = defaultProgressEvery
	}
	return &Builder{cfg: cfg, src: src}
}

// Build 返回写入文件的小盘股代码（完成顺序）。清单下载失败时不写文件直接返回错误。
func (b *Builder) Build(ctx context.Context) ([]string, error) {
	trace.Log(ctx, "universe: Downloading NASDAQ ticker list...")
	symbols, err := b.src.ListedSymbols(ctx)
	if err != nil {
		trace.Error(ctx, "universe: Failed to download NASDAQ tickers: %v", err)
		return nil, err
	}
	if len(symbols) == 0 {
		err := errors.New("universe: listings contain no symbols")
		trace.Error(ctx, "universe: Failed to download NASDAQ tickers: %v", err)
		return nil, err
	}
	trace.Log(ctx, "universe: Loaded %d tickers from NASDAQ listings", len(symbols))
	trace.Log(ctx, "universe: Filtering small cap stocks (< $%.0fB market cap) with %d workers...",
		filter.SmallCapMax/1e9, b.cfg.Workers)

	smallCaps, err := b.filterSmallCaps(ctx, symbols)
	if err != nil {
		return nil, err
	}
	trace.Log(ctx, "universe: Found %d small cap tickers", len(smallCaps))

	if err := Save(b.cfg.Path, smallCaps); err != nil {
		trace.Error(ctx, "universe: save %s err=%v", b.cfg.Path, err)
		return nil, err
	}
	trace.Log(ctx, "universe: Saved %s", b.cfg.Path)
	return smallCaps, nil
}

func (b *Builder) filterSmallCaps(ctx context.Context, symbols []string) ([]string, error) {
	total := len(symbols)
	every := int64(b.cfg.ProgressEvery)
	jobs := make(chan string, jobChannelBuffer)
	results := make(chan model.CapResult, jobChannelBuffer)
	cfg := worker.Config{
		Concurrency: b.cfg.Workers,
		Filter:      filter.SmallCap,
		OnProcessed: func(n int64) {
			if n%every == 0 || n == int64(total) {
				trace.Log(ctx, "universe: Filtering small caps %d/%d", n, total)
			}
		},
	}
	pool := worker.NewPool(cfg, b.src, jobs, results)

	var smallCaps []string
	done := make(chan struct{})
	go func() {
		for r := range results {
			smallCaps = append(smallCaps, r.Symbol)
		}
		close(done)
	}()

	go pool.Run(ctx)

	for i := range symbols {
		select {
		case <-ctx.Done():
			trace.Warn(ctx, "universe: ctx done, produced %d/%d jobs", i, total)
			goto done
		case jobs <- symbols[i]:
		}
	}
done:
	close(jobs)
	<-done
	trace.Debug(ctx, "universe: processed %d/%d cap lookups", pool.Processed(), total)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("universe: build interrupted: %w", err)
	}
	return smallCaps, nil
}
