// Package worker 提供市值查询任务池：消费代码队列、并发查询市值、按条件过滤后输出。
package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"smallCapScanner/internal/model"
	"smallCapScanner/internal/trace"
)

const defaultConcurrency = 10

// CapFetcher 单只股票市值查询，由 api.Client 实现。
type CapFetcher interface {
	MarketCap(ctx context.Context, symbol string) (model.Lookup, error)
}

// Filter 对查询结果做是否保留判断。
type Filter func(model.CapResult) bool

// DefaultFilter 仅保留查询成功的结果
func DefaultFilter(r model.CapResult) bool {
	return r.MarketCap.OK
}

// Config 控制并发数、筛选逻辑与进度回调（每处理完一只调用一次，n 为累计数）。
type Config struct {
	Concurrency int
	Filter      Filter
	OnProcessed func(n int64)
}

func DefaultConfig() Config {
	return Config{Concurrency: defaultConcurrency, Filter: DefaultFilter}
}

// Pool 从 jobs 取代码，查询市值，经 Filter 通过后写入 results。
// 单只失败只影响该只，不中断整批；结果按完成顺序输出。
type Pool struct {
	cfg       Config
	fetcher   CapFetcher
	jobs      <-chan string
	out       chan<- model.CapResult
	processed atomic.Int64
}

func NewPool(cfg Config, fetcher CapFetcher, jobs <-chan string, results chan<- model.CapResult) *Pool {
	if fetcher == nil {
		panic("worker: fetcher must not be nil")
	}
	if jobs == nil || results == nil {
		panic("worker: jobs and results channels must not be nil")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Filter == nil {
		cfg.Filter = DefaultFilter
	}
	return &Pool{
		cfg:     cfg,
		fetcher: fetcher,
		jobs:    jobs,
		out:     results,
	}
}

// Run 阻塞直到 jobs 关闭且全部处理完（或 ctx 取消），结束时关闭 results。
func (p *Pool) Run(ctx context.Context) {
	trace.Debug(ctx, "worker: Pool.Run start concurrency=%d", p.cfg.Concurrency)
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.runWorker(ctx, id)
		}(i)
	}
	wg.Wait()
	close(p.out)
	trace.Debug(ctx, "worker: Pool.Run done processed=%d", p.processed.Load())
}

// Processed 已处理（无论成败）的数量
func (p *Pool) Processed() int64 {
	return p.processed.Load()
}

func (p *Pool) runWorker(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case sym, ok := <-p.jobs:
			if !ok {
				return
			}
			res := p.fetch(ctx, sym)
			n := p.processed.Add(1)
			if p.cfg.OnProcessed != nil {
				p.cfg.OnProcessed(n)
			}
			if !p.cfg.Filter(res) {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case p.out <- res:
			}
		}
	}
}

func (p *Pool) fetch(ctx context.Context, sym string) (res model.CapResult) {
	res = model.CapResult{Symbol: sym, MarketCap: model.Missing()}
	// 数据源异常不能拖垮整批
	defer func() {
		if r := recover(); r != nil {
			trace.Warn(ctx, "worker: MarketCap symbol=%s panic=%v", sym, r)
			res.MarketCap = model.Missing()
		}
	}()
	mc, err := p.fetcher.MarketCap(ctx, sym)
	if err != nil {
		trace.Debug(ctx, "worker: MarketCap symbol=%s err=%v", sym, err)
		return res
	}
	res.MarketCap = mc
	return res
}
