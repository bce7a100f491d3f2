// Package scanner 逐只扫描股票池：拉当日分钟 K、股本与近一月日均量，计算涨幅与量比，满足突破条件即告警。
// 扫描严格串行，单只失败只记日志并短暂停顿，不中断本轮。
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"smallCapScanner/internal/api"
	"smallCapScanner/internal/filter"
	"smallCapScanner/internal/model"
	"smallCapScanner/internal/trace"
	"smallCapScanner/internal/universe"
)

const defaultErrorPause = 2 * time.Second

// 每扫描多少只打一次进度
const progressEvery = 100

var errZeroSessionOpen = errors.New("session open price is zero")

// Provider 扫描所需的行情能力，由 api.Client 实现。
type Provider interface {
	IntradayBars(ctx context.Context, symbol string) ([]model.Bar, error)
	DailyBars(ctx context.Context, symbol string) ([]model.Bar, error)
	SharesOutstanding(ctx context.Context, symbol string) (model.Lookup, error)
}

// Sink 告警下游（Redis 发布等），发送失败只记日志。
type Sink interface {
	Publish(ctx context.Context, a model.Alert) error
}

type Config struct {
	UniverseFile string
	ErrorPause   time.Duration
	Criterion    filter.Criterion
}

type Scanner struct {
	cfg      Config
	provider Provider
	sinks    []Sink
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration)
}

func New(cfg Config, provider Provider, sinks ...Sink) *Scanner {
	if provider == nil {
		panic("scanner: provider must not be nil")
	}
	if cfg.ErrorPause <= 0 {
		cfg.ErrorPause = defaultErrorPause
	}
	if cfg.Criterion == nil {
		cfg.Criterion = filter.BreakoutStrategy()
	}
	return &Scanner{
		cfg:      cfg,
		provider: provider,
		sinks:    sinks,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// RunPass 读取股票池并扫描一轮。股票池缺失或为空时记错误日志，不发任何网络请求。
func (s *Scanner) RunPass(ctx context.Context) []model.Alert {
	symbols, err := universe.Load(s.cfg.UniverseFile)
	if err != nil {
		trace.Error(ctx, "scanner: Failed to load tickers from file: %v", err)
	} else {
		trace.Log(ctx, "scanner: Loaded %d small-cap tickers from file", len(symbols))
	}
	if len(symbols) == 0 {
		trace.Error(ctx, "scanner: No stock symbols retrieved, aborting scan.")
		return nil
	}
	return s.Scan(ctx, symbols)
}

// Scan 串行扫描 symbols，返回本轮触发的告警。
func (s *Scanner) Scan(ctx context.Context, symbols []string) []model.Alert {
	trace.Log(ctx, "scanner: Scanning %d stocks...", len(symbols))
	var alerts []model.Alert
	for i, sym := range symbols {
		if ctx.Err() != nil {
			trace.Warn(ctx, "scanner: ctx done after %d/%d", i, len(symbols))
			break
		}
		alert, err := s.scanSymbol(ctx, sym)
		if err != nil {
			trace.Error(ctx, "scanner: Error processing %s: %v", sym, err)
			s.sleep(ctx, s.cfg.ErrorPause)
		} else if alert != nil {
			s.emit(ctx, *alert)
			alerts = append(alerts, *alert)
		}
		if n := i + 1; n%progressEvery == 0 {
			trace.Debug(ctx, "scanner: progress %d/%d alerts=%d", n, len(symbols), len(alerts))
		}
	}
	return alerts
}

// scanSymbol 处理单只，数据源 panic 也按错误处理。
func (s *Scanner) scanSymbol(ctx context.Context, sym string) (alert *model.Alert, err error) {
	defer func() {
		if r := recover(); r != nil {
			alert, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	snap, ok, err := s.Snapshot(ctx, sym)
	if err != nil || !ok {
		return nil, err
	}
	if !s.cfg.Criterion(&snap) {
		return nil, nil
	}
	a := model.NewAlert(&snap, s.now())
	return &a, nil
}

// Snapshot 组装单只快照。当日无分钟 K（含数据源返回无数据）时 ok=false 且无错误。
// 会话开盘价取第一根分钟 K 的收盘价。
func (s *Scanner) Snapshot(ctx context.Context, sym string) (model.Snapshot, bool, error) {
	bars, err := s.provider.IntradayBars(ctx, sym)
	if errors.Is(err, api.ErrNoData) {
		trace.Debug(ctx, "scanner: no intraday data for %s: %v", sym, err)
		return model.Snapshot{Symbol: sym}, false, nil
	}
	if err != nil {
		return model.Snapshot{Symbol: sym}, false, fmt.Errorf("intraday: %w", err)
	}
	snap, ok := model.NewSnapshot(sym, bars)
	if !ok {
		return snap, false, nil
	}
	if snap.SessionOpen == 0 {
		return snap, false, errZeroSessionOpen
	}
	snap.Shares = s.sharesOutstanding(ctx, sym)
	snap.AvgVolume = s.averageVolume(ctx, sym)
	return snap, true, nil
}

func (s *Scanner) sharesOutstanding(ctx context.Context, sym string) model.Lookup {
	shares, err := s.provider.SharesOutstanding(ctx, sym)
	if err != nil {
		if !errors.Is(err, api.ErrFieldMissing) {
			trace.Warn(ctx, "scanner: Shares outstanding fetch error for %s: %v", sym, err)
		}
		return model.Missing()
	}
	return shares
}

// averageVolume 近一月日均成交量，跳过成交量缺失的日子；失败或无数据为 Missing（按 0 处理）。
func (s *Scanner) averageVolume(ctx context.Context, sym string) model.Lookup {
	bars, err := s.provider.DailyBars(ctx, sym)
	if err != nil {
		trace.Warn(ctx, "scanner: Volume error for %s: %v", sym, err)
		return model.Missing()
	}
	var sum float64
	var n int
	for i := range bars {
		if !bars[i].HasVolume() {
			continue
		}
		sum += bars[i].Volume
		n++
	}
	if n == 0 {
		return model.Missing()
	}
	return model.Found(sum / float64(n))
}

func (s *Scanner) emit(ctx context.Context, a model.Alert) {
	trace.Log(ctx, "%s", a.String())
	for _, sink := range s.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, a); err != nil {
			trace.Warn(ctx, "scanner: publish alert %s err=%v", a.Symbol, err)
		}
	}
}
