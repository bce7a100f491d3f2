package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"smallCapScanner/internal/model"
	"smallCapScanner/internal/trace"
)

const defaultInterval = 300 * time.Second

// Passer 执行一轮完整扫描。
type Passer interface {
	RunPass(ctx context.Context) []model.Alert
}

// AlertsHandler 每轮扫描结束后处理本轮告警（如汇总邮件）。
type AlertsHandler func(ctx context.Context, alerts []model.Alert)

type LoopConfig struct {
	Interval time.Duration
}

// Loop 每个周期检查一次是否开市：开市则扫描一轮，否则只记日志。循环直到 ctx 取消。
type Loop struct {
	cfg      LoopConfig
	market   *Market
	scanner  Passer
	onAlerts AlertsHandler
	now      func() time.Time
}

func NewLoop(cfg LoopConfig, market *Market, scanner Passer, onAlerts AlertsHandler) *Loop {
	if market == nil || scanner == nil {
		panic("schedule: market and scanner must not be nil")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Loop{
		cfg:      cfg,
		market:   market,
		scanner:  scanner,
		onAlerts: onAlerts,
		now:      time.Now,
	}
}

// Tick 单次迭代，返回本次是否开市及触发的告警。
func (l *Loop) Tick(ctx context.Context) (bool, []model.Alert) {
	ctx = trace.WithTraceID(ctx, trace.NewTraceID())
	session, open := l.market.SessionAt(l.now())
	if !open {
		trace.Log(ctx, "schedule: Market closed. Waiting for next open market hour...")
		return false, nil
	}
	trace.Debug(ctx, "schedule: session=%s", session.Name)
	alerts := l.scanner.RunPass(ctx)
	trace.Log(ctx, "schedule: Scan completed with %d alerts. Waiting %s for next run...",
		len(alerts), l.cfg.Interval.Round(time.Second))
	if l.onAlerts != nil {
		l.onAlerts(ctx, alerts)
	}
	return true, alerts
}

// 扫描任务在 gocron 中的 tag
const jobTag = "scan-pass"

// Run 立即执行一次；每轮结束后再等 Interval 才开始下一轮（一次性任务逐轮重新登记），
// 因此两轮之间至少间隔 Interval，不会重叠。ctx 取消后停止调度并返回。
func (l *Loop) Run(ctx context.Context) error {
	trace.Log(ctx, "schedule: Starting stock scanner, interval=%s", l.cfg.Interval)
	s := gocron.NewScheduler(l.market.loc)

	var arm func(start time.Time) error
	job := func() {
		if ctx.Err() != nil {
			return
		}
		l.Tick(ctx)
		if ctx.Err() != nil {
			return
		}
		if err := arm(time.Now().Add(l.cfg.Interval)); err != nil {
			trace.Error(ctx, "schedule: re-arm scan job: %v", err)
		}
	}
	arm = func(start time.Time) error {
		_ = s.RemoveByTag(jobTag)
		sj := s.Every(l.cfg.Interval).Tag(jobTag)
		if !start.IsZero() {
			sj = sj.StartAt(start)
		}
		_, err := sj.LimitRunsTo(1).Do(job)
		return err
	}

	if err := arm(time.Time{}); err != nil {
		return fmt.Errorf("schedule: register job: %w", err)
	}
	s.StartAsync()
	<-ctx.Done()
	s.Stop()
	trace.Log(ctx, "schedule: stopped: %v", ctx.Err())
	return nil
}
