// Package main 是小盘股突破扫描程序的入口：按美股扩展时段每 5 分钟扫描一次股票池，
// 满足价格突破 + 放量即告警。SCREENER_BUILD_UNIVERSE=1 时只重建股票池后退出。
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"

	"smallCapScanner/internal/api"
	"smallCapScanner/internal/config"
	"smallCapScanner/internal/mail"
	"smallCapScanner/internal/model"
	"smallCapScanner/internal/notify"
	"smallCapScanner/internal/scanner"
	"smallCapScanner/internal/schedule"
	"smallCapScanner/internal/trace"
	"smallCapScanner/internal/universe"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	flush, err := trace.Init(cfg.LogFile, cfg.Debug)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = trace.WithTraceID(ctx, trace.NewTraceID())

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		trace.Error(ctx, "main: %v", err)
		flush()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	client := newAPIClient(cfg.API)
	if cfg.BuildUniverse {
		return buildUniverse(ctx, cfg, client)
	}
	return runScanner(ctx, cfg, client)
}

func newAPIClient(c config.API) *api.Client {
	return api.NewClient(api.Options{
		ListingsURL:   c.ListingsURL,
		QuoteURL:      c.QuoteURL,
		ChartURL:      c.ChartURL,
		Timeout:       c.Timeout,
		RequestGap:    c.RequestGap,
		JitterMS:      c.JitterMS,
		MaxConcurrent: c.MaxConcurrent,
		Attempts:      c.Attempts,
	})
}

// buildUniverse 手动触发：重建小盘股股票池
func buildUniverse(ctx context.Context, cfg *config.Config, client *api.Client) error {
	b := universe.NewBuilder(universe.BuilderConfig{
		Path:          cfg.UniverseFile,
		Workers:       cfg.Builder.Workers,
		ProgressEvery: cfg.Builder.ProgressEvery,
	}, client)
	_, err := b.Build(ctx)
	return err
}

// runScanner 常驻进程，只在收到 SIGINT/SIGTERM 时退出。
func runScanner(ctx context.Context, cfg *config.Config, client *api.Client) error {
	market, err := schedule.NewMarket(cfg.Schedule.Timezone)
	if err != nil {
		return err
	}

	var sinks []scanner.Sink
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			trace.Warn(ctx, "main: redis %s 不可用，告警仅写日志 err=%v", cfg.Redis.Addr, err)
		} else {
			sinks = append(sinks, notify.NewRedisSink(rdb, cfg.Redis.Channel))
			trace.Log(ctx, "main: 告警发布到 redis channel=%s", cfg.Redis.Channel)
		}
	}

	sc := scanner.New(scanner.Config{
		UniverseFile: cfg.UniverseFile,
		ErrorPause:   cfg.Schedule.ErrorPause,
	}, client, sinks...)

	mailCfg := buildMailConfig(&cfg.SMTP)
	loop := schedule.NewLoop(schedule.LoopConfig{Interval: cfg.Schedule.Interval}, market, sc,
		func(ctx context.Context, alerts []model.Alert) {
			mail.MustSendDigest(ctx, mailCfg, alerts)
		})
	if err := loop.Run(ctx); err != nil {
		return fmt.Errorf("scan loop: %w", err)
	}
	return nil
}

func buildMailConfig(smtpCfg *config.SMTP) *mail.SMTPConfig {
	if smtpCfg == nil {
		smtpCfg = &config.SMTP{}
	}
	return &mail.SMTPConfig{
		Server:   smtpCfg.Server,
		Port:     smtpCfg.Port,
		User:     smtpCfg.User,
		Password: smtpCfg.Password,
		From:     smtpCfg.From,
		To:       smtpCfg.To,
	}
}
