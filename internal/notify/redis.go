// Package notify 把告警以 JSON 发布到 Redis 频道，供外部订阅者（看板、机器人）消费；发出即弃，不做存储。
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"smallCapScanner/internal/model"
	"smallCapScanner/internal/trace"
)

const defaultChannel = "screener:alerts"

// Publisher 只依赖 Publish，便于替换客户端。
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type RedisSink struct {
	pub     Publisher
	channel string
}

func NewRedisSink(pub Publisher, channel string) *RedisSink {
	if channel == "" {
		channel = defaultChannel
	}
	return &RedisSink{pub: pub, channel: channel}
}

// alertMessage 发布载荷：结构化字段 + 与日志一致的告警行。
type alertMessage struct {
	model.Alert
	SharesMillions float64 `json:"shares_millions"`
	Line           string  `json:"line"`
}

func (s *RedisSink) Publish(ctx context.Context, a model.Alert) error {
	payload, err := json.Marshal(alertMessage{Alert: a, SharesMillions: a.SharesMillions(), Line: a.String()})
	if err != nil {
		return fmt.Errorf("notify: marshal alert %s: %w", a.Symbol, err)
	}
	receivers, err := s.pub.Publish(ctx, s.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("notify: publish %s: %w", s.channel, err)
	}
	trace.Debug(ctx, "notify: published %s to %s receivers=%d", a.Symbol, s.channel, receivers)
	return nil
}
